package corewire

import (
	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/strcore"
	"github.com/rawbytedev/strcore/internal/common"
)

// DefaultCompressMin is the entry size below which compression is not tried.
const DefaultCompressMin = 512

type Options struct {
	// CompressMin is the smallest entry to compress; 0 selects
	// DefaultCompressMin and a negative value disables compression.
	CompressMin int
	Level       zstd.EncoderLevel
}

// Encoder writes snapshot frames. It is safe for concurrent use.
type Encoder struct {
	opts Options
	zw   *zstd.Encoder
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.CompressMin == 0 {
		opts.CompressMin = DefaultCompressMin
	}
	if opts.Level == 0 {
		opts.Level = zstd.SpeedDefault
	}
	zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(opts.Level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Encoder{opts: opts, zw: zw}, nil
}

// Encode appends a frame holding cores to dst.
func (e *Encoder) Encode(dst []byte, cores []*strcore.Core) ([]byte, error) {
	start := len(dst)
	out := writePreamble(dst, TypeSnapshot)
	out = append(out, 0, 0, 0, 0) // length, set by seal
	flagsAt := len(out)
	out = append(out, 0)
	out = common.WriteVarUintTo(out, uint64(len(cores)))

	var flags byte
	for _, c := range cores {
		data := c.Data()
		payload, ef := data, byte(0)
		if e.opts.CompressMin > 0 && len(data) >= e.opts.CompressMin {
			if z := e.zw.EncodeAll(data, nil); len(z) < len(data) {
				payload, ef = z, EntryCompressed
				flags |= FlagCompressed
			}
		}
		out = append(out, byte(c.Category()), ef)
		out = common.WriteVarUintTo(out, uint64(len(data)))
		out = common.WriteVarUintTo(out, uint64(len(payload)))
		out = append(out, payload...)
	}
	out[flagsAt] = flags
	return seal(out, start)
}

func (e *Encoder) Close() error {
	return e.zw.Close()
}
