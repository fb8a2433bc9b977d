package corewire

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/strcore"
	"github.com/rawbytedev/strcore/internal/common"
)

// DefaultMaxEntry bounds the decoded size of one entry.
const DefaultMaxEntry = 64 << 20

// Decoder reads snapshot frames. It is safe for concurrent use.
type Decoder struct {
	maxEntry int
	zr       *zstd.Decoder
}

// NewDecoder returns a decoder that rejects entries longer than maxEntry
// bytes; 0 selects DefaultMaxEntry.
func NewDecoder(maxEntry int) (*Decoder, error) {
	if maxEntry <= 0 {
		maxEntry = DefaultMaxEntry
	}
	zr, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(maxEntry)))
	if err != nil {
		return nil, err
	}
	return &Decoder{maxEntry: maxEntry, zr: zr}, nil
}

// Decode verifies frame and rebuilds its cores. The caller owns them. On
// error every core built so far is released.
func (d *Decoder) Decode(frame []byte) (cores []*strcore.Core, err error) {
	body, _, err := Verify(frame)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			for _, c := range cores {
				c.Release()
			}
			cores = nil
		}
	}()

	count, n, err := common.ReadVarInt(body, len(body))
	if err != nil {
		return nil, fmt.Errorf("%w: entry count: %v", ErrCorrupt, err)
	}
	body = body[n:]
	cores = make([]*strcore.Core, 0, count)
	var scratch []byte
	for i := range count {
		if len(body) < 2 {
			return cores, fmt.Errorf("%w: entry %d header", ErrCorrupt, i)
		}
		cat, ef := strcore.Category(body[0]), body[1]
		body = body[2:]
		raw, n, err := common.ReadVarInt(body, d.maxEntry)
		if err != nil {
			return cores, fmt.Errorf("%w: entry %d length: %v", ErrCorrupt, i, err)
		}
		body = body[n:]
		stored, n, err := common.ReadVarInt(body, len(body))
		if err != nil || n+stored > len(body) {
			return cores, fmt.Errorf("%w: entry %d stored length", ErrCorrupt, i)
		}
		payload := body[n : n+stored]
		body = body[n+stored:]

		if ef&EntryCompressed != 0 {
			scratch, err = d.zr.DecodeAll(payload, scratch[:0])
			if err != nil {
				return cores, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
			}
			payload = scratch
		}
		if len(payload) != raw {
			return cores, fmt.Errorf("%w: entry %d is %d bytes, header says %d", ErrCorrupt, i, len(payload), raw)
		}
		c, err := restore(cat, payload)
		if err != nil {
			return cores, err
		}
		cores = append(cores, c)
	}
	if len(body) != 0 {
		return cores, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body))
	}
	return cores, nil
}

// restore copies payload into a core and promotes it to cat when New picked
// a smaller category, as for a medium core shrunk below MaxSmall.
func restore(cat strcore.Category, payload []byte) (*strcore.Core, error) {
	c, err := strcore.New(payload)
	if err != nil {
		return nil, err
	}
	if cat <= c.Category() || cat > strcore.Large {
		return c, nil
	}
	floor := strcore.MaxSmall + 1
	if cat == strcore.Large {
		floor = strcore.MaxMedium + 1
	}
	if err := c.Reserve(max(floor, len(payload))); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (d *Decoder) Close() {
	d.zr.Close()
}
