// Package workload drives string cores through randomized operation mixes
// and reports how they used memory. It backs the strcore-bench command.
package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rawbytedev/strcore"
	"github.com/rawbytedev/strcore/pkg/alloc"
	"github.com/rawbytedev/strcore/pkg/corewire"
	"github.com/rawbytedev/strcore/pkg/intern"
)

// ErrLeak reports blocks still live after every core was released.
var ErrLeak = errors.New("workload leaked blocks")

type op int

const (
	opAppend op = iota
	opPushBack
	opClone
	opShrink
	opReserve
	opWrite
	opIntern
	opRelease
	numOps
)

var opNames = [numOps]string{"append", "push_back", "clone", "shrink", "reserve", "write", "intern", "release"}

// Report summarizes a run.
type Report struct {
	Workers     int              `yaml:"workers"`
	Ops         map[string]int64 `yaml:"ops"`
	Categories  map[string]int64 `yaml:"categories"`
	OutOfMemory int64            `yaml:"out_of_memory"`
	Allocs      int64            `yaml:"allocs"`
	Frees       int64            `yaml:"frees"`
	Reallocs    int64            `yaml:"reallocs"`
	LiveBlocks  int              `yaml:"live_blocks"`
	Interned    intern.Stats     `yaml:"interned"`
	Snapshot    int              `yaml:"snapshot_bytes,omitempty"`
	Elapsed     string           `yaml:"elapsed"`
}

// Options holds the optional outputs of a run.
type Options struct {
	// Snapshot receives a corewire frame of the cores alive when the
	// workers stop.
	Snapshot io.Writer
}

// Run executes cfg. It installs its own allocator for the duration, so no
// other cores may be alive in the process while it runs.
func Run(ctx context.Context, cfg Config, log *zap.Logger, opts Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	counter := alloc.NewCounting(alloc.NewHeap(alloc.HeapOptions{Limit: cfg.HeapLimit}))
	restore := alloc.Use(counter)
	defer restore()

	start := time.Now()
	pool := intern.NewPool()
	keys := makeKeys(cfg.Keys)
	workers := make([]*worker, cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		w := newWorker(i, cfg, pool, keys)
		workers[i] = w
		g.Go(func() error {
			err := w.run(gctx)
			log.Debug("worker done", zap.Int("worker", i), zap.Int("live", len(w.live)), zap.Error(err))
			return err
		})
	}
	runErr := g.Wait()

	var survivors []*strcore.Core
	for _, w := range workers {
		survivors = append(survivors, w.live...)
		w.live = nil
	}
	rep := merge(workers)
	if runErr == nil && opts.Snapshot != nil {
		rep.Snapshot, runErr = snapshot(opts.Snapshot, survivors)
	}
	for _, c := range survivors {
		c.Release()
	}
	rep.Interned = pool.Stats()
	pool.Release()

	rep.Allocs, rep.Frees, rep.Reallocs = counter.Allocs(), counter.Frees(), counter.Reallocs()
	rep.LiveBlocks = counter.Live()
	rep.Elapsed = time.Since(start).Round(time.Millisecond).String()
	log.Info("workload finished",
		zap.Int("workers", rep.Workers),
		zap.Int64("allocs", rep.Allocs),
		zap.Int64("out_of_memory", rep.OutOfMemory),
		zap.Int("live_blocks", rep.LiveBlocks),
		zap.String("elapsed", rep.Elapsed))

	if runErr != nil {
		return rep, zerr.Wrap(runErr, "workload failed")
	}
	if rep.LiveBlocks != 0 {
		return rep, zerr.With(ErrLeak, "live_blocks", rep.LiveBlocks)
	}
	return rep, nil
}

func makeKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		k := make([]byte, 0, strcore.MaxMedium+32)
		for len(k) <= strcore.MaxMedium {
			k = fmt.Appendf(k, "key-%04d/", i)
		}
		keys[i] = k
	}
	return keys
}

func merge(workers []*worker) *Report {
	rep := &Report{
		Workers:    len(workers),
		Ops:        make(map[string]int64, numOps),
		Categories: make(map[string]int64, 3),
	}
	for _, w := range workers {
		for o, n := range w.ops {
			rep.Ops[opNames[o]] += n
		}
		for cat, n := range w.cats {
			rep.Categories[strcore.Category(cat).String()] += n
		}
		rep.OutOfMemory += w.oom
	}
	return rep
}

func snapshot(out io.Writer, cores []*strcore.Core) (int, error) {
	enc, err := corewire.NewEncoder(corewire.Options{})
	if err != nil {
		return 0, err
	}
	defer enc.Close()
	frame, err := enc.Encode(nil, cores)
	if err != nil {
		return 0, zerr.Wrap(err, "failed to encode snapshot")
	}

	dec, err := corewire.NewDecoder(0)
	if err != nil {
		return 0, err
	}
	defer dec.Close()
	back, err := dec.Decode(frame)
	if err != nil {
		return 0, zerr.Wrap(err, "snapshot does not decode")
	}
	for _, c := range back {
		c.Release()
	}
	if len(back) != len(cores) {
		return 0, zerr.With(zerr.New("snapshot lost entries"), "want", len(cores))
	}

	if _, err := out.Write(frame); err != nil {
		return 0, zerr.Wrap(err, "failed to write snapshot")
	}
	return len(frame), nil
}

type worker struct {
	cfg     Config
	rng     *rand.Rand
	pool    *intern.Pool
	keys    [][]byte
	weights []int
	total   int

	live []*strcore.Core
	buf  []byte

	ops  [numOps]int64
	cats [3]int64
	oom  int64
}

func newWorker(id int, cfg Config, pool *intern.Pool, keys [][]byte) *worker {
	w := &worker{
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(cfg.Seed, uint64(id))),
		pool:    pool,
		keys:    keys,
		weights: cfg.Mix.weights(),
		buf:     make([]byte, cfg.MaxAppend),
	}
	for _, n := range w.weights {
		w.total += n
	}
	for i := range w.buf {
		w.buf[i] = byte('a' + i%26)
	}
	return w
}

func (w *worker) run(ctx context.Context) error {
	for i := range w.cfg.Ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		o := w.pick()
		c, err := w.do(o)
		switch {
		case errors.Is(err, strcore.ErrOutOfMemory):
			w.oom++
		case err != nil:
			return fmt.Errorf("%s: %w", opNames[o], err)
		}
		w.ops[o]++
		if c != nil {
			w.cats[c.Category()]++
		}
	}
	return nil
}

func (w *worker) pick() op {
	n := w.rng.IntN(w.total)
	for o, weight := range w.weights {
		if n < weight {
			return op(o)
		}
		n -= weight
	}
	panic("unreachable")
}

// target returns a random live core, creating an empty one when the worker
// holds none.
func (w *worker) target() *strcore.Core {
	if len(w.live) == 0 {
		w.add(strcore.Empty())
	}
	return w.live[w.rng.IntN(len(w.live))]
}

func (w *worker) add(c *strcore.Core) {
	w.live = append(w.live, c)
	if len(w.live) > w.cfg.MaxLive {
		w.live[0].Release()
		w.live = w.live[1:]
	}
}

func (w *worker) do(o op) (*strcore.Core, error) {
	switch o {
	case opAppend:
		c := w.target()
		return c, c.Append(w.buf[:1+w.rng.IntN(len(w.buf))])
	case opPushBack:
		c := w.target()
		return c, c.PushBack(byte('A' + w.rng.IntN(26)))
	case opClone:
		d, err := w.target().Clone()
		if err != nil {
			return nil, err
		}
		w.add(d)
		return d, nil
	case opShrink:
		c := w.target()
		return c, c.Shrink(w.rng.IntN(c.Size() + 1))
	case opReserve:
		c := w.target()
		return c, c.Reserve(c.Size() + w.rng.IntN(4*w.cfg.MaxAppend))
	case opWrite:
		c := w.target()
		b, err := c.MutableData()
		if err == nil && len(b) > 0 {
			b[w.rng.IntN(len(b))] ^= 0x20
		}
		return c, err
	case opIntern:
		c, err := w.pool.Intern(w.keys[w.rng.IntN(len(w.keys))])
		if err != nil {
			return nil, err
		}
		w.add(c)
		return c, nil
	case opRelease:
		if len(w.live) == 0 {
			return nil, nil
		}
		i := w.rng.IntN(len(w.live))
		w.live[i].Release()
		w.live = append(w.live[:i], w.live[i+1:]...)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown op %d", o)
}
