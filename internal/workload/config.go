package workload

import (
	"os"
	"runtime"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Mix weights the operations a worker picks from. Zero weights disable an
// operation.
type Mix struct {
	Append   int `yaml:"append"`
	PushBack int `yaml:"push_back"`
	Clone    int `yaml:"clone"`
	Shrink   int `yaml:"shrink"`
	Reserve  int `yaml:"reserve"`
	Write    int `yaml:"write"`
	Intern   int `yaml:"intern"`
	Release  int `yaml:"release"`
}

func (m Mix) weights() []int {
	return []int{m.Append, m.PushBack, m.Clone, m.Shrink, m.Reserve, m.Write, m.Intern, m.Release}
}

// Config describes one benchmark run.
type Config struct {
	Workers int    `yaml:"workers"`
	Ops     int    `yaml:"ops"` // per worker
	Seed    uint64 `yaml:"seed"`
	// MaxLive caps the cores a worker holds; past it the oldest is released.
	MaxLive int `yaml:"max_live"`
	// MaxAppend bounds the bytes added by one append.
	MaxAppend int `yaml:"max_append"`
	// HeapLimit caps live heap bytes; allocations past it fail and are
	// counted instead of aborting the run. 0 means unlimited.
	HeapLimit int `yaml:"heap_limit"`
	// Keys is the number of distinct long strings interned.
	Keys int `yaml:"keys"`
	Mix  Mix `yaml:"mix"`
}

// Default returns a balanced workload sized for a quick run.
func Default() Config {
	return Config{
		Workers:   runtime.GOMAXPROCS(0),
		Ops:       20000,
		Seed:      1,
		MaxLive:   64,
		MaxAppend: 96,
		Keys:      32,
		Mix: Mix{
			Append:   30,
			PushBack: 20,
			Clone:    15,
			Shrink:   10,
			Reserve:  5,
			Write:    10,
			Intern:   5,
			Release:  5,
		},
	}
}

// Load reads a YAML workload from path. Fields missing from the file keep
// their Default values, except that a mix is taken whole.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return cfg, zerr.Wrap(err, "failed to read workload file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, zerr.Wrap(err, "failed to parse workload file")
	}
	// a mix in the file replaces the default one instead of merging into it
	var mix struct {
		Mix *Mix `yaml:"mix"`
	}
	if err := yaml.Unmarshal(data, &mix); err != nil {
		return cfg, zerr.Wrap(err, "failed to parse workload mix")
	}
	if mix.Mix != nil {
		cfg.Mix = *mix.Mix
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return zerr.With(zerr.New("workers must be positive"), "workers", c.Workers)
	case c.Ops < 0:
		return zerr.With(zerr.New("ops must not be negative"), "ops", c.Ops)
	case c.MaxLive < 1:
		return zerr.With(zerr.New("max_live must be positive"), "max_live", c.MaxLive)
	case c.MaxAppend < 1:
		return zerr.With(zerr.New("max_append must be positive"), "max_append", c.MaxAppend)
	case c.HeapLimit < 0:
		return zerr.With(zerr.New("heap_limit must not be negative"), "heap_limit", c.HeapLimit)
	case c.Mix.Intern > 0 && c.Keys < 1:
		return zerr.With(zerr.New("intern needs at least one key"), "keys", c.Keys)
	}
	total := 0
	for _, w := range c.Mix.weights() {
		if w < 0 {
			return zerr.New("mix weights must not be negative")
		}
		total += w
	}
	if total == 0 {
		return zerr.New("mix selects no operation")
	}
	return nil
}
