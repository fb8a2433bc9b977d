package commands

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/strcore/internal/workload"
)

type runFlags struct {
	config     string
	workers    int
	ops        int
	seed       uint64
	heapLimit  int
	memProfile string
	snapshot   string
}

func (c *CLI) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workload and print a YAML report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return c.run(cmd, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "Workload YAML file")
	fl.IntVarP(&f.workers, "workers", "w", 0, "Worker goroutines (overrides the workload file)")
	fl.IntVarP(&f.ops, "ops", "n", 0, "Operations per worker (overrides the workload file)")
	fl.Uint64Var(&f.seed, "seed", 0, "Random seed (overrides the workload file)")
	fl.IntVar(&f.heapLimit, "heap-limit", 0, "Live heap budget in bytes (overrides the workload file)")
	fl.StringVar(&f.memProfile, "memprofile", "", "Write a heap profile to this file")
	fl.StringVar(&f.snapshot, "snapshot", "", "Write the surviving cores to this file as a corewire frame")
	return cmd
}

func (f runFlags) load(cmd *cobra.Command) (workload.Config, error) {
	cfg := workload.Default()
	if f.config != "" {
		var err error
		if cfg, err = workload.Load(f.config); err != nil {
			return cfg, err
		}
	}
	fl := cmd.Flags()
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("ops") {
		cfg.Ops = f.ops
	}
	if fl.Changed("seed") {
		cfg.Seed = f.seed
	}
	if fl.Changed("heap-limit") {
		cfg.HeapLimit = f.heapLimit
	}
	return cfg, cfg.Validate()
}

func (c *CLI) run(cmd *cobra.Command, cfg workload.Config, f runFlags) error {
	var opts workload.Options
	if f.snapshot != "" {
		out, err := os.Create(f.snapshot) //nolint:gosec // path is provided by user
		if err != nil {
			return zerr.Wrap(err, "failed to create snapshot file")
		}
		defer out.Close()
		opts.Snapshot = out
	}
	if f.memProfile != "" {
		runtime.MemProfileRate = 1
		defer func() { runtime.MemProfileRate = 512 * 1024 }()
	}

	rep, runErr := workload.Run(cmd.Context(), cfg, c.logger, opts)
	if rep != nil {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return zerr.Wrap(err, "failed to write report")
		}
		_ = enc.Close()
	}
	if runErr != nil {
		return runErr
	}
	if f.memProfile != "" {
		return writeHeapProfile(f.memProfile)
	}
	return nil
}

func writeHeapProfile(path string) error {
	out, err := os.Create(path) //nolint:gosec // path is provided by user
	if err != nil {
		return zerr.Wrap(err, "failed to create heap profile")
	}
	defer out.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(out); err != nil {
		return zerr.Wrap(err, "failed to write heap profile")
	}
	return nil
}
