package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amrshaker/taskmill/internal/config"
	"github.com/amrshaker/taskmill/internal/graph"
	"github.com/amrshaker/taskmill/internal/logging"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Run the sample dependency graph (diamond: A → {B,C} → D)",
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().Int("workers", runtime.NumCPU(), "number of pool workers")
	bindFlag("workers", graphCmd.Flags(), "workers")
}

func runGraph(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}

	lg, err := logging.New("graph_log.txt", logging.WithLevel(parseLevel(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = lg.Close() }()
	logger := lg.Slog()

	g, err := graph.New(cfg.Workers, graph.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	defer g.Close()

	step := func(name string, d time.Duration) *graph.Node {
		return graph.NewNode(name, func(ctx context.Context) error {
			lg.Line("node " + name + " running")
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	a := step("A", 30*time.Millisecond)
	b := step("B", 50*time.Millisecond)
	c := step("C", 40*time.Millisecond)
	d := step("D", 20*time.Millisecond)

	if err := b.DependsOn(a); err != nil {
		return err
	}
	if err := c.DependsOn(a); err != nil {
		return err
	}
	if err := d.DependsOn(b, c); err != nil {
		return err
	}
	for _, n := range []*graph.Node{a, b, c, d} {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := g.Execute(context.Background()); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if err := g.WaitAll(); err != nil {
		return fmt.Errorf("graph run: %w", err)
	}

	logger.Info("graph finished", slog.Duration("elapsed", time.Since(start)))
	lg.Line("graph finished")
	return nil
}
