// Command iksolve builds a straight chain, solves it toward a target with
// FABRIK and prints the resulting joint poses.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chazu/ik/pkg/metrics"
	"github.com/chazu/ik/pkg/solver"
	"github.com/chazu/ik/pkg/solver/fabrik"
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

type options struct {
	segments   int
	length     float64
	target     string
	iterations int
	tolerance  float64
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "iksolve",
		Short: "Solve a straight chain toward a target with FABRIK",
		Long: `iksolve builds a chain of equal segments along +Y from the origin,
attaches an effector to its last node and prints every joint after solving.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.segments, "segments", "n", 4, "number of segments in the chain")
	f.Float64VarP(&opts.length, "length", "l", 1, "length of each segment")
	f.StringVarP(&opts.target, "target", "t", "2,2,0", "effector target as x,y,z")
	f.IntVar(&opts.iterations, "iterations", 0, "maximum iterations (overrides config)")
	f.Float64Var(&opts.tolerance, "tolerance", 0, "convergence tolerance (overrides config)")
	f.StringVarP(&opts.configPath, "config", "c", "", "solver config YAML file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if opts.segments < 1 {
		return errors.Errorf("need at least one segment, got %d", opts.segments)
	}
	if !(opts.length > 0) {
		return errors.Errorf("segment length must be positive, got %v", opts.length)
	}
	target, err := parseVec(opts.target)
	if err != nil {
		return err
	}

	cfg := solver.DefaultConfig()
	if opts.configPath != "" {
		if cfg, err = solver.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	if opts.iterations > 0 {
		cfg.MaxIterations = opts.iterations
	}
	if opts.tolerance > 0 {
		cfg.Tolerance = opts.tolerance
	}
	// The chain is laid out directly in global coordinates.
	cfg.Space = solver.SpaceGlobal

	root := tree.Create(tree.NewNodeID("joint0"))
	last := root
	for i := 1; i <= opts.segments; i++ {
		last = last.CreateChild(tree.NewNodeID(fmt.Sprintf("joint%d", i)))
		last.Position = vmath.Vec3{Y: float64(i) * opts.length}
	}
	e := tree.NewEffector()
	e.TargetPosition = target
	last.AttachEffector(e)
	for _, verr := range tree.Validate(root) {
		logger.Warn("tree validation", "error", verr.Error())
	}

	algos := solver.NewRegistry()
	defer algos.Close()
	if err := fabrik.Register(algos); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	s, err := solver.New(algos, root, fabrik.Name,
		solver.WithConfig(cfg),
		solver.WithLogger(logger),
		solver.WithObserver(metrics.New(reg)))
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Solve()
	if err != nil {
		return err
	}
	logger.Info("solve finished",
		"status", res.Status,
		"iterations", res.Iterations,
		"target", opts.target,
		"reach", float64(opts.segments)*opts.length)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s after %d iterations\n", res.Status, res.Iterations)
	fmt.Fprintf(out, "joint0: (%.4f, %.4f, %.4f)\n", root.Position.X, root.Position.Y, root.Position.Z)
	i := 1
	s.IterateNodes(func(p vmath.Vec3, q vmath.Quat) {
		axis, angle := q.AxisAngle()
		fmt.Fprintf(out, "joint%d: (%.4f, %.4f, %.4f) rot %.4f rad about (%.3f, %.3f, %.3f)\n",
			i, p.X, p.Y, p.Z, angle, axis.X, axis.Y, axis.Z)
		i++
	})

	if opts.verbose {
		logMetrics(logger, reg)
	}
	return nil
}

func logMetrics(logger *slog.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, l := range m.GetLabel() {
				attrs = append(attrs, l.GetName(), l.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				attrs = append(attrs, "value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, "count", m.GetHistogram().GetSampleCount(), "sum", m.GetHistogram().GetSampleSum())
			}
			logger.Debug("metric", attrs...)
		}
	}
}

// parseVec parses "x,y,z".
func parseVec(s string) (vmath.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return vmath.Vec3{}, errors.Errorf("target %q: want x,y,z", s)
	}
	var c [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return vmath.Vec3{}, errors.Wrapf(err, "target %q", s)
		}
		c[i] = v
	}
	return vmath.Vec3{X: c[0], Y: c[1], Z: c[2]}, nil
}
