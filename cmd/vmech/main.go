package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/vmech/internal/config"
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/logging"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/optim"
	"github.com/san-kum/vmech/internal/sim"
	"github.com/san-kum/vmech/internal/storage"
	"github.com/san-kum/vmech/internal/viz"
	"github.com/san-kum/vmech/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataDir string
	verbose bool
	logger  *zap.Logger

	configFile string
	preset     string
	modelPaths []string
	mode       string
	order      string
	integrator string
	dt         float64
	duration   float64
	active     bool
	weighted   bool
	direction  string
	watchDir   string
	noSave     bool
	frameRate  int

	svgOut    string
	svgPlane  string
	svgWidth  int
	svgHeight int

	tuneParams []string
	tuneMetric string

	genFrom       []float64
	genTo         []float64
	genComponents int
	genVariance   float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "vmech",
		Short:        "virtual mechanism guidance lab",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".vmech", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a guided point-mass simulation",
		RunE:  runSimulation,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().StringVar(&watchDir, "watch", "", "load models from a directory and keep watching it")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive guidance view",
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frames per second")

	inspectCmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "print the expected trajectory of a model artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectModel,
	}

	genCmd := &cobra.Command{
		Use:   "gen [out]",
		Short: "write a straight-line model artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  generateModel,
	}
	genCmd.Flags().Float64SliceVar(&genFrom, "from", []float64{0, 0, 0}, "start point")
	genCmd.Flags().Float64SliceVar(&genTo, "to", []float64{1, 1, 1}, "end point")
	genCmd.Flags().IntVar(&genComponents, "components", 11, "number of gaussian components")
	genCmd.Flags().Float64Var(&genVariance, "variance", config.DefaultVariance, "isotropic component variance")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot phases and guidance force of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "write a stored run as JSON to stdout, or as an SVG path",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&svgOut, "svg", "", "write the robot path as SVG to this file instead")
	exportCmd.Flags().StringVar(&svgPlane, "plane", "xy", "projection plane: xy, xz, yz")
	exportCmd.Flags().IntVar(&svgWidth, "width", 800, "svg width")
	exportCmd.Flags().IntVar(&svgHeight, "height", 600, "svg height")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search gains against a metric",
		RunE:  runTune,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "parameter grid as name=v1,v2 (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "tracking_error", "metric to minimise")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		Run:   listPresets,
	}

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "run every preset concurrently and compare metrics",
		RunE:  runBatch,
	}
	batchCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")

	rootCmd.AddCommand(runCmd, liveCmd, inspectCmd, genCmd, listCmd, plotCmd, exportCmd, presetsCmd, batchCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "yaml scenario file")
	f.StringVarP(&preset, "preset", "p", "", "built-in scenario as scenario/name")
	f.StringArrayVarP(&modelPaths, "model", "m", nil, "model artifact to load (repeatable)")
	f.StringVar(&mode, "mode", "soft", "arbitration mode: soft, hard")
	f.StringVar(&order, "order", "first", "phase dynamics order: first, second")
	f.StringVar(&integrator, "integrator", "rk4", "plant integrator: euler, rk4")
	f.Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration")
	f.BoolVar(&active, "active", false, "drive phases toward their target")
	f.BoolVar(&weighted, "weighted", false, "use covariance-weighted distance")
	f.StringVar(&direction, "direction", "forward", "active direction: forward, backward")
}

// resolveConfig layers the config file, the preset and explicitly set flags,
// in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := "custom"

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	}

	if preset != "" {
		scenario, presetName, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, "", fmt.Errorf("preset %q: want scenario/name", preset)
		}
		p := config.GetPreset(scenario, presetName)
		if p == nil {
			return nil, "", fmt.Errorf("preset %q not found", preset)
		}
		cfg = p
		name = preset
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = mode
	}
	if flags.Changed("order") {
		cfg.Order = order
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("active") {
		cfg.Mechanism.Active = active
	}
	if flags.Changed("weighted") {
		cfg.Mechanism.WeightedDistance = weighted
	}
	if flags.Changed("direction") {
		cfg.Mechanism.Direction = direction
	}
	for _, p := range modelPaths {
		cfg.Models = append(cfg.Models, config.ModelConfig{Path: p})
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var opts []sim.Option
	if watchDir != "" {
		existing, err := watch.Existing(watchDir)
		if err != nil {
			return err
		}
		for _, p := range existing {
			cfg.Models = append(cfg.Models, config.ModelConfig{Path: p})
		}
		w, err := watch.New(watchDir, watch.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		opts = append(opts, sim.WithModelFeed(w.Paths()))
	}

	s, err := sim.FromConfig(cfg, logger, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("running %s: %d mechanisms, %s, %s order, dt=%.4f, T=%.2f\n",
		name, s.Manager().Len(), s.Mode(), cfg.Order, cfg.Dt, cfg.Duration)

	result, err := s.Run(ctx, cfg.InitState(), sim.Config{Dt: cfg.Dt, Duration: cfg.Duration})
	if err != nil && !errors.Is(err, dynamo.ErrContextCanceled) {
		return err
	}
	if err != nil {
		fmt.Println("interrupted, keeping partial run")
	}
	for _, e := range result.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}

	printMetrics(result.Metrics)
	if final := result.FinalState(); final != nil {
		fmt.Printf("final position: (%.3f, %.3f, %.3f)\n", final[0], final[1], final[2])
	}

	if noSave {
		return nil
	}
	store := storage.New(dataDir, logger)
	if err := store.Init(); err != nil {
		return err
	}
	runID, err := store.Save(storage.RunMetadata{
		Scenario:   name,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Mode:       s.Mode().String(),
		Order:      cfg.Order,
		Integrator: cfg.Integrator,
		Operator:   cfg.Operator.Kind,
		Models:     mechanismNames(s.Manager()),
	}, result)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	fmt.Printf("saved: %s\n", runID)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	// the alt screen owns the terminal, so only log when asked to
	live := zap.NewNop()
	if verbose {
		live = logger
	}
	s, err := sim.FromConfig(cfg, live)
	if err != nil {
		return err
	}
	return viz.Run(s, cfg.InitState(), cfg.Dt, frameRate, name)
}

func runBatch(cmd *cobra.Command, args []string) error {
	var scenarios []sim.Scenario
	for _, sc := range config.ListScenarios() {
		for _, p := range config.ListPresets(sc) {
			cfg := config.GetPreset(sc, p)
			if cmd.Flags().Changed("time") {
				cfg.Duration = duration
			}
			scenarios = append(scenarios, sim.Scenario{Name: sc + "/" + p, Config: cfg})
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results, err := sim.Batch(ctx, scenarios, logger)
	if err != nil {
		return err
	}

	var names []string
	if len(results) > 0 {
		names = sortedKeys(results[0].Metrics)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCENARIO\tSTEPS\t%s\n", strings.ToUpper(strings.Join(names, "\t")))
	for i, r := range results {
		fmt.Fprintf(w, "%s\t%d", scenarios[i].Name, r.StepsTaken)
		for _, n := range names {
			fmt.Fprintf(w, "\t%.4f", r.Metrics[n])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("no --param given, tunable: %s", strings.Join(optim.ParamNames(), ", "))
	}
	var params []optim.Param
	for _, raw := range tuneParams {
		p, err := optim.ParseParam(raw)
		if err != nil {
			return err
		}
		params = append(params, p)
	}
	g, err := optim.NewGridSearch(tuneMetric, logger, params...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s: %d grid points, minimising %s\n", name, g.Size(), tuneMetric)
	best, all, err := g.Search(ctx, cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, p := range params {
		fmt.Fprintf(w, "%s\t", strings.ToUpper(p.Name))
	}
	fmt.Fprintln(w, strings.ToUpper(tuneMetric))
	for _, c := range all {
		for _, p := range params {
			fmt.Fprintf(w, "%g\t", c.Params[p.Name])
		}
		if c.Err != nil {
			fmt.Fprintf(w, "error: %v\n", c.Err)
			continue
		}
		fmt.Fprintf(w, "%.5f\n", c.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nbest: %s=%.5f with", tuneMetric, best.Value)
	for _, p := range params {
		fmt.Printf(" %s=%g", p.Name, best.Params[p.Name])
	}
	fmt.Println()
	return nil
}

func listPresets(cmd *cobra.Command, args []string) {
	for _, sc := range config.ListScenarios() {
		fmt.Printf("%s:\n", sc)
		for _, p := range config.ListPresets(sc) {
			cfg := config.GetPreset(sc, p)
			fmt.Printf("  %s/%s  models=%d mode=%s order=%s active=%t\n",
				sc, p, len(cfg.Models), cfg.Mode, cfg.Order, cfg.Mechanism.Active)
		}
	}
}

func printMetrics(m map[string]float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(w, "%s\t%.4f\n", k, m[k])
	}
	w.Flush()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mechanismNames(mgr *manager.Manager) []string {
	names := make([]string, mgr.Len())
	for i := range names {
		names[i] = fmt.Sprintf("vm%d", i)
		vm, err := mgr.At(i)
		if err != nil {
			continue
		}
		if n, ok := vm.(interface{ Name() string }); ok && n.Name() != "" {
			names[i] = n.Name()
		}
	}
	return names
}
