package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/logging"
	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/daniacca/graphitecore/internal/telemetry"
)

// options are the command line settings of one run.
type options struct {
	scenario  string
	ticks     int
	telemetry string
	format    string
	seed      int64
	logLevel  string
}

// result is the summary of one reactor after the run.
type result struct {
	ReactorID string            `json:"reactor_id"`
	Destroyed bool              `json:"destroyed"`
	Summary   telemetry.Summary `json:"summary"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("reactor-sim", flag.ContinueOnError)
	fs.StringVar(&opts.scenario, "scenario", "", "path to a YAML plant config; empty runs the stock reactor")
	fs.IntVar(&opts.ticks, "ticks", 100, "number of ticks to run")
	fs.StringVar(&opts.telemetry, "telemetry", "", "CSV file telemetry is written to; overrides the scenario")
	fs.StringVar(&opts.format, "format", "text", "summary format: text or json")
	fs.Int64Var(&opts.seed, "seed", 0, "seed applied to every reactor without one; 0 keeps the scenario's")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.ticks <= 0 {
		return options{}, fmt.Errorf("--ticks must be positive, got %d", opts.ticks)
	}
	if opts.format != "text" && opts.format != "json" {
		return options{}, fmt.Errorf("--format must be text or json, got %q", opts.format)
	}
	return opts, nil
}

// stockReactor is simulated when the scenario declares none.
func stockReactor() config.ReactorConfig {
	return config.ReactorConfig{
		ID:              "sim",
		Seed:            1,
		Consoles:        []string{"desk"},
		ControlRodDepth: 0.5,
		Rods: []config.RodConfig{
			{Kind: reactor.RodStarter},
			{Kind: reactor.RodFuel},
			{Kind: reactor.RodFuel},
			{Kind: reactor.RodFuel},
			{Kind: reactor.RodFuel},
			{Kind: reactor.RodControl},
			{Kind: reactor.RodControl},
		},
		Pipe: "loop",
	}
}

func loadScenario(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.scenario != "" {
		var err error
		if cfg, err = config.Load(opts.scenario); err != nil {
			return nil, err
		}
	}
	if len(cfg.Reactors) == 0 {
		cfg.Reactors = []config.ReactorConfig{stockReactor()}
	}
	if opts.telemetry != "" {
		cfg.Telemetry.Path = opts.telemetry
	}
	if opts.seed != 0 {
		for i := range cfg.Reactors {
			if cfg.Reactors[i].Seed == 0 {
				cfg.Reactors[i].Seed = opts.seed
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	logger, err := logging.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadScenario(opts)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	results, err := simulate(cfg, opts.ticks, logger)
	if err != nil {
		return err
	}
	return printResults(out, opts.format, results)
}

// simulate runs every declared reactor for ticks ticks in lockstep and
// summarizes each one.
func simulate(cfg *config.Config, ticks int, logger *logging.Logger) ([]result, error) {
	recorder, err := telemetry.Create(cfg.Telemetry.Path, cfg.Telemetry.Every)
	if err != nil {
		return nil, err
	}
	defer recorder.Close()

	m := reactor.NewManager(reactor.ManagerOptions{
		Radiation: cfg.NewRadiationGrid(),
		Logger:    logger,
	})
	defer m.Close()

	cores := make([]*reactor.Core, 0, len(cfg.Reactors))
	coolants := make([]config.CoolantConfig, 0, len(cfg.Reactors))
	for _, rc := range cfg.Reactors {
		core, err := cfg.BuildReactor(m, rc)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
		coolants = append(coolants, cfg.CoolantFor(rc))
	}

	rows := make(map[reactor.ReactorID][]telemetry.Row, len(cores))
	for range ticks {
		for i, core := range cores {
			report := core.Tick()
			if report.Skipped {
				continue
			}
			if err := recorder.Record(report); err != nil {
				return nil, err
			}
			rows[core.ID()] = append(rows[core.ID()], telemetry.RowFromReport(report))
			cc := coolants[i]
			core.WithFluid(func(fluid reactor.ThermalFluid) {
				if mix, ok := fluid.(*reactor.CoolantMix); ok {
					mix.Exchange(cc.AmbientTemperature, cc.Conductance)
				}
			})
		}
	}

	results := make([]result, 0, len(cores))
	for _, core := range cores {
		results = append(results, result{
			ReactorID: string(core.ID()),
			Destroyed: core.Destroyed(),
			Summary:   telemetry.Summarize(rows[core.ID()]),
		})
	}
	return results, nil
}

func printResults(out io.Writer, format string, results []result) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(out, "Simulation finished (reactor=%s, ticks=%d, phase=%s, destroyed=%t)\n",
			r.ReactorID, s.Ticks, s.FinalPhase, r.Destroyed)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  neutrons\tmean=%.4g\tstd=%.4g\tp50=%.4g\tp90=%.4g\tmax=%.4g\n",
			s.NeutronMean, s.NeutronStd, s.NeutronP50, s.NeutronP90, s.NeutronMax)
		fmt.Fprintf(tw, "  k-factor\tmean=%.4f\n", s.KFactorMean)
		fmt.Fprintf(tw, "  temperature\tmean=%.2fK\tmax=%.2fK\n", s.TemperatureMean, s.TemperatureMax)
		fmt.Fprintf(tw, "  pressure\tmax=%.4g\n", s.PressureMax)
		fmt.Fprintf(tw, "  energy\ttotal=%.4gJ\n", s.EnergyTotal)
		fmt.Fprintf(tw, "  coolant\tboiled_off=%.4g\n", s.BoiledOffTotal)
		fmt.Fprintf(tw, "  leak\tmean=%.4g\n", s.LeakMean)
		fmt.Fprintf(tw, "  events\tspontaneous=%d\tfaulted=%d\n", s.SpontaneousTicks, s.FaultedTicks)
		fmt.Fprintf(tw, "  safety\tmeltdown@%d\trupture@%d\texploded@%d\n", s.MeltdownTick, s.RuptureTick, s.ExplodedTick)
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
