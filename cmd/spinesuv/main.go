package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mrsinham/spinesuv/cmd/spinesuv/wizard"
	"github.com/mrsinham/spinesuv/internal/checkpoint"
	"github.com/mrsinham/spinesuv/internal/config"
	"github.com/mrsinham/spinesuv/internal/dicom/edgecases"
	"github.com/mrsinham/spinesuv/internal/logging"
	"github.com/mrsinham/spinesuv/internal/phantom"
	"github.com/mrsinham/spinesuv/internal/pipeline"
	"github.com/mrsinham/spinesuv/internal/results"
	"github.com/mrsinham/spinesuv/internal/util"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = runCommand(os.Args[2:])
	case "phantom":
		code = phantomCommand(os.Args[2:])
	case "init":
		code = initCommand(os.Args[2:])
	case "version", "--version":
		fmt.Printf("spinesuv %s\n", version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", os.Args[1])
		printHelp()
		code = 1
	}
	os.Exit(code)
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML configuration file")
	data := fs.String("data", "", "Data folder, one directory per patient (overrides the config)")
	work := fs.String("work", "", "Work directory (overrides the config)")
	limit := fs.Int("limit", 0, "Process only the first N patients")
	resume := fs.Bool("resume", false, "Skip patients already present in the stage checkpoints")
	stages := fs.String("stage", "all", fmt.Sprintf("Comma-separated stages to compute: %s", strings.Join(pipeline.Stages, ",")))
	engine := fs.String("engine", "", "Segmentation engine: totalsegmentator or precomputed (overrides the config)")
	density := fs.Bool("density", false, "Also compute the CT density report")
	flip := fs.String("flip", "", "Comma-separated patient ids whose CT is reversed for the density report")
	logLevel := fs.String("log-level", "", "Log level (overrides the config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *data != "" {
		cfg.DataFolder = *data
	}
	if *work != "" {
		cfg.WorkDir = *work
	}
	if *engine != "" {
		cfg.Segmentation.Engine = *engine
	}
	if *density {
		cfg.Density.Enabled = true
	}
	if *flip != "" {
		cfg.Density.FlipSet = splitList(*flip)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	selected, err := pipeline.ParseStages(*stages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, pipeline.Options{Stages: selected, Resume: *resume, Limit: *limit}, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run interrupted")
			return 130
		}
		logger.WithError(err).Error("Run failed")
		return 1
	}
	return 0
}

// run wires the optional backends and executes one batch.
func run(ctx context.Context, cfg *config.Config, opts pipeline.Options, logger *logrus.Logger) error {
	checkpoints := checkpoint.Options{Dir: cfg.CheckpointDir()}
	if r := cfg.Checkpoint.Redis; r.Addr != "" {
		client, err := checkpoint.NewRedisClient(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		checkpoints = checkpoint.Options{Redis: client, RedisPrefix: r.Prefix}
		logger.WithField("addr", r.Addr).Info("Using Redis checkpoints")
	}

	var sink results.Sink
	if dsn := cfg.Results.PostgresDSN; dsn != "" {
		pg, err := results.NewPostgresSinkFromDSN(ctx, dsn)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = pg
		logger.Info("Storing results in PostgreSQL")
	}

	p := pipeline.New(cfg, pipeline.NewEngine(cfg.Segmentation, logger), checkpoints, sink, logger)
	_, summary, err := p.Run(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Println(results.Table(summary))
	return nil
}

func phantomCommand(args []string) int {
	fs := flag.NewFlagSet("phantom", flag.ContinueOnError)
	output := fs.String("output", "data", "Data folder to create, one directory per patient")
	work := fs.String("work", "work", "Work directory receiving the precomputed segmentations")
	patients := fs.Int("patients", 1, "Number of patients")
	seed := fs.Uint64("seed", 0, "Seed for reproducibility")
	slices := fs.Int("slices", 16, "CT slices per patient")
	size := fs.Int("size", 24, "CT rows and columns")
	workers := fs.Int("workers", 0, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU()))
	overlay := fs.Bool("overlay", false, "Burn patient and slice number into the CT images")
	quiet := fs.Bool("quiet", false, "Only print the summary")
	edgeCasePercentage := fs.Int("edge-cases", 0, "Percentage of patients with an intake edge case (0-100)")
	edgeCaseTypes := fs.String("edge-case-types", edgeCaseList(), "Comma-separated edge case types to enable")
	var tagFlags []string
	fs.Func("tag", "Set DICOM tag: 'TagName=Value' (repeatable)", func(s string) error {
		tagFlags = append(tagFlags, s)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return 2
	}

	parsedTags, err := util.ParseTagFlags(tagFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var ec edgecases.Config
	if *edgeCasePercentage > 0 {
		types, err := edgecases.ParseTypes(*edgeCaseTypes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		ec = edgecases.Config{Percentage: *edgeCasePercentage, Types: types}
		fmt.Printf("Edge cases: %d%% of patients with types %v\n", *edgeCasePercentage, types)
	}

	fmt.Println("spinesuv phantom")
	fmt.Println("================")
	cohort, err := phantom.Generate(phantom.Options{
		OutputDir:   *output,
		MaskDir:     *work,
		MaskPrefix:  config.Default().Segmentation.OutputPrefix,
		NumPatients: *patients,
		Seed:        *seed,
		Slices:      *slices,
		Rows:        *size,
		Cols:        *size,
		EdgeCases:   ec,
		Tags:        parsedTags,
		Overlay:     *overlay,
		Workers:     *workers,
		Quiet:       *quiet,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("\n✓ Generated %d patients (%d files)\n", len(cohort.Patients), cohort.Files)
	fmt.Printf("  Data folder: %s\n", *output)
	fmt.Printf("  Segmentations: %s\n", filepath.Join(*work, config.Default().Segmentation.OutputPrefix+"*"))
	fmt.Printf("  Run with: spinesuv run --data %s --work %s --engine precomputed\n", *output, *work)
	return 0
}

func initCommand(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", "spinesuv.yaml", "Configuration file to create or edit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := wizard.Run(*path); err != nil {
		if errors.Is(err, wizard.ErrCancelled) {
			fmt.Println("Cancelled.")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("✓ Configuration saved to %s\n", *path)
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func edgeCaseList() string {
	types := edgecases.AllEdgeCaseTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

func printHelp() {
	fmt.Println("spinesuv")
	fmt.Println("========")
	fmt.Println()
	fmt.Println("Per-vertebra SUV (T12 to S1) from whole-body PET/CT.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  spinesuv <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       Run the pipeline over a data folder")
	fmt.Println("  phantom   Generate a synthetic PET/CT cohort with known SUV")
	fmt.Println("  init      Create or edit a configuration file interactively")
	fmt.Println("  version   Show version")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Run options:")
	fmt.Println("  --config <FILE>       YAML configuration (defaults apply when omitted)")
	fmt.Println("  --data <DIR>          Data folder, one directory per patient")
	fmt.Println("  --work <DIR>          Work directory (staging, engine outputs, checkpoints)")
	fmt.Println("  --limit <N>           Process only the first N patients")
	fmt.Println("  --resume              Skip patients already in the checkpoints")
	fmt.Printf("  --stage <LIST>        Stages to compute (default: all): %s\n", strings.Join(pipeline.Stages, ","))
	fmt.Println("  --engine <NAME>       totalsegmentator or precomputed")
	fmt.Println("  --density             Also report the mean CT value per vertebra")
	fmt.Println("  --flip <IDS>          Patients whose CT is reversed for the density report")
	fmt.Println("  --log-level <LEVEL>   debug, info, warn, error")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %-22s PostgreSQL DSN for the results sink\n", config.EnvPostgresDSN)
	fmt.Printf("  %-22s Redis address for checkpoints\n", config.EnvRedisAddr)
	fmt.Printf("  %-22s Log level\n", config.EnvLogLevel)
	fmt.Println()
	fmt.Println("Phantom options:")
	fmt.Println("  --output <DIR>        Data folder to create (default: data)")
	fmt.Println("  --work <DIR>          Work directory for the segmentations (default: work)")
	fmt.Println("  --patients <N>        Number of patients (default: 1)")
	fmt.Println("  --seed <N>            Seed for reproducibility")
	fmt.Println("  --slices <N>          CT slices (default: 16)")
	fmt.Println("  --size <N>            CT rows and columns (default: 24)")
	fmt.Println("  --edge-cases <N>      Percentage of patients with an intake edge case")
	fmt.Printf("  --edge-case-types <T> Comma-separated types: %s\n", edgeCaseList())
	fmt.Println("  --tag <NAME=VALUE>    Set DICOM tag value (repeatable)")
	fmt.Println("  --overlay             Burn patient and slice number into the CT images")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Generate three phantom patients and measure them")
	fmt.Println("  spinesuv phantom --patients 3 --output data --work work")
	fmt.Println("  spinesuv run --data data --work work --engine precomputed")
	fmt.Println()
	fmt.Println("  # Recompute only the SUV stage from the checkpoints")
	fmt.Println("  spinesuv run --config spinesuv.yaml --stage suv")
}
