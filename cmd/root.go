package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/distill/internal/types"
	"github.com/xhad/distill/pkg/adaptive"
	"github.com/xhad/distill/pkg/classify"
	"github.com/xhad/distill/pkg/config"
	"github.com/xhad/distill/pkg/hardware"
	"github.com/xhad/distill/pkg/logging"
	"github.com/xhad/distill/pkg/pipeline"
	"github.com/xhad/distill/pkg/source"
	"github.com/xhad/distill/pkg/writer"
	"go.uber.org/zap"
)

var (
	configPath string
	inputPath  string
	outputDir  string
	compress   bool
)

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Turn an encyclopedia XML dump into conversational training data",
	Long: `distill streams an XML dump through an adaptive parallel pipeline:
extraction, cleanup, categorization and question/answer generation, writing
sharded JSONL records per category.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline over a dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context())
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show detected hardware and the configuration it produces",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	runCmd.Flags().StringVar(&inputPath, "input", "", "Path to the XML dump (.xml, .xml.gz or .xml.zst)")
	runCmd.Flags().StringVar(&outputDir, "output", "output", "Directory for shard files and the run summary")
	runCmd.Flags().BoolVar(&compress, "compress", false, "Gzip output shards")
	runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd, probeCmd)
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func runPipeline(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: logOutputs(cfg.Logging.File),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	pipelineCfg := computeConfig(cfg, logger)

	color.Blue("\nStarting pipeline for %s\n", inputPath)
	color.Blue("Workers: %d extract / %d transform / %d generate, batch %d, queues %d\n",
		pipelineCfg.ExtractWorkers, pipelineCfg.TransformWorkers, pipelineCfg.GenerateWorkers,
		pipelineCfg.BatchSize, pipelineCfg.QueueCapacity)

	src, err := source.Open(source.Config{Path: inputPath, BatchSize: pipelineCfg.BatchSize})
	if err != nil {
		return fmt.Errorf("failed to open corpus: %v", err)
	}
	defer src.Close()

	cleaner := classify.NewCleanerWithConfig(classify.CleanerConfig{
		MinRawLength:     cfg.Filter.MinRawLength,
		MinCleanedLength: cfg.Filter.MinCleanedLength,
		LanguageSample:   cfg.Filter.LanguageSample,
		LanguagePattern:  cfg.Filter.LanguagePattern,
		LanguageRatio:    cfg.Filter.LanguageRatio,
	})
	classifier := classify.NewKeywordClassifier()

	generator, err := buildGenerator(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	sink, err := writer.NewWithConfig(writer.Config{
		OutputDir:      outputDir,
		Categories:     classifier.Categories(),
		Workers:        pipelineCfg.GenerateWorkers,
		FlushThreshold: pipelineCfg.FlushThresholdRecords,
		FlushInterval:  pipelineCfg.FlushInterval,
		CompressOutput: compress,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare output directories: %v", err)
	}

	ctrl := pipeline.NewWithConfig(pipeline.Config{
		Pipeline:        pipelineCfg,
		QueueTimeout:    time.Duration(cfg.Pipeline.QueueTimeoutMS) * time.Millisecond,
		MaxQueueRetries: cfg.Pipeline.MaxQueueRetries,
		DrainCeiling:    time.Duration(cfg.Pipeline.DrainCeilingSec) * time.Second,
		OutputDir:       outputDir,
	}, src, cleaner, classifier, generator, sink, logger)

	bar := getProgressBar(-1, "Processing documents...")
	barCtx, stopBar := context.WithCancel(ctx)
	defer stopBar()
	go func() {
		start := time.Now()
		for {
			select {
			case <-barCtx.Done():
				return
			case <-time.After(500 * time.Millisecond):
				t := ctrl.Stats().Snapshot()
				bar.Set(int(t.DocumentsSeen))
				rate := float64(t.DocumentsSeen) / time.Since(start).Seconds()
				bar.Describe(color.BlueString(
					"Processing documents... (%.1f docs/sec, %d records)", rate, t.RecordsGenerated))
			}
		}
	}()

	report, runErr := ctrl.Run(ctx)
	stopBar()
	bar.Finish()

	fmt.Print("\n")
	if runErr != nil {
		color.Red("Pipeline finished with errors: %v\n", runErr)
	}
	color.Green("✓ %d documents seen, %d categorized, %d filtered\n",
		report.DocumentsSeen, report.Categorized, report.Filtered)
	color.Green("✓ %d records across %d shards (%.1f docs/sec)\n",
		report.RecordsGenerated, report.ShardsWritten, report.DocsPerSecond)
	if report.Dropped > 0 {
		color.Yellow("! %d documents dropped under backpressure\n", report.Dropped)
	}
	return runErr
}

func runProbe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	capacity, probeErr := hardware.NewDetector().Probe()
	if probeErr != nil {
		color.Yellow("Capacity probe failed (%v), conservative defaults apply\n", probeErr)
	}
	color.Cyan("Logical cores: %d\n", capacity.LogicalCores)
	color.Cyan("Available memory: %.1f GiB\n", float64(capacity.AvailableMemoryBytes)/(1<<30))

	opts := adaptiveOptions(cfg)
	var pc adaptive.PipelineConfig
	if probeErr != nil {
		pc = adaptive.Fallback(opts)
	} else {
		pc = adaptive.Compute(capacity, 0, opts)
	}
	color.Cyan("Workers: %d extract / %d transform / %d generate\n",
		pc.ExtractWorkers, pc.TransformWorkers, pc.GenerateWorkers)
	color.Cyan("Batch size: %d, queue capacity: %d\n", pc.BatchSize, pc.QueueCapacity)
	color.Cyan("Flush threshold: %d records, interval: %s\n", pc.FlushThresholdRecords, pc.FlushInterval)
	return nil
}

func computeConfig(cfg *config.Config, logger *zap.Logger) adaptive.PipelineConfig {
	opts := adaptiveOptions(cfg)

	capacity, err := hardware.NewDetector().Probe()
	if err != nil {
		logger.Warn("capacity probe failed, using fallback configuration", zap.Error(err))
		return adaptive.Fallback(opts)
	}

	estimated, err := source.EstimateDocumentCount(inputPath, 1000)
	if err != nil {
		logger.Warn("corpus estimation failed", zap.Error(err))
		estimated = 0
	} else {
		logger.Info("corpus estimated", zap.Int64("documents", estimated))
	}

	return adaptive.Compute(capacity, estimated, opts)
}

func adaptiveOptions(cfg *config.Config) adaptive.Options {
	return adaptive.Options{
		HardWorkerCeiling:     cfg.Pipeline.HardWorkerCeiling,
		FlushThresholdRecords: cfg.Output.FlushThresholdRecords,
		FlushInterval:         time.Duration(cfg.Output.FlushIntervalSeconds) * time.Second,
		MemoryBudgetBytes:     cfg.Output.MemoryBudgetBytes,
	}
}

func buildGenerator(cfg *config.Config) (types.Generator, error) {
	switch cfg.Generator.Backend {
	case "ollama":
		return classify.NewOllamaGenerator(classify.OllamaGeneratorConfig{
			Model:          cfg.Generator.Model,
			BaseURL:        cfg.Generator.BaseURL,
			MaxPerDocument: cfg.Generator.MaxPerDocument,
			RateLimit:      cfg.Generator.RateLimit,
		})
	default:
		return classify.NewTemplateGeneratorWithConfig(classify.TemplateGeneratorConfig{
			MaxPerDocument: cfg.Generator.MaxPerDocument,
		}), nil
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func logOutputs(file string) []string {
	if file == "" {
		return []string{"stderr"}
	}
	return []string{"stderr", file}
}
