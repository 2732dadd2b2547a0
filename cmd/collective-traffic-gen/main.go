package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scttfrdmn/collective-traffic-gen/internal/catalog"
	"github.com/scttfrdmn/collective-traffic-gen/internal/config"
	"github.com/scttfrdmn/collective-traffic-gen/internal/runner"
	"github.com/scttfrdmn/collective-traffic-gen/internal/sink"
)

var (
	cfgFile   string
	inputFile string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "collective-traffic-gen [grammar]",
	Short: "Generate RDMA traces for collective communication topologies",
	Long: `Collective Traffic Generator - compiles a topology grammar describing the
TP/PP/DP/EP communication groups of a training step into per-iteration
communication trees, and writes the rdma_send trace of every host group.

Examples:
  # Generate traces for a grammar file into ./rdma_result
  collective-traffic-gen --input-file topology.txt

  # Positional syntax, four synthesis workers and a fixed seed
  collective-traffic-gen topology.txt --workers 4 --seed 42

  # Upload traces to S3 and record the run in a catalog
  collective-traffic-gen topology.txt --s3-bucket traces --catalog ~/.ctgen/catalog.db`,
	Args: cobra.MaximumNArgs(1),
	Run:  runGenerate,
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./collective-traffic-gen.yaml or $HOME/.collective-traffic-gen.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Uint64("seed", 1, "seed of the run's random source")

	rootCmd.Flags().StringVarP(&inputFile, "input-file", "i", "", "topology grammar file")
	rootCmd.Flags().Int("workers", 1, "groups synthesized in parallel")
	rootCmd.Flags().Int("max-groups", 1000, "maximum groups generated per node")
	rootCmd.Flags().StringP("output", "o", "rdma_result", "output directory for trace files")
	rootCmd.Flags().Bool("clean", true, "remove the output directory before generating")
	rootCmd.Flags().String("s3-bucket", "", "upload traces to this S3 bucket instead of the output directory")
	rootCmd.Flags().String("s3-prefix", "", "key prefix for uploaded traces")
	rootCmd.Flags().String("s3-region", "", "AWS region of the bucket")
	rootCmd.Flags().String("catalog", "", "SQLite catalog recording the run")
	rootCmd.Flags().String("metrics-file", "", "write Prometheus counters to this textfile")
	rootCmd.Flags().String("summary", "", "write the run summary (.yaml, .toml or .json)")

	bindFlag("log-level", "log_level")
	bindFlag("log-format", "log_format")
	bindFlag("seed", "seed")
	bindFlag("workers", "workers")
	bindFlag("max-groups", "max_groups")
	bindFlag("output", "output.dir")
	bindFlag("clean", "output.clean")
	bindFlag("s3-bucket", "output.s3.bucket")
	bindFlag("s3-prefix", "output.s3.prefix")
	bindFlag("s3-region", "output.s3.region")
	bindFlag("catalog", "catalog.path")
	bindFlag("metrics-file", "metrics.file")
	bindFlag("summary", "summary.path")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("collective-traffic-gen")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CTGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil && cfgFile == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".collective-traffic-gen")
			err = viper.ReadInConfig()
		}
	}

	if err != nil {
		if cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error: failed to read config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Config file not found, using defaults: %v\n", err)
		}
	} else if verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindFlag binds the named flag of rootCmd to a viper key.
func bindFlag(name, key string) {
	flag := rootCmd.Flags().Lookup(name)
	if flag == nil {
		flag = rootCmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func runGenerate(cmd *cobra.Command, args []string) {
	if len(args) == 1 && inputFile == "" {
		inputFile = args[0]
	}
	if inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: a grammar file is required (--input-file or positional argument)")
		os.Exit(1)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSink(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var cat *catalog.Catalog
	if cfg.Catalog.Path != "" {
		cat, err = catalog.Open(cfg.Catalog.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cat.Close()
	}

	summary, err := runner.New(cfg, s, cat, logger).Run(ctx, inputFile)
	if err != nil {
		logger.Error("Traffic generation failed", "run", summary.RunID, "error", err)
		if cat != nil {
			cat.Close()
		}
		os.Exit(1)
	}

	fmt.Printf("Traffic generation completed for model %s with %d devices and %d iterations\n",
		summary.Model, summary.Devices, summary.Iterations)
	if verbose {
		fmt.Printf("Run %s: %d traces, %d descriptors written to %s\n",
			summary.RunID, summary.Traces, summary.Descriptors, summary.Output)
	}
}

// newSink picks the S3 sink when a bucket is configured, else the file sink.
func newSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	if cfg.Output.UseS3() {
		s3Sink, err := sink.NewS3Sink(ctx, cfg.Output.S3.Bucket, cfg.Output.S3.Prefix, cfg.Output.S3.Region)
		if err != nil {
			return nil, err
		}
		return s3Sink, nil
	}
	return sink.NewFileSink(cfg.Output.Dir), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
