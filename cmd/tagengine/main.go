package main

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	logrusr "github.com/bombsimon/logrusr/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/karlgluck/tagengine/engine"
	"github.com/karlgluck/tagengine/reader"
	"github.com/karlgluck/tagengine/render"
	"github.com/karlgluck/tagengine/tracing"
	"github.com/karlgluck/tagengine/workerpool"
	"github.com/karlgluck/tagengine/writeback"
)

const exitOnArgError = 2

var (
	source         string
	rulesDirs      []string
	writeResults   string
	csvOut         string
	threads        int
	ioChannels     int
	batchSize      int
	labelSelector  string
	enableJaeger   bool
	jaegerEndpoint string
	configFile     string
	logLevel       int

	rootCmd = &cobra.Command{
		Use:   "tagengine",
		Short: "Declarative rule engine for filesystem-materialized object tags",
		RunE:  run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&source, "source", "args", "where to read object paths from: args|stdin")
	rootCmd.Flags().StringArrayVar(&rulesDirs, "rules", nil, "directory containing rule files (repeatable)")
	rootCmd.Flags().StringVar(&writeResults, "write_results", "on", "write changed tags, #errors and mash.log back to each object: on|off")
	rootCmd.Flags().StringVar(&csvOut, "csv_out", "", "optional path to write a CSV summary of all objects")
	rootCmd.Flags().IntVar(&threads, "threads", workerpool.DefaultWorkers, "worker thread count")
	rootCmd.Flags().IntVar(&ioChannels, "io_channels", reader.DefaultChannelsLimit, "bound on concurrent tag file reads")
	rootCmd.Flags().IntVar(&batchSize, "batch_size", workerpool.DefaultBatchSize, "objects loaded into memory per batch")
	rootCmd.Flags().StringVar(&labelSelector, "label-selector", "", "expression selecting which rules participate, e.g. kind == \"default\"")
	rootCmd.Flags().BoolVar(&enableJaeger, "enable-jaeger", false, "export evaluation spans to a Jaeger collector")
	rootCmd.Flags().StringVar(&jaegerEndpoint, "jaeger-endpoint", "http://localhost:14268/api/traces", "Jaeger collector endpoint")
	rootCmd.Flags().StringVar(&configFile, "config", "", "optional YAML file overriding threads/io_channels/batch_size/write_results/csv_out")
	rootCmd.Flags().IntVar(&logLevel, "verbose", 0, "logrus verbosity level")
}

func main() {
	rootCmd.SilenceUsage = true
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "?" {
			if err := rootCmd.Usage(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitOnArgError)
			}
			os.Exit(0)
		}
		// pflag reads "-name" as a bundle of one-letter shorthands; accept
		// the single-dash long form the flags are documented with.
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' && (arg[1] < '0' || arg[1] > '9') {
			args[i] = "-" + arg
		}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitOnArgError)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading -config: %w", err)
	}
	applyConfig(cfg, &threads, &ioChannels, &batchSize, &writeResults, &csvOut)

	if writeResults != "on" && writeResults != "off" {
		return fmt.Errorf("-write_results must be 'on' or 'off', got %q", writeResults)
	}
	if len(rulesDirs) == 0 {
		return fmt.Errorf("at least one -rules <dir> is required")
	}

	objectPaths, err := resolveObjectPaths(source, args)
	if err != nil {
		return err
	}
	if len(objectPaths) == 0 {
		return fmt.Errorf("no object paths given (check -source and its input)")
	}

	logrusLog := logrus.New()
	logrusLog.SetOutput(os.Stderr)
	logrusLog.SetFormatter(&logrus.TextFormatter{})
	logrusLog.SetLevel(logrus.Level(logLevel))
	log := logrusr.New(logrusLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracerProvider(log, tracing.Options{
		EnableJaeger:   enableJaeger,
		JaegerEndpoint: jaegerEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer tracing.Shutdown(ctx, log, tp)

	reg := engine.NewRegistry()
	if err := loadRuleDirs(reg, rulesDirs, log); err != nil {
		return err
	}

	var selectors []engine.RuleSelector
	if labelSelector != "" {
		sel, err := engine.NewLabelSelector(labelSelector)
		if err != nil {
			return fmt.Errorf("compiling -label-selector: %w", err)
		}
		selectors = append(selectors, sel)
	}
	selectedRules, err := engine.SelectRules(reg, selectors)
	if err != nil {
		return fmt.Errorf("applying -label-selector: %w", err)
	}

	spillPath := "tagengine-spill.yaml"
	spillFile, err := os.Create(spillPath)
	if err != nil {
		return fmt.Errorf("creating spill file: %w", err)
	}
	defer spillFile.Close()
	spill := workerpool.NewSpillWriter(spillFile)

	pool := workerpool.New(reg, workerpool.Options{
		Workers:       threads,
		BatchSize:     batchSize,
		ChannelsLimit: ioChannels,
		Rules:         selectedRules,
		Log:           log,
	})

	results, objErrs := pool.Run(ctx, objectPaths, spill)
	for _, oe := range objErrs {
		log.Error(oe.Err, "object failed", "object", oe.ObjectPath)
	}

	if writeResults == "on" {
		for _, res := range results {
			if err := writebackResult(reg, res); err != nil {
				log.Error(err, "writeback failed", "object", res.ObjectPath)
			}
		}
	}

	if csvOut != "" {
		f, err := os.Create(csvOut)
		if err != nil {
			return fmt.Errorf("creating -csv_out: %w", err)
		}
		defer f.Close()
		if err := render.WriteCSV(f, results); err != nil {
			return fmt.Errorf("writing -csv_out: %w", err)
		}
	}

	return nil
}

func writebackResult(reg *engine.Registry, res *engine.Result) error {
	if err := writeback.Write(res.ObjectPath, res.Changed, res.Errors); err != nil {
		return err
	}
	report := render.Report(res, reg)
	return os.WriteFile(filepath.Join(res.ObjectPath, "mash.log"), []byte(report), 0o660)
}

func resolveObjectPaths(source string, args []string) ([]string, error) {
	switch source {
	case "args":
		return args, nil
	case "stdin":
		var paths []string
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			paths = append(paths, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading -source stdin: %w", err)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("-source must be 'args' or 'stdin', got %q", source)
	}
}

// loadRuleDirs walks every directory in dirs for "#"-prefixed regular
// files and compiles each into reg. A SyntaxError aborts that one file
// (spec.md §7: "the whole file aborts with a summary"); loading
// continues with the rest.
func loadRuleDirs(reg *engine.Registry, dirs []string, log logrRuleLogger) error {
	for _, dir := range dirs {
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !strings.HasPrefix(d.Name(), "#") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				log.Error(err, "unable to read rules file", "file", path)
				return nil
			}
			rules, err := engine.NewCompiler(path).Compile(string(data))
			if err != nil {
				log.Error(err, "rules file aborted", "file", path)
				return nil
			}
			for _, r := range rules {
				if _, err := reg.AddRule(r); err != nil {
					log.Error(err, "unable to add rule", "file", path)
				}
			}
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("loading rules from %s: %w", dir, walkErr)
		}
	}
	return nil
}

// logrRuleLogger is the narrow slice of logr.Logger loadRuleDirs needs,
// kept as an interface so it doesn't have to import logr just for the
// one method it calls.
type logrRuleLogger interface {
	Error(err error, msg string, keysAndValues ...interface{})
}
