// Command wordcount counts the words of an input file or directory and writes
// one "word\tcount" line per distinct word, sorted by word.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tequalsme/hadoop-examples/internal/input"
	"github.com/tequalsme/hadoop-examples/internal/logging"
	"github.com/tequalsme/hadoop-examples/internal/output"
	"github.com/tequalsme/hadoop-examples/internal/store"
	"github.com/tequalsme/hadoop-examples/wordcount"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitInput  = 2
	exitOutput = 3
)

type options struct {
	format      string
	jsonField   string
	sink        string
	table       string
	workers     int
	progress    bool
	detectLang  bool
	redisAddr   string
	redisPrefix string
	publish     bool
	logLevel    string
	report      string
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func newCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "wordcount [flags] <input> <output>",
		Short:         "Count the occurrences of each word of the input",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			res, err := run(ctx, opts, args[0], args[1], stderr)
			if err != nil {
				*code = exitCode(err)
				return err
			}
			fmt.Fprintf(stdout, "%s=%d\n", wordcount.TotalWords, res.Counters[wordcount.TotalWords])
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", string(input.FormatText), "input format: text, jsonl or html")
	f.StringVar(&opts.jsonField, "json-field", "text", "gjson path of the text of a jsonl record")
	f.StringVar(&opts.sink, "sink", "dir", "output kind: dir, file, sqlite or redis")
	f.StringVar(&opts.table, "table", output.DefaultTable, "table written by the sqlite sink")
	f.IntVar(&opts.workers, "workers", 0, "parallel mappers and reducers (default: number of CPUs)")
	f.BoolVar(&opts.progress, "progress", false, "show a progress bar on stderr")
	f.BoolVar(&opts.detectLang, "detect-lang", false, "guess the language of the input")
	f.StringVar(&opts.redisAddr, "redis-addr", envOr("WORDCOUNT_REDIS_ADDR", "localhost:6379"), "redis address used by the redis sink and --publish")
	f.StringVar(&opts.redisPrefix, "redis-prefix", store.DefaultPrefix, "prefix of every redis key")
	f.BoolVar(&opts.publish, "publish", false, "store the run counters in redis")
	f.StringVar(&opts.logLevel, "log-level", envOr("WORDCOUNT_LOG_LEVEL", "info"), "log level")
	f.StringVar(&opts.report, "report", "", "write a JSON run report to this file")
	return cmd
}

func run(ctx context.Context, opts *options, inPath, outPath string, stderr io.Writer) (*wordcount.Result, error) {
	logger, err := logging.Make(opts.logLevel, stderr)
	if err != nil {
		return nil, err
	}
	format, err := input.ParseFormat(opts.format)
	if err != nil {
		return nil, err
	}

	var db *store.DB
	if opts.sink == "redis" || opts.publish {
		db = store.MakeRedisDB(opts.redisAddr, opts.redisPrefix, logger).WithContext(ctx)
		defer db.Close()
		if err := db.Ping(); err != nil {
			if opts.sink == "redis" {
				return nil, &wordcount.OutputError{Sink: opts.redisAddr, Err: err}
			}
			return nil, err
		}
	}

	src, err := input.Open(inPath, input.Options{Format: format, JSONField: opts.jsonField})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sink, err := openSink(opts, outPath, db)
	if err != nil {
		return nil, err
	}

	cfg := wordcount.DefaultConfig()
	cfg.Source = src
	cfg.Sink = sink
	cfg.DetectLanguage = opts.detectLang
	cfg.Logger = logger
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.progress {
		cfg.Progress = stderr
	}
	if opts.publish {
		cfg.Publisher = db
	}
	d, err := wordcount.MakeDriver(cfg)
	if err != nil {
		sink.Abort()
		return nil, err
	}
	res, err := d.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("run %s: %d records, %d words, %d distinct", res.RunID, res.Records, res.Pairs, res.Keys)

	if opts.report != "" {
		if err := writeReport(opts.report, inPath, outPath, res); err != nil {
			// the output is already committed
			logger.Warnf("write report %s: %v", opts.report, err)
		}
	}
	return res, nil
}

func openSink(opts *options, dest string, db *store.DB) (wordcount.Sink, error) {
	switch opts.sink {
	case "dir":
		return output.MakeDirSink(dest)
	case "file":
		return output.MakeFileSink(dest)
	case "sqlite":
		return output.MakeSQLiteSink(dest, opts.table)
	case "redis":
		return output.MakeRedisSink(db, dest), nil
	}
	return nil, fmt.Errorf("unknown sink %q", opts.sink)
}

type report struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	*wordcount.Result
}

func writeReport(path, in, out string, res *wordcount.Result) error {
	data, err := json.MarshalIndent(report{Input: in, Output: out, Result: res}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case wordcount.IsInputError(err):
		return exitInput
	case wordcount.IsOutputError(err):
		return exitOutput
	}
	return exitFailed
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	code := exitFailed
	cmd := newCommand(stdout, stderr, &code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "wordcount: %v\n", err)
		return code
	}
	return exitOK
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
