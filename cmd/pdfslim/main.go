// Command pdfslim shrinks a PDF read from a file or stdin and writes the
// result to a file or stdout.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/wudi/pdfslim/observability"
	"github.com/wudi/pdfslim/optimize"
)

const instrumentationName = "github.com/wudi/pdfslim/cmd/pdfslim"

type options struct {
	input        string
	output       string
	configPath   string
	logLevel     string
	logFormat    string
	base64       bool
	keepOriginal bool
	report       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "pdfslim: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, *pflag.FlagSet, error) {
	var opts options
	fs := pflag.NewFlagSet("pdfslim", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfslim [flags] [input.pdf]\n\nReads stdin when no input file is given.\n\n")
		fs.PrintDefaults()
	}
	fs.StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	fs.BoolVar(&opts.base64, "base64", false, "input is base64 text; output is base64 text")
	fs.BoolVar(&opts.keepOriginal, "keep-original", false, "write the original bytes when the output is not smaller")
	fs.StringVar(&opts.configPath, "config", "", "TOML config file")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&opts.logFormat, "log-format", "text", "text|json")
	fs.BoolVar(&opts.report, "report", false, "print the per-stream report to stderr")

	if err := fs.Parse(args); err != nil {
		return opts, fs, err
	}
	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		opts.input = rest[0]
	default:
		return opts, fs, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	return opts, fs, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	// Flags win over the file, but only when given explicitly.
	if fs.Changed("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = opts.logLevel
	}
	if fs.Changed("log-format") || cfg.Log.Format == "" {
		cfg.Log.Format = opts.logFormat
	}
	if fs.Changed("keep-original") {
		cfg.KeepOriginal = opts.keepOriginal
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	input, err := readInput(opts.input, stdin, opts.base64)
	if err != nil {
		return err
	}

	opt := optimize.New(optimize.Config{Limits: cfg.Limits},
		optimize.WithLogger(logger),
		optimize.WithTracer(observability.NewOTelTracer(otel.Tracer(instrumentationName))),
		optimize.WithMeter(otel.Meter(instrumentationName)),
	)
	res, err := opt.Run(ctx, input)
	if err != nil {
		return err
	}
	if opts.report {
		printReport(stderr, res)
	}

	out := res.Output
	if cfg.KeepOriginal {
		out = res.Smallest()
	}
	return writeOutput(opts.output, stdout, out, opts.base64)
}

func readInput(path string, stdin io.Reader, b64 bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !b64 {
		return data, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.Join(bytes.Fields(data), nil)))
	if err != nil {
		return nil, fmt.Errorf("decode base64 input: %w", err)
	}
	return decoded, nil
}

func writeOutput(path string, stdout io.Writer, data []byte, b64 bool) error {
	if b64 {
		enc := make([]byte, base64.StdEncoding.EncodedLen(len(data))+1)
		base64.StdEncoding.Encode(enc, data)
		enc[len(enc)-1] = '\n'
		data = enc
	}
	if path == "" || path == "-" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func printReport(w io.Writer, res *optimize.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tSTAGE\tENCODING\tOUTCOME\tREASON\tBEFORE\tAFTER")
	for _, s := range res.Report.Streams {
		reason := s.Reason.String()
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			s.Ref, s.Stage, s.Encoding, s.Outcome, reason, s.OriginalSize, s.NewSize)
	}
	tw.Flush()
	fmt.Fprintf(w, "input %d bytes, output %d bytes, metadata stripped: %t\n",
		res.Report.InputSize, res.Report.OutputSize, res.Report.MetadataStripped)
}
