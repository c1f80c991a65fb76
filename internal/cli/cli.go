package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// Options stores the parsed command line.
type Options struct {
	ConfigFile string
	// Target is the single target described by flags, if any.
	Target      Target
	Rules       string
	Workers     int
	Sample      string
	Verbose     bool
	Quiet       bool
	ShowVersion bool
}

func (o *Options) hasTarget() bool {
	t := o.Target
	return t.Version != "" || t.Schema != "" || t.Pkg != "" || t.Output != "" || t.Package != "" || t.Plan != ""
}

// ParseArgs parses command line arguments into Options.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{}

	fs := pflag.NewFlagSet("gen-nodewalk", pflag.ContinueOnError)
	fs.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default: gen-nodewalk.yaml in the working directory or a parent)")
	fs.StringVarP(&opts.Target.Schema, "schema", "s", "", "schema document (.json, .yaml)")
	fs.StringVar(&opts.Target.Pkg, "pkg", "", "Go bindings package path")
	fs.StringVar(&opts.Target.Version, "pg-version", "", "schema version ("+versionList()+")")
	fs.StringVar(&opts.Rules, "rules", "", "rule table file replacing the built-in tables")
	fs.StringVarP(&opts.Target.Output, "output", "o", "", "generated Go file")
	fs.StringVarP(&opts.Target.Package, "package", "p", "", "package name of the generated file (default: output directory name)")
	fs.StringVar(&opts.Target.Plan, "plan", "", "JSON plan manifest to write")
	fs.StringVar(&opts.Sample, "sample", "", "walk a sample node graph and print every visit instead of generating")
	fs.IntVar(&opts.Workers, "workers", 0, "targets processed in parallel (default: number of CPUs)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug events")
	fs.BoolVarP(&opts.Quiet, "quiet", "q", false, "log errors only")
	fs.BoolVar(&opts.ShowVersion, "version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.ShowVersion {
		return opts, nil
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.Verbose && opts.Quiet {
		return nil, fmt.Errorf("--verbose and --quiet are mutually exclusive")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("--workers must not be negative")
	}
	if opts.hasTarget() {
		if strings.TrimSpace(opts.Target.Version) == "" {
			return nil, fmt.Errorf("--pg-version is required with --schema or --pkg")
		}
		if _, err := rules.ParseVersion(opts.Target.Version); err != nil {
			return nil, fmt.Errorf("--pg-version: %w", err)
		}
		if opts.Target.Schema != "" && opts.Target.Pkg != "" {
			return nil, fmt.Errorf("--schema and --pkg are mutually exclusive")
		}
	}
	return opts, nil
}

// NewLogger returns the text logger the runner reports events to.
func NewLogger(w io.Writer, opts *Options) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.Verbose:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func versionList() string {
	names := make([]string, len(rules.Versions))
	for i, v := range rules.Versions {
		names[i] = fmt.Sprint(int(v))
	}
	return strings.Join(names, ", ")
}
