package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/seitarof/gen-nodewalk/internal/cli"
	"github.com/seitarof/gen-nodewalk/internal/generator"
	"github.com/seitarof/gen-nodewalk/internal/matcher"
	"github.com/seitarof/gen-nodewalk/internal/parser"
)

var version = "dev"

func main() {
	opts, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		cli.ExitWithError(cli.ConfigError("parse arguments", err))
	}
	if opts.ShowVersion {
		fmt.Println(version)
		return
	}

	cfg, err := cli.BuildConfig(opts)
	if err != nil {
		cli.ExitWithError(err)
	}

	p := parser.New()
	m := matcher.New()
	f := generator.NewGoimportsFormatter()
	w := generator.NewFileWriter()
	g := generator.New(f, w)

	runner := cli.NewRunner(p, m, g, w, cli.WithLogger(cli.NewLogger(os.Stderr, opts)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = runner.Run(ctx, cfg)
	stop()
	if err != nil {
		cli.ExitWithError(err)
	}
}
