// Command xmk is a small build automation tool. It reads a file of
// named build targets, their file dependencies and the shell commands
// that produce them, decides what is out of date by comparing file
// modification times, and runs the required commands in order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xmk-lang/xmk/pkgs/build"
	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/parser"
	"github.com/xmk-lang/xmk/pkgs/source"
)

var version = "dev"

type options struct {
	preprocess bool
	verbosity  int // counted -v; -vv selects extra detail
	file       string
	quiet      bool
	watch      bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	exitCode := 0

	rootCmd := &cobra.Command{
		Use:           "xmk",
		Short:         "Build targets described in an xmk file",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = execute(opts)
			return nil
		},
	}

	f := rootCmd.Flags()
	f.BoolVarP(&opts.preprocess, "preprocess", "E", false, "preprocess only: print the fully expanded source and exit")
	f.CountVarP(&opts.verbosity, "verbose", "v", "verbose output; repeat (-vv) for extra detail")
	f.StringVarP(&opts.file, "file", "f", "default.xmk", "input file to build from")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress command echo")
	f.BoolVarP(&opts.watch, "watch", "w", false, "keep running and rebuild whenever a source file changes")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		return 1
	}
	return exitCode
}

func execute(opts options) int {
	d := newDisplay(opts.verbosity, opts.quiet)

	d.Verbosef("reading %s", opts.file)
	buf, err := source.Load(opts.file)
	if err != nil {
		d.Error(err)
		return errors.ExitCode(err)
	}

	store, err := parser.Parse(buf)
	if err != nil {
		d.Error(err)
		return errors.ExitCode(err)
	}

	if opts.preprocess {
		// Parsing expanded every define in place; the buffer now holds
		// the preprocessed program.
		fmt.Print(buf.String())
		return 0
	}

	d.Dump("model", store)

	target, err := store.BuildTarget()
	if err != nil {
		d.Error(err)
		return errors.ExitCode(err)
	}
	d.Verbosef("building %s", target)

	exec := build.New(store)
	exec.Quiet = opts.quiet
	exec.Trace = d.Debugf
	if err := exec.Execute(target); err != nil {
		d.Error(err)
		return errors.ExitCode(err)
	}

	if opts.watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		d.Verbosef("watching sources of %s", target)
		notify := func(msg string) {
			if !opts.quiet {
				fmt.Fprintln(os.Stderr, msg)
			}
		}
		if err := build.Watch(ctx, exec, target, notify); err != nil {
			d.Error(err)
			return errors.ExitCode(err)
		}
	}

	return 0
}
