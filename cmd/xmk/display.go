package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/k0kubun/pp/v3"
)

// Verbosity levels selected by repeating -v.
const (
	verbosityQuiet = iota - 1
	verbosityNormal
	verbosityVerbose
	verbosityDebug
)

// display writes diagnostics to stderr at the selected verbosity.
type display struct {
	verbosity int
	useColor  bool
	w         io.Writer
}

func newDisplay(verbosity int, quiet bool) *display {
	if quiet {
		verbosity = verbosityQuiet
	}
	return &display{
		verbosity: verbosity,
		useColor:  ShouldUseColor(),
		w:         os.Stderr,
	}
}

// Error reports a fatal condition with the [error] tag. In verbose
// mode the report carries the reporting site (function + line).
func (d *display) Error(err error) {
	tag := Colorize("[error]", ColorRed, d.useColor)
	if d.verbosity >= verbosityVerbose {
		if pc, _, line, ok := runtime.Caller(1); ok {
			site := runtime.FuncForPC(pc).Name()
			fmt.Fprintf(d.w, "%s %v %s\n", tag, err, Colorize(fmt.Sprintf("(at %s:%d)", site, line), ColorGray, d.useColor))
			return
		}
	}
	fmt.Fprintf(d.w, "%s %v\n", tag, err)
}

// Verbosef prints at -v and above.
func (d *display) Verbosef(format string, args ...interface{}) {
	if d.verbosity >= verbosityVerbose {
		fmt.Fprintf(d.w, format+"\n", args...)
	}
}

// Debugf prints at -vv.
func (d *display) Debugf(format string, args ...interface{}) {
	if d.verbosity >= verbosityDebug {
		fmt.Fprintf(d.w, format+"\n", args...)
	}
}

// Dump pretty-prints a value at -vv, for inspecting the parsed model.
func (d *display) Dump(label string, v interface{}) {
	if d.verbosity < verbosityDebug {
		return
	}
	fmt.Fprintf(d.w, "%s:\n", Colorize(label, ColorCyan, d.useColor))
	printer := pp.New()
	printer.SetColoringEnabled(d.useColor)
	printer.SetOutput(d.w)
	printer.Println(v)
}
