package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/BadgerOps/pyboot/internal/progress"
)

// progressPrinter renders progress events. On a terminal the running step is
// redrawn in place; otherwise each new message gets its own line and byte
// progress is thinned to quarter steps.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	quiet   bool
	lastLen int
	lastMsg string
	// lastQuarter is the last 25% step printed for lastMsg in line mode.
	lastQuarter int
}

func newProgressPrinter(f *os.File, quiet bool) *progressPrinter {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return &progressPrinter{out: f, tty: tty, quiet: quiet}
}

// Func returns the progress callback, or nil when output is suppressed.
func (p *progressPrinter) Func() progress.Func {
	if p.quiet {
		return nil
	}
	return p.handle
}

func (p *progressPrinter) handle(fraction float64, message string) {
	line := formatProgress(fraction, message)
	final := fraction == progress.Done || fraction == progress.Failed

	if p.tty {
		pad := ""
		if n := p.lastLen - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		if final {
			fmt.Fprintf(p.out, "\r%s%s\n", line, pad)
			p.lastLen = 0
			return
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		p.lastLen = len(line)
		return
	}

	if fraction > 0 && fraction < 1 {
		quarter := int(fraction * 4)
		if stem(message) == p.lastMsg && quarter <= p.lastQuarter {
			return
		}
		p.lastMsg = stem(message)
		p.lastQuarter = quarter
	} else {
		p.lastMsg = stem(message)
		p.lastQuarter = -1
	}
	fmt.Fprintln(p.out, line)
}

func formatProgress(fraction float64, message string) string {
	switch {
	case fraction == progress.Done:
		return "[ ok ] " + message
	case fraction == progress.Failed:
		return "[fail] " + message
	case fraction < 0:
		return "[....] " + message
	default:
		return fmt.Sprintf("[%3d%%] %s", int(fraction*100), message)
	}
}

// stem drops a trailing parenthesized byte count so repeated download
// events compare equal.
func stem(message string) string {
	if i := strings.LastIndex(message, " ("); i >= 0 && strings.HasSuffix(message, ")") {
		return message[:i]
	}
	return message
}
