package cmd

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/overmindtech/pterm"
	"github.com/ttacon/chalk"
)

var tty bool

func init() {
	// Detect if we're in a TTY or not
	tty = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	if !tty {
		pterm.DisableColor()
	}
}

var (
	// Styles
	Bold = TextStyle{chalk.Bold}

	// Colors
	Red    = Color{chalk.Red}
	Green  = Color{chalk.Green}
	Yellow = Color{chalk.Yellow}
	Cyan   = Color{chalk.Cyan}
)

// A type that wraps chalk.TextStyle but adds detections for if we're in a TTY
type TextStyle struct {
	underlying chalk.TextStyle
}

func (t TextStyle) TextStyle(val string) string {
	if !tty {
		return val
	}

	return t.underlying.TextStyle(val)
}

// A type that wraps chalk.Color but adds detections for if we're in a TTY
type Color struct {
	underlying chalk.Color
}

func (c Color) Color(val string) string {
	if !tty {
		return val
	}

	return c.underlying.Color(val)
}
