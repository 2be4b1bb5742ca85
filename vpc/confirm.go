//go:generate mockgen -destination=./mocks/mock_confirmer.go -package=mocks -source=confirm.go Confirmer

package vpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Confirmer gates a destructive action on explicit consent. A cancelled
// context counts as a refusal.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Gate is the Confirmer used by the CLI. In interactive mode it prints the
// prompt and reads one line of input; only "y" or "yes" (any case,
// surrounding whitespace ignored) counts as consent. In auto-accept mode it
// approves without prompting.
type Gate struct {
	in         io.Reader
	out        io.Writer
	autoAccept bool

	// lines is fed by a single reader goroutine, started on the first prompt
	// and stopped at the end of the input
	lines chan readResult
	start sync.Once

	// Decorate, if set, styles the prompt text before it is written
	Decorate func(string) string
}

type readResult struct {
	line string
	err  error
}

func NewGate(in io.Reader, out io.Writer, autoAccept bool) *Gate {
	return &Gate{
		in:         in,
		out:        out,
		autoAccept: autoAccept,
		lines:      make(chan readResult, 1),
	}
}

// readLines reads the input until it ends. Reading happens off the prompting
// goroutine so that a pending prompt can be abandoned when the context is
// cancelled.
func (g *Gate) readLines() {
	defer close(g.lines)

	r := bufio.NewReader(g.in)
	for {
		line, err := r.ReadString('\n')
		g.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func (g *Gate) Confirm(ctx context.Context, prompt string) bool {
	if g.autoAccept {
		log.WithContext(ctx).WithField("prompt", prompt).Debug("Auto-accepting confirmation")
		return true
	}

	if ctx.Err() != nil {
		return false
	}

	text := prompt
	if g.Decorate != nil {
		text = g.Decorate(prompt)
	}
	fmt.Fprintf(g.out, "%v [y/N] ", text)

	g.start.Do(func() {
		go g.readLines()
	})

	select {
	case <-ctx.Done():
		fmt.Fprintln(g.out)
		log.WithContext(ctx).WithError(ctx.Err()).Debug("Confirmation interrupted, treating as declined")
		return false
	case res, ok := <-g.lines:
		if !ok {
			// no more input: nobody can say yes
			fmt.Fprintln(g.out)
			return false
		}
		if res.err != nil && !errors.Is(res.err, io.EOF) {
			log.WithContext(ctx).WithError(res.err).Debug("Could not read confirmation, treating as declined")
			return false
		}
		if res.err != nil && res.line == "" {
			fmt.Fprintln(g.out)
			return false
		}

		return IsConsent(res.line)
	}
}

// IsConsent reports whether a line of operator input approves an action
func IsConsent(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
