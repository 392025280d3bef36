// Package prompt asks a person at a terminal how to resolve import conflicts.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// DefaultMaxAttempts is how many unrecognised answers are tolerated per conflict.
const DefaultMaxAttempts = 3

// ErrNoAnswer is returned when input ends or every attempt was unrecognised.
var ErrNoAnswer = errors.New("no conflict decision given")

const (
	maxCellWidth = 40
	notFound     = "(not stored)"
)

var shortcuts = map[string]core.Decision{
	"o": core.DecisionOverrideOne,
	"O": core.DecisionOverrideAll,
	"s": core.DecisionSkipOne,
	"S": core.DecisionSkipAll,
	"c": core.DecisionCancelJob,
	"C": core.DecisionCancelJob,
}

const choices = "[o] override  [O] override all  [s] skip  [S] skip all  [c] cancel import"

// Terminal is a core.ConflictDecisionProvider reading answers line by line.
type Terminal struct {
	in          io.Reader
	out         io.Writer
	MaxAttempts int

	once  sync.Once
	lines chan string
}

// NewTerminal creates a prompt reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, MaxAttempts: DefaultMaxAttempts}
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Decide shows the comparison and waits for an answer. It returns ctx.Err()
// if ctx ends first, so a cancelled import never waits on the keyboard.
func (t *Terminal) Decide(ctx context.Context, cmp core.Comparison) (core.Decision, error) {
	t.once.Do(t.startReader)

	t.render(cmp)

	attempts := t.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		fmt.Fprint(t.out, "Decision: ")

		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return "", ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				fmt.Fprintln(t.out)
				return "", ErrNoAnswer
			}
			if d, ok := parseAnswer(line); ok {
				return d, nil
			}
			fmt.Fprintf(t.out, "Unrecognised answer %q. %s\n", strings.TrimSpace(line), choices)
		}
	}

	return "", ErrNoAnswer
}

// startReader feeds lines from in to a channel so Decide can also wait on ctx.
// The goroutine lives until in is exhausted.
func (t *Terminal) startReader() {
	t.lines = make(chan string)
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
	}()
}

func parseAnswer(line string) (core.Decision, bool) {
	line = strings.TrimSpace(line)
	if d, ok := shortcuts[line]; ok {
		return d, true
	}
	return core.ParseDecision(line)
}

// render writes the side-by-side comparison of the incoming and stored record.
func (t *Terminal) render(cmp core.Comparison) {
	c := cmp.Conflict

	fmt.Fprintln(t.out)
	if c.IntraBatch {
		fmt.Fprintf(t.out, "Row %d repeats key %q from earlier in this file.\n", c.Data.SourceRow, c.NaturalKey)
	} else {
		fmt.Fprintf(t.out, "Row %d: a record with key %q already exists.\n", c.Data.SourceRow, c.NaturalKey)
	}

	columns := unionColumns(c.Data.Fields, cmp.Existing)

	rows := [][]string{{"column", "incoming", "stored", ""}}
	for _, col := range columns {
		incoming := display(c.Data.Fields, col)
		stored := notFound
		switch {
		case cmp.LoadError != "":
			stored = cmp.LoadError
		case cmp.Existing != nil:
			stored = display(cmp.Existing, col)
		}

		mark := ""
		if cmp.Existing != nil && incoming != stored {
			mark = "*"
		}
		rows = append(rows, []string{col, incoming, stored, mark})
	}

	widths := make([]int, 3)
	for _, r := range rows {
		for i := range widths {
			widths[i] = max(widths[i], runewidth.StringWidth(r[i]))
		}
	}

	for _, r := range rows {
		fmt.Fprintf(t.out, "  %s | %s | %s %s\n",
			runewidth.FillRight(r[0], widths[0]),
			runewidth.FillRight(r[1], widths[1]),
			runewidth.FillRight(r[2], widths[2]),
			r[3],
		)
	}
	fmt.Fprintln(t.out, choices)
}

// unionColumns returns every column present on either side, sorted.
func unionColumns(a, b core.Fields) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}

	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func display(f core.Fields, col string) string {
	v, ok := f[col]
	if !ok || v.IsNull() {
		return "-"
	}
	return runewidth.Truncate(v.String(), maxCellWidth, "...")
}
