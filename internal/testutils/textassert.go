package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// TestingT is the part of testing.T the asserter reports through.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TextAsserter compares rendered command output line by line. Trailing
// blanks on a line and trailing empty lines are not significant. A mismatch
// is reported as a unified diff of expected against actual.
type TextAsserter struct {
	t       TestingT
	colored bool
}

func NewTextAsserter(t TestingT) *TextAsserter {
	return &TextAsserter{t: t}
}

// Colored turns on terminal colors in the reported diff.
func (ta *TextAsserter) Colored() *TextAsserter {
	ta.colored = true
	return ta
}

// Assert reports a diff when actual does not match expected.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if h, ok := ta.t.(interface{ Helper() }); ok {
		h.Helper()
	}

	want, got := normalizeOutput(expected), normalizeOutput(actual)
	if want == got {
		return true
	}
	edits := myers.ComputeEdits("", want, got)
	diff := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	ta.t.Errorf("Output mismatch (-expected +actual):\n%s", ta.render(diff))
	return false
}

func normalizeOutput(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n"
}

// Column padding and escape sequences are what usually differs, so
// changed lines show them.
var visible = strings.NewReplacer(" ", "·", "\t", "→", "\x1b", "␛")

func (ta *TextAsserter) render(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		var attr color.Attribute
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			continue
		case strings.HasPrefix(line, "@@"):
			attr = color.FgCyan
		case strings.HasPrefix(line, "-"):
			line, attr = visible.Replace(line), color.FgRed
		case strings.HasPrefix(line, "+"):
			line, attr = visible.Replace(line), color.FgGreen
		default:
			continue
		}
		if ta.colored {
			c := color.New(attr)
			c.EnableColor()
			line = c.Sprint(line)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
