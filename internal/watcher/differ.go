package watcher

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op classifies one diff line.
type Op int

const (
	OpContext Op = iota
	OpAdded
	OpRemoved
	OpHeader
)

// Line is one tagged line of a unified-style diff.
type Line struct {
	Op   Op
	Text string
}

// Diff computes a deterministic line-level diff between two text blobs.
// Identical inputs yield an empty sequence; otherwise the sequence
// starts with the two file-header lines, followed by added/removed/
// context lines in order, full context included.
//
// The diff is computed with diffmatchpatch in line mode: the texts are
// mapped line-by-line to characters, diffed, and mapped back, which
// gives an LCS-based line diff without a character-level pass.
func Diff(oldText, newText string) []Line {
	if oldText == newText {
		return nil
	}

	dmp := diffmatchpatch.New()
	// No wall-clock cutoff: the default 1s timeout would truncate the
	// diff on large documents, making the result input-size dependent.
	dmp.DiffTimeout = 0
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	lines := []Line{
		{Op: OpHeader, Text: "--- last"},
		{Op: OpHeader, Text: "+++ current"},
	}
	for _, d := range diffs {
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpAdded
		case diffmatchpatch.DiffDelete:
			op = OpRemoved
		case diffmatchpatch.DiffEqual:
			op = OpContext
		}
		for _, text := range splitLines(d.Text) {
			lines = append(lines, Line{Op: op, Text: text})
		}
	}
	return lines
}

// splitLines splits a diff chunk into individual lines, dropping the
// phantom empty element a trailing newline would produce.
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	parts := strings.Split(chunk, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Render formats a single line with its unified-diff marker.
func Render(l Line) string {
	switch l.Op {
	case OpAdded:
		return "+" + l.Text
	case OpRemoved:
		return "-" + l.Text
	case OpContext:
		return " " + l.Text
	default:
		return l.Text
	}
}

// RenderAll formats every line; the join of the result is the serialized
// diff persisted with each snapshot.
func RenderAll(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, Render(l))
	}
	return out
}

// FindPhrase scans the diff in order and returns the first added line
// containing phrase as a literal substring, rendered with its "+"
// marker. Header lines are never considered. The scan short-circuits:
// one notification per check, not one per matching line.
func FindPhrase(lines []Line, phrase string) (string, bool) {
	for _, l := range lines {
		if l.Op != OpAdded {
			continue
		}
		if strings.Contains(l.Text, phrase) {
			return Render(l), true
		}
	}
	return "", false
}
