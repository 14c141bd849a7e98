package watcher_test

import (
	"reflect"
	"strings"
	"testing"

	"sitewatch/internal/watcher"
)

func TestDiffIdenticalTextsYieldNothing(t *testing.T) {
	if lines := watcher.Diff("line1\nline2", "line1\nline2"); len(lines) != 0 {
		t.Fatalf("expected empty diff, got %d lines", len(lines))
	}
}

func TestDiffStartsWithHeaders(t *testing.T) {
	lines := watcher.Diff("a", "b")
	if len(lines) < 2 {
		t.Fatalf("expected headers plus changes, got %d lines", len(lines))
	}
	if lines[0].Op != watcher.OpHeader || !strings.HasPrefix(lines[0].Text, "---") {
		t.Errorf("first line should be the --- header, got %+v", lines[0])
	}
	if lines[1].Op != watcher.OpHeader || !strings.HasPrefix(lines[1].Text, "+++") {
		t.Errorf("second line should be the +++ header, got %+v", lines[1])
	}
}

func TestFindPhraseInAppendedLine(t *testing.T) {
	oldText := "line1\nline2"
	newText := "line1\nline2\nPHRASE here"

	lines := watcher.Diff(oldText, newText)
	matched, ok := watcher.FindPhrase(lines, "PHRASE")
	if !ok {
		t.Fatal("expected phrase to be found")
	}
	if matched != "+PHRASE here" {
		t.Errorf("matched = %q, want %q", matched, "+PHRASE here")
	}
}

func TestFindPhraseIgnoresRemovedAndContextLines(t *testing.T) {
	// The phrase only occurs in a removed line and a context line.
	oldText := "PHRASE gone\nkeep PHRASE\nother"
	newText := "keep PHRASE\nother\nnothing new"

	lines := watcher.Diff(oldText, newText)
	if matched, ok := watcher.FindPhrase(lines, "PHRASE"); ok {
		t.Fatalf("expected no match, got %q", matched)
	}
}

func TestFindPhraseIgnoresHeaderLines(t *testing.T) {
	// "current" appears in the +++ header; it must never match.
	lines := watcher.Diff("a", "b")
	if matched, ok := watcher.FindPhrase(lines, "current"); ok {
		t.Fatalf("header line matched: %q", matched)
	}
}

func TestFindPhraseShortCircuitsOnFirstMatch(t *testing.T) {
	oldText := "base"
	newText := "base\nPHRASE one\nPHRASE two"

	lines := watcher.Diff(oldText, newText)
	matched, ok := watcher.FindPhrase(lines, "PHRASE")
	if !ok {
		t.Fatal("expected a match")
	}
	if matched != "+PHRASE one" {
		t.Errorf("matched = %q, want first added line %q", matched, "+PHRASE one")
	}
}

func TestDiffIsDeterministic(t *testing.T) {
	oldText := "alpha\nbeta\ngamma\ndelta"
	newText := "alpha\nchanged\ngamma\nepsilon\ndelta"

	first := watcher.Diff(oldText, newText)
	for i := 0; i < 10; i++ {
		if got := watcher.Diff(oldText, newText); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced a different sequence", i)
		}
	}
}

func TestDiffLargeDocumentIsExactAndStable(t *testing.T) {
	// Large enough that a wall-clock diff cutoff would kick in and
	// degrade the result; the diff must stay an exact line-level LCS.
	var b strings.Builder
	for i := 0; i < 20000; i++ {
		b.WriteString("filler line with some repeated content\n")
	}
	oldText := b.String()
	newText := oldText + "PHRASE at the very end"

	first := watcher.Diff(oldText, newText)
	matched, ok := watcher.FindPhrase(first, "PHRASE")
	if !ok || matched != "+PHRASE at the very end" {
		t.Fatalf("matched = %q, ok=%v", matched, ok)
	}
	for _, l := range first {
		if l.Op == watcher.OpRemoved {
			t.Fatalf("pure append produced a removed line: %q", l.Text)
		}
	}

	for i := 0; i < 3; i++ {
		if got := watcher.Diff(oldText, newText); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced a different sequence", i)
		}
	}
}

func TestRenderAllMarkers(t *testing.T) {
	lines := []watcher.Line{
		{Op: watcher.OpHeader, Text: "--- last"},
		{Op: watcher.OpRemoved, Text: "old"},
		{Op: watcher.OpAdded, Text: "new"},
		{Op: watcher.OpContext, Text: "same"},
	}
	got := watcher.RenderAll(lines)
	want := []string{"--- last", "-old", "+new", " same"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RenderAll = %v, want %v", got, want)
	}
}

func TestDiffFirstRunTreatsEverythingAsAdded(t *testing.T) {
	lines := watcher.Diff("", "line1\nline2")
	var added int
	for _, l := range lines {
		if l.Op == watcher.OpAdded {
			added++
		}
		if l.Op == watcher.OpRemoved {
			t.Errorf("unexpected removed line %q on first run", l.Text)
		}
	}
	if added != 2 {
		t.Errorf("added lines = %d, want 2", added)
	}
}
