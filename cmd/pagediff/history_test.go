package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/pagediff/internal/database"
	"github.com/nao1215/pagediff/internal/model"
)

// docReport builds a compared document with the given page scores.
func docReport(name string, scores ...float64) *model.FileReport {
	r := model.NewFileReport(name)
	for i, s := range scores {
		r.AddPage(model.PageResult{Page: i + 1, SSIMScore: s})
	}
	return r
}

// failedReport builds a document that could not be compared.
func failedReport(name, msg string) *model.FileReport {
	return model.NewFailedReport(name, model.ErrorKindExternalTool, errors.New(msg))
}

func testRun(id string, threshold float64) database.Run {
	return database.Run{
		ID:        id,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Threshold: threshold,
	}
}

func changeNames(changes []DocumentChange) []string {
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Name
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()

	if cmd.Use != "history" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}

	flagsWithShort := map[string]string{
		"list":        "l",
		"with-run-id": "i",
		"json":        "j",
		"markdown":    "m",
	}
	for flag, shorthand := range flagsWithShort {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("expected flag %q to exist", flag)
			continue
		}
		if f.Shorthand != shorthand {
			t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
		}
	}

	if cmd.Flags().Lookup("db-dir") == nil {
		t.Error("expected db-dir flag")
	}
}

func TestDiffRuns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		previous      []*model.FileReport
		current       []*model.FileReport
		newFailures   []string
		newWarnings   []string
		fixed         []string
		scoreChanges  []string
		added         []string
		removed       []string
		unchanged     int
		wantDirection string
	}{
		{
			name:          "no changes",
			previous:      []*model.FileReport{docReport("a.docx", 1.0), docReport("b.docx", 0.97)},
			current:       []*model.FileReport{docReport("a.docx", 1.0), docReport("b.docx", 0.97)},
			unchanged:     2,
			wantDirection: directionUnchanged,
		},
		{
			name:          "document starts failing",
			previous:      []*model.FileReport{docReport("a.docx", 1.0)},
			current:       []*model.FileReport{failedReport("a.docx", "renderer crashed")},
			newFailures:   []string{"a.docx"},
			wantDirection: directionWorsened,
		},
		{
			name:          "document drops below threshold",
			previous:      []*model.FileReport{docReport("a.docx", 1.0)},
			current:       []*model.FileReport{docReport("a.docx", 0.95)},
			newWarnings:   []string{"a.docx"},
			scoreChanges:  []string{"a.docx"},
			wantDirection: directionWorsened,
		},
		{
			name:          "document is fixed",
			previous:      []*model.FileReport{failedReport("a.docx", "timeout"), docReport("b.docx", 0.9)},
			current:       []*model.FileReport{docReport("a.docx", 1.0), docReport("b.docx", 0.99)},
			fixed:         []string{"a.docx", "b.docx"},
			scoreChanges:  []string{"b.docx"},
			wantDirection: directionImproved,
		},
		{
			name:          "score moves within the same status",
			previous:      []*model.FileReport{docReport("a.docx", 0.999), docReport("b.docx", 0.90)},
			current:       []*model.FileReport{docReport("a.docx", 0.990), docReport("b.docx", 0.95)},
			scoreChanges:  []string{"a.docx", "b.docx"},
			wantDirection: directionUnchanged,
		},
		{
			name:          "tiny score changes are noise",
			previous:      []*model.FileReport{docReport("a.docx", 0.99)},
			current:       []*model.FileReport{docReport("a.docx", 0.99001)},
			unchanged:     1,
			wantDirection: directionUnchanged,
		},
		{
			name:          "added and removed documents",
			previous:      []*model.FileReport{docReport("old.docx", 1.0)},
			current:       []*model.FileReport{docReport("new.docx", 1.0), docReport("bad.docx", 0.5), failedReport("worse.docx", "x")},
			newFailures:   []string{"worse.docx"},
			newWarnings:   []string{"bad.docx"},
			added:         []string{"new.docx", "bad.docx", "worse.docx"},
			removed:       []string{"old.docx"},
			wantDirection: directionWorsened,
		},
		{
			name:          "warning turns into failure",
			previous:      []*model.FileReport{docReport("a.docx", 0.9)},
			current:       []*model.FileReport{failedReport("a.docx", "timeout")},
			newFailures:   []string{"a.docx"},
			wantDirection: directionWorsened,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			diff := diffRuns(testRun("prev", 0.98), tt.previous, testRun("cur", 0.98), tt.current)

			checks := []struct {
				label string
				got   []string
				want  []string
			}{
				{"new failures", changeNames(diff.NewFailures), tt.newFailures},
				{"new warnings", changeNames(diff.NewWarnings), tt.newWarnings},
				{"fixed", changeNames(diff.Fixed), tt.fixed},
				{"score changes", changeNames(diff.ScoreChanges), tt.scoreChanges},
				{"added", diff.Added, tt.added},
				{"removed", diff.Removed, tt.removed},
			}
			for _, c := range checks {
				if !equalStrings(c.got, c.want) {
					t.Errorf("%s: got %v, want %v", c.label, c.got, c.want)
				}
			}
			if diff.UnchangedCount != tt.unchanged {
				t.Errorf("unchanged: got %d, want %d", diff.UnchangedCount, tt.unchanged)
			}
			if diff.Direction != tt.wantDirection {
				t.Errorf("direction: got %q, want %q", diff.Direction, tt.wantDirection)
			}
		})
	}
}

func TestDiffRunsUsesCurrentThreshold(t *testing.T) {
	t.Parallel()

	// 0.97 passed under the old threshold but not under the current one.
	previous := []*model.FileReport{docReport("a.docx", 0.97)}
	current := []*model.FileReport{docReport("a.docx", 0.97)}

	diff := diffRuns(testRun("prev", 0.95), previous, testRun("cur", 0.98), current)

	if len(diff.NewWarnings) != 0 {
		t.Errorf("expected no new warnings, got %v", changeNames(diff.NewWarnings))
	}
	if diff.UnchangedCount != 1 {
		t.Errorf("expected 1 unchanged document, got %d", diff.UnchangedCount)
	}
}

func TestDiffRunsScoreChangeOrder(t *testing.T) {
	t.Parallel()

	previous := []*model.FileReport{docReport("a.docx", 0.99), docReport("b.docx", 0.99), docReport("c.docx", 0.90)}
	current := []*model.FileReport{docReport("a.docx", 0.98), docReport("b.docx", 0.90), docReport("c.docx", 0.95)}

	diff := diffRuns(testRun("prev", 0.5), previous, testRun("cur", 0.5), current)

	want := []string{"b.docx", "a.docx", "c.docx"}
	if got := changeNames(diff.ScoreChanges); !equalStrings(got, want) {
		t.Errorf("expected largest drop first %v, got %v", want, got)
	}
	if diff.ScoreChanges[2].Delta <= 0 {
		t.Errorf("expected positive delta for c.docx, got %v", diff.ScoreChanges[2].Delta)
	}
}

func TestCalculateDirection(t *testing.T) {
	t.Parallel()

	one := []DocumentChange{{Name: "x"}}
	two := []DocumentChange{{Name: "x"}, {Name: "y"}}

	tests := []struct {
		name string
		diff RunDiff
		want string
	}{
		{"empty", RunDiff{}, directionUnchanged},
		{"failures only", RunDiff{NewFailures: one}, directionWorsened},
		{"warnings only", RunDiff{NewWarnings: one}, directionWorsened},
		{"fixed only", RunDiff{Fixed: one}, directionImproved},
		{"balanced", RunDiff{NewWarnings: one, Fixed: one}, directionUnchanged},
		{"more fixed", RunDiff{NewFailures: one, Fixed: two}, directionImproved},
		{"score changes do not count", RunDiff{ScoreChanges: two}, directionUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := calculateDirection(&tt.diff); got != tt.want {
				t.Errorf("calculateDirection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{0, "0"},
		{3, "+3"},
		{-2, "-2"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func TestFormatScoreDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta float64
		want  string
	}{
		{0, "0.0000"},
		{0.01234, "+0.0123"},
		{-0.5, "-0.5000"},
	}
	for _, tt := range tests {
		if got := formatScoreDelta(tt.delta); got != tt.want {
			t.Errorf("formatScoreDelta(%v) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func TestFormatDirection(t *testing.T) {
	t.Parallel()

	for direction, want := range map[string]string{
		directionImproved:  "IMPROVED",
		directionWorsened:  "WORSENED",
		directionUnchanged: "UNCHANGED",
		"":                 "UNCHANGED",
	} {
		if got := formatDirection(direction); !strings.HasPrefix(got, want) {
			t.Errorf("formatDirection(%q) = %q, want prefix %q", direction, got, want)
		}
	}
}

// sampleDiff returns a diff with every section populated.
func sampleDiff() *RunDiff {
	previous := []*model.FileReport{
		docReport("stable.docx", 1.0),
		docReport("slipping.docx", 1.0),
		failedReport("fixed.docx", "timeout"),
		docReport("breaking.docx", 1.0),
		docReport("gone.docx", 1.0),
	}
	current := []*model.FileReport{
		docReport("stable.docx", 1.0),
		docReport("slipping.docx", 0.9),
		docReport("fixed.docx", 1.0),
		failedReport("breaking.docx", "pdftoppm exited with status 1"),
		docReport("fresh.docx", 1.0),
	}
	prevRun := testRun("run-1", 0.98)
	prevRun.Total, prevRun.Pass, prevRun.Error = 5, 4, 1
	curRun := testRun("run-2", 0.98)
	curRun.StartedAt = curRun.StartedAt.Add(time.Hour)
	curRun.Total, curRun.Pass, curRun.Warn, curRun.Error = 5, 3, 1, 1
	return diffRuns(prevRun, previous, curRun, current)
}

func TestOutputDiffText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := outputDiffText(&buf, sampleDiff()); err != nil {
		t.Fatalf("outputDiffText failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Run Comparison",
		"Status: WORSENED",
		"run-1",
		"run-2",
		"New Failures (1):",
		"[+] breaking.docx: pdftoppm exited with status 1",
		"New Warnings (1):",
		"[+] slipping.docx: min 0.9000",
		"Fixed (1):",
		"[-] fixed.docx",
		"slipping.docx: 1.0000 -> 0.9000 (-0.1000)",
		"Added: 1, removed: 1 documents",
		"Unchanged: 1 documents",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestOutputDiffMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := outputDiffMarkdown(&buf, sampleDiff()); err != nil {
		t.Fatalf("outputDiffMarkdown failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Run Comparison",
		"**Status:** WORSENED",
		"| Metric",
		"## New Failures (1)",
		"`breaking.docx`: pdftoppm exited with status 1",
		"## New Warnings (1)",
		"## Fixed (1)",
		"## Score Changes (1)",
		"-0.1000",
		"*1 document(s) added, 1 removed*",
		"*1 documents unchanged*",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestOutputDiffJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := outputDiffJSON(&buf, sampleDiff()); err != nil {
		t.Fatalf("outputDiffJSON failed: %v", err)
	}

	var got RunDiff
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Direction != directionWorsened {
		t.Errorf("direction = %q, want %q", got.Direction, directionWorsened)
	}
	if got.PreviousRun.ID != "run-1" || got.CurrentRun.ID != "run-2" {
		t.Errorf("unexpected runs: %q, %q", got.PreviousRun.ID, got.CurrentRun.ID)
	}
	if len(got.NewFailures) != 1 || got.NewFailures[0].Error == "" {
		t.Errorf("expected one new failure with its error, got %+v", got.NewFailures)
	}
	if !equalStrings(got.Removed, []string{"gone.docx"}) {
		t.Errorf("removed = %v", got.Removed)
	}
}

// seedHistory records runs in a new history database and returns its directory.
func seedHistory(t *testing.T, runs ...[]*model.FileReport) (string, []string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "db")
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ids := make([]string, len(runs))
	for i, reports := range runs {
		ids[i] = "run-" + string(rune('a'+i))
		run := database.Run{
			ID:        ids[i],
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Threshold: 0.98,
			DPI:       150,
			Total:     len(reports),
		}
		if err := db.SaveRun(context.Background(), run, reports); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir, ids
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewHistoryCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		dir, ids := seedHistory(t,
			[]*model.FileReport{docReport("a.docx", 1.0)},
			[]*model.FileReport{docReport("a.docx", 0.9)},
		)
		out, err := runHistory(t, "--db-dir", dir, "--list")
		if err != nil {
			t.Fatalf("history --list failed: %v", err)
		}
		if !strings.Contains(out, "Recorded runs (2)") {
			t.Errorf("expected run count, got:\n%s", out)
		}
		first, second := strings.Index(out, ids[1]), strings.Index(out, ids[0])
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected %s listed before %s, got:\n%s", ids[1], ids[0], out)
		}
	})

	t.Run("lists an empty history", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t)
		out, err := runHistory(t, "--db-dir", dir, "-l")
		if err != nil {
			t.Fatalf("history --list failed: %v", err)
		}
		if !strings.Contains(out, "No runs recorded") {
			t.Errorf("expected empty message, got:\n%s", out)
		}
	})

	t.Run("compares the latest two runs", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t,
			[]*model.FileReport{docReport("a.docx", 1.0)},
			[]*model.FileReport{docReport("a.docx", 1.0)},
			[]*model.FileReport{docReport("a.docx", 0.9)},
		)
		out, err := runHistory(t, "--db-dir", dir, "--json")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		var diff RunDiff
		if err := json.Unmarshal([]byte(out), &diff); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if diff.PreviousRun.ID != "run-b" || diff.CurrentRun.ID != "run-c" {
			t.Errorf("expected run-b -> run-c, got %s -> %s", diff.PreviousRun.ID, diff.CurrentRun.ID)
		}
		if len(diff.NewWarnings) != 1 {
			t.Errorf("expected 1 new warning, got %+v", diff.NewWarnings)
		}
	})

	t.Run("compares with a given run", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t,
			[]*model.FileReport{failedReport("a.docx", "timeout")},
			[]*model.FileReport{docReport("a.docx", 0.9)},
			[]*model.FileReport{docReport("a.docx", 1.0)},
		)
		out, err := runHistory(t, "--db-dir", dir, "-i", "run-a", "--markdown")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "## Fixed (1)") {
			t.Errorf("expected a fixed document compared with run-a, got:\n%s", out)
		}
	})

	t.Run("text output by default", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t,
			[]*model.FileReport{docReport("a.docx", 1.0)},
			[]*model.FileReport{docReport("a.docx", 1.0)},
		)
		out, err := runHistory(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "Status: UNCHANGED") {
			t.Errorf("expected text output, got:\n%s", out)
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		one, _ := seedHistory(t, []*model.FileReport{docReport("a.docx", 1.0)})
		two, _ := seedHistory(t,
			[]*model.FileReport{docReport("a.docx", 1.0)},
			[]*model.FileReport{docReport("a.docx", 1.0)},
		)
		empty, _ := seedHistory(t)

		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{"conflicting formats", []string{"--db-dir", two, "-j", "-m"}, "conflicting output formats"},
			{"missing database", []string{"--db-dir", filepath.Join(t.TempDir(), "none")}, "history database not found"},
			{"no runs", []string{"--db-dir", empty}, "no runs recorded"},
			{"single run", []string{"--db-dir", one}, "at least 2 runs are required for comparison (found 1)"},
			{"unknown run", []string{"--db-dir", two, "-i", "run-z"}, "run run-z not found"},
			{"latest run", []string{"--db-dir", two, "-i", "run-b"}, "is the latest run"},
			{"positional argument", []string{"--db-dir", two, "extra"}, "unknown command"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				_, err := runHistory(t, tt.args...)
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
			})
		}
	})
}
