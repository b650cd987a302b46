package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/pagediff/internal/config"
	"github.com/nao1215/pagediff/internal/database"
	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/report"
	"github.com/spf13/cobra"
)

// Constants for the overall direction of a run diff.
const (
	directionWorsened  = "worsened"
	directionImproved  = "improved"
	directionUnchanged = "unchanged"
)

// scoreEpsilon is the smallest min score change reported. Renders of an
// unchanged document are byte-identical, so anything below this is noise
// from a changed renderer version.
const scoreEpsilon = 1e-4

// errConflictingFormats is returned when both --json and --markdown are given.
var errConflictingFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

// NewHistoryCmd creates the history command.
// This command compares the latest run with an earlier run stored in the
// history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Compare the latest run with an earlier one",
		Long: `History displays how the latest comparison run differs from an earlier run.

Every 'pagediff compare' run is recorded in the history database unless
--no-history is given. This command shows:
- New failures: documents that could not be compared and could before
- New warnings: documents that dropped below the threshold
- Fixed: documents that pass again
- Score changes: documents whose lowest page score moved

Documents are classified with the threshold of the latest run.

Examples:
  # Compare the latest two runs
  pagediff history

  # List all recorded runs
  pagediff history --list

  # Compare with a specific run by ID
  pagediff history --with-run-id 2f1c0e9a-...

  # Output the comparison as Markdown for a pull request comment
  pagediff history --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List recorded runs")
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().BoolP("json", "j", false, "Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	withRunID, err := cmd.Flags().GetString("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database
	if jsonOutput && markdownOutput {
		return errConflictingFormats
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if listRuns {
		return listRunHistory(ctx, db, out)
	}

	diff, err := loadRunDiff(ctx, db, withRunID)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return outputDiffJSON(out, diff)
	case markdownOutput:
		return outputDiffMarkdown(out, diff)
	default:
		return outputDiffText(out, diff)
	}
}

// listRunHistory lists all recorded runs.
func listRunHistory(ctx context.Context, db *database.HistoryDB, out io.Writer) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded in the history database.")
		fmt.Fprintln(out, "\nUse 'pagediff compare' to record a run.")
		return nil
	}

	fmt.Fprintf(out, "Recorded runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %s\n", "ID", "Date", "Threshold", "Result")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(run.Threshold, 'f', -1, 64),
			formatRunResult(run),
		)
	}

	fmt.Fprintln(out, "\nUse 'pagediff history' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'pagediff history --with-run-id <id>' to compare with a specific run.")

	return nil
}

// formatRunResult formats the counts of a run.
func formatRunResult(run database.Run) string {
	return fmt.Sprintf("%d files, %d pass, %d warn, %d error", run.Total, run.Pass, run.Warn, run.Error)
}

// loadRunDiff loads the latest run and the run to compare it with.
func loadRunDiff(ctx context.Context, db *database.HistoryDB, withRunID string) (*RunDiff, error) {
	latest, err := db.GetLatestRuns(ctx, 2)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, errors.New("no runs recorded (use 'pagediff compare' first)")
	}
	current := latest[0]

	var previous database.Run
	switch {
	case withRunID != "":
		if withRunID == current.ID {
			return nil, fmt.Errorf("run %s is the latest run; choose an earlier one", withRunID)
		}
		run, err := db.GetRun(ctx, withRunID)
		if err != nil {
			return nil, fmt.Errorf("failed to get run %s: %w", withRunID, err)
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", withRunID)
		}
		previous = *run
	case len(latest) < 2:
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(latest))
	default:
		previous = latest[1]
	}

	previousDocs, err := db.GetRunDocuments(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currentDocs, err := db.GetRunDocuments(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	return diffRuns(previous, previousDocs, current, currentDocs), nil
}

// RunDiff holds the result of comparing two runs.
type RunDiff struct {
	// PreviousRun is the earlier run.
	PreviousRun database.Run `json:"previous_run"`

	// CurrentRun is the latest run.
	CurrentRun database.Run `json:"current_run"`

	// NewFailures are documents that fail now and did not before.
	NewFailures []DocumentChange `json:"new_failures,omitempty"`

	// NewWarnings are documents below the threshold now that passed before.
	NewWarnings []DocumentChange `json:"new_warnings,omitempty"`

	// Fixed are documents that pass now and did not before.
	Fixed []DocumentChange `json:"fixed,omitempty"`

	// ScoreChanges are documents compared in both runs whose min score
	// moved, largest drop first.
	ScoreChanges []DocumentChange `json:"score_changes,omitempty"`

	// Added are documents only in the current run.
	Added []string `json:"added,omitempty"`

	// Removed are documents only in the previous run.
	Removed []string `json:"removed,omitempty"`

	// UnchangedCount is the number of documents with the same status and score.
	UnchangedCount int `json:"unchanged_count"`

	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`
}

// DocumentChange describes one document across two runs.
type DocumentChange struct {
	Name           string  `json:"name"`
	PreviousStatus string  `json:"previous_status,omitempty"`
	CurrentStatus  string  `json:"current_status"`
	PreviousMin    float64 `json:"previous_min_ssim"`
	CurrentMin     float64 `json:"current_min_ssim"`
	Delta          float64 `json:"delta"`
	Error          string  `json:"error,omitempty"`
}

// diffRuns compares the documents of two runs. Both sides are classified
// with the current run's threshold.
func diffRuns(previous database.Run, previousDocs []*model.FileReport, current database.Run, currentDocs []*model.FileReport) *RunDiff {
	diff := &RunDiff{
		PreviousRun: previous,
		CurrentRun:  current,
	}
	threshold := current.Threshold

	prevByName := make(map[string]*model.FileReport, len(previousDocs))
	for _, d := range previousDocs {
		prevByName[d.Name] = d
	}
	seen := make(map[string]bool, len(currentDocs))

	for _, cur := range currentDocs {
		seen[cur.Name] = true
		curStatus := report.Classify(cur, threshold)
		change := DocumentChange{
			Name:          cur.Name,
			CurrentStatus: curStatus.String(),
			CurrentMin:    cur.MinSSIM,
			Error:         cur.Error,
		}

		prev, existed := prevByName[cur.Name]
		if !existed {
			diff.Added = append(diff.Added, cur.Name)
			switch curStatus {
			case model.StatusFail:
				diff.NewFailures = append(diff.NewFailures, change)
			case model.StatusWarn:
				diff.NewWarnings = append(diff.NewWarnings, change)
			}
			continue
		}

		prevStatus := report.Classify(prev, threshold)
		change.PreviousStatus = prevStatus.String()
		change.PreviousMin = prev.MinSSIM
		change.Delta = cur.MinSSIM - prev.MinSSIM

		statusChanged := curStatus != prevStatus
		switch {
		case curStatus == model.StatusFail && statusChanged:
			diff.NewFailures = append(diff.NewFailures, change)
		case curStatus == model.StatusWarn && prevStatus == model.StatusPass:
			diff.NewWarnings = append(diff.NewWarnings, change)
		case curStatus == model.StatusPass && statusChanged:
			diff.Fixed = append(diff.Fixed, change)
		}

		scoreChanged := cur.OK && prev.OK && math.Abs(change.Delta) >= scoreEpsilon
		if scoreChanged {
			diff.ScoreChanges = append(diff.ScoreChanges, change)
		}
		if !statusChanged && !scoreChanged {
			diff.UnchangedCount++
		}
	}

	for _, prev := range previousDocs {
		if !seen[prev.Name] {
			diff.Removed = append(diff.Removed, prev.Name)
		}
	}

	sort.SliceStable(diff.ScoreChanges, func(i, j int) bool {
		return diff.ScoreChanges[i].Delta < diff.ScoreChanges[j].Delta
	})

	diff.Direction = calculateDirection(diff)
	return diff
}

// calculateDirection weighs regressions against fixes.
func calculateDirection(diff *RunDiff) string {
	worse := len(diff.NewFailures) + len(diff.NewWarnings)
	better := len(diff.Fixed)
	switch {
	case worse > better:
		return directionWorsened
	case worse < better:
		return directionImproved
	default:
		return directionUnchanged
	}
}

// outputDiffJSON outputs the comparison result in JSON format.
func outputDiffJSON(out io.Writer, diff *RunDiff) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(diff)
}

// outputDiffMarkdown outputs the comparison result in Markdown format.
func outputDiffMarkdown(out io.Writer, diff *RunDiff) error {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Run Comparison")
	md.PlainText("")
	md.PlainTextf("**Status:** %s", formatDirection(diff.Direction))
	md.PlainText("")

	prev, cur := diff.PreviousRun, diff.CurrentRun
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Date", prev.StartedAt.Local().Format("2006-01-02 15:04"), cur.StartedAt.Local().Format("2006-01-02 15:04"), "-"},
			{"Pass", strconv.Itoa(prev.Pass), strconv.Itoa(cur.Pass), formatDelta(cur.Pass - prev.Pass)},
			{"Below threshold", strconv.Itoa(prev.Warn), strconv.Itoa(cur.Warn), formatDelta(cur.Warn - prev.Warn)},
			{"Errors", strconv.Itoa(prev.Error), strconv.Itoa(cur.Error), formatDelta(cur.Error - prev.Error)},
			{"**Total**", "**" + strconv.Itoa(prev.Total) + "**", "**" + strconv.Itoa(cur.Total) + "**", "**" + formatDelta(cur.Total-prev.Total) + "**"},
		},
	})
	md.PlainText("")

	writeChangeSection := func(title string, changes []DocumentChange, format func(DocumentChange) string) {
		if len(changes) == 0 {
			return
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(changes)))
		md.PlainText("")
		items := make([]string, len(changes))
		for i, c := range changes {
			items[i] = format(c)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	writeChangeSection("New Failures", diff.NewFailures, func(c DocumentChange) string {
		return "`" + c.Name + "`: " + c.Error
	})
	writeChangeSection("New Warnings", diff.NewWarnings, func(c DocumentChange) string {
		return "`" + c.Name + "`: min " + formatScore(c.CurrentMin)
	})
	writeChangeSection("Fixed", diff.Fixed, func(c DocumentChange) string {
		return "`" + c.Name + "`"
	})

	if len(diff.ScoreChanges) > 0 {
		md.H2(fmt.Sprintf("Score Changes (%d)", len(diff.ScoreChanges)))
		md.PlainText("")
		rows := make([][]string, len(diff.ScoreChanges))
		for i, c := range diff.ScoreChanges {
			rows[i] = []string{"`" + c.Name + "`", formatScore(c.PreviousMin), formatScore(c.CurrentMin), formatScoreDelta(c.Delta)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Document", "Previous min", "Current min", "Change"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if n := len(diff.Added) + len(diff.Removed); n > 0 {
		md.PlainTextf("*%d document(s) added, %d removed*", len(diff.Added), len(diff.Removed))
		md.PlainText("")
	}
	if diff.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d documents unchanged*", diff.UnchangedCount)
	}

	if err := md.Build(); err != nil {
		return err
	}
	_, err := out.Write(buf.Bytes())
	return err
}

// outputDiffText outputs the comparison result in human-readable text format.
func outputDiffText(out io.Writer, diff *RunDiff) error {
	var sb strings.Builder
	prev, cur := diff.PreviousRun, diff.CurrentRun

	sb.WriteString("Run Comparison\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "\nStatus: %s\n", formatDirection(diff.Direction))

	fmt.Fprintf(&sb, "\nPrevious run: %s  %s\n", prev.StartedAt.Local().Format("2006-01-02 15:04:05"), prev.ID)
	fmt.Fprintf(&sb, "Current run:  %s  %s\n", cur.StartedAt.Local().Format("2006-01-02 15:04:05"), cur.ID)

	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "  %-16s  %-10s  %-10s  %-10s\n", "Status", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 50) + "\n")
	for _, row := range []struct {
		label     string
		prev, cur int
	}{
		{"Pass", prev.Pass, cur.Pass},
		{"Below threshold", prev.Warn, cur.Warn},
		{"Errors", prev.Error, cur.Error},
	} {
		fmt.Fprintf(&sb, "  %-16s  %-10d  %-10d  %-10s\n", row.label, row.prev, row.cur, formatDelta(row.cur-row.prev))
	}
	sb.WriteString("  " + strings.Repeat("-", 50) + "\n")
	fmt.Fprintf(&sb, "  %-16s  %-10d  %-10d  %-10s\n", "Total", prev.Total, cur.Total, formatDelta(cur.Total-prev.Total))

	if len(diff.NewFailures) > 0 {
		fmt.Fprintf(&sb, "\nNew Failures (%d):\n", len(diff.NewFailures))
		for _, c := range diff.NewFailures {
			fmt.Fprintf(&sb, "  [+] %s: %s\n", c.Name, c.Error)
		}
	}

	if len(diff.NewWarnings) > 0 {
		fmt.Fprintf(&sb, "\nNew Warnings (%d):\n", len(diff.NewWarnings))
		for _, c := range diff.NewWarnings {
			fmt.Fprintf(&sb, "  [+] %s: min %s\n", c.Name, formatScore(c.CurrentMin))
		}
	}

	if len(diff.Fixed) > 0 {
		fmt.Fprintf(&sb, "\nFixed (%d):\n", len(diff.Fixed))
		for _, c := range diff.Fixed {
			fmt.Fprintf(&sb, "  [-] %s\n", c.Name)
		}
	}

	if len(diff.ScoreChanges) > 0 {
		fmt.Fprintf(&sb, "\nScore Changes (%d):\n", len(diff.ScoreChanges))
		for _, c := range diff.ScoreChanges {
			fmt.Fprintf(&sb, "  %s: %s -> %s (%s)\n", c.Name, formatScore(c.PreviousMin), formatScore(c.CurrentMin), formatScoreDelta(c.Delta))
		}
	}

	if len(diff.Added) > 0 || len(diff.Removed) > 0 {
		fmt.Fprintf(&sb, "\nAdded: %d, removed: %d documents\n", len(diff.Added), len(diff.Removed))
	}
	if diff.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d documents\n", diff.UnchangedCount)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

// formatDirection formats the run diff direction for display.
func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (fewer regressions)"
	case directionWorsened:
		return "WORSENED (new regressions)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// formatScore formats a score with four decimals.
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// formatScoreDelta formats a score delta with sign and four decimals.
func formatScoreDelta(v float64) string {
	if v > 0 {
		return "+" + formatScore(v)
	}
	return formatScore(v)
}
