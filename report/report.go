// Package report renders evaluation results to the terminal and to HTML.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/getnao/nao-cli/model"
	"github.com/life4/genesis/slices"
)

const dataPreviewRows = 5

var (
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	abstainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

// PrintTestDetails prints a per-test block right after the test finishes.
// Verbose mode adds the final prompt, the raw agent response and previews
// of both result sets.
func PrintTestDetails(result model.TestResult, verbose bool) {
	fmt.Println()
	fmt.Printf("%s %s\n", statusLabel(result), titleStyle.Render(result.Name))
	fmt.Printf("  time: %.1fs  tokens: %d  bytes: %s\n",
		result.TimeSeconds, result.TotalTokens, FormatBytes(result.BytesProcessed))

	if result.Error != "" {
		fmt.Printf("  %s %s\n", failStyle.Render("error:"), result.Error)
	}
	if result.AgentSQL != "" {
		fmt.Printf("  agent sql: %s\n", dimStyle.Render(result.AgentSQL))
	}

	if !verbose {
		return
	}

	if result.FinalPrompt != "" {
		fmt.Printf("  final prompt:\n%s\n", indent(result.FinalPrompt, "    "))
	}
	if result.AgentResponse != "" {
		fmt.Printf("  agent response:\n%s\n", indent(result.AgentResponse, "    "))
	}
	if result.ExpectedData != nil {
		fmt.Printf("  expected data:\n%s\n", indent(formatRows(result.ExpectedData), "    "))
	}
	if result.ActualData != nil {
		fmt.Printf("  actual data:\n%s\n", indent(formatRows(result.ActualData), "    "))
	}
}

// PrintResultsTable prints one row per test. The bytes column appears when
// the configured backend tracks bytes scanned, or when any result carries a
// byte count anyway.
func PrintResultsTable(results []model.TestResult, tracksBytes bool) {
	showBytes := showBytesColumn(results, tracksBytes)

	headers := []string{"Test", "Status", "Time", "Tokens"}
	if showBytes {
		headers = append(headers, "Bytes")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)

	for _, r := range results {
		row := []string{
			r.Name,
			statusLabel(r),
			fmt.Sprintf("%.1fs", r.TimeSeconds),
			fmt.Sprintf("%d", r.TotalTokens),
		}
		if showBytes {
			row = append(row, FormatBytes(r.BytesProcessed))
		}
		t.Row(row...)
	}

	fmt.Println()
	fmt.Println(t)
}

func showBytesColumn(results []model.TestResult, tracksBytes bool) bool {
	if tracksBytes {
		return true
	}
	for _, r := range results {
		if r.BytesProcessed > 0 {
			return true
		}
	}
	return false
}

// PrintSummary prints aggregate counts and an error digest for failed tests.
func PrintSummary(results []model.TestResult) {
	passed := len(slices.Filter(results, func(r model.TestResult) bool { return r.IsCorrect }))
	answered := len(slices.Filter(results, func(r model.TestResult) bool {
		return r.HasAnswer != nil && *r.HasAnswer
	}))

	totalTokens := 0
	totalTime := 0.0
	var totalBytes int64
	for _, r := range results {
		totalTokens += r.TotalTokens
		totalTime += r.TimeSeconds
		totalBytes += r.BytesProcessed
	}

	passRate := 0.0
	avgTime := 0.0
	avgTokens := 0
	if len(results) > 0 {
		passRate = float64(passed) / float64(len(results)) * 100
		avgTime = totalTime / float64(len(results))
		avgTokens = totalTokens / len(results)
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Summary"))
	fmt.Printf("  %d/%d passed (%.0f%%)  answered: %d/%d\n",
		passed, len(results), passRate, answered, len(results))
	fmt.Printf("  time: %.1fs (avg %.1fs)  tokens: %d (avg %d)  bytes: %s\n",
		totalTime, avgTime, totalTokens, avgTokens, FormatBytes(totalBytes))

	for _, line := range errorDigest(results) {
		fmt.Printf("  %s\n", line)
	}
}

// errorDigest lists every result that carries an error, including tests
// that still passed, e.g. an expected-SQL failure on an abstention test.
func errorDigest(results []model.TestResult) []string {
	var lines []string
	for _, r := range results {
		if r.Error == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", failStyle.Render("✗"), r.Name, r.Error))
	}
	return lines
}

func statusLabel(r model.TestResult) string {
	if r.IsCorrect {
		if r.HasAnswer == nil {
			return abstainStyle.Render("PASS (no answer)")
		}
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// FormatBytes renders a byte count in the largest fitting unit. Backends
// that do not track bytes scanned report zero, shown as N/A.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "N/A"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", value, units[unit])
}

// formatRows renders up to dataPreviewRows rows of a result set.
func formatRows(rows []model.Row) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	var b strings.Builder
	for i, row := range rows {
		if i >= dataPreviewRows {
			fmt.Fprintf(&b, "... %d more rows\n", len(rows)-dataPreviewRows)
			break
		}
		fmt.Fprintf(&b, "%v\n", row)
	}
	return strings.TrimRight(b.String(), "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
