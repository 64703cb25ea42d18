package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/getnao/nao-cli/model"
	"github.com/getnao/nao-cli/version"
)

//go:embed templates/*.html
var templateFS embed.FS

// ReportData is the view model passed to the HTML template.
type ReportData struct {
	Version     string
	GeneratedAt string
	Summary     SummaryData
	Tests       []TestView
}

// SummaryData holds run-level aggregates.
type SummaryData struct {
	Total       int
	Passed      int
	Failed      int
	PassRate    float64
	TotalTokens int
	TotalTime   float64
	TotalBytes  string
	ShowBytes   bool
}

// TestView is the per-test view model.
type TestView struct {
	Name          string
	Passed        bool
	StatusLabel   string
	StatusClass   string
	TimeSeconds   float64
	TotalTokens   int
	Bytes         string
	Error         string
	AgentSQL      string
	FinalPrompt   string
	AgentResponse string
	ExpectedData  []model.Row
	ActualData    []model.Row
}

// Generator renders HTML reports from embedded templates.
type Generator struct {
	tmpl *template.Template
}

// NewGenerator parses the embedded report template.
func NewGenerator() (*Generator, error) {
	tmpl, err := template.New("report.html").ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

// GenerateHTML renders the report as a self-contained HTML document.
func (g *Generator) GenerateHTML(results []model.TestResult) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, buildReportData(results)); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// WriteHTMLReport renders the results and writes them to outputPath.
func WriteHTMLReport(results []model.TestResult, outputPath string) error {
	gen, err := NewGenerator()
	if err != nil {
		return err
	}
	html, err := gen.GenerateHTML(results)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

func buildReportData(results []model.TestResult) ReportData {
	passed := 0
	totalTokens := 0
	totalTime := 0.0
	var totalBytes int64
	tests := make([]TestView, 0, len(results))

	for _, r := range results {
		if r.IsCorrect {
			passed++
		}
		totalTokens += r.TotalTokens
		totalTime += r.TimeSeconds
		totalBytes += r.BytesProcessed

		label := "FAIL"
		class := "fail"
		if r.IsCorrect {
			label = "PASS"
			class = "pass"
			if r.HasAnswer == nil {
				label = "PASS (no answer)"
			}
		}

		tests = append(tests, TestView{
			Name:          r.Name,
			Passed:        r.IsCorrect,
			StatusLabel:   label,
			StatusClass:   class,
			TimeSeconds:   r.TimeSeconds,
			TotalTokens:   r.TotalTokens,
			Bytes:         FormatBytes(r.BytesProcessed),
			Error:         r.Error,
			AgentSQL:      r.AgentSQL,
			FinalPrompt:   r.FinalPrompt,
			AgentResponse: r.AgentResponse,
			ExpectedData:  r.ExpectedData,
			ActualData:    r.ActualData,
		})
	}

	passRate := 0.0
	if len(results) > 0 {
		passRate = float64(passed) / float64(len(results)) * 100
	}

	return ReportData{
		Version:     version.Version,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Summary: SummaryData{
			Total:       len(results),
			Passed:      passed,
			Failed:      len(results) - passed,
			PassRate:    passRate,
			TotalTokens: totalTokens,
			TotalTime:   totalTime,
			TotalBytes:  FormatBytes(totalBytes),
			ShowBytes:   totalBytes > 0,
		},
		Tests: tests,
	}
}
