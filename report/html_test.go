package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/getnao/nao-cli/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []model.TestResult {
	return []model.TestResult{
		{
			Name:        "passing_test",
			TimeSeconds: 3.2,
			TotalTokens: 900,
			IsCorrect:   true,
			HasAnswer:   model.BoolPtr(true),
			AgentSQL:    "SELECT COUNT(*) FROM orders",
			ExpectedData: []model.Row{
				{"n": 42},
			},
			ActualData: []model.Row{
				{"n": 42},
			},
			BytesProcessed: 2048,
		},
		{
			Name:        "abstaining_test",
			TimeSeconds: 1.1,
			TotalTokens: 200,
			IsCorrect:   true,
		},
		{
			Name:        "failing_test",
			TimeSeconds: 2.5,
			TotalTokens: 400,
			IsCorrect:   false,
			HasAnswer:   model.BoolPtr(true),
			Error:       "Agent SQL error: table not found",
			AgentSQL:    "SELECT * FROM nowhere",
		},
	}
}

func TestGenerateHTML(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	html, err := gen.GenerateHTML(sampleResults())
	require.NoError(t, err)

	assert.Contains(t, html, "passing_test")
	assert.Contains(t, html, "abstaining_test")
	assert.Contains(t, html, "failing_test")
	assert.Contains(t, html, "PASS (no answer)")
	assert.Contains(t, html, "Agent SQL error: table not found")
	assert.Contains(t, html, "2.00 KB")
	// SQL must be HTML-escaped, not dropped.
	assert.Contains(t, html, "SELECT COUNT(*) FROM orders")
}

func TestGenerateHTMLEmptyRun(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	html, err := gen.GenerateHTML(nil)
	require.NoError(t, err)
	assert.Contains(t, html, "nao test report")
}

func TestWriteHTMLReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteHTMLReport(sampleResults(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<!DOCTYPE html>")
}

func TestBuildReportDataSummary(t *testing.T) {
	data := buildReportData(sampleResults())

	assert.Equal(t, 3, data.Summary.Total)
	assert.Equal(t, 2, data.Summary.Passed)
	assert.Equal(t, 1, data.Summary.Failed)
	assert.InDelta(t, 66.7, data.Summary.PassRate, 0.1)
	assert.Equal(t, 1500, data.Summary.TotalTokens)
	assert.True(t, data.Summary.ShowBytes)

	require.Len(t, data.Tests, 3)
	assert.Equal(t, "PASS", data.Tests[0].StatusLabel)
	assert.Equal(t, "PASS (no answer)", data.Tests[1].StatusLabel)
	assert.Equal(t, "FAIL", data.Tests[2].StatusLabel)
}
