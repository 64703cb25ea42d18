package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/getnao/nao-cli/agent"
	"github.com/getnao/nao-cli/config"
	"github.com/getnao/nao-cli/logger"
	"github.com/getnao/nao-cli/model"
	"github.com/getnao/nao-cli/report"
	"github.com/getnao/nao-cli/server"
	"github.com/life4/genesis/slices"
)

// Options controls a test run.
type Options struct {
	Select     []string
	ReportPath string
	Verbose    bool
}

// Run loads the project, brings up the server pair, evaluates every
// selected test case sequentially and prints the report. A failing test
// is a reported result, not an error: Run only errors when the run itself
// cannot proceed.
func Run(projectFolder string, opts Options) error {
	cfg, err := config.Load(projectFolder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no %s found in %s, run 'nao init' to create a project", config.ConfigFileName, projectFolder)
		}
		return err
	}

	testCases, err := model.LoadTestCases(filepath.Join(projectFolder, "tests"), cfg.Variables)
	if err != nil {
		return fmt.Errorf("failed to load test cases: %w", err)
	}
	if len(testCases) == 0 {
		return fmt.Errorf("no test cases found in %s", filepath.Join(projectFolder, "tests"))
	}

	if len(opts.Select) > 0 {
		selected := slices.Filter(testCases, func(tc model.TestCase) bool {
			return slices.Contains(opts.Select, tc.Name)
		})
		if len(selected) == 0 {
			available := slices.Map(testCases, func(tc model.TestCase) string { return tc.Name })
			return fmt.Errorf("no test cases match %v, available: %s", opts.Select, strings.Join(available, ", "))
		}
		testCases = selected
	}

	manager := server.NewManager(cfg, projectFolder)
	if err := manager.Start(); err != nil {
		return fmt.Errorf("failed to start servers: %w", err)
	}
	defer manager.Stop()

	var databaseID string
	tracksBytes := false
	if db := cfg.DefaultDatabase(); db != nil {
		databaseID = db.DatabaseID
		if backend, ok := config.BackendFor(db.Type); ok {
			tracksBytes = backend.TracksBytesScanned()
		}
	}

	evaluator := &Evaluator{
		Agent:         agent.NewClient(fmt.Sprintf("http://localhost:%d", server.ChatServerPort)),
		SQL:           server.NewSQLClient(fmt.Sprintf("http://localhost:%d", server.ExecServerPort)),
		ProjectFolder: projectFolder,
		DatabaseID:    databaseID,
	}

	// An interrupt stops the run between tests; the in-flight test is
	// allowed to finish so server teardown always runs through the defer.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results := make([]model.TestResult, 0, len(testCases))
	for i, tc := range testCases {
		if ctx.Err() != nil {
			logger.Logger.Warn("interrupted, skipping remaining tests", "remaining", len(testCases)-i)
			break
		}
		logger.Logger.Info("running test", "name", tc.Name, "progress", fmt.Sprintf("%d/%d", i+1, len(testCases)))
		result := evaluator.RunTest(context.Background(), tc)
		results = append(results, result)
		report.PrintTestDetails(result, opts.Verbose)
	}

	report.PrintResultsTable(results, tracksBytes)
	report.PrintSummary(results)

	if opts.ReportPath != "" {
		if err := report.WriteHTMLReport(results, opts.ReportPath); err != nil {
			logger.Logger.Error("failed to write HTML report", "path", opts.ReportPath, "error", err)
		} else {
			logger.Logger.Info("HTML report written", "path", opts.ReportPath)
		}
	}

	return nil
}
