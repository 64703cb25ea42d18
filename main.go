package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/getnao/nao-cli/engine"
	"github.com/getnao/nao-cli/logger"
	"github.com/getnao/nao-cli/scaffold"
	"github.com/getnao/nao-cli/version"
	"github.com/spf13/cobra"
)

var (
	selectTests []string
	reportPath  string
	logPath     string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "nao",
	Short: "Project scaffolding and agent evaluation for data teams",
	Long:  "nao manages data assistant projects and evaluates the assistant's SQL answers against ground-truth test cases.",
}

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a new nao project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		return scaffold.CreateProject(abs, filepath.Base(abs))
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the project's test cases against the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		logWriter, logFile, err := logger.SetupLogWriter(logPath)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		if logFile != nil {
			defer logFile.Close()
		}
		logger.SetupLogger(logWriter, verbose)

		projectFolder, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}

		return engine.Run(projectFolder, engine.Options{
			Select:     selectTests,
			ReportPath: reportPath,
			Verbose:    verbose,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nao %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}

func init() {
	testCmd.Flags().StringSliceVarP(&selectTests, "select", "s", nil, "Run only the named test cases")
	testCmd.Flags().StringVar(&reportPath, "report", "", "Write an HTML report to this path")
	testCmd.Flags().StringVarP(&logPath, "log", "l", "", "Append logs to this file as well as stdout")
	testCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose output")

	rootCmd.AddCommand(initCmd, testCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
