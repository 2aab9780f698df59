package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chainq-dev/chainq/cli/internal/watch"
	"github.com/chainq-dev/chainq/query"
)

var (
	runFile   string
	runWatch  bool
	runParams string
)

var runCmd = &cobra.Command{
	Use:   "run [expression]",
	Short: "Compile and execute a chain expression",
	Long: `Compile a chain expression and execute it against the configured
database. The expression is given inline or read from a file with --file;
--watch re-runs the file whenever it changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		params, err := parseParams(runParams)
		if err != nil {
			return err
		}

		if runFile == "" {
			if len(args) == 0 {
				return fmt.Errorf("an expression or --file is required")
			}
			return runExpression(cmd.Context(), args[0], params)
		}

		run := func() error {
			source, err := os.ReadFile(runFile)
			if err != nil {
				return err
			}
			return runExpression(cmd.Context(), strings.TrimSpace(string(source)), params)
		}
		if !runWatch {
			return run()
		}
		return watchAndRun(run)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "read the expression from a file")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "re-run when the file changes")
	runCmd.Flags().StringVarP(&runParams, "params", "p", "", "pinned parameter values as JSON")
	rootCmd.AddCommand(runCmd)
}

func runExpression(ctx context.Context, source string, params map[string]interface{}) error {
	result, err := query.Run(ctx, source, query.WithParams(params))
	if err != nil {
		return err
	}
	return renderResult(result)
}

// watchAndRun runs once, then re-runs on every change until interrupted.
// A failed run is reported but keeps the watch alive.
func watchAndRun(run func() error) error {
	w, err := watch.New(runFile, func() {
		if err := run(); err != nil {
			color.Red("✗ %v", err)
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := run(); err != nil {
		color.Red("✗ %v", err)
	}
	color.Cyan("watching %s, press ctrl-c to stop", runFile)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}

func parseParams(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	params := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid --params JSON: %w", err)
	}
	return params, nil
}
