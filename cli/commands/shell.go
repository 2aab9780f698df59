package commands

import (
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chainq-dev/chainq/query"
	"github.com/chainq-dev/chainq/runtime"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive query shell",
	Long: `Open an interactive shell that compiles and runs one chain
expression per line against the configured database. Type exit or press
ctrl-c to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		session, err := runtime.OpenSession(cfg, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		color.Cyan("chainq shell, provider %s", cfg.Provider)
		for {
			var line string
			prompt := &survey.Input{Message: "chainq›"}
			if err := survey.AskOne(prompt, &line); err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					return nil
				}
				return err
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			result, err := query.Run(cmd.Context(), line, query.WithSession(session))
			if err != nil {
				color.Red("✗ %v", err)
				continue
			}
			if err := renderResult(result); err != nil {
				color.Red("✗ %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
