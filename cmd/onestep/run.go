package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/cli"
	"github.com/aretw0/onestep/internal/presentation/tui"
)

var runOpts cli.RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Invoke one step for a run key",
	Long: `Loads the checkpoint of --run (or starts a new run), applies --task-id and --message,
validates the configuration and runs the selected step once.

Configuration is read from --config (YAML or JSON) and overridden by --set key=value.`,
	Example: `  onestep run --run demo --task-id 42 --set model_name=claude-3-7-sonnet@20250219
  onestep run --run demo --step noop --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		logger := globals.Logger()
		eng, backend, err := cli.NewEngine(sigCtx, globals, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		out := cmd.OutOrStdout()
		var render tui.Renderer = tui.Plain
		if !runOpts.JSON && cli.IsTerminal(os.Stdout) {
			tui.PrintBanner(out, onestep.Version)
			if r, err := tui.NewRenderer(); err == nil {
				render = r
			} else {
				logger.Warn("Falling back to plain output", "err", err)
			}
		}
		return cli.Run(sigCtx, eng, runOpts, out, render)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runOpts.RunKey, "run", "r", "", "Run key to resume (a new one is generated if empty)")
	f.StringVar(&runOpts.TaskID, "task-id", "", "Task identifier set on the state")
	f.StringVarP(&runOpts.ConfigPath, "config", "c", "", "Configuration file (YAML or JSON)")
	f.StringArrayVar(&runOpts.Sets, "set", nil, "Override a configuration key (key=value, repeatable)")
	f.StringVar(&runOpts.Step, "step", "", "Step to run (default from config, else validate)")
	f.StringArrayVarP(&runOpts.Messages, "message", "m", nil, "Human message appended before the step (repeatable)")
	f.BoolVar(&runOpts.JSON, "json", false, "Print the result as JSON")
}
