package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep/internal/cli"
)

var checkpointCmd = &cobra.Command{
	Use:     "checkpoint",
	Aliases: []string{"cp"},
	Short:   "Inspect and remove stored checkpoints",
}

var checkpointLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List run keys with a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := cli.OpenStore(cmd.Context(), globals.Store)
		if err != nil {
			return err
		}
		defer backend.Close()

		keys, err := backend.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing checkpoints: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, "No checkpoints found.")
			return nil
		}
		for _, k := range keys {
			fmt.Fprintln(out, "- "+k)
		}
		return nil
	},
}

var checkpointInspectCmd = &cobra.Command{
	Use:   "inspect <run-key>",
	Short: "Print the checkpointed state of a run key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := cli.OpenStore(cmd.Context(), globals.Store)
		if err != nil {
			return err
		}
		defer backend.Close()

		state, err := backend.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading checkpoint '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var rmAll bool

var checkpointRmCmd = &cobra.Command{
	Use:   "rm <run-key>...",
	Short: "Remove one or more checkpoints",
	Args: func(cmd *cobra.Command, args []string) error {
		if rmAll {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := cli.OpenStore(cmd.Context(), globals.Store)
		if err != nil {
			return err
		}
		defer backend.Close()

		if rmAll {
			if args, err = backend.Store.List(cmd.Context()); err != nil {
				return fmt.Errorf("error listing checkpoints: %w", err)
			}
		}

		var failed int
		out := cmd.OutOrStdout()
		for _, key := range args {
			if err := backend.Store.Delete(cmd.Context(), key); err != nil {
				fmt.Fprintf(out, "Error removing '%s': %v\n", key, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "Removed checkpoint '%s'\n", key)
		}
		if failed > 0 {
			return fmt.Errorf("%d checkpoint(s) could not be removed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointLsCmd, checkpointInspectCmd, checkpointRmCmd)
	checkpointRmCmd.Flags().BoolVar(&rmAll, "all", false, "Remove every checkpoint in the store")
}
