package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep/internal/cli"
)

var globals cli.GlobalOptions

var rootCmd = &cobra.Command{
	Use:   "onestep",
	Short: "Run a single checkpointed step",
	Long: `onestep runs one configurable step against the checkpointed state of a run key.
A failed step never changes the stored checkpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to statuses; cobra flag errors are usage errors.
func exitCode(err error) int {
	if code := cli.ExitCode(err); code != cli.ExitFailure {
		return code
	}
	if _, ok := err.(usageError); ok {
		return cli.ExitUsage
	}
	return cli.ExitFailure
}

type usageError struct{ error }

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.Store.Kind, "store", cli.StoreMemory, "Checkpoint store: memory, file, redis, sqlite or dynamodb")
	pf.StringVar(&globals.Store.Dir, "dir", "", "Directory of the file store (default .onestep/checkpoints)")
	pf.StringVar(&globals.Store.RedisAddr, "redis-addr", "localhost:6379", "Redis address")
	pf.StringVar(&globals.Store.RedisPassword, "redis-password", "", "Redis password")
	pf.StringVar(&globals.Store.RedisTTL, "redis-ttl", "", "Expire redis checkpoints after this duration (default never)")
	pf.StringVar(&globals.Store.SQLitePath, "sqlite-path", "onestep.db", "SQLite database file")
	pf.StringVar(&globals.Store.DynamoTable, "dynamo-table", "onestep-checkpoints", "DynamoDB table with a string PK")
	pf.StringVar(&globals.Store.EncryptionKey, "encryption-key", os.Getenv("ONESTEP_ENCRYPTION_KEY"), "AES-256 key (32 raw bytes or base64) to encrypt checkpoints")
	pf.StringSliceVar(&globals.Store.Redact, "redact", nil, "Regular expression masked in stored messages (repeatable)")
	pf.BoolVar(&globals.Debug, "debug", false, "Enable debug logging on stderr")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}
