/*
Package onestep runs a single configurable step against a checkpointed conversation state.

Each invocation names a run key. The engine loads the checkpoint for that key (or starts
from an empty state), validates the run configuration against the schema of the selected
step, executes the step once and appends the messages it produced. The new state is saved
only when the step succeeds, so a failed invocation never changes what is stored.

# Steps

Two steps ship in the default registry:

  - "validate" re-validates its configuration and answers "Success: <task_id>". It needs
    a task identifier on the state and a model_name in the configuration.
  - "noop" waits a fixed delay and answers "hello world!", whatever the input.

# Usage

	eng, err := onestep.New(onestep.WithStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{
		"model_name": "claude-3-7-sonnet@20250219",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.State.Messages[0].Content) // Success: 42

Checkpoints can live in memory, on disk, in Redis, SQLite or DynamoDB; see the packages
under pkg/adapters. Stores may be wrapped with pkg/persistence/middleware for encryption.
*/
package onestep
