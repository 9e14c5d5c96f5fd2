/*
Package step defines the single unit of work executed by the engine.

A Step consumes the current state and a validated configuration and returns a
domain.Delta with the messages it produced. Steps never merge the delta themselves.

Two steps are provided:

  - Validating ("validate"): re-validates its configuration and answers "Success: <task_id>".
  - Noop ("noop"): waits a fixed delay and answers "hello world!".

Steps are registered by name in a Registry so the variant can be selected from the
"step" configuration option.
*/
package step
