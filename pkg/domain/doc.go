/*
Package domain contains the core domain models of the onestep executor.

It defines the execution state, the messages a step produces, the delta merged back into
the state, and the lifecycle of a single step. This package is kept pure and free of
I/O or persistence concerns.

# Key Entities

  - State: the snapshot of a run (task identifier and ordered message history).
  - Message: one produced utterance, tagged with its author role.
  - Delta: the incremental output of a step, merged into State by append.
  - StepRecord: the lifecycle of one step invocation (pending, running, completed, failed).
*/
package domain
