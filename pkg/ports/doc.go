/*
Package ports defines the driven ports (interfaces) of the onestep engine.

These interfaces decouple the executor from its storage backends and concurrency
control, so the same engine runs against memory, files, Redis, SQLite or DynamoDB.

# Key Interfaces

  - CheckpointStore: persists and loads run State keyed by run key.
  - Locker: serializes access to a run key across processes.
*/
package ports
