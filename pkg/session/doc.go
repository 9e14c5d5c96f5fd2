/*
Package session coordinates access to checkpoints by run key.

Invocations on the same run key are serialised with an in-process mutex, and
optionally across replicas with a ports.Locker such as the redis adapter's Locker.
Distinct run keys never block each other.
*/
package session
