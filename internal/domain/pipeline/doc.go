/*
Package pipeline runs a filter across a group of ranks.

An Orchestrator takes one rank through one run:

	Idle -> Loaded -> MetadataBroadcast -> Partitioned -> Scattered
	     -> Computed -> Gathered -> Persisted

Loaded is only entered on the coordinator. Any rank may end in Aborted
instead. The coordinator does all validation before broadcasting its
success flag; once pixel data has moved, a failure is fatal for the group.

A Session repeats runs over the same group for a batch of jobs and a
Report summarises them as JSON.
*/
package pipeline
