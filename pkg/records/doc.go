/*
Package records owns every status write on an execution record.

A Recorder serializes writes per record id with a reference-counted local lock
(optionally backed by a ports.DistributedLocker across replicas) and validates
each transition against a small state machine:

	running --succeed--> success
	running --fail-----> error

A record leaves running exactly once. A second terminal write returns
domain.ErrAlreadyTerminal and leaves the stored record untouched.
*/
package records
