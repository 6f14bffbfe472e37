// Package log implements the hub's structured protocol/audit event
// stream: a CBOR-encoded record of every state transition, DLM pass, and
// publish, independent of process-level operational logging (zerolog).
// Adapted from the teacher's event log package, retargeted from MASH wire
// events to Edge Hub Controller events.
package log
