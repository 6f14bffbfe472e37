// Package broker defines the hub's pub/sub fabric abstraction
// (spec.md section 6): a topic-addressed, QoS-aware, retain-capable
// Client interface, an in-memory implementation for tests and local runs,
// and a reconnect Manager (adapted from the teacher's connection-lifecycle
// package) that drives automatic reconnection with jittered exponential
// backoff. The broker itself — an MQTT-class message bus — is out of
// scope per spec.md section 1; this package only talks to it through the
// Client interface, per design note 9.
package broker
