// Package model defines the Edge Hub Controller's data model: the Hub and
// Node types described in spec.md section 3, and the JSON wire payloads
// published to and consumed from the pub/sub fabric (section 6).
package model
