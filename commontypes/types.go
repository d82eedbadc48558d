// Package commontypes holds the identifiers and capability interfaces
// shared by every package in bft-core. It deliberately carries no logic.
package commontypes

import "fmt"

// NodeName is a short opaque identifier for a pool member. Equality is
// plain string equality; the core never parses it.
type NodeName string

// InstanceID indexes a protocol instance inside a node. 0 is always the
// master instance.
type InstanceID int

// MasterInstance is the instance id of the master (ordering) instance.
const MasterInstance InstanceID = 0

// ReplicaName is derived deterministically from (NodeName, InstanceID).
type ReplicaName string

// ReplicaNameFor builds the canonical name of the replica running
// instance id on node.
func ReplicaNameFor(node NodeName, id InstanceID) ReplicaName {
	return ReplicaName(fmt.Sprintf("%s:%d", node, id))
}

// ViewNo is a monotonically increasing view/epoch number.
type ViewNo uint64

// SeqNo is a monotonically increasing, per-view sequence number.
type SeqNo uint64

// PoolConfig is the one configuration surface the core reads: the size of
// the replica pool. Mirrors ReportingPluginConfig.N/.F from the teacher's
// ocr3types package, collapsed to the single field the Quorum Oracle needs
// (F is derived, never configured).
type PoolConfig struct {
	// N is the total number of nodes in the pool.
	N int
}

// LogFields are structured key/value pairs attached to a log line, in the
// shape libocr's own logger contract uses.
type LogFields map[string]interface{}

// Logger is the narrow logging capability the core depends on. Production
// code is backed by logrus (see internal/loggerlogrus); tests may use a
// no-op or recording implementation.
type Logger interface {
	Trace(msg string, fields LogFields)
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)
}
