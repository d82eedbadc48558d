// Package replica implements the unit of protocol participation inside a
// node — one per instance — and the Collection that grows, shrinks, and
// fans messages out to them.
//
// Grounded on original_source/plenum/server/replicas.py.
package replica

import (
	"github.com/sovrin-labs/bft-core/blsbft"
	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/preprepare"
)

// Replica is the capability surface the collection and the primary
// selector drive. A concrete implementation additionally owns the 3PC
// protocol state machine (Prepare/Commit handling); this package only
// depends on the narrow surface below.
type Replica interface {
	// InstanceID is this replica's instance index; 0 is the master.
	InstanceID() commontypes.InstanceID
	// IsPrimary reports whether this replica believes itself the primary
	// of its instance, or nil if no primary has been decided yet.
	IsPrimary() *bool
	// PrimaryName is the name of the replica currently believed to be
	// primary, or "" if undecided.
	PrimaryName() commontypes.ReplicaName
	// PrimaryChanged is invoked by the primary selector once a primary has
	// been decided for this replica's instance and view.
	PrimaryChanged(name commontypes.ReplicaName)
	// RegisterLedger notifies the replica of a newly registered ledger id.
	RegisterLedger(ledgerID int)
	// ServiceQueues advances the replica by up to limit inbound messages
	// (or unboundedly if limit is nil) and returns the number processed.
	ServiceQueues(limit *int) int
	// Enqueue appends an inbound message to this replica's inbox.
	Enqueue(msg interface{})
	// Dequeue pops and returns the oldest outbound message, and true, or
	// (nil, false) if the outbox is empty.
	Dequeue() (interface{}, bool)
	// PrePrepares is this replica's PrePrepare Registry.
	PrePrepares() *preprepare.Registry
	// BlsBft is the BLS helper installed for this replica, or nil.
	BlsBft() blsbft.BlsBft
}

// Ordered is the subset of outbound message kinds takeOrderedsOutOfTurn
// drains preferentially; a concrete message type implements it by
// reporting true.
type Ordered interface {
	IsOrdered() bool
}
