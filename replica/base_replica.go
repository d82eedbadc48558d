package replica

import (
	"container/list"

	"github.com/sovrin-labs/bft-core/blsbft"
	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/preprepare"
)

// BaseReplica is the default Replica implementation: a FIFO inbox/outbox
// pair plus a PrePrepare registry and an optional BLS helper, matching the
// fields the Python Replica class exposes (inBox, outBox, the 3PC
// registry, primaryName/isPrimary).
type BaseReplica struct {
	instanceID commontypes.InstanceID
	name       commontypes.ReplicaName
	isPrimary  *bool
	primary    commontypes.ReplicaName
	ledgers    []int

	inbox  *list.List
	outbox *list.List

	preprepares *preprepare.Registry
	bls         blsbft.BlsBft
}

// NewBaseReplica constructs a replica for instanceID with bls installed (or
// nil — BLS is optional). name is this replica's own identity, used only to
// tell whether an announced primary is itself.
func NewBaseReplica(instanceID commontypes.InstanceID, name commontypes.ReplicaName, bls blsbft.BlsBft) *BaseReplica {
	return &BaseReplica{
		instanceID:  instanceID,
		name:        name,
		inbox:       list.New(),
		outbox:      list.New(),
		preprepares: preprepare.New(),
		bls:         bls,
	}
}

func (r *BaseReplica) InstanceID() commontypes.InstanceID   { return r.instanceID }
func (r *BaseReplica) IsPrimary() *bool                     { return r.isPrimary }
func (r *BaseReplica) PrimaryName() commontypes.ReplicaName { return r.primary }

// PrimaryChanged records the decided primary for this replica's instance
// and derives whether this replica itself became primary by comparing
// against its own name.
func (r *BaseReplica) PrimaryChanged(name commontypes.ReplicaName) {
	r.primary = name
	primary := r.name == name
	r.isPrimary = &primary
}

func (r *BaseReplica) RegisterLedger(ledgerID int) {
	r.ledgers = append(r.ledgers, ledgerID)
}

func (r *BaseReplica) ServiceQueues(limit *int) int {
	processed := 0
	for r.inbox.Len() > 0 {
		if limit != nil && processed >= *limit {
			break
		}
		front := r.inbox.Front()
		r.inbox.Remove(front)
		r.handle(front.Value)
		processed++
	}
	return processed
}

// handle is a placeholder for the 3PC message-processing logic (Prepare,
// Commit, Checkpoint handling) that is out of scope for this spec beyond
// what PrePrepares/BlsBft expose; a full replica implementation overrides
// dispatch by embedding BaseReplica and shadowing ServiceQueues. Every
// processed message is forwarded to the outbox; Ordered messages are
// additionally eligible for out-of-turn draining via
// RemoveOrderedFromQueue.
func (r *BaseReplica) handle(msg interface{}) {
	r.outbox.PushBack(msg)
}

func (r *BaseReplica) Enqueue(msg interface{}) {
	r.inbox.PushBack(msg)
}

func (r *BaseReplica) Dequeue() (interface{}, bool) {
	front := r.outbox.Front()
	if front == nil {
		return nil, false
	}
	r.outbox.Remove(front)
	return front.Value, true
}

func (r *BaseReplica) PrePrepares() *preprepare.Registry { return r.preprepares }
func (r *BaseReplica) BlsBft() blsbft.BlsBft             { return r.bls }

// RemoveOrderedFromQueue drains only the Ordered messages from the outbox,
// in the order encountered, leaving every other message in its original
// relative order. Used by Collection.TakeOrderedsOutOfTurn.
func (r *BaseReplica) RemoveOrderedFromQueue() []interface{} {
	var ordered []interface{}
	var next *list.Element
	for e := r.outbox.Front(); e != nil; e = next {
		next = e.Next()
		if o, ok := e.Value.(Ordered); ok && o.IsOrdered() {
			ordered = append(ordered, e.Value)
			r.outbox.Remove(e)
		}
	}
	return ordered
}
