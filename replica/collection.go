package replica

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/sovrin-labs/bft-core/blsbft"
	"github.com/sovrin-labs/bft-core/commontypes"
)

// OrderDrainer is implemented by a Replica that can drain only its Ordered
// outbound messages while preserving the relative order of the rest.
// BaseReplica implements it; TakeOrderedsOutOfTurn degrades to returning no
// drained messages for a Replica that doesn't.
type OrderDrainer interface {
	RemoveOrderedFromQueue() []interface{}
}

// Factory builds one Replica for instanceID, named name, with bls
// installed (which may be nil).
type Factory func(instanceID commontypes.InstanceID, name commontypes.ReplicaName, bls blsbft.BlsBft) Replica

// Collection grows and shrinks the per-instance replicas of one node,
// routes inbound messages to the right replica, and drains outbound
// messages subject to a fair per-replica budget.
//
// Unlike the Python source's Replicas, which keeps a parallel
// messages_to_replicas deque list alongside _replicas (an invariant the
// spec calls out explicitly: |replicas| == |messagesToReplicas| at all
// times), each Replica here owns its own inbox/outbox. The invariant holds
// by construction instead of needing to be maintained across two slices.
type Collection struct {
	nodeName commontypes.NodeName
	replicas []Replica
	factory  Factory
	blsKind  blsbft.Kind
	keyStore blsbft.KeyStore
	logger   commontypes.Logger
}

// NewCollection constructs an empty collection for nodeName. factory
// builds the concrete Replica implementation; blsKind/keyStore parameterize
// the BLS helper created on every Grow.
func NewCollection(nodeName commontypes.NodeName, factory Factory, blsKind blsbft.Kind, keyStore blsbft.KeyStore, logger commontypes.Logger) *Collection {
	return &Collection{
		nodeName: nodeName,
		factory:  factory,
		blsKind:  blsKind,
		keyStore: keyStore,
		logger:   logger,
	}
}

// Grow appends a replica at the next instance index; the first replica
// created is the master. Returns the new replica count.
//
// On "BLS keys missing" the collection logs a warning and installs a nil
// BLS helper (spec.md §4.5, §7 category 6); any other BLS construction
// failure is not recoverable here and is returned to the caller.
func (c *Collection) Grow() (int, error) {
	instanceID := commontypes.InstanceID(len(c.replicas))
	name := commontypes.ReplicaNameFor(c.nodeName, instanceID)
	isMaster := instanceID == commontypes.MasterInstance

	bls, err := blsbft.CreateBlsBft(c.blsKind, c.keyStore, c.nodeName, isMaster)
	if err != nil {
		if errors.Is(err, blsbft.ErrMissingKeys) {
			c.logger.Warn("BLS keys missing, replica will run without BLS", commontypes.LogFields{
				"node":     c.nodeName,
				"instance": instanceID,
			})
			bls = nil
		} else {
			return len(c.replicas), errors.Wrap(err, "replica: failed to create BLS helper")
		}
	}

	r := c.factory(instanceID, name, bls)
	c.replicas = append(c.replicas, r)

	description := "backup"
	if isMaster {
		description = "master"
	}
	c.logger.Info("added replica", commontypes.LogFields{
		"node":        c.nodeName,
		"instance":    instanceID,
		"description": description,
	})
	return len(c.replicas), nil
}

// Shrink removes the tail replica; order is preserved. Returns the new
// count. Precondition: at least one replica exists.
func (c *Collection) Shrink() (int, error) {
	if len(c.replicas) == 0 {
		return 0, errors.New("replica: cannot shrink an empty collection")
	}
	last := c.replicas[len(c.replicas)-1]
	c.replicas = c.replicas[:len(c.replicas)-1]

	var closeErr error
	if bls := last.BlsBft(); bls != nil {
		closeErr = bls.Close()
	}
	c.logger.Info("removed replica", commontypes.LogFields{
		"node":     c.nodeName,
		"instance": last.InstanceID(),
	})
	return len(c.replicas), closeErr
}

// NumReplicas returns the current replica count.
func (c *Collection) NumReplicas() int { return len(c.replicas) }

// Replica returns the replica at instanceID.
func (c *Collection) Replica(instanceID commontypes.InstanceID) Replica {
	return c.replicas[instanceID]
}

// All returns the replicas in instance order. Callers must not mutate the
// returned slice.
func (c *Collection) All() []Replica { return c.replicas }

// PassMessage enqueues msg to the replica at instanceID, or to every
// replica if instanceID is nil. Delivery is enqueue-only; no synchronous
// processing happens here.
func (c *Collection) PassMessage(msg interface{}, instanceID *commontypes.InstanceID) {
	if instanceID != nil {
		if int(*instanceID) < 0 || int(*instanceID) >= len(c.replicas) {
			return
		}
		c.replicas[*instanceID].Enqueue(msg)
		return
	}
	for _, r := range c.replicas {
		r.Enqueue(msg)
	}
}

// ServiceInboxes advances each replica by up to limit inbound messages (or
// unboundedly if limit is nil) and returns the number actually processed.
// Unlike GetOutput, the limit is not divided across replicas — it is
// passed through to each replica's ServiceQueues unchanged, matching
// replicas.py's service_inboxes.
func (c *Collection) ServiceInboxes(limit *int) int {
	processed := 0
	for _, r := range c.replicas {
		processed += r.ServiceQueues(limit)
	}
	return processed
}

// GetOutput drains outbound messages across all replicas subject to a
// fair per-replica budget: perReplica = round(limit / numReplicas); if that
// rounds to zero while limit > 0, it is forcibly raised to 1 (spec.md
// §4.5). The budget is enforced with a one-shot golang.org/x/time/rate
// limiter per replica per call rather than a hand-counted loop variable.
func (c *Collection) GetOutput(limit *int) []interface{} {
	if len(c.replicas) == 0 {
		return nil
	}

	var perReplica *int
	if limit != nil {
		pr := int(roundHalfAwayFromZero(float64(*limit) / float64(len(c.replicas))))
		if pr == 0 && *limit > 0 {
			c.logger.Warn("forcibly setting replica message limit to 1", commontypes.LogFields{
				"node": c.nodeName,
			})
			pr = 1
		}
		perReplica = &pr
	}

	var out []interface{}
	for _, r := range c.replicas {
		if perReplica == nil {
			for {
				msg, ok := r.Dequeue()
				if !ok {
					break
				}
				out = append(out, msg)
			}
			continue
		}

		limiter := rate.NewLimiter(rate.Limit(0), *perReplica)
		for {
			if !limiter.AllowN(time.Now(), 1) {
				break
			}
			msg, ok := r.Dequeue()
			if !ok {
				break
			}
			out = append(out, msg)
		}
	}
	return out
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}

// DrainedInstance pairs an instance id with the Ordered messages drained
// from its outbox out of turn.
type DrainedInstance struct {
	InstanceID commontypes.InstanceID
	Ordered    []interface{}
}

// TakeOrderedsOutOfTurn yields (instanceId, [orderedMsg]) for each replica,
// draining only the Ordered messages from the outbox while preserving the
// relative order of the rest.
func (c *Collection) TakeOrderedsOutOfTurn() []DrainedInstance {
	out := make([]DrainedInstance, 0, len(c.replicas))
	for _, r := range c.replicas {
		var drained []interface{}
		if drainer, ok := r.(OrderDrainer); ok {
			drained = drainer.RemoveOrderedFromQueue()
		}
		out = append(out, DrainedInstance{InstanceID: r.InstanceID(), Ordered: drained})
	}
	return out
}

// RegisterNewLedger broadcasts a newly registered ledger id to every
// replica.
func (c *Collection) RegisterNewLedger(ledgerID int) {
	for _, r := range c.replicas {
		r.RegisterLedger(ledgerID)
	}
}

// SomeReplicaHasPrimary returns the instance id of any replica flagged
// primary, and true, or (0, false) if none is.
func (c *Collection) SomeReplicaHasPrimary() (commontypes.InstanceID, bool) {
	for _, r := range c.replicas {
		if p := r.IsPrimary(); p != nil && *p {
			return r.InstanceID(), true
		}
	}
	return 0, false
}

// MasterReplicaIsPrimary reports IsPrimary for the master replica (instance
// 0), or false if the collection has no replicas yet.
func (c *Collection) MasterReplicaIsPrimary() bool {
	if len(c.replicas) == 0 {
		return false
	}
	p := c.replicas[commontypes.MasterInstance].IsPrimary()
	return p != nil && *p
}

// AllInstancesHavePrimary returns true only when every replica has a
// non-empty primary name. Vacuously true over zero replicas, matching
// replicas.py's all_instances_have_primary (all([]) == True).
func (c *Collection) AllInstancesHavePrimary() bool {
	for _, r := range c.replicas {
		if r.PrimaryName() == "" {
			return false
		}
	}
	return true
}

// CloseAll releases every replica's BLS helper, aggregating any errors.
func (c *Collection) CloseAll() error {
	var errs error
	for _, r := range c.replicas {
		if bls := r.BlsBft(); bls != nil {
			if err := bls.Close(); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}
