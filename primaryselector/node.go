package primaryselector

import (
	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/wire"
)

// Node is the narrow capability interface the Selector is handed at
// construction. Per spec.md's Design Notes, the core needs only this slice
// of the host node — not a cyclic reference to the full node object the
// Python source holds.
type Node interface {
	// TotalNodes is the configured pool size N.
	TotalNodes() int
	// Name is this node's own identity.
	Name() commontypes.NodeName
	// IsSynced reports whether this node is caught up with the ledger
	// state the rest of the pool has accepted.
	IsSynced() bool
	// GetNameByRank resolves a round-robin rank (0..N-1) to a node name.
	GetNameByRank(rank int) commontypes.NodeName
	// StartCatchup requests the host node begin catching up; non-blocking,
	// the selector does not await completion.
	StartCatchup()
	// StartParticipating tells the host node to enter the participating
	// mode, e.g. once the master primary has been selected.
	StartParticipating()
	// PrimarySelected notifies the host node that instanceID now has a
	// primary.
	PrimarySelected(instanceID commontypes.InstanceID)
	// Broadcast sends msg to every other node in the pool.
	Broadcast(msg wire.ViewChangeDone)
}
