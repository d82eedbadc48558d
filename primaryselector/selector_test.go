package primaryselector_test

import (
	"testing"

	"github.com/sovrin-labs/bft-core/blsbft"
	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/ledgersummary"
	"github.com/sovrin-labs/bft-core/primaryselector"
	"github.com/sovrin-labs/bft-core/replica"
	"github.com/sovrin-labs/bft-core/wire"
)

type nopLogger struct{}

func (nopLogger) Trace(string, commontypes.LogFields) {}
func (nopLogger) Debug(string, commontypes.LogFields) {}
func (nopLogger) Info(string, commontypes.LogFields)  {}
func (nopLogger) Warn(string, commontypes.LogFields)  {}
func (nopLogger) Error(string, commontypes.LogFields) {}

type fakeLedgerRegistry struct{ ledgers []ledgersummary.Info }

func (r fakeLedgerRegistry) Ledgers() []ledgersummary.Info { return r.ledgers }

type fakeNode struct {
	self         commontypes.NodeName
	names        []commontypes.NodeName
	synced       bool
	catchups     int
	participated int
	selections   []commontypes.InstanceID
	broadcasts   []wire.ViewChangeDone
}

func (n *fakeNode) TotalNodes() int                             { return len(n.names) }
func (n *fakeNode) Name() commontypes.NodeName                  { return n.self }
func (n *fakeNode) IsSynced() bool                               { return n.synced }
func (n *fakeNode) GetNameByRank(rank int) commontypes.NodeName  { return n.names[rank] }
func (n *fakeNode) StartCatchup()                                { n.catchups++ }
func (n *fakeNode) StartParticipating()                          { n.participated++ }
func (n *fakeNode) PrimarySelected(instanceID commontypes.InstanceID) {
	n.selections = append(n.selections, instanceID)
}
func (n *fakeNode) Broadcast(msg wire.ViewChangeDone) { n.broadcasts = append(n.broadcasts, msg) }

func newFourNodeSelector(t *testing.T, self commontypes.NodeName, numInstances int) (*primaryselector.Selector, *fakeNode, *replica.Collection) {
	t.Helper()
	node := &fakeNode{
		self:   self,
		names:  []commontypes.NodeName{"A", "B", "C", "D"},
		synced: true,
	}
	factory := func(instanceID commontypes.InstanceID, name commontypes.ReplicaName, bls blsbft.BlsBft) replica.Replica {
		return replica.NewBaseReplica(instanceID, name, bls)
	}
	replicas := replica.NewCollection(self, factory, blsbft.KindNone, nil, nopLogger{})
	for i := 0; i < numInstances; i++ {
		if _, err := replicas.Grow(); err != nil {
			t.Fatalf("grow: %v", err)
		}
	}
	registry := fakeLedgerRegistry{ledgers: []ledgersummary.Info{{LedgerID: 1, Size: 10, RootHash: []byte("root")}}}
	ledgers := ledgersummary.NewProvider(registry)
	sel := primaryselector.NewSelector(node, commontypes.PoolConfig{N: 4}, replicas, ledgers, nopLogger{})
	return sel, node, replicas
}

func summary() ledgersummary.Summary {
	return ledgersummary.Summary{{LedgerID: 1, Size: 10, RootHash: []byte("root")}}
}

func TestRoundRobinPrimarySelectionReachesQuorumAndAssignsEveryInstance(t *testing.T) {
	sel, node, replicas := newFourNodeSelector(t, "A", 4)

	vote := func(sender commontypes.NodeName) {
		sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 0, Name: "A", LedgerInfo: summary()}, sender)
	}
	vote("A")
	if replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected no primaries before quorum")
	}
	vote("B")
	if replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected no primaries before quorum (2/4 votes, quorum is 3)")
	}
	vote("C")
	if !replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected every instance to have a primary once quorum (3/4) reached")
	}

	if got := replicas.Replica(0).PrimaryName(); got != commontypes.ReplicaNameFor("A", 0) {
		t.Fatalf("instance 0 primary = %s, want A:0", got)
	}
	if got := replicas.Replica(1).PrimaryName(); got != commontypes.ReplicaNameFor("B", 1) {
		t.Fatalf("instance 1 primary = %s, want B:1", got)
	}
	if node.participated != 1 {
		t.Fatalf("expected StartParticipating called exactly once, got %d", node.participated)
	}
	if sel.PreviousMasterPrimary() != "" {
		t.Fatalf("expected previousMasterPrimary cleared once master selection completed")
	}
}

func TestProcessViewChangeDoneRejectsStaleView(t *testing.T) {
	sel, _, _ := newFourNodeSelector(t, "A", 1)
	sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 7, Name: "A", LedgerInfo: summary()}, "B")
	if sel.VoteCount() != 0 {
		t.Fatalf("expected a foreign-view ViewChangeDone to be dropped, got vote count %d", sel.VoteCount())
	}
}

func TestProcessViewChangeDoneVetoesPreviousMasterPrimary(t *testing.T) {
	sel, _, replicas := newFourNodeSelector(t, "A", 4)
	// Force a previous master primary by completing one selection round for
	// "D" (expected primary at view 1, instance 0: (1+0)%4 -> B actually;
	// use a vote sequence that elects some primary first, then start a new
	// view and confirm that same node cannot be re-proposed.
	vote := func(sender, proposed commontypes.NodeName, view commontypes.ViewNo) {
		sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: view, Name: proposed, LedgerInfo: summary()}, sender)
	}
	vote("A", "A", 0)
	vote("B", "A", 0)
	vote("C", "A", 0)
	if !replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected view 0 selection to complete")
	}

	sel.ViewChangeStarted(1)
	if sel.PreviousMasterPrimary() != "A" {
		t.Fatalf("expected previousMasterPrimary to be A after view 0 elected A, got %q", sel.PreviousMasterPrimary())
	}

	sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 1, Name: "A", LedgerInfo: summary()}, "B")
	if sel.VoteCount() != 0 {
		t.Fatalf("expected a vote re-proposing the vetoed previous master primary to be dropped")
	}
}

func TestViewChangeStartedResetsVotesButNotPreviousMasterPrimary(t *testing.T) {
	sel, _, _ := newFourNodeSelector(t, "A", 1)
	sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 0, Name: "A", LedgerInfo: summary()}, "B")
	if sel.VoteCount() != 1 {
		t.Fatalf("expected 1 tracked vote before reset")
	}
	sel.ViewChangeStarted(2)
	if sel.VoteCount() != 0 {
		t.Fatalf("expected votes cleared after ViewChangeStarted, got %d", sel.VoteCount())
	}
	if sel.ViewNo() != 2 {
		t.Fatalf("expected view number updated to 2, got %d", sel.ViewNo())
	}
}

func TestProcessCurrentStateLetsLateJoinerAcceptWithoutVoting(t *testing.T) {
	sel, _, replicas := newFourNodeSelector(t, "D", 4)

	msg := wire.CurrentState{ViewNo: 5, Primary: []wire.ViewChangeDone{
		{ViewNo: 5, Name: "C", LedgerInfo: summary()},
	}}
	sel.ProcessCurrentState(msg, "X")
	if replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected no decision from a single CurrentState (quorum for N=4 is 2)")
	}
	sel.ProcessCurrentState(msg, "Y")
	if !replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected CurrentState quorum (2/4) to decide every instance")
	}
	if sel.ViewNo() != 5 {
		t.Fatalf("expected selector to adopt view 5, got %d", sel.ViewNo())
	}
}

func TestBehindLedgerTriggersCatchupInsteadOfSelection(t *testing.T) {
	node := &fakeNode{self: "A", names: []commontypes.NodeName{"A", "B", "C", "D"}, synced: true}
	factory := func(instanceID commontypes.InstanceID, name commontypes.ReplicaName, bls blsbft.BlsBft) replica.Replica {
		return replica.NewBaseReplica(instanceID, name, bls)
	}
	replicas := replica.NewCollection("A", factory, blsbft.KindNone, nil, nopLogger{})
	for i := 0; i < 4; i++ {
		if _, err := replicas.Grow(); err != nil {
			t.Fatalf("grow: %v", err)
		}
	}
	ownBehind := fakeLedgerRegistry{ledgers: []ledgersummary.Info{{LedgerID: 1, Size: 1, RootHash: []byte("r")}}}
	ledgers := ledgersummary.NewProvider(ownBehind)
	sel := primaryselector.NewSelector(node, commontypes.PoolConfig{N: 4}, replicas, ledgers, nopLogger{})

	ahead := ledgersummary.Summary{{LedgerID: 1, Size: 99, RootHash: []byte("r")}}
	vote := func(sender commontypes.NodeName) {
		sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 0, Name: "A", LedgerInfo: ahead}, sender)
	}
	vote("A")
	vote("B")
	vote("C")

	if replicas.AllInstancesHavePrimary() {
		t.Fatalf("expected no selection while behind the accepted ledger summary")
	}
	if node.catchups == 0 {
		t.Fatalf("expected StartCatchup to be called")
	}
}

func TestGetMsgsForLaggedNodesFallsBackToOwnProposal(t *testing.T) {
	sel, _, _ := newFourNodeSelector(t, "A", 4)
	if msgs := sel.GetMsgsForLaggedNodes(); msgs != nil {
		t.Fatalf("expected nil before any vote is tracked, got %v", msgs)
	}
	sel.ProcessViewChangeDone(wire.ViewChangeDone{ViewNo: 0, Name: "C", LedgerInfo: summary()}, "A")
	msgs := sel.GetMsgsForLaggedNodes()
	if len(msgs) != 1 || msgs[0].Name != "C" {
		t.Fatalf("expected own proposal fallback for C, got %v", msgs)
	}
}

func TestDecidePrimariesBroadcastsOwnProposalOnce(t *testing.T) {
	sel, node, _ := newFourNodeSelector(t, "B", 4)
	sel.DecidePrimaries()
	sel.DecidePrimaries()
	if len(node.broadcasts) != 2 {
		// DecidePrimaries broadcasts every call while the master instance
		// still lacks a primary; only a recorded vote prevents re-sending
		// within verifyViewChange's selection math, not the broadcast
		// itself, matching the Python source calling send on every tick
		// until the master replica has a primary.
		t.Fatalf("expected a broadcast on each DecidePrimaries call while unresolved, got %d", len(node.broadcasts))
	}
}
