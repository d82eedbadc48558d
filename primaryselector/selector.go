// Package primaryselector implements view-change primary selection: the
// state machine that turns a quorum of ViewChangeDone votes (or, for a
// late joiner, a quorum of CurrentState messages) into a decided primary
// per replica instance, following round-robin rotation.
//
// Grounded on original_source/plenum/server/primary_selector.py.
package primaryselector

import (
	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/ledgersummary"
	"github.com/sovrin-labs/bft-core/quorum"
	"github.com/sovrin-labs/bft-core/replica"
	"github.com/sovrin-labs/bft-core/wire"
)

// Vote is one sender's (proposedPrimary, ledgerSummary) statement for the
// current view, as carried by a ViewChangeDone message.
type Vote struct {
	ProposedPrimary commontypes.NodeName
	LedgerInfo      ledgersummary.Summary
}

func (v Vote) key() string {
	return string(v.ProposedPrimary) + "\x00" + v.LedgerInfo.Key()
}

// Selector is the per-node election state machine, one instance per node,
// shared across all of that node's replica instances.
type Selector struct {
	node       Node
	thresholds quorum.Oracle
	replicas   *replica.Collection
	ledgers    *ledgersummary.Provider
	logger     commontypes.Logger

	viewNo                commontypes.ViewNo
	previousMasterPrimary commontypes.NodeName

	viewChangeDone map[commontypes.NodeName]Vote
	voteOrder      []commontypes.NodeName

	currentStateMessages map[commontypes.ViewNo]map[commontypes.NodeName]wire.ViewChangeDone
	currentStateOrder    map[commontypes.ViewNo][]commontypes.NodeName

	acceptedViewChangeDone *Vote

	hasViewChangeFromPrimaryMemo bool
	hasAcceptableQuorumMemo      bool
	primaryVerified              bool
}

// NewSelector constructs a Selector for node, driving replicas and reading
// ledger freshness from ledgers. cfg is the pool configuration — the one
// configuration surface of the consensus core (SPEC_FULL.md §1) — and is
// the authoritative source of N for both the Quorum Oracle and this
// selector's own round-robin rank arithmetic.
func NewSelector(node Node, cfg commontypes.PoolConfig, replicas *replica.Collection, ledgers *ledgersummary.Provider, logger commontypes.Logger) *Selector {
	s := &Selector{
		node:       node,
		thresholds: quorum.NewOracle(cfg),
		replicas:   replicas,
		ledgers:    ledgers,
		logger:     logger,
	}
	s.resetElectionState()
	return s
}

func (s *Selector) resetElectionState() {
	s.viewChangeDone = make(map[commontypes.NodeName]Vote)
	s.voteOrder = nil
	s.currentStateMessages = make(map[commontypes.ViewNo]map[commontypes.NodeName]wire.ViewChangeDone)
	s.currentStateOrder = make(map[commontypes.ViewNo][]commontypes.NodeName)
	s.acceptedViewChangeDone = nil
	s.hasViewChangeFromPrimaryMemo = false
	s.hasAcceptableQuorumMemo = false
	s.primaryVerified = false
}

// ViewNo is the view this selector currently runs.
func (s *Selector) ViewNo() commontypes.ViewNo { return s.viewNo }

// VoteCount is the number of distinct senders this selector has a
// ViewChangeDone vote tracked for in the current view.
func (s *Selector) VoteCount() int { return len(s.viewChangeDone) }

// PreviousMasterPrimary is the master primary from before the view change
// in progress, used to veto its own re-election (spec.md §4.4).
func (s *Selector) PreviousMasterPrimary() commontypes.NodeName { return s.previousMasterPrimary }

// AcceptedViewChangeDone returns the vote this node has accepted as the
// quorum-backed outcome for the current view, if any.
func (s *Selector) AcceptedViewChangeDone() (Vote, bool) {
	if s.acceptedViewChangeDone == nil {
		return Vote{}, false
	}
	return *s.acceptedViewChangeDone, true
}

// ViewChangeStarted transitions the selector to view v, resetting every
// piece of per-view election state. previousMasterPrimary is deliberately
// NOT reset here: it is cleared only once a new master primary is actually
// announced (declareSelectionCompleted), so that a repeated or abandoned
// view change still vetoes the same stale primary (SPEC_FULL.md §3).
//
// A no-op if v equals the already-current view, matching the Python
// source's super().view_change_started short-circuit.
func (s *Selector) ViewChangeStarted(v commontypes.ViewNo) {
	if v == s.viewNo {
		return
	}
	s.viewNo = v
	s.resetElectionState()
}

// PrimaryRank computes the round-robin rank within [0, n) of the primary
// for (viewNo, instanceId): rank = (viewNo + instanceId) mod n. It is a
// pure function, factored out of primaryNodeName so the rotation invariant
// (§8: primaryNodeId(v, i) is primaryNodeId(v, 0) shifted by i mod N) can
// be property-tested without constructing a Selector.
func PrimaryRank(viewNo commontypes.ViewNo, instanceID commontypes.InstanceID, n int) int {
	return int((uint64(viewNo) + uint64(instanceID)) % uint64(n))
}

// primaryNodeName resolves the round-robin primary for (viewNo, instanceId).
func (s *Selector) primaryNodeName(viewNo commontypes.ViewNo, instanceID commontypes.InstanceID) commontypes.NodeName {
	rank := PrimaryRank(viewNo, instanceID, s.thresholds.N())
	return s.node.GetNameByRank(rank)
}

func (s *Selector) primaryReplicaName(viewNo commontypes.ViewNo, instanceID commontypes.InstanceID) commontypes.ReplicaName {
	return commontypes.ReplicaNameFor(s.primaryNodeName(viewNo, instanceID), instanceID)
}

// ProcessViewChangeDone handles an inbound ViewChangeDone from sender,
// following spec.md §4.4's five ordered steps.
func (s *Selector) ProcessViewChangeDone(msg wire.ViewChangeDone, sender commontypes.NodeName) {
	if msg.ViewNo != s.viewNo {
		s.logger.Warn("dropping ViewChangeDone for a foreign view", commontypes.LogFields{
			"sender": sender, "msgView": msg.ViewNo, "ourView": s.viewNo,
		})
		return
	}
	if s.previousMasterPrimary != "" && msg.Name == s.previousMasterPrimary {
		s.logger.Warn("dropping ViewChangeDone that re-proposes the previous master primary", commontypes.LogFields{
			"sender": sender, "proposed": msg.Name,
		})
		return
	}
	if s.replicas.Replica(commontypes.MasterInstance).PrimaryName() != "" {
		s.logger.Debug("master already has a primary for this view, dropping ViewChangeDone", commontypes.LogFields{
			"sender": sender,
		})
		return
	}

	s.trackViewChangeDone(sender, msg.Name, msg.LedgerInfo)
	s.startSelection()
}

func (s *Selector) trackViewChangeDone(sender commontypes.NodeName, proposedPrimary commontypes.NodeName, ledgerInfo ledgersummary.Summary) {
	if _, exists := s.viewChangeDone[sender]; !exists {
		s.voteOrder = append(s.voteOrder, sender)
	}
	s.viewChangeDone[sender] = Vote{ProposedPrimary: proposedPrimary, LedgerInfo: ledgerInfo}
}

// ProcessCurrentState handles an inbound CurrentState from sender. msg must
// already have had its Primary list decoded by wire.UnmarshalCurrentState,
// which drops individually malformed embedded entries; if none survived,
// the whole message is discarded here.
func (s *Selector) ProcessCurrentState(msg wire.CurrentState, sender commontypes.NodeName) {
	if msg.ViewNo < s.viewNo {
		s.logger.Warn("dropping CurrentState for a stale view", commontypes.LogFields{
			"sender": sender, "msgView": msg.ViewNo, "ourView": s.viewNo,
		})
		return
	}
	if len(msg.Primary) == 0 {
		s.logger.Warn("dropping CurrentState with no parseable primary entries", commontypes.LogFields{
			"sender": sender,
		})
		return
	}

	first := msg.Primary[0]
	s.trackCurrentState(msg.ViewNo, sender, first)
	s.startCurrentStateSelection(msg.ViewNo)
}

func (s *Selector) trackCurrentState(viewNo commontypes.ViewNo, sender commontypes.NodeName, vcd wire.ViewChangeDone) {
	byNode, ok := s.currentStateMessages[viewNo]
	if !ok {
		byNode = make(map[commontypes.NodeName]wire.ViewChangeDone)
		s.currentStateMessages[viewNo] = byNode
	}
	if _, exists := byNode[sender]; !exists {
		s.currentStateOrder[viewNo] = append(s.currentStateOrder[viewNo], sender)
	}
	byNode[sender] = vcd
}

// hasViewChangeQuorum reports whether enough senders have voted at all,
// regardless of agreement.
func (s *Selector) hasViewChangeQuorum() bool {
	return quorum.Reached(len(s.viewChangeDone), s.thresholds.ViewChangeDoneQuorum())
}

// hasViewChangeFromPrimary reports whether the node expected to be master
// primary this view has itself voted. Memoized: once true, it stays true
// for the life of this view.
func (s *Selector) hasViewChangeFromPrimary() bool {
	if s.hasViewChangeFromPrimaryMemo {
		return true
	}
	expected := s.primaryNodeName(s.viewNo, commontypes.MasterInstance)
	if _, ok := s.viewChangeDone[expected]; !ok {
		return false
	}
	s.hasViewChangeFromPrimaryMemo = true
	return true
}

// hasAcceptableViewChangeQuorum requires both a bare quorum of votes and a
// vote from the expected primary; memoized once satisfied.
func (s *Selector) hasAcceptableViewChangeQuorum() bool {
	if s.hasAcceptableQuorumMemo {
		return true
	}
	if s.hasViewChangeQuorum() && s.hasViewChangeFromPrimary() {
		s.hasAcceptableQuorumMemo = true
	}
	return s.hasAcceptableQuorumMemo
}

// hasSufficientSameViewChangeDoneMessages groups current votes by
// (proposedPrimary, ledgerSummary) and reports the first pairing to reach
// quorum, iterating senders in the order their vote was first seen. Once
// accepted for this view, the result is cached and returned without
// recomputation.
func (s *Selector) hasSufficientSameViewChangeDoneMessages() (Vote, bool) {
	if s.acceptedViewChangeDone != nil {
		return *s.acceptedViewChangeDone, true
	}

	threshold := s.thresholds.ViewChangeDoneQuorum()
	counts := make(map[string]int, len(s.voteOrder))
	first := make(map[string]Vote, len(s.voteOrder))

	for _, sender := range s.voteOrder {
		v, ok := s.viewChangeDone[sender]
		if !ok {
			continue
		}
		k := v.key()
		if _, seen := first[k]; !seen {
			first[k] = v
		}
		counts[k]++
		if quorum.Reached(counts[k], threshold) {
			accepted := first[k]
			s.acceptedViewChangeDone = &accepted
			return accepted, true
		}
	}
	return Vote{}, false
}

func (s *Selector) verifyPrimary(proposed commontypes.NodeName) bool {
	expected := s.primaryNodeName(s.viewNo, commontypes.MasterInstance)
	if proposed != expected {
		s.logger.Error("accepted ViewChangeDone proposes a primary other than the round-robin expectation", commontypes.LogFields{
			"proposed": proposed, "expected": expected, "view": s.viewNo,
		})
		return false
	}
	s.primaryVerified = true
	return true
}

func (s *Selector) verifyViewChange() bool {
	if !s.hasAcceptableViewChangeQuorum() {
		return false
	}
	accepted, ok := s.hasSufficientSameViewChangeDoneMessages()
	if !ok {
		return false
	}
	return s.verifyPrimary(accepted.ProposedPrimary)
}

// startSelection attempts to move from an accepted quorum to announced
// primaries for every replica instance that doesn't have one yet.
func (s *Selector) startSelection() {
	if !s.verifyViewChange() {
		return
	}
	if !s.node.IsSynced() {
		s.logger.Info("deferring primary selection until synced", commontypes.LogFields{"view": s.viewNo})
		return
	}

	accepted, _ := s.hasSufficientSameViewChangeDoneMessages()
	if ledgersummary.IsBehind(s.ledgers.Current(), accepted.LedgerInfo) {
		s.node.StartCatchup()
		return
	}

	for _, r := range s.replicas.All() {
		if r.PrimaryName() != "" {
			continue
		}
		s.declareSelectionCompleted(r, s.primaryReplicaName(s.viewNo, r.InstanceID()), "ViewChangeDone")
	}
}

// hasStateQuorum reports whether enough CurrentState senders agree on the
// same proposed primary for viewNo.
func (s *Selector) hasStateQuorum(viewNo commontypes.ViewNo) bool {
	byNode, ok := s.currentStateMessages[viewNo]
	if !ok {
		return false
	}
	counts := make(map[commontypes.NodeName]int, len(byNode))
	best := 0
	for _, vcd := range byNode {
		counts[vcd.Name]++
		if counts[vcd.Name] > best {
			best = counts[vcd.Name]
		}
	}
	return quorum.Reached(best, s.thresholds.CurrentStateQuorum())
}

// startCurrentStateSelection lets a late joiner accept a primary straight
// from a quorum of CurrentState messages, without itself taking part in
// the vote. Grounded on _start_current_state_selection in
// original_source/plenum/server/primary_selector.py: the chosen message's
// ledger info is read out before ViewChangeStarted resets the tracking
// maps, matching the order of operations there.
func (s *Selector) startCurrentStateSelection(viewNo commontypes.ViewNo) {
	if !s.hasStateQuorum(viewNo) {
		return
	}
	if !s.node.IsSynced() {
		s.logger.Info("deferring current-state selection until synced", commontypes.LogFields{"view": viewNo})
		return
	}

	order := s.currentStateOrder[viewNo]
	first := s.currentStateMessages[viewNo][order[0]]

	if ledgersummary.IsBehind(s.ledgers.Current(), first.LedgerInfo) {
		s.node.StartCatchup()
		return
	}

	s.logger.Debug("accepting primary from CurrentState quorum", commontypes.LogFields{"view": viewNo, "primary": first.Name})
	s.ViewChangeStarted(viewNo)

	for _, r := range s.replicas.All() {
		s.declareSelectionCompleted(r, s.primaryReplicaName(viewNo, r.InstanceID()), "CurrentState")
	}
}

// declareSelectionCompleted announces newPrimaryName as the decided
// primary of r's instance. On the master instance, this also clears the
// previous-master-primary veto and tells the host node to start
// participating.
func (s *Selector) declareSelectionCompleted(r replica.Replica, newPrimaryName commontypes.ReplicaName, basis string) {
	if r.InstanceID() == commontypes.MasterInstance {
		s.previousMasterPrimary = ""
		s.node.StartParticipating()
	}
	r.PrimaryChanged(newPrimaryName)
	s.node.PrimarySelected(r.InstanceID())
	s.logger.Info("selected primary", commontypes.LogFields{
		"instance": r.InstanceID(), "primary": newPrimaryName, "basis": basis, "view": s.viewNo,
	})
}

// DecidePrimaries is the periodic entry point: if synced and the master
// instance still has no primary, broadcast this node's own proposal (once
// per view), then attempt selection in case quorum is already available.
func (s *Selector) DecidePrimaries() {
	if s.node.IsSynced() && s.replicas.Replica(commontypes.MasterInstance).PrimaryName() == "" {
		s.sendViewChangeDoneMessage()
	}
	s.startSelection()
}

func (s *Selector) sendViewChangeDoneMessage() {
	proposed := s.primaryNodeName(s.viewNo, commontypes.MasterInstance)
	summary := s.ledgers.Current()

	// Self-vote is recorded before the message is broadcast (spec.md §4.4).
	s.trackViewChangeDone(s.node.Name(), proposed, summary)
	s.node.Broadcast(wire.ViewChangeDone{ViewNo: s.viewNo, Name: proposed, LedgerInfo: summary})
}

// GetMsgsForLaggedNodes returns the ViewChangeDone messages this node can
// offer a lagged node asking for the current primary, per the fallback
// chain in SPEC_FULL.md §3: the accepted quorum outcome if one exists,
// else this node's own proposal if it voted, else nothing.
func (s *Selector) GetMsgsForLaggedNodes() []wire.ViewChangeDone {
	if accepted, ok := s.AcceptedViewChangeDone(); ok {
		return []wire.ViewChangeDone{{ViewNo: s.viewNo, Name: accepted.ProposedPrimary, LedgerInfo: accepted.LedgerInfo}}
	}
	if own, ok := s.viewChangeDone[s.node.Name()]; ok {
		return []wire.ViewChangeDone{{ViewNo: s.viewNo, Name: own.ProposedPrimary, LedgerInfo: own.LedgerInfo}}
	}
	s.logger.Debug("no ViewChangeDone message available for lagged nodes yet", commontypes.LogFields{"view": s.viewNo})
	return nil
}
