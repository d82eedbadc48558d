// Package quorum implements the Quorum Oracle: a pure, process-wide,
// stateless function over the configured pool size N that yields the
// thresholds used throughout the consensus core.
//
// Grounded on self.node.quorums usage in
// original_source/plenum/server/primary_selector.py.
package quorum

import "github.com/sovrin-labs/bft-core/commontypes"

// F returns floor((N-1)/3), the maximum number of faulty nodes tolerated
// out of N.
func F(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// ViewChangeDoneQuorum returns N - F(N), the number of agreeing
// ViewChangeDone messages required to accept a proposed primary.
func ViewChangeDoneQuorum(n int) int {
	return n - F(n)
}

// CurrentStateQuorum returns F(N) + 1, the number of agreeing CurrentState
// messages required for a late joiner to accept a primary without voting.
func CurrentStateQuorum(n int) int {
	return F(n) + 1
}

// WeakCert returns F(N) + 1: guarantees at least one honest signer among
// the contributors.
func WeakCert(n int) int {
	return F(n) + 1
}

// StrongCert returns 2*F(N) + 1: guarantees that any two certificates of
// this size overlap in at least one honest signer.
func StrongCert(n int) int {
	return 2*F(n) + 1
}

// Reached reports whether count meets or exceeds threshold. Every quorum
// comparison in the core is "count >= threshold", never strict "greater
// than" — this helper makes that tie-break explicit and uniform.
func Reached(count, threshold int) bool {
	return count >= threshold
}

// Oracle is the Quorum Oracle bound to a fixed pool configuration: the one
// configuration surface of the consensus core (SPEC_FULL.md §1), handed to
// both this package's consumers and the Primary Selector at construction
// instead of a bare int threaded through every call site.
type Oracle struct {
	cfg commontypes.PoolConfig
}

// NewOracle binds an Oracle to cfg.
func NewOracle(cfg commontypes.PoolConfig) Oracle {
	return Oracle{cfg: cfg}
}

// N is the configured pool size.
func (o Oracle) N() int { return o.cfg.N }

// F is the maximum number of faulty nodes tolerated out of N.
func (o Oracle) F() int { return F(o.cfg.N) }

// ViewChangeDoneQuorum is the number of agreeing ViewChangeDone messages
// required to accept a proposed primary.
func (o Oracle) ViewChangeDoneQuorum() int { return ViewChangeDoneQuorum(o.cfg.N) }

// CurrentStateQuorum is the number of agreeing CurrentState messages
// required for a late joiner to accept a primary without voting.
func (o Oracle) CurrentStateQuorum() int { return CurrentStateQuorum(o.cfg.N) }

// WeakCert is the certificate size guaranteeing at least one honest signer.
func (o Oracle) WeakCert() int { return WeakCert(o.cfg.N) }

// StrongCert is the certificate size guaranteeing any two certificates of
// this size overlap in at least one honest signer.
func (o Oracle) StrongCert() int { return StrongCert(o.cfg.N) }
