// Package ledgersummary defines the read-only view onto a node's ledgers
// used as opaque freshness data inside ViewChangeDone and CurrentState
// messages.
//
// Grounded on the ledger_summary property and LedgerManager access in
// original_source/plenum/server/primary_selector.py.
package ledgersummary

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Info is one ledger's (id, size, rootHash) triple. Equality is
// structural.
type Info struct {
	LedgerID int
	Size     int
	RootHash []byte
}

// Equal reports structural equality, byte-for-byte on RootHash.
func (i Info) Equal(other Info) bool {
	if i.LedgerID != other.LedgerID || i.Size != other.Size {
		return false
	}
	if len(i.RootHash) != len(other.RootHash) {
		return false
	}
	for idx := range i.RootHash {
		if i.RootHash[idx] != other.RootHash[idx] {
			return false
		}
	}
	return true
}

// String renders the root hash as base58, matching the encoding the rest
// of the identity-ledger stack uses for on-the-wire identifiers.
func (i Info) String() string {
	return fmt.Sprintf("Info{ledger=%d size=%d root=%s}", i.LedgerID, i.Size, base58.Encode(i.RootHash))
}

// Summary is an ordered sequence of Info, one per registered ledger, in
// stable configured order.
type Summary []Info

// Equal reports whether two summaries have the same length and
// position-wise equal entries.
func (s Summary) Equal(other Summary) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Key returns a comparable representation of the summary suitable for use
// as a map key (grouping ViewChangeDone votes by proposal, §4.4). Go slices
// aren't comparable, so votes are grouped on this string form instead.
func (s Summary) Key() string {
	out := make([]byte, 0, 16*len(s))
	for _, info := range s {
		out = append(out, fmt.Sprintf("%d:%d:%s|", info.LedgerID, info.Size, base58.Encode(info.RootHash))...)
	}
	return string(out)
}

// LedgerRegistry is the host node's collection of ledgers, in stable
// configured order. It is the only collaborator this package depends on.
type LedgerRegistry interface {
	// Ledgers returns the current (id, size, rootHash) triple for every
	// registered ledger, in stable order.
	Ledgers() []Info
}

// Provider is a thin read-through façade over the host node's ledger
// registry. It performs no caching: the election needs the freshest sizes
// at the moment a ViewChangeDone is composed.
type Provider struct {
	registry LedgerRegistry
}

// NewProvider wraps registry.
func NewProvider(registry LedgerRegistry) *Provider {
	return &Provider{registry: registry}
}

// Current returns the current ledger summary, freshly read from the
// registry on every call.
func (p *Provider) Current() Summary {
	return Summary(p.registry.Ledgers())
}

// IsBehind reports whether own is behind accepted: true iff any local
// ledger size is strictly less than the accepted size at the same
// position. Being ahead is acceptable; the comparison is strict "<", not
// "!=".
func IsBehind(own, accepted Summary) bool {
	n := len(own)
	if len(accepted) < n {
		n = len(accepted)
	}
	for i := 0; i < n; i++ {
		if own[i].Size < accepted[i].Size {
			return true
		}
	}
	return false
}
