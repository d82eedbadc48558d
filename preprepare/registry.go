// Package preprepare implements the PrePrepare Registry: an ordered map
// keyed by (ViewNo, SeqNo) that indexes in-flight and accepted PrePrepare
// messages for a single replica.
//
// Grounded on original_source/plenum/server/bft/preprepares.py, whose
// SortedDict-backed registry this package mirrors operation for operation.
// The registry needs an O(log n) ordered map; neither the teacher nor the
// rest of the example pack supplies one except AKJUS-bsc-erigon's go.mod
// (github.com/google/btree), which is adopted here for exactly that.
package preprepare

import (
	"github.com/google/btree"

	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/threepc"
	"github.com/sovrin-labs/bft-core/wire"
)

// ErrNotRegistered is the distinguished "not registered" failure for
// indexing a missing key — a programmer error per spec.md §7 category 7.
type ErrNotRegistered struct {
	Key threepc.Key
}

func (e ErrNotRegistered) Error() string {
	return "preprepare: no entry registered for key " + keyString(e.Key)
}

func keyString(k threepc.Key) string {
	// minimal, dependency-free formatting; this error is a programmer-error
	// signal, not user-facing text.
	return itoa(int64(k.ViewNo)) + ":" + itoa(int64(k.SeqNo))
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Entry pairs a 3PC key with its registered PrePrepare.
type Entry struct {
	Key        threepc.Key
	PrePrepare wire.PrePrepare
}

// Registry is the ordered PrePrepare index for a single replica. The zero
// value is not usable; construct with New.
type Registry struct {
	tree *btree.BTreeG[Entry]
}

const degree = 32

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tree: btree.NewG(degree, func(a, b Entry) bool {
			return threepc.Less(a.Key, b.Key)
		}),
	}
}

// Register inserts pp at (pp.ViewNo, pp.PpSeqNo), overwriting any prior
// entry at the same key. Register is total: it never fails.
func (r *Registry) Register(pp wire.PrePrepare) {
	r.tree.ReplaceOrInsert(Entry{Key: pp.Key(), PrePrepare: pp})
}

// Registered reports whether an entry exists at (v, s).
func (r *Registry) Registered(v commontypes.ViewNo, s commontypes.SeqNo) bool {
	_, ok := r.tree.Get(Entry{Key: threepc.Key{ViewNo: v, SeqNo: s}})
	return ok
}

// Get returns the entry registered at (v, s), or ErrNotRegistered if none
// exists.
func (r *Registry) Get(v commontypes.ViewNo, s commontypes.SeqNo) (wire.PrePrepare, error) {
	e, ok := r.tree.Get(Entry{Key: threepc.Key{ViewNo: v, SeqNo: s}})
	if !ok {
		return wire.PrePrepare{}, ErrNotRegistered{Key: threepc.Key{ViewNo: v, SeqNo: s}}
	}
	return e.PrePrepare, nil
}

// UnregisterAllUpTo removes every entry whose key is <= (v, s) under the
// 3PC order and returns them in ascending key order.
func (r *Registry) UnregisterAllUpTo(v commontypes.ViewNo, s commontypes.SeqNo) []Entry {
	target := threepc.Key{ViewNo: v, SeqNo: s}
	var toRemove []Entry
	r.tree.Ascend(func(e Entry) bool {
		if threepc.LessOrEqual(e.Key, target) {
			toRemove = append(toRemove, e)
			return true
		}
		return false
	})
	for _, e := range toRemove {
		r.tree.Delete(e)
	}
	return toRemove
}

// LatestReceived returns the registered entry with the largest 3PC key, and
// true, or the zero Entry and false if the registry is empty.
func (r *Registry) LatestReceived() (Entry, bool) {
	return r.tree.Max()
}

// AllRegisteredKeys returns the set of keys of all registered entries.
func (r *Registry) AllRegisteredKeys() map[threepc.Key]struct{} {
	keys := make(map[threepc.Key]struct{}, r.tree.Len())
	r.tree.Ascend(func(e Entry) bool {
		keys[e.Key] = struct{}{}
		return true
	})
	return keys
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return r.tree.Len()
}
