// Package threepc defines the 3PC key — the (ViewNo, SeqNo) pair that
// totally orders ordering slots within and across views.
package threepc

import "github.com/sovrin-labs/bft-core/commontypes"

// Key identifies one ordering slot. Two keys may share a SeqNo across
// different views during a view change.
type Key struct {
	ViewNo commontypes.ViewNo
	SeqNo  commontypes.SeqNo
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b under the canonical 3PC order: (v1, s1) <= (v2, s2) iff v1 < v2, or
// v1 == v2 && s1 <= s2.
func Compare(a, b Key) int {
	switch {
	case a.ViewNo < b.ViewNo:
		return -1
	case a.ViewNo > b.ViewNo:
		return 1
	case a.SeqNo < b.SeqNo:
		return -1
	case a.SeqNo > b.SeqNo:
		return 1
	default:
		return 0
	}
}

// LessOrEqual reports whether a <= b under the 3PC order.
func LessOrEqual(a, b Key) bool {
	return Compare(a, b) <= 0
}

// Less reports whether a < b under the 3PC order; it is the strict order
// used by btree.Item.
func Less(a, b Key) bool {
	return Compare(a, b) < 0
}
