package wire_test

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/ledgersummary"
	"github.com/sovrin-labs/bft-core/wire"
)

func sampleVCD() wire.ViewChangeDone {
	return wire.ViewChangeDone{
		ViewNo: 3,
		Name:   "Beta",
		LedgerInfo: ledgersummary.Summary{
			{LedgerID: 0, Size: 5, RootHash: []byte{1, 2, 3}},
			{LedgerID: 1, Size: 12, RootHash: []byte{9, 9}},
		},
	}
}

func TestViewChangeDoneRoundTrip(t *testing.T) {
	want := sampleVCD()
	got, err := wire.UnmarshalViewChangeDone(want.Marshal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	a := sampleVCD().Marshal()
	b := sampleVCD().Marshal()
	if !bytes.Equal(a, b) {
		t.Fatalf("two encoders of structurally equal messages diverged: %x vs %x", a, b)
	}
}

func TestCurrentStateRoundTrip(t *testing.T) {
	want := wire.CurrentState{
		ViewNo:  7,
		Primary: []wire.ViewChangeDone{sampleVCD()},
	}
	got, err := wire.UnmarshalCurrentState(want.Marshal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ViewNo != want.ViewNo || len(got.Primary) != 1 || !got.Primary[0].Equal(want.Primary[0]) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestCurrentStateDropsMalformedEntriesButKeepsGoodOnes(t *testing.T) {
	good := sampleVCD().Marshal()
	malformed := []byte{0xFF, 0xFF, 0xFF} // not a valid tag stream
	var b []byte
	b = append(b, mustTag(1)...)
	b = append(b, 14) // viewNo varint
	b = append(b, mustTagBytes(2, good)...)
	b = append(b, mustTagBytes(2, malformed)...)

	got, err := wire.UnmarshalCurrentState(b)
	if err == nil {
		t.Fatalf("expected an aggregated error for the malformed entry")
	}
	if len(got.Primary) != 1 {
		t.Fatalf("expected the one well-formed entry to survive, got %d entries", len(got.Primary))
	}
}

// mustTag/mustTagBytes build raw protowire-ish bytes for the malformed-input
// test above without depending on wire's internals.
func mustTag(fieldNo int) []byte { return []byte{byte(fieldNo << 3)} }
func mustTagBytes(fieldNo int, payload []byte) []byte {
	b := []byte{byte(fieldNo<<3) | 2}
	n := len(payload)
	for n >= 0x80 {
		b = append(b, byte(n)|0x80)
		n >>= 7
	}
	b = append(b, byte(n))
	return append(b, payload...)
}

func TestLedgerInfoProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("round-tripping a ViewChangeDone preserves its ledger summary key", prop.ForAll(
		func(ledgerID, size int) bool {
			vcd := wire.ViewChangeDone{
				ViewNo: commontypes.ViewNo(1),
				Name:   commontypes.NodeName("N1"),
				LedgerInfo: ledgersummary.Summary{
					{LedgerID: ledgerID, Size: size, RootHash: []byte{byte(ledgerID), byte(size)}},
				},
			}
			got, err := wire.UnmarshalViewChangeDone(vcd.Marshal())
			if err != nil {
				return false
			}
			return got.LedgerInfo.Key() == vcd.LedgerInfo.Key()
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1_000_000),
	))

	properties.TestingRun(t)
}
