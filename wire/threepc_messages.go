package wire

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/threepc"
)

// Digest is a canonical 32-byte digest of a 3PC message's payload.
type Digest [32]byte

// String renders d as a 0x-prefixed hex string, for error messages and log
// fields — an alternative path alongside ledgersummary's base58 rendering,
// used wherever the value is already being round-tripped through JSON-ish
// debug output.
func (d Digest) String() string {
	return hexutil.Encode(d[:])
}

// Msg3PC is the common envelope shared by PrePrepare, Prepare, Commit, and
// Checkpoint: this spec requires only that each exposes ViewNo, PpSeqNo
// (as applicable), and a canonical digest (§6). Payload is carried opaquely
// by the replica layer and never interpreted here.
type Msg3PC struct {
	ViewNo  commontypes.ViewNo
	PpSeqNo commontypes.SeqNo
	Payload []byte
}

// Key returns the 3PC key (ViewNo, PpSeqNo) of m.
func (m Msg3PC) Key() threepc.Key {
	return threepc.Key{ViewNo: m.ViewNo, SeqNo: m.PpSeqNo}
}

// Digest returns the canonical digest of m's payload, used for digest
// stability checks and cross-message comparisons.
func (m Msg3PC) Digest() Digest {
	return blake2b.Sum256(m.Payload)
}

// PrePrepare is the leader's proposal to order a batch at (ViewNo,
// PpSeqNo).
type PrePrepare struct{ Msg3PC }

// Prepare is a follower's agreement to PrePrepare's digest at (ViewNo,
// PpSeqNo).
type Prepare struct{ Msg3PC }

// Commit is a follower's commitment to a prepared PrePrepare.
type Commit struct{ Msg3PC }

// Checkpoint is a periodic stable-state marker, keyed the same way as the
// other 3PC messages for registry purposes even though it does not carry a
// PrePrepare payload of its own.
type Checkpoint struct{ Msg3PC }
