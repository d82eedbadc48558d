// Package wire defines the wire-visible messages of the consensus core —
// ViewChangeDone, CurrentState, and the opaque 3PC envelopes — and their
// canonical codec.
//
// Serialization is length-prefixed and field-ordered by a stable schema:
// two encoders must produce byte-identical output for structurally equal
// messages, since digests and mostCommonElement-style comparisons depend
// on it. We build that codec directly on
// google.golang.org/protobuf/encoding/protowire's Append*/Consume*
// primitives rather than generating code from a .proto file — the wire
// package is usable standalone for exactly this kind of hand-rolled,
// always-field-ordered schema.
//
// Grounded on the ViewChangeDone/CurrentState shapes in
// original_source/plenum/server/primary_selector.py.
package wire

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sovrin-labs/bft-core/commontypes"
	"github.com/sovrin-labs/bft-core/ledgersummary"
)

// Field numbers for ViewChangeDone.
const (
	fieldVCDViewNo     protowire.Number = 1
	fieldVCDName       protowire.Number = 2
	fieldVCDLedgerInfo protowire.Number = 3
)

// Field numbers for the embedded LedgerInfo submessage.
const (
	fieldLedgerID   protowire.Number = 1
	fieldLedgerSize protowire.Number = 2
	fieldLedgerRoot protowire.Number = 3
)

// Field numbers for CurrentState.
const (
	fieldCSViewNo  protowire.Number = 1
	fieldCSPrimary protowire.Number = 2
)

// ViewChangeDone is a sender's statement that it completed the view change
// and proposes a particular primary with a particular ledger summary.
// Invariant: ViewNo equals the sender's current view at time of send.
type ViewChangeDone struct {
	ViewNo     commontypes.ViewNo
	Name       commontypes.NodeName
	LedgerInfo ledgersummary.Summary
}

// Equal reports structural equality.
func (m ViewChangeDone) Equal(other ViewChangeDone) bool {
	return m.ViewNo == other.ViewNo && m.Name == other.Name && m.LedgerInfo.Equal(other.LedgerInfo)
}

// Marshal encodes m in field order 1, 2, 3.
func (m ViewChangeDone) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVCDViewNo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ViewNo))
	b = protowire.AppendTag(b, fieldVCDName, protowire.BytesType)
	b = protowire.AppendString(b, string(m.Name))
	for _, li := range m.LedgerInfo {
		b = protowire.AppendTag(b, fieldVCDLedgerInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalLedgerInfo(li))
	}
	return b
}

func marshalLedgerInfo(li ledgersummary.Info) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldLedgerID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(li.LedgerID))
	b = protowire.AppendTag(b, fieldLedgerSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(li.Size))
	b = protowire.AppendTag(b, fieldLedgerRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, li.RootHash)
	return b
}

func unmarshalLedgerInfo(buf []byte) (ledgersummary.Info, error) {
	var li ledgersummary.Info
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return li, errors.Wrap(protowire.ParseError(n), "ledger info: bad tag")
		}
		buf = buf[n:]
		switch {
		case num == fieldLedgerID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return li, errors.Wrap(protowire.ParseError(n), "ledger info: bad ledger id")
			}
			li.LedgerID = int(v)
			buf = buf[n:]
		case num == fieldLedgerSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return li, errors.Wrap(protowire.ParseError(n), "ledger info: bad size")
			}
			li.Size = int(v)
			buf = buf[n:]
		case num == fieldLedgerRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return li, errors.Wrap(protowire.ParseError(n), "ledger info: bad root hash")
			}
			li.RootHash = append([]byte(nil), v...)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return li, errors.Wrap(protowire.ParseError(n), "ledger info: bad field")
			}
			buf = buf[n:]
		}
	}
	return li, nil
}

// Unmarshal decodes a ViewChangeDone previously produced by Marshal.
func UnmarshalViewChangeDone(buf []byte) (ViewChangeDone, error) {
	var m ViewChangeDone
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return m, errors.Wrap(protowire.ParseError(n), "ViewChangeDone: bad tag")
		}
		buf = buf[n:]
		switch {
		case num == fieldVCDViewNo && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "ViewChangeDone: bad viewNo")
			}
			m.ViewNo = commontypes.ViewNo(v)
			buf = buf[n:]
		case num == fieldVCDName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "ViewChangeDone: bad name")
			}
			m.Name = commontypes.NodeName(v)
			buf = buf[n:]
		case num == fieldVCDLedgerInfo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "ViewChangeDone: bad ledger info")
			}
			li, err := unmarshalLedgerInfo(v)
			if err != nil {
				return m, errors.Wrap(err, "ViewChangeDone")
			}
			m.LedgerInfo = append(m.LedgerInfo, li)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "ViewChangeDone: bad field")
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

// CurrentState is a carrier message letting a newly joined node learn the
// selected primary of a view without taking part in the election. Primary
// carries at least one ViewChangeDone considered accepted by the sender.
type CurrentState struct {
	ViewNo  commontypes.ViewNo
	Primary []ViewChangeDone
}

// Marshal encodes m in field order 1, 2.
func (m CurrentState) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCSViewNo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ViewNo))
	for _, vcd := range m.Primary {
		b = protowire.AppendTag(b, fieldCSPrimary, protowire.BytesType)
		b = protowire.AppendBytes(b, vcd.Marshal())
	}
	return b
}

// UnmarshalCurrentState decodes a CurrentState previously produced by
// Marshal. Per §7 category 3, entries that fail to parse are dropped
// individually and aggregated into the returned error via multierr; the
// caller (primaryselector) discards the whole message if no entry parsed.
func UnmarshalCurrentState(buf []byte) (CurrentState, error) {
	var m CurrentState
	var errs error
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return m, errors.Wrap(protowire.ParseError(n), "CurrentState: bad tag")
		}
		buf = buf[n:]
		switch {
		case num == fieldCSViewNo && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "CurrentState: bad viewNo")
			}
			m.ViewNo = commontypes.ViewNo(v)
			buf = buf[n:]
		case num == fieldCSPrimary && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "CurrentState: bad primary entry")
			}
			vcd, err := UnmarshalViewChangeDone(v)
			if err != nil {
				errs = multierr.Append(errs, errors.Wrap(err, "CurrentState: malformed embedded ViewChangeDone"))
			} else {
				m.Primary = append(m.Primary, vcd)
			}
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "CurrentState: bad field")
			}
			buf = buf[n:]
		}
	}
	return m, errs
}
