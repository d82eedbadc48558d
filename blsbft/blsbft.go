// Package blsbft provides the BLS-BFT helper consumed by the replica
// layer. BLS multi-signature computation itself is assumed to be provided
// by this external collaborator (spec.md §1 Non-goals); this package only
// wires the teacher's dependency stack to a narrow capability interface.
//
// The Python source used subclass polymorphism for BLS variants
// (BlsFactoryCharm, BlsFactoryIndyCrypto in
// original_source/plenum/bls/bls.py). spec.md §9 asks for a tagged variant
// instead of dynamic dispatch; Kind below is that tag.
package blsbft

import (
	"github.com/pkg/errors"
	blst "github.com/supranational/blst"

	"github.com/sovrin-labs/bft-core/commontypes"
)

// Kind selects the concrete BLS implementation behind BlsBft.
type Kind int

const (
	// KindNone installs no BLS helper. BLS is an optimization, not a
	// precondition for safety (spec.md §4.5): a replica with a nil helper
	// still participates correctly, just without multi-signature batching.
	KindNone Kind = iota
	// KindBLST backs BlsBft with github.com/supranational/blst, the BLS12-381
	// implementation the teacher's own go.mod pulls in transitively through
	// go-ethereum. Stands in for the Python source's BlsCryptoIndyCrypto
	// variant.
	KindBLST
)

// ErrMissingKeys is the distinguished "missing keys" failure CreateBlsBft
// returns when a node has no BLS key material on disk. Replica creation
// treats this as recoverable: it logs a warning and proceeds without BLS
// (spec.md §7 category 6).
var ErrMissingKeys = errors.New("blsbft: BLS keys missing")

// BlsBft is the narrow capability the replica layer uses to co-sign and
// verify multi-signatures over ordered batches. The consensus core never
// performs the cryptography itself; it only calls through this interface.
type BlsBft interface {
	// NodeName is the identity this helper signs on behalf of.
	NodeName() commontypes.NodeName
	// IsMaster reports whether this helper was created for the master
	// instance (instance 0) of its node.
	IsMaster() bool
	// Sign returns a BLS signature share over digest.
	Sign(digest []byte) ([]byte, error)
	// Close releases any resources (key material, caches) held by the
	// helper.
	Close() error
}

// KeyStore supplies the raw secret/public key material for a node. A
// missing key pair surfaces as ErrMissingKeys.
type KeyStore interface {
	// Load returns the raw BLS secret key bytes for nodeName, or
	// ErrMissingKeys if none are stored.
	Load(nodeName commontypes.NodeName) ([]byte, error)
}

// CreateBlsBft constructs a BlsBft for nodeName per kind. For KindNone it
// always succeeds and returns a nil BlsBft — callers install that nil
// value directly rather than treating it as an error (spec.md §4.5's
// blsBft[instanceId] is explicitly optional).
func CreateBlsBft(kind Kind, keys KeyStore, nodeName commontypes.NodeName, isMaster bool) (BlsBft, error) {
	switch kind {
	case KindNone:
		return nil, nil
	case KindBLST:
		sk, err := keys.Load(nodeName)
		if err != nil {
			return nil, err
		}
		return newBlstBft(nodeName, isMaster, sk)
	default:
		return nil, errors.Errorf("blsbft: unknown kind %d", kind)
	}
}

type blstBft struct {
	nodeName commontypes.NodeName
	isMaster bool
	secret   *blst.SecretKey
}

func newBlstBft(nodeName commontypes.NodeName, isMaster bool, rawSecret []byte) (*blstBft, error) {
	if len(rawSecret) == 0 {
		return nil, ErrMissingKeys
	}
	sk := new(blst.SecretKey)
	sk.Deserialize(rawSecret)
	return &blstBft{nodeName: nodeName, isMaster: isMaster, secret: sk}, nil
}

func (b *blstBft) NodeName() commontypes.NodeName { return b.nodeName }
func (b *blstBft) IsMaster() bool                 { return b.isMaster }

func (b *blstBft) Sign(digest []byte) ([]byte, error) {
	sig := new(blst.P2Affine).Sign(b.secret, digest, nil)
	return sig.Compress(), nil
}

func (b *blstBft) Close() error {
	b.secret = nil
	return nil
}
