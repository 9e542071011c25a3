// Package ids defines the opaque identity and addressing types shared by
// every core: PeerId, VertexId and NodeAddress.
package ids

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// PeerId is a 32-byte opaque node identity. It is created once per node at
// startup and never mutated afterwards.
type PeerId [32]byte

// Empty is the zero PeerId, used as a sentinel for "no peer".
var Empty PeerId

// Compare gives PeerId a total lexicographic order, as required by the
// data model (leader election, ring all-reduce ordering, validator set
// sorting all rely on it).
func (p PeerId) Compare(other PeerId) int {
	return bytes.Compare(p[:], other[:])
}

// Less reports whether p sorts before other.
func (p PeerId) Less(other PeerId) bool {
	return p.Compare(other) < 0
}

// String renders the PeerId as base58, matching the pack's convention for
// human-readable identities.
func (p PeerId) String() string {
	return base58.Encode(p[:])
}

// Bytes returns the underlying 32 bytes.
func (p PeerId) Bytes() []byte {
	return p[:]
}

// PeerIdFromBytes builds a PeerId from a 32-byte slice.
func PeerIdFromBytes(b []byte) (PeerId, error) {
	var id PeerId
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: peer id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// VertexId is a 32-byte BLAKE3 digest identifying a DAG vertex.
type VertexId [32]byte

// EmptyVertex is the zero VertexId.
var EmptyVertex VertexId

func (v VertexId) String() string {
	return hex.EncodeToString(v[:])
}

func (v VertexId) Bytes() []byte {
	return v[:]
}

func (v VertexId) Less(other VertexId) bool {
	return bytes.Compare(v[:], other[:]) < 0
}

// VertexIdFromBytes builds a VertexId from a 32-byte slice.
func VertexIdFromBytes(b []byte) (VertexId, error) {
	var id VertexId
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: vertex id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// AddressKind discriminates the NodeAddress union.
type AddressKind uint8

const (
	AddressSocket AddressKind = iota
	AddressDomain
	AddressShadow
	AddressOnion
)

// OnionVersion distinguishes v2 vs v3 onion addresses.
type OnionVersion uint8

const (
	OnionV2 OnionVersion = 2
	OnionV3 OnionVersion = 3
)

// NodeAddress is the closed union of reachable endpoint forms. It is
// validated on parse and never mutated afterwards.
type NodeAddress struct {
	Kind AddressKind
	// Socket
	IP   string
	Port uint16
	// Domain
	Name string
	// Shadow
	ShadowKind string
	Blob       []byte
	// Onion
	OnionVer OnionVersion
}

// NewSocketAddress constructs and validates a Socket address.
func NewSocketAddress(ip string, port uint16) (NodeAddress, error) {
	if strings.TrimSpace(ip) == "" {
		return NodeAddress{}, fmt.Errorf("ids: empty socket ip")
	}
	return NodeAddress{Kind: AddressSocket, IP: ip, Port: port}, nil
}

// NewDomainAddress constructs and validates a Domain address.
func NewDomainAddress(name string, port uint16) (NodeAddress, error) {
	if strings.TrimSpace(name) == "" {
		return NodeAddress{}, fmt.Errorf("ids: empty domain name")
	}
	return NodeAddress{Kind: AddressDomain, Name: name, Port: port}, nil
}

// NewShadowAddress constructs and validates a Shadow address.
func NewShadowAddress(kind string, blob []byte) (NodeAddress, error) {
	if strings.TrimSpace(kind) == "" {
		return NodeAddress{}, fmt.Errorf("ids: empty shadow kind")
	}
	return NodeAddress{Kind: AddressShadow, ShadowKind: kind, Blob: blob}, nil
}

// NewOnionAddress constructs and validates an Onion address.
func NewOnionAddress(version OnionVersion, blob []byte, port uint16) (NodeAddress, error) {
	if version != OnionV2 && version != OnionV3 {
		return NodeAddress{}, fmt.Errorf("ids: unknown onion version %d", version)
	}
	if len(blob) == 0 {
		return NodeAddress{}, fmt.Errorf("ids: empty onion blob")
	}
	return NodeAddress{Kind: AddressOnion, OnionVer: version, Blob: blob, Port: port}, nil
}

func (a NodeAddress) String() string {
	switch a.Kind {
	case AddressSocket:
		return a.IP + ":" + strconv.Itoa(int(a.Port))
	case AddressDomain:
		return a.Name + ":" + strconv.Itoa(int(a.Port))
	case AddressShadow:
		return "shadow:" + a.ShadowKind + ":" + hex.EncodeToString(a.Blob)
	case AddressOnion:
		return fmt.Sprintf("onion-v%d:%s:%d", a.OnionVer, hex.EncodeToString(a.Blob), a.Port)
	default:
		return "unknown"
	}
}
