// Package envelope implements N1: signing, encryption, chunking and
// reassembly of MessageEnvelope, the end-to-end unit every payload crosses
// the network as. Grounded on qudag's network message/chunking source and
// the data model in spec.md §3-4.1.
package envelope

import (
	"github.com/ruvnet/daa-sub007/ids"
)

// Priority controls both scheduling order within a connection and the
// channel backpressure policy (§5): High blocks senders, Normal drops the
// oldest queued item on overflow, Low drops the newest.
type Priority uint8

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// Broadcast is the sentinel destination meaning "all connected peers".
var Broadcast = ids.PeerId{}

// MessageEnvelope is the signed, authenticated unit exchanged between
// peers, per the data model in spec.md §3.
type MessageEnvelope struct {
	ID            string    `cbor:"1,keyasint"`
	Src           ids.PeerId `cbor:"2,keyasint"`
	Dst           ids.PeerId `cbor:"3,keyasint"`
	IsBroadcast   bool      `cbor:"4,keyasint"`
	Payload       []byte    `cbor:"5,keyasint"`
	Priority      Priority  `cbor:"6,keyasint"`
	TTLMs         uint64    `cbor:"7,keyasint"`
	CreatedAtMs   uint64    `cbor:"8,keyasint"`
	Signature     []byte    `cbor:"9,keyasint,omitempty"`
	SenderKeyHash [32]byte  `cbor:"10,keyasint,omitempty"`
}

// signedFields is the canonical tuple signatures cover: (id, src, dst,
// is_broadcast, payload, priority, ttl_ms, created_at_ms). Mutating any of these after
// signing must invalidate verification.
type signedFields struct {
	ID          string
	Src         ids.PeerId
	Dst         ids.PeerId
	IsBroadcast bool
	Payload     []byte
	Priority    Priority
	TTLMs       uint64
	CreatedAtMs uint64
}

func (m *MessageEnvelope) signed() signedFields {
	return signedFields{
		ID:          m.ID,
		Src:         m.Src,
		Dst:         m.Dst,
		IsBroadcast: m.IsBroadcast,
		Payload:     m.Payload,
		Priority:    m.Priority,
		TTLMs:       m.TTLMs,
		CreatedAtMs: m.CreatedAtMs,
	}
}
