// Package gradient implements N5: the quantize/dequantize codec and the
// wire GradientMessage carried inside a MessageEnvelope for training
// traffic. Grounded on
// original_source/daa-compute/src/p2p/gradient.rs::quantize_gradient /
// dequantize_gradient / GradientMessage, with the frame endianness decided
// big-endian per SPEC_FULL.md §6 (the Rust source uses little-endian; the
// spec explicitly permits either and states a preference for big-endian).
package gradient

import (
	"encoding/binary"
	"math"

	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// headerLen is the two big-endian f32 bounds (min, max) prefixing every
// quantized frame.
const headerLen = 8

// Quantize compresses a float32 gradient to an 8-bit-per-element frame:
// two big-endian f32 bounds (min, max) followed by one byte per element.
// A constant gradient (min == max) is encoded as all-zero bytes, per
// spec.md §4.5.
func Quantize(g []float32) []byte {
	out := make([]byte, headerLen+len(g))
	if len(g) == 0 {
		return out
	}

	min, max := g[0], g[0]
	for _, v := range g[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	binary.BigEndian.PutUint32(out[0:4], math.Float32bits(min))
	binary.BigEndian.PutUint32(out[4:8], math.Float32bits(max))

	if min == max {
		return out
	}

	scale := 255.0 / (max - min)
	for i, v := range g {
		q := roundClamp((v - min) * scale)
		out[headerLen+i] = q
	}
	return out
}

func roundClamp(x float32) byte {
	r := math.Round(float64(x))
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return byte(r)
}

// Dequantize is Quantize's inverse. Per-element error is bounded by
// (max-min)/510.
func Dequantize(q []byte) ([]float32, error) {
	if len(q) < headerLen {
		return nil, errkind.New(errkind.Validation, "gradient: quantized frame too short")
	}
	min := math.Float32frombits(binary.BigEndian.Uint32(q[0:4]))
	max := math.Float32frombits(binary.BigEndian.Uint32(q[4:8]))

	body := q[headerLen:]
	out := make([]float32, len(body))
	if min == max {
		for i := range out {
			out[i] = min
		}
		return out, nil
	}

	scale := (max - min) / 255.0
	for i, b := range body {
		out[i] = min + float32(b)*scale
	}
	return out, nil
}

// Message is the wire payload carried inside a MessageEnvelope for
// training traffic, supplementing the distilled spec with the
// GradientMessage shape from gradient.rs.
type Message struct {
	PeerID               ids.PeerId
	Round                uint64
	CompressedGradient   []byte
	TimestampMs          uint64
}
