package envelope

import (
	"bytes"
	"context"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/errkind"
)

const (
	// DefaultMaxChunkSize is the largest chunk body the chunker will emit
	// (§4.2).
	DefaultMaxChunkSize = 65536
	// MaxChunks bounds how many chunks a single message may be split into;
	// exceeding it is a Validation error rather than silent truncation.
	MaxChunks = 10000
	// DefaultCompressionThreshold is the payload size above which
	// compression is attempted.
	DefaultCompressionThreshold = 1024
	// DefaultChunkTimeout is how long a partial reassembly may sit idle
	// before it is considered Expired.
	DefaultChunkTimeout = 30 * time.Second
)

// ChunkHeader describes one chunk's place within its parent message.
type ChunkHeader struct {
	MessageID     string
	TotalChunks   uint32
	ChunkIndex    uint32
	ChunkSize     uint32
	MessageHash   [32]byte
	OriginalSize  uint32
	Compressed    bool
}

// Chunk is one fragment of an oversized payload in transit.
type Chunk struct {
	Header ChunkHeader
	Data   []byte
}

// ChunkerConfig tunes the chunker's size, timeout and compression policy.
type ChunkerConfig struct {
	MaxChunkSize         int
	ChunkTimeout         time.Duration
	EnableCompression    bool
	CompressionThreshold int
	CacheSize            int64
	// OutboundRateBytesPerSec and OutboundBurstBytes configure the
	// per-direction bandwidth limiter (§5). Zero rate disables limiting.
	OutboundRateBytesPerSec float64
	OutboundBurstBytes      float64
}

// DefaultChunkerConfig returns the spec's stated defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkSize:         DefaultMaxChunkSize,
		ChunkTimeout:         DefaultChunkTimeout,
		EnableCompression:    true,
		CompressionThreshold: DefaultCompressionThreshold,
		CacheSize:            1000,
	}
}

// Chunker splits oversized payloads into chunks for transmission and
// reassembles them on receipt, memoizing completed messages so duplicate
// delivery of the final chunk doesn't force a redundant reassembly.
type Chunker struct {
	cfg     ChunkerConfig
	zenc    *zstd.Encoder
	zdec    *zstd.Decoder
	reasm   *reassemblyTable
	memo    *memoCache
	limiter *BandwidthLimiter
}

// NewChunker constructs a Chunker. The zstd encoder/decoder are created once
// and reused across calls, matching the teacher's preference for
// constructing expensive codec state in a package constructor.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: construct zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: construct zstd decoder")
	}
	memo, err := newMemoCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	var limiter *BandwidthLimiter
	if cfg.OutboundRateBytesPerSec > 0 {
		limiter = NewBandwidthLimiter(cfg.OutboundRateBytesPerSec, cfg.OutboundBurstBytes)
	}
	return &Chunker{
		cfg:     cfg,
		zenc:    enc,
		zdec:    dec,
		reasm:   newReassemblyTable(),
		memo:    memo,
		limiter: limiter,
	}, nil
}

// Close releases the zstd codec state.
func (c *Chunker) Close() {
	c.zenc.Close()
	c.zdec.Close()
}

func (c *Chunker) compress(data []byte) []byte {
	return c.zenc.EncodeAll(data, nil)
}

func (c *Chunker) decompress(data []byte) ([]byte, error) {
	out, err := c.zdec.DecodeAll(data, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, err, "envelope: decompress chunk data")
	}
	return out, nil
}

// ChunkMessage splits id's payload into chunks if it exceeds MaxChunkSize,
// returning nil if no chunking is needed.
func (c *Chunker) ChunkMessage(id string, payload []byte) ([]Chunk, error) {
	if len(payload) <= c.cfg.MaxChunkSize {
		return nil, nil
	}

	compressed := false
	data := payload
	if c.cfg.EnableCompression && len(payload) > c.cfg.CompressionThreshold {
		candidate := c.compress(payload)
		if len(candidate) < len(payload) {
			data = candidate
			compressed = true
		}
	}

	hash := crypto.Hash(data)
	totalChunks := (len(data) + c.cfg.MaxChunkSize - 1) / c.cfg.MaxChunkSize
	if totalChunks > MaxChunks {
		return nil, errkind.New(errkind.Validation, "envelope: message exceeds max chunk count")
	}

	chunks := make([]Chunk, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := i * c.cfg.MaxChunkSize
		end := start + c.cfg.MaxChunkSize
		if end > len(data) {
			end = len(data)
		}
		body := data[start:end]
		chunks = append(chunks, Chunk{
			Header: ChunkHeader{
				MessageID:    id,
				TotalChunks:  uint32(totalChunks),
				ChunkIndex:   uint32(i),
				ChunkSize:    uint32(len(body)),
				MessageHash:  hash,
				OriginalSize: uint32(len(payload)),
				Compressed:   compressed,
			},
			Data: append([]byte(nil), body...),
		})
	}
	return chunks, nil
}

// WaitToSend blocks until chunk's bytes fit within the configured
// outbound bandwidth budget. It is a no-op when no limiter is
// configured, so callers can unconditionally gate dispatch on it.
func (c *Chunker) WaitToSend(ctx context.Context, chunk Chunk) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, len(chunk.Data))
}

func validateChunk(cfg ChunkerConfig, chunk Chunk) error {
	if chunk.Header.ChunkIndex >= chunk.Header.TotalChunks {
		return errkind.New(errkind.Validation, "envelope: chunk index out of range")
	}
	if int(chunk.Header.ChunkSize) != len(chunk.Data) {
		return errkind.New(errkind.Validation, "envelope: chunk size mismatch")
	}
	if int(chunk.Header.ChunkSize) > cfg.MaxChunkSize {
		return errkind.New(errkind.Validation, "envelope: chunk size exceeds maximum")
	}
	return nil
}

// ProcessChunk feeds one received chunk into reassembly. It returns the
// complete, decompressed payload once every chunk has arrived, or nil while
// reassembly is still Partial.
func (c *Chunker) ProcessChunk(now time.Time, chunk Chunk) ([]byte, error) {
	if err := validateChunk(c.cfg, chunk); err != nil {
		return nil, err
	}

	if cached, ok := c.memo.get(chunk.Header.MessageID); ok {
		return cached, nil
	}

	complete, state, err := c.reasm.add(now, c.cfg.ChunkTimeout, chunk)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, nil
	}

	data, err := reassemble(state)
	if err != nil {
		return nil, err
	}
	if state.header.Compressed {
		data, err = c.decompress(data)
		if err != nil {
			return nil, err
		}
	}
	c.memo.put(chunk.Header.MessageID, data)
	c.reasm.remove(chunk.Header.MessageID)
	return data, nil
}

// SweepExpired evicts reassembly states that have been idle past the
// configured timeout, transitioning them Partial -> Expired.
func (c *Chunker) SweepExpired(now time.Time) []string {
	return c.reasm.sweepExpired(now, c.cfg.ChunkTimeout)
}

// Stats reports chunker occupancy for metrics export.
type Stats struct {
	ActiveReassemblies int
	CacheSize          int
	ChunksWaiting      int
}

func (c *Chunker) Stats() Stats {
	active, waiting := c.reasm.stats()
	return Stats{
		ActiveReassemblies: active,
		CacheSize:          c.memo.len(),
		ChunksWaiting:      waiting,
	}
}

func reassemble(state *reassemblyState) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(state.header.OriginalSize))
	for i := uint32(0); i < state.header.TotalChunks; i++ {
		part, ok := state.chunks[i]
		if !ok {
			return nil, errkind.New(errkind.Validation, "envelope: missing chunk during reassembly")
		}
		buf.Write(part)
	}
	data := buf.Bytes()
	if crypto.Hash(data) != state.header.MessageHash {
		return nil, errkind.New(errkind.Validation, "envelope: reassembled message hash mismatch")
	}
	return data, nil
}
