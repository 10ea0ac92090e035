package cdncrypto

import (
	"sync"
	"sync/atomic"
)

// Buffer size classes used by the chunk pipeline. Decrypted chunk payloads
// cluster just under 1 MiB (the upstream chunking target), while copy
// buffers for container decompression want something much smaller.
const (
	SizeCopyBuffer = 64 * 1024
	SizeChunk      = 1024 * 1024
)

// BufferPool recycles transient buffers in two buckets: 64 KiB copy buffers,
// which the chunk pipeline's readAllPooled drain uses for container
// decompression, and chunk-sized scratch buffers, which the pipeline does
// not use. Buckets are backed by sync.Pool so idle buffers are reclaimed
// under memory pressure.
type BufferPool struct {
	copyPool  sync.Pool
	chunkPool sync.Pool

	copyGets    atomic.Int64
	copyMisses  atomic.Int64
	chunkGets   atomic.Int64
	chunkMisses atomic.Int64
}

// NewBufferPool constructs an empty pool.
func NewBufferPool() *BufferPool {
	p := &BufferPool{}
	p.copyPool.New = func() interface{} {
		p.copyMisses.Add(1)
		buf := make([]byte, SizeCopyBuffer)
		return &buf
	}
	p.chunkPool.New = func() interface{} {
		p.chunkMisses.Add(1)
		buf := make([]byte, 0, SizeChunk)
		return &buf
	}
	return p
}

var (
	globalPool     *BufferPool
	globalPoolOnce sync.Once
)

// GetGlobalBufferPool returns the process-wide pool shared by every chunk
// pipeline invocation.
func GetGlobalBufferPool() *BufferPool {
	globalPoolOnce.Do(func() {
		globalPool = NewBufferPool()
	})
	return globalPool
}

// GetCopyBuffer returns a 64 KiB buffer for io.CopyBuffer-style use.
func (p *BufferPool) GetCopyBuffer() *[]byte {
	p.copyGets.Add(1)
	return p.copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a copy buffer to the pool.
func (p *BufferPool) PutCopyBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) != SizeCopyBuffer {
		return
	}
	*buf = (*buf)[:SizeCopyBuffer]
	p.copyPool.Put(buf)
}

// GetChunkBuffer returns a zero-length buffer with chunk-sized capacity,
// suitable as the accumulation target for one decompressed chunk.
func (p *BufferPool) GetChunkBuffer() *[]byte {
	p.chunkGets.Add(1)
	buf := p.chunkPool.Get().(*[]byte)
	*buf = (*buf)[:0]
	return buf
}

// PutChunkBuffer returns a chunk buffer to the pool. Buffers that grew far
// past the size class are dropped rather than pooled, so one oversized chunk
// doesn't pin a large allocation forever.
func (p *BufferPool) PutChunkBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) > 4*SizeChunk {
		return
	}
	p.chunkPool.Put(buf)
}

// Metrics is a point-in-time snapshot of pool efficiency. Gets counts every
// buffer request; Misses counts the subset that had to allocate.
type Metrics struct {
	CopyGets    int64
	CopyMisses  int64
	ChunkGets   int64
	ChunkMisses int64
}

// GetMetrics returns a snapshot of the pool's counters.
func (p *BufferPool) GetMetrics() Metrics {
	return Metrics{
		CopyGets:    p.copyGets.Load(),
		CopyMisses:  p.copyMisses.Load(),
		ChunkGets:   p.chunkGets.Load(),
		ChunkMisses: p.chunkMisses.Load(),
	}
}

// CopyHitRate reports the fraction of copy-buffer requests served without a
// new allocation.
func (m Metrics) CopyHitRate() float64 {
	if m.CopyGets == 0 {
		return 0
	}
	return float64(m.CopyGets-m.CopyMisses) / float64(m.CopyGets)
}

// ChunkHitRate reports the fraction of chunk-buffer requests served without
// a new allocation.
func (m Metrics) ChunkHitRate() float64 {
	if m.ChunkGets == 0 {
		return 0
	}
	return float64(m.ChunkGets-m.ChunkMisses) / float64(m.ChunkGets)
}
