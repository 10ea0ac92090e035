package cdncrypto

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"runtime"

	"github.com/ulikunitz/xz/lzma"
)

// Container magics recognized at the start of a decrypted chunk payload.
const (
	magicVZ0 = 'V'
	magicVZ1 = 'Z'
	magicPK0 = 'P'
	magicPK1 = 'K'

	vzTailSize = 8 // 4-byte CRC32 + 4-byte decompressed length, little-endian
)

// ProcessChunk decrypts a raw encrypted chunk body and inflates it according
// to its container magic ("VZ" LZMA-variant or "PK" zip). It is pure and
// stateless; callers are responsible for verifying the result against the
// owning ChunkDescriptor's recorded size and CRC.
func ProcessChunk(rawBody []byte, depotKey [KeySize]byte) ([]byte, error) {
	plaintext, err := DecryptCBCWithEmbeddedIV(rawBody, depotKey)
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: decrypting chunk: %w", err)
	}
	if len(plaintext) < 2 {
		return nil, fmt.Errorf("cdncrypto: decrypted chunk too short to carry a container magic")
	}

	switch {
	case plaintext[0] == magicVZ0 && plaintext[1] == magicVZ1:
		return inflateVZ(plaintext)
	case plaintext[0] == magicPK0 && plaintext[1] == magicPK1:
		return inflatePK(plaintext)
	default:
		return nil, fmt.Errorf("cdncrypto: unrecognized chunk container magic %q", plaintext[:2])
	}
}

// inflateVZ decodes Valve's VZip container: 2-byte magic, 1-byte format tag,
// a 5-byte LZMA properties+dictionary-size header, the compressed stream, and
// an 8-byte tail holding the CRC32 and length of the decompressed output.
func inflateVZ(data []byte) ([]byte, error) {
	const headerLen = 2 + 1 + 5
	if len(data) < headerLen+vzTailSize {
		return nil, fmt.Errorf("cdncrypto: vz container too short")
	}

	formatTag := data[2]
	if formatTag != 'a' {
		return nil, fmt.Errorf("cdncrypto: unsupported vz format tag %q", formatTag)
	}

	props := data[3:8]
	compressed := data[headerLen : len(data)-vzTailSize]
	tail := data[len(data)-vzTailSize:]
	wantCRC := binary.LittleEndian.Uint32(tail[0:4])
	wantLen := binary.LittleEndian.Uint32(tail[4:8])

	// The container carries only the 5 LZMA properties bytes; the classic
	// .lzma header the decoder expects also includes the 8-byte uncompressed
	// size, which the container records in its tail instead.
	stream := make([]byte, 0, 13+len(compressed))
	stream = append(stream, props...)
	stream = binary.LittleEndian.AppendUint64(stream, uint64(wantLen))
	stream = append(stream, compressed...)

	r, err := lzma.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: constructing lzma reader: %w", err)
	}
	plain, err := readAllPooled(r, int(wantLen))
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: lzma decompression: %w", err)
	}
	if uint32(len(plain)) != wantLen {
		return nil, fmt.Errorf("cdncrypto: vz decompressed length mismatch: got %d want %d", len(plain), wantLen)
	}
	if crc32.ChecksumIEEE(plain) != wantCRC {
		return nil, fmt.Errorf("cdncrypto: vz crc mismatch")
	}
	return plain, nil
}

// inflatePK decodes a single-entry zip container, returning the first entry's
// fully decompressed bytes.
func inflatePK(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: opening pk container: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("cdncrypto: pk container has no entries")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: opening pk entry: %w", err)
	}
	defer f.Close()

	out, err := readAllPooled(f, int(zr.File[0].UncompressedSize64))
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: reading pk entry: %w", err)
	}
	return out, nil
}

// readAllPooled drains r into a fresh slice sized by sizeHint, staging reads
// through a pooled copy buffer so concurrent chunk decompression doesn't
// allocate a transfer buffer per chunk.
func readAllPooled(r io.Reader, sizeHint int) ([]byte, error) {
	pool := GetGlobalBufferPool()
	cb := pool.GetCopyBuffer()
	defer pool.PutCopyBuffer(cb)

	if sizeHint < 0 {
		sizeHint = 0
	}
	out := make([]byte, 0, sizeHint)
	for {
		n, err := r.Read(*cb)
		out = append(out, (*cb)[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// chunkJob is one unit of parallel chunk work, mirroring the feeder/job-channel
// shape this codebase uses for its other cryptographic worker pools.
type chunkJob struct {
	index    int
	rawBody  []byte
	depotKey [KeySize]byte
	output   []byte
	err      error
}

// ProcessChunksParallel decrypts and inflates a batch of independently
// addressable chunk bodies across a bounded worker pool, returning results
// in the same order as the input. The worker count is the host's CPU count,
// raised to at least two and never more than the number of chunks.
func ProcessChunksParallel(bodies [][]byte, depotKey [KeySize]byte) ([][]byte, error) {
	n := len(bodies)
	if n == 0 {
		return nil, nil
	}

	concurrency := runtime.NumCPU()
	if concurrency < 2 {
		concurrency = 2
	}
	if concurrency > n {
		concurrency = n
	}

	jobs := make(chan *chunkJob, n)
	results := make([]*chunkJob, n)
	for i, body := range bodies {
		j := &chunkJob{index: i, rawBody: body, depotKey: depotKey}
		results[i] = j
		jobs <- j
	}
	close(jobs)

	done := make(chan struct{})
	for w := 0; w < concurrency; w++ {
		go func() {
			for j := range jobs {
				j.output, j.err = ProcessChunk(j.rawBody, j.depotKey)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < concurrency; w++ {
		<-done
	}

	out := make([][]byte, n)
	for i, j := range results {
		if j.err != nil {
			return nil, fmt.Errorf("cdncrypto: chunk %d: %w", i, j.err)
		}
		out[i] = j.output
	}
	return out, nil
}
