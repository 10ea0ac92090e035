package steamcdn

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/kenchrcum/steam-cdn-client/internal/cdncrypto"
	intmanifest "github.com/kenchrcum/steam-cdn-client/internal/manifest"
)

func newContentHasher() hash.Hash {
	return sha1.New()
}

func shaEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// ByteRange selects a half-open [Start, End) span of a file's logical bytes.
type ByteRange struct {
	Start uint64
	End   uint64
}

func (r *ByteRange) overlaps(offset, size uint64) bool {
	if r == nil {
		return true
	}
	chunkEnd := offset + size
	return offset < r.End && chunkEnd > r.Start
}

// ManifestFile is one file entry from a decoded manifest, bound to the
// orchestrator that can fetch its chunks.
type ManifestFile struct {
	client  *Client
	depotID uint32
	file    *intmanifest.ManifestFile
}

// Name returns the file's path within the depot.
func (f *ManifestFile) Name() string { return f.file.Name }

// Size returns the file's total logical (uncompressed, decrypted) size.
func (f *ManifestFile) Size() uint64 { return f.file.Size }

// IsDirectory reports whether this entry is a directory rather than content.
func (f *ManifestFile) IsDirectory() bool { return f.file.IsDirectory() }

// IsSymlink reports whether this entry is a symbolic link.
func (f *ManifestFile) IsSymlink() bool { return f.file.IsSymlink() }

// LinkTarget returns the symlink target, empty if this is not a symlink.
func (f *ManifestFile) LinkTarget() string { return f.file.LinkTarget }

// Chunks returns the ordered chunk descriptors backing this file's content.
func (f *ManifestFile) Chunks() []intmanifest.ChunkDescriptor { return f.file.Chunks }

// Download fetches every chunk backing this file, in file order, decrypting
// and decompressing each through the chunk pipeline, verifying its size and
// CRC, and writing it to w at its offset. If rng is non-nil, chunks entirely
// outside the range are skipped, partially-overlapping chunks are trimmed to
// the overlapping bytes, and the write offset is shifted by -rng.Start so a
// caller that only wants the range gets a tightly packed buffer rather than
// a sparse full-size file.
func (f *ManifestFile) Download(ctx context.Context, depotKey [32]byte, rng *ByteRange, w io.WriterAt) error {
	const op = "ManifestFile.Download"

	for _, chunk := range f.file.Chunks {
		if !rng.overlaps(chunk.Offset, uint64(chunk.OriginalSize)) {
			continue
		}

		chunkID := cdncrypto.EncodeBase64(chunk.SHA[:])
		decoded, err := f.client.Chunk(ctx, f.depotID, depotKey, chunkID)
		if err != nil {
			return err
		}

		if uint32(len(decoded)) != chunk.OriginalSize {
			return wrapErr(op, KindManifest, fmt.Errorf("chunk %s: size mismatch: got %d, want %d", chunkID, len(decoded), chunk.OriginalSize))
		}
		if crc32.ChecksumIEEE(decoded) != chunk.CRC {
			return wrapErr(op, KindManifest, fmt.Errorf("chunk %s: crc mismatch", chunkID))
		}

		writeOffset := int64(chunk.Offset)
		payload := decoded
		if rng != nil {
			payload, writeOffset = trimToRange(decoded, chunk.Offset, *rng)
			writeOffset -= int64(rng.Start)
		}
		if len(payload) == 0 {
			continue
		}
		if _, err := w.WriteAt(payload, writeOffset); err != nil {
			return wrapErr(op, KindRequest, fmt.Errorf("writing chunk %s: %w", chunkID, err))
		}
	}
	return nil
}

// trimToRange clips decoded (whose absolute start is chunkOffset) to the
// portion overlapping rng, returning the trimmed bytes and their absolute
// start offset.
func trimToRange(decoded []byte, chunkOffset uint64, rng ByteRange) ([]byte, int64) {
	chunkEnd := chunkOffset + uint64(len(decoded))
	start := chunkOffset
	if start < rng.Start {
		start = rng.Start
	}
	end := chunkEnd
	if end > rng.End {
		end = rng.End
	}
	if start >= end {
		return nil, int64(chunkOffset)
	}
	return decoded[start-chunkOffset : end-chunkOffset], int64(start)
}

// VerifyContentSHA downloads and hashes every chunk of this file and checks
// the result against the manifest's recorded whole-file SHA-1. This is an
// advisory, opt-in full-file integrity check; Download never calls it.
func (f *ManifestFile) VerifyContentSHA(ctx context.Context, depotKey [32]byte) error {
	const op = "ManifestFile.VerifyContentSHA"

	h := newContentHasher()
	for _, chunk := range f.file.Chunks {
		chunkID := cdncrypto.EncodeBase64(chunk.SHA[:])
		decoded, err := f.client.Chunk(ctx, f.depotID, depotKey, chunkID)
		if err != nil {
			return err
		}
		h.Write(decoded)
	}
	if sum := h.Sum(nil); !shaEqual(sum, f.file.SHAContent[:]) {
		return wrapErr(op, KindManifest, fmt.Errorf("content sha mismatch for %s", f.file.Name))
	}
	return nil
}
