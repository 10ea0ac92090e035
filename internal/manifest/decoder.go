package manifest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/kenchrcum/steam-cdn-client/internal/bytesreader"
	"github.com/kenchrcum/steam-cdn-client/internal/cdncrypto"
)

// Section magics, in required order.
const (
	magicPayload   uint32 = 0x71F617D0
	magicMetadata  uint32 = 0x1F4812BE
	magicSignature uint32 = 0x1B81B817
	magicEnd       uint32 = 0x32C415AB
)

// Decode parses a manifest blob: an outer zip archive whose first entry is
// a framed stream of magic-gated protobuf sections (payload, metadata,
// signature, end marker).
func Decode(blob []byte) (*DepotManifest, error) {
	inner, err := unwrapArchive(blob)
	if err != nil {
		return nil, fmt.Errorf("manifest: unwrapping archive: %w", err)
	}

	r := bytesreader.New(inner)

	payloadBody, err := readSection(r, magicPayload, "payload")
	if err != nil {
		return nil, err
	}
	metadataBody, err := readSection(r, magicMetadata, "metadata")
	if err != nil {
		return nil, err
	}
	signatureBody, err := readSection(r, magicSignature, "signature")
	if err != nil {
		return nil, err
	}
	endMagic, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("manifest: reading end marker: %w", err)
	}
	if endMagic != magicEnd {
		return nil, fmt.Errorf("manifest: expected end marker %#x, got %#x", magicEnd, endMagic)
	}

	meta, err := decodeMetadata(metadataBody)
	if err != nil {
		return nil, fmt.Errorf("manifest: decoding metadata: %w", err)
	}
	files, err := decodePayload(payloadBody)
	if err != nil {
		return nil, fmt.Errorf("manifest: decoding payload: %w", err)
	}

	dm := &DepotManifest{
		DepotID:            meta.depotID,
		GID:                meta.gidManifest,
		CreationTime:       time.Unix(int64(meta.creationTime), 0).UTC(),
		FilenamesEncrypted: meta.filenamesEncrypted,
		OriginalSize:       meta.cbDiskOriginal,
		CompressedSize:     meta.cbDiskCompressed,
		Signature:          signatureBody,
		Files:              files,
	}
	return dm, nil
}

// unwrapArchive treats blob as a zip archive and returns the fully
// decompressed bytes of its first entry.
func unwrapArchive(blob []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("manifest: opening zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("manifest: archive has no entries")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("manifest: opening entry: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// readSection reads one [u32 magic][u32 len][body] frame and verifies the
// magic matches wantMagic.
func readSection(r *bytesreader.Reader, wantMagic uint32, name string) ([]byte, error) {
	got, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %s magic: %w", name, err)
	}
	if got != wantMagic {
		return nil, fmt.Errorf("manifest: expecting %s section (magic %#x), got %#x", name, wantMagic, got)
	}
	body, err := r.ReadLengthPrefixed()
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %s body: %w", name, err)
	}
	return body, nil
}

// metadataFields mirrors ContentManifestMetadata's wire field numbers.
type metadataFields struct {
	depotID            uint32
	gidManifest        uint64
	creationTime       uint32
	filenamesEncrypted bool
	cbDiskOriginal     uint64
	cbDiskCompressed   uint64
}

func decodeMetadata(body []byte) (metadataFields, error) {
	var m metadataFields
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1: // depot_id
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("depot_id: %w", protowire.ParseError(n))
			}
			m.depotID = uint32(v)
			b = b[n:]
		case 2: // gid_manifest
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("gid_manifest: %w", protowire.ParseError(n))
			}
			m.gidManifest = v
			b = b[n:]
		case 3: // creation_time
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("creation_time: %w", protowire.ParseError(n))
			}
			m.creationTime = uint32(v)
			b = b[n:]
		case 4: // filenames_encrypted
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("filenames_encrypted: %w", protowire.ParseError(n))
			}
			m.filenamesEncrypted = v != 0
			b = b[n:]
		case 5: // cb_disk_original
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("cb_disk_original: %w", protowire.ParseError(n))
			}
			m.cbDiskOriginal = v
			b = b[n:]
		case 6: // cb_disk_compressed
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, fmt.Errorf("cb_disk_compressed: %w", protowire.ParseError(n))
			}
			m.cbDiskCompressed = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, fmt.Errorf("skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func decodePayload(body []byte) ([]*ManifestFile, error) {
	var files []*ManifestFile
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num != 1 || typ != protowire.BytesType { // mappings
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("reading mapping: %w", protowire.ParseError(n))
		}
		b = b[n:]

		file, err := decodeFileMapping(msg)
		if err != nil {
			return nil, fmt.Errorf("decoding file mapping: %w", err)
		}
		files = append(files, file)
	}
	return files, nil
}

func decodeFileMapping(body []byte) (*ManifestFile, error) {
	f := &ManifestFile{}
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType: // filename
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("filename: %w", protowire.ParseError(n))
			}
			f.Name = string(v)
			b = b[n:]
		case num == 2: // size
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("size: %w", protowire.ParseError(n))
			}
			f.Size = v
			b = b[n:]
		case num == 3: // flags
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("flags: %w", protowire.ParseError(n))
			}
			f.Flags = uint32(v)
			b = b[n:]
		case num == 4 && typ == protowire.BytesType: // sha_filename
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("sha_filename: %w", protowire.ParseError(n))
			}
			copy(f.SHAFileName[:], v)
			b = b[n:]
		case num == 5 && typ == protowire.BytesType: // sha_content
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("sha_content: %w", protowire.ParseError(n))
			}
			copy(f.SHAContent[:], v)
			b = b[n:]
		case num == 6 && typ == protowire.BytesType: // chunks
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("chunk: %w", protowire.ParseError(n))
			}
			chunk, err := decodeChunkData(v)
			if err != nil {
				return nil, fmt.Errorf("decoding chunk: %w", err)
			}
			f.Chunks = append(f.Chunks, chunk)
			b = b[n:]
		case num == 7 && typ == protowire.BytesType: // linktarget
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("linktarget: %w", protowire.ParseError(n))
			}
			f.LinkTarget = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

func decodeChunkData(body []byte) (ChunkDescriptor, error) {
	var c ChunkDescriptor
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType: // sha
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("sha: %w", protowire.ParseError(n))
			}
			copy(c.SHA[:], v)
			b = b[n:]
		case num == 2: // crc (fixed32)
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return c, fmt.Errorf("crc: %w", protowire.ParseError(n))
			}
			c.CRC = v
			b = b[n:]
		case num == 3: // offset
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("offset: %w", protowire.ParseError(n))
			}
			c.Offset = v
			b = b[n:]
		case num == 4: // cb_original
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("cb_original: %w", protowire.ParseError(n))
			}
			c.OriginalSize = uint32(v)
			b = b[n:]
		case num == 5: // cb_compressed
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("cb_compressed: %w", protowire.ParseError(n))
			}
			c.CompressedSize = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, fmt.Errorf("skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return c, nil
}

// DecryptFilenames mutates dm's files in place, replacing each base64-encoded
// ciphertext name with its decrypted UTF-8 form, and returns dm so the call
// can be chained. It fails (and leaves dm partially mutated) if any filename
// fails to decrypt or decode as UTF-8.
func DecryptFilenames(dm *DepotManifest, depotKey [cdncrypto.KeySize]byte) (*DepotManifest, error) {
	if !dm.FilenamesEncrypted {
		return dm, nil
	}
	for _, f := range dm.Files {
		raw, err := cdncrypto.DecodeBase64(f.Name)
		if err != nil {
			return dm, fmt.Errorf("manifest: decoding filename base64 for %q: %w", f.Name, err)
		}
		plain, err := cdncrypto.DecryptCBCWithEmbeddedIV(raw, depotKey)
		if err != nil {
			return dm, fmt.Errorf("manifest: decrypting filename: %w", err)
		}
		trimmed := bytes.TrimRight(plain, "\x00")
		if !utf8.Valid(trimmed) {
			return dm, fmt.Errorf("manifest: decrypted filename is not valid UTF-8")
		}
		f.Name = string(trimmed)
	}
	dm.FilenamesEncrypted = false
	return dm, nil
}
