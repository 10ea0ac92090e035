// Package manifest decodes a depot manifest blob: a zip-wrapped, multi-section
// framed protobuf payload describing a depot's files and their chunk layout.
package manifest

import "time"

// File flag bits, mirrored from the upstream manifest format.
const (
	FlagUserConfig          uint32 = 1 << 0
	FlagVersionedUserConfig uint32 = 1 << 1
	FlagEncrypted           uint32 = 1 << 2
	FlagReadOnly            uint32 = 1 << 3
	FlagHidden              uint32 = 1 << 4
	FlagExecutable          uint32 = 1 << 5
	FlagDirectory           uint32 = 1 << 6
	FlagSymlink             uint32 = 1 << 7
)

// ChunkDescriptor describes one independently addressable, encrypted,
// compressed slice of a file.
type ChunkDescriptor struct {
	SHA            [20]byte
	CRC            uint32
	Offset         uint64
	OriginalSize   uint32
	CompressedSize uint32
}

// ManifestFile is one entry in a depot's file table.
type ManifestFile struct {
	Name        string
	Size        uint64
	Flags       uint32
	SHAFileName [20]byte
	SHAContent  [20]byte
	Chunks      []ChunkDescriptor
	LinkTarget  string
}

// IsDirectory reports whether this entry represents a directory rather than
// file content.
func (f *ManifestFile) IsDirectory() bool {
	return f.Flags&FlagDirectory != 0
}

// IsSymlink reports whether this entry is a symbolic link.
func (f *ManifestFile) IsSymlink() bool {
	return f.Flags&FlagSymlink != 0
}

// DepotManifest is the decoded catalogue of files and chunks for one depot
// at one build.
type DepotManifest struct {
	DepotID            uint32
	GID                uint64
	CreationTime       time.Time
	FilenamesEncrypted bool
	OriginalSize       uint64
	CompressedSize     uint64
	Signature          []byte
	Files              []*ManifestFile
}
