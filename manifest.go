package steamcdn

import (
	"context"
	"time"

	intmanifest "github.com/kenchrcum/steam-cdn-client/internal/manifest"
	"github.com/kenchrcum/steam-cdn-client/internal/signing"
	"github.com/ryanuber/go-glob"
)

// Manifest is a decoded depot manifest bound to the orchestrator that
// fetched it, so its ManifestFile handles can launch downloads without the
// caller re-passing a Client.
type Manifest struct {
	client  *Client
	depotID uint32
	dm      *intmanifest.DepotManifest
}

// DepotID returns the depot id this manifest belongs to.
func (m *Manifest) DepotID() uint32 { return m.dm.DepotID }

// GID returns the manifest's globally unique identifier.
func (m *Manifest) GID() uint64 { return m.dm.GID }

// CreationTime returns when this manifest build was created.
func (m *Manifest) CreationTime() time.Time { return m.dm.CreationTime }

// FilenamesEncrypted reports whether file names in this manifest are still
// base64-encoded ciphertext (true) or have been decrypted to UTF-8 (false).
func (m *Manifest) FilenamesEncrypted() bool { return m.dm.FilenamesEncrypted }

// OriginalSize returns the depot's total uncompressed size across all files.
func (m *Manifest) OriginalSize() uint64 { return m.dm.OriginalSize }

// CompressedSize returns the depot's total compressed size across all files.
func (m *Manifest) CompressedSize() uint64 { return m.dm.CompressedSize }

// AllFiles returns every file in the manifest, unfiltered.
func (m *Manifest) AllFiles() []*ManifestFile {
	out := make([]*ManifestFile, len(m.dm.Files))
	for i, f := range m.dm.Files {
		out[i] = &ManifestFile{client: m.client, depotID: m.depotID, file: f}
	}
	return out
}

// Files selects the subset of files whose name matches pattern, where '*'
// is the only wildcard (e.g. "*.dll"), so a caller can write
// manifest.Files("*.dll") instead of iterating and filtering by hand.
func (m *Manifest) Files(pattern string) []*ManifestFile {
	var out []*ManifestFile
	for _, f := range m.dm.Files {
		if glob.Glob(pattern, f.Name) {
			out = append(out, &ManifestFile{client: m.client, depotID: m.depotID, file: f})
		}
	}
	return out
}

// File returns the single file named name, if present.
func (m *Manifest) File(name string) (*ManifestFile, bool) {
	for _, f := range m.dm.Files {
		if f.Name == name {
			return &ManifestFile{client: m.client, depotID: m.depotID, file: f}, true
		}
	}
	return nil, false
}

// VerifySignature fetches the public key named keyID through provider. The
// embedded signature bytes are not checked against that key: it returns
// signing.ErrSignatureUnverified when the manifest carries no signature,
// when provider is nil, and after every successful key fetch; a key-fetch
// failure is returned as is. Never invoked by Manifest or Download.
func (m *Manifest) VerifySignature(ctx context.Context, provider signing.KeyProvider, keyID string) error {
	if len(m.dm.Signature) == 0 || provider == nil {
		return signing.ErrSignatureUnverified
	}
	if _, err := provider.PublicKey(ctx, keyID); err != nil {
		return err
	}
	// The upstream manifest signature scheme is not publicly documented in
	// enough detail to verify bit-for-bit here; this wires the key-fetch
	// path so a caller supplying their own verification can plug in above
	// without this package needing to change.
	return signing.ErrSignatureUnverified
}
