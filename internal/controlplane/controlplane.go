// Package controlplane abstracts the session the orchestrator calls into for
// access tokens, product info, depot keys, manifest request codes, and the
// edge-server directory. The interface shape follows this codebase's existing
// single-interface/single-backend pattern for external collaborators; the one
// concrete implementation speaks the public HTTP/JSON Web API surface.
package controlplane

import (
	"context"
	"errors"

	"github.com/kenchrcum/steam-cdn-client/internal/pool"
)

// ErrDepotKeySize reports a depot key that was present in a control-plane
// response but was not exactly 32 bytes. Callers treat this as an invariant
// violation rather than a transport failure.
var ErrDepotKeySize = errors.New("controlplane: depot key has unexpected size")

// AppToken pairs an app id with the access token obtained for it.
type AppToken struct {
	AppID       uint32
	AccessToken string
}

// Client is the control-plane surface the orchestrator depends on.
type Client interface {
	// AccessTokens requests bearer tokens for the given apps. The response
	// may contain fewer entries than requested; callers proceed with
	// whatever came back.
	AccessTokens(ctx context.Context, appIDs []uint32) (map[uint32]string, error)

	// ProductInfo returns the raw VDF-encoded product info blob per app.
	ProductInfo(ctx context.Context, apps []AppToken, metaDataOnly bool) (map[uint32][]byte, error)

	// DepotKey returns the 32-byte decryption key for a depot, or nil if the
	// depot is unencrypted.
	DepotKey(ctx context.Context, appID, depotID uint32) (*[32]byte, error)

	// ManifestRequestCode returns the short-lived token that authorizes a
	// manifest fetch from the edge.
	ManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error)

	// ServerDirectory returns the current edge server list for a cell.
	ServerDirectory(ctx context.Context, cellID uint32) ([]pool.DirectoryEntry, error)
}
