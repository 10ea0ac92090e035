// Package signing provides the optional, never-default-path plumbing for
// verifying a depot manifest's signature section. It is modeled on this
// codebase's existing KMS key-manager interface, narrowed to a read-only
// public-key lookup.
package signing

import (
	"context"
	"errors"
	"fmt"

	kmip "github.com/ovh/kmip-go"
	"github.com/ovh/kmip-go/kmipclient"
	"github.com/ovh/kmip-go/payloads"
)

// KeyProvider supplies the public key that would verify a manifest's
// signature section. No default Client constructs one; a caller opts in
// explicitly.
type KeyProvider interface {
	Provider() string
	PublicKey(ctx context.Context, keyID string) ([]byte, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrSignatureUnverified is returned when a manifest signature has not been
// checked (no signature bytes, no KeyProvider, or a fetched key that is not
// applied), so "not checked" is never confused with "checked and valid".
var ErrSignatureUnverified = errors.New("signing: no key provider configured, signature not verified")

// KeyReference names one KMIP-managed key by id and version.
type KeyReference struct {
	ID      string
	Version int
}

// CosmianKMIPOptions configures a KMIP-backed KeyProvider.
type CosmianKMIPOptions struct {
	Endpoint string
	Keys     []KeyReference
}

// cosmianKMIPProvider fetches manifest-signature public keys from a Cosmian
// KMIP server via github.com/ovh/kmip-go, mirroring the wrap/unwrap KMS
// abstraction this codebase already uses for object encryption keys.
type cosmianKMIPProvider struct {
	opts   CosmianKMIPOptions
	client *kmipclient.Client
}

// NewCosmianKMIPProvider constructs a KeyProvider backed by a KMIP server.
// Construction is cheap; the KMIP session is established lazily on first use.
func NewCosmianKMIPProvider(opts CosmianKMIPOptions) (KeyProvider, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("signing: endpoint is required")
	}
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("signing: at least one key reference is required")
	}
	return &cosmianKMIPProvider{opts: opts}, nil
}

func (p *cosmianKMIPProvider) Provider() string {
	return "cosmian-kmip"
}

// PublicKey issues a KMIP Get operation for keyID and returns the DER-encoded
// public key material.
func (p *cosmianKMIPProvider) PublicKey(ctx context.Context, keyID string) ([]byte, error) {
	for _, k := range p.opts.Keys {
		if k.ID == keyID {
			return p.fetchPublicKey(ctx, k)
		}
	}
	return nil, fmt.Errorf("signing: unknown key id %q", keyID)
}

func (p *cosmianKMIPProvider) fetchPublicKey(ctx context.Context, ref KeyReference) ([]byte, error) {
	client, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("signing: dialing kmip endpoint %q: %w", p.opts.Endpoint, err)
	}

	resp, err := client.Request(ctx, &payloads.GetRequestPayload{
		UniqueIdentifier: ref.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("signing: kmip get operation for key %q: %w", ref.ID, err)
	}
	get, ok := resp.(*payloads.GetResponsePayload)
	if !ok {
		return nil, fmt.Errorf("signing: unexpected kmip response type %T", resp)
	}
	return publicKeyBytes(get.Object)
}

// publicKeyBytes extracts the raw key material from a KMIP-managed object,
// which must be a public key carrying raw key-block bytes.
func publicKeyBytes(obj kmip.Object) ([]byte, error) {
	pub, ok := obj.(*kmip.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing: kmip object is %T, not a public key", obj)
	}
	kv := pub.KeyBlock.KeyValue
	if kv == nil || kv.Plain == nil || kv.Plain.KeyMaterial.Bytes == nil {
		return nil, fmt.Errorf("signing: kmip public key carries no raw key material")
	}
	return *kv.Plain.KeyMaterial.Bytes, nil
}

func (p *cosmianKMIPProvider) dial() (*kmipclient.Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	client, err := kmipclient.Dial(p.opts.Endpoint)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *cosmianKMIPProvider) HealthCheck(ctx context.Context) error {
	if len(p.opts.Keys) == 0 {
		return fmt.Errorf("signing: no keys configured")
	}
	return nil
}

func (p *cosmianKMIPProvider) Close(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
