// Package steamcdn is a client library for a Steam-style content-distribution
// network: it discovers edge servers, talks to a control plane for access
// tokens and depot keys, fetches and decodes depot manifests, and streams
// decrypted file chunks from the edge.
package steamcdn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kenchrcum/steam-cdn-client/internal/audit"
	"github.com/kenchrcum/steam-cdn-client/internal/cache"
	"github.com/kenchrcum/steam-cdn-client/internal/cdncrypto"
	"github.com/kenchrcum/steam-cdn-client/internal/config"
	"github.com/kenchrcum/steam-cdn-client/internal/controlplane"
	"github.com/kenchrcum/steam-cdn-client/internal/debug"
	intmanifest "github.com/kenchrcum/steam-cdn-client/internal/manifest"
	"github.com/kenchrcum/steam-cdn-client/internal/metrics"
	"github.com/kenchrcum/steam-cdn-client/internal/pool"
	"github.com/kenchrcum/steam-cdn-client/internal/tracing"
	"github.com/kenchrcum/steam-cdn-client/internal/vdf"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	manifestRequestCodeTTL = 5 * time.Minute
	serverDirectoryTTL     = 2 * time.Minute
)

// Client is the request orchestrator: it owns the server pool, the ephemeral
// cache, and the HTTP client used for every edge GET, and it is the entry
// point for every public operation this library exposes.
type Client struct {
	cp       controlplane.Client
	pool     *pool.Pool
	http     *http.Client
	cache    cache.Cache
	metrics  *metrics.Metrics
	audit    audit.Logger
	log      *logrus.Logger
	tracer   *tracing.Provider
	cacheTTL time.Duration
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCache overrides the default in-process cache with cache.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithCacheTTL overrides the TTL applied to cached manifest request codes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) { cl.cacheTTL = ttl }
}

// WithMetrics attaches a metrics recorder. If omitted, operations run
// without recording metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithAuditLogger attaches an audit trail. If omitted, operations run
// without audit logging.
func WithAuditLogger(a audit.Logger) Option {
	return func(cl *Client) { cl.audit = a }
}

// WithLogger overrides the default logrus.Logger.
func WithLogger(l *logrus.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithHTTPClient overrides the tuned default *http.Client used for edge GETs.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// WithTracing attaches an OpenTelemetry tracer provider. If omitted,
// operations use the global no-op tracer.
func WithTracing(p *tracing.Provider) Option {
	return func(cl *Client) { cl.tracer = p }
}

// NewClient constructs an orchestrator bound to cp and cellID, applying opts.
func NewClient(cp controlplane.Client, cellID uint32, opts ...Option) *Client {
	cl := &Client{
		cp:       cp,
		http:     newTunedHTTPClient(),
		cache:    cache.NewMemory(),
		log:      logrus.New(),
		cacheTTL: manifestRequestCodeTTL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.tracer == nil {
		noop, _ := tracing.NewProvider(config.TracingConfig{})
		cl.tracer = noop
	}
	cl.pool = pool.New(cellID, cl.refreshServerDirectory)
	return cl
}

// newTunedHTTPClient mirrors this codebase's existing download-tuned
// transport: generous dial/keepalive handling and no overall client
// timeout, since chunk and manifest bodies can be large and slow.
func newTunedHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// refreshServerDirectory feeds the pool, short-circuiting through the
// ephemeral cache so a burst of refreshes (or a fleet of processes sharing
// a Redis cache) doesn't hammer the directory service.
func (c *Client) refreshServerDirectory(ctx context.Context, cellID uint32) ([]pool.DirectoryEntry, error) {
	key := fmt.Sprintf("server-directory:%d", cellID)
	if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var entries []pool.DirectoryEntry
		if json.Unmarshal(cached, &entries) == nil {
			if c.metrics != nil {
				c.metrics.RecordCacheHit("server_directory")
			}
			return entries, nil
		}
	} else if c.metrics != nil {
		c.metrics.RecordCacheMiss("server_directory")
	}

	entries, err := c.cp.ServerDirectory(ctx, cellID)
	if c.metrics != nil {
		c.metrics.RecordPoolRefresh()
	}
	if c.audit != nil {
		c.audit.LogAccess("pool_refresh", "", "", err == nil, err, 0)
	}
	if err != nil {
		return nil, err
	}
	if encoded, encErr := json.Marshal(entries); encErr == nil {
		_ = c.cache.Set(ctx, key, encoded, serverDirectoryTTL)
	}
	return entries, nil
}

// AppDepots is the parsed depot table for one application.
type AppDepots struct {
	AppID  uint32
	Depots []Depot
}

// Depot is one depot's branch-to-manifest table.
type Depot struct {
	DepotID   uint32
	Manifests map[string]ManifestInfo
}

// ManifestInfo describes one branch's manifest within a depot.
type ManifestInfo struct {
	GID          uint64
	Size         uint64
	DownloadSize uint64
	Encrypted    bool
}

// ListDepots requests product info for appIDs and parses every returned
// key-value buffer into a depot/branch/manifest table.
func (c *Client) ListDepots(ctx context.Context, appIDs []uint32) ([]AppDepots, error) {
	const op = "Client.ListDepots"
	ctx, span := c.tracer.StartSpan(ctx, op)
	defer span.End()
	start := time.Now()

	tokens, err := c.cp.AccessTokens(ctx, appIDs)
	if err != nil {
		return nil, c.fail(op, KindNetwork, err, 0, 0, 0, start)
	}

	apps := make([]controlplane.AppToken, 0, len(tokens))
	for appID, token := range tokens {
		apps = append(apps, controlplane.AppToken{AppID: appID, AccessToken: token})
	}

	blobs, err := c.cp.ProductInfo(ctx, apps, false)
	if err != nil {
		return nil, c.fail(op, KindNetwork, err, 0, 0, 0, start)
	}

	var result []AppDepots
	for appID, blob := range blobs {
		root, err := vdf.Parse(blob)
		if err != nil {
			c.log.WithError(err).WithField("app_id", appID).Debug("skipping unparsable product info")
			continue
		}
		// The product-info buffer wraps everything in a single app-root key
		// ("730" { ... "depots" { ... } }); descend into it before looking
		// up the depots subtree.
		var depotsNode *vdf.Node
		found := false
		for _, appRoot := range root.Children {
			if depotsNode, found = appRoot.Get("depots"); found {
				break
			}
		}
		if !found {
			continue
		}
		ad := AppDepots{AppID: appID}
		for _, depotNode := range depotsNode.Children {
			depotID, err := parseDepotID(depotNode.Key)
			if err != nil {
				continue
			}
			depot := Depot{DepotID: depotID, Manifests: make(map[string]ManifestInfo)}
			if err := parseManifestBranches(depotNode, depot.Manifests); err != nil {
				return nil, c.fail(op, KindNoneOption, err, appID, depotID, 0, start)
			}
			ad.Depots = append(ad.Depots, depot)
		}
		result = append(result, ad)
	}

	c.logSuccess(op, start)
	return result, nil
}

func parseDepotID(key string) (uint32, error) {
	id, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

func parseManifestBranches(depotNode *vdf.Node, out map[string]ManifestInfo) error {
	for _, sub := range depotNode.Children {
		key := sub.Key
		encrypted := false
		switch {
		case strings.EqualFold(key, "manifests"):
		case len(key) >= len("encrypted") && strings.EqualFold(key[:len("encrypted")], "encrypted"):
			encrypted = true
		default:
			continue
		}
		for _, branchNode := range sub.Children {
			gidNode, ok := branchNode.Get("gid")
			if !ok {
				return fmt.Errorf("depot branch %q: missing gid", branchNode.Key)
			}
			gid, err := strconv.ParseUint(gidNode.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("depot branch %q: invalid gid: %w", branchNode.Key, err)
			}
			size, _ := branchNode.Get("size")
			download, _ := branchNode.Get("download")
			sizeVal, _ := size.Int()
			downloadVal, _ := download.Int()
			out[branchNode.Key] = ManifestInfo{
				GID:          gid,
				Size:         uint64(sizeVal),
				DownloadSize: uint64(downloadVal),
				Encrypted:    encrypted,
			}
		}
	}
	return nil
}

// DepotKey fetches the 32-byte decryption key for a depot. A nil return
// with a nil error means the depot is unencrypted.
func (c *Client) DepotKey(ctx context.Context, appID, depotID uint32) (*[32]byte, error) {
	const op = "Client.DepotKey"
	ctx, span := c.tracer.StartSpan(ctx, op, attribute.Int64("app_id", int64(appID)), attribute.Int64("depot_id", int64(depotID)))
	defer span.End()
	start := time.Now()

	key, err := c.cp.DepotKey(ctx, appID, depotID)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, controlplane.ErrDepotKeySize) {
			kind = KindUnexpected
		}
		return nil, c.fail(op, kind, err, appID, depotID, 0, start)
	}
	c.logSuccess(op, start)
	return key, nil
}

// ManifestRequestCode fetches the short-lived token that authorizes a
// manifest fetch from the edge, consulting the ephemeral cache first.
func (c *Client) ManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
	const op = "Client.ManifestRequestCode"
	ctx, span := c.tracer.StartSpan(ctx, op)
	defer span.End()
	start := time.Now()

	key := fmt.Sprintf("mrc:%d:%d:%d", appID, depotID, manifestID)
	if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit("manifest_request_code")
		}
		if code, err := strconv.ParseUint(string(cached), 10, 64); err == nil {
			c.logSuccess(op, start)
			return code, nil
		}
	} else if c.metrics != nil {
		c.metrics.RecordCacheMiss("manifest_request_code")
	}

	code, err := c.cp.ManifestRequestCode(ctx, appID, depotID, manifestID)
	if err != nil {
		return 0, c.fail(op, KindNetwork, err, appID, depotID, manifestID, start)
	}
	if code == 0 {
		return 0, c.fail(op, KindUnexpected, fmt.Errorf("manifest request code missing in response"), appID, depotID, manifestID, start)
	}

	_ = c.cache.Set(ctx, key, []byte(strconv.FormatUint(code, 10)), c.cacheTTL)
	c.logSuccess(op, start)
	return code, nil
}

// Manifest fetches and decodes the depot manifest identified by depotID and
// manifestID, decrypting filenames if the manifest reports them encrypted
// and depotKey is supplied.
func (c *Client) Manifest(ctx context.Context, depotID uint32, manifestID uint64, requestCode *uint64, depotKey *[32]byte) (*Manifest, error) {
	const op = "Client.Manifest"
	ctx, span := c.tracer.StartSpan(ctx, op, attribute.Int64("depot_id", int64(depotID)))
	defer span.End()
	start := time.Now()

	path := fmt.Sprintf("depot/%d/manifest/%d/5", depotID, manifestID)
	if requestCode != nil {
		path = fmt.Sprintf("%s/%d", path, *requestCode)
	}

	body, err := c.edgeGet(ctx, op, path)
	if err != nil {
		return nil, err
	}

	dm, err := intmanifest.Decode(body)
	if err != nil {
		return nil, c.fail(op, KindManifest, err, 0, depotID, manifestID, start)
	}

	if dm.FilenamesEncrypted && depotKey != nil {
		dm, err = intmanifest.DecryptFilenames(dm, *depotKey)
		if err != nil {
			return nil, c.fail(op, KindManifest, err, 0, depotID, manifestID, start)
		}
	}

	if c.audit != nil {
		c.audit.LogManifestFetch(0, depotID, manifestID, true, nil, time.Since(start), nil)
	}
	c.logSuccess(op, start)
	return &Manifest{client: c, depotID: depotID, dm: dm}, nil
}

// Chunk fetches a single encrypted, compressed chunk from the edge and
// returns its decoded plaintext bytes.
func (c *Client) Chunk(ctx context.Context, depotID uint32, depotKey [32]byte, chunkID string) ([]byte, error) {
	const op = "Client.Chunk"
	ctx, span := c.tracer.StartSpan(ctx, op, attribute.Int64("depot_id", int64(depotID)))
	defer span.End()
	start := time.Now()

	path := fmt.Sprintf("depot/%d/chunk/%s", depotID, chunkID)
	raw, err := c.edgeGet(ctx, op, path)
	if err != nil {
		return nil, err
	}

	decoded, err := cdncrypto.ProcessChunk(raw, depotKey)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordChunkVerifyFailure(fmt.Sprintf("%d", depotID), "decode")
		}
		return nil, c.fail(op, KindManifest, err, 0, depotID, 0, start)
	}

	if c.metrics != nil {
		c.metrics.RecordChunkFetch(ctx, fmt.Sprintf("%d", depotID), time.Since(start))
	}
	c.logSuccess(op, start)
	return decoded, nil
}

// edgeGet picks a server, issues a plain GET for path against it, penalizing
// the server and failing with KindHTTPStatus on a non-2xx response.
func (c *Client) edgeGet(ctx context.Context, op, path string) ([]byte, error) {
	start := time.Now()

	server, err := c.pool.Pick(ctx)
	if err != nil {
		return nil, c.fail(op, KindNetwork, err, 0, 0, 0, start)
	}
	if debug.Enabled() {
		c.log.WithFields(logrus.Fields{"host": server.Host, "cell_id": server.CellID, "path": path}).Debug("edge server selected")
	}

	url := fmt.Sprintf("%s/%s", server.URLBase(), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, c.fail(op, KindRequest, err, 0, 0, 0, start)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(op, KindRequest, err, 0, 0, 0, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.pool.Penalize(server)
		if c.metrics != nil {
			c.metrics.RecordPoolPenalty(server.Host)
		}
		if c.audit != nil {
			c.audit.LogServerPenalize(server.Host, fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, c.fail(op, KindHTTPStatus, fmt.Errorf("%s: status %d", url, resp.StatusCode), 0, 0, 0, start)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(op, KindRequest, err, 0, 0, 0, start)
	}

	if c.metrics != nil {
		c.metrics.RecordHTTPRequest(ctx, http.MethodGet, path, resp.StatusCode, time.Since(start), int64(len(body)))
	}
	return body, nil
}

func (c *Client) fail(op string, kind Kind, err error, appID, depotID uint32, manifestID uint64, start time.Time) error {
	wrapped := wrapErr(op, kind, err)
	c.log.WithError(err).WithFields(logrus.Fields{
		"op":          op,
		"app_id":      appID,
		"depot_id":    depotID,
		"manifest_id": manifestID,
		"kind":        kind.String(),
	}).Debug("operation failed")
	if c.metrics != nil {
		c.metrics.RecordControlPlaneError(context.Background(), op, kind.String())
	}
	if c.audit != nil {
		c.audit.LogAccess(op, "", "", false, err, time.Since(start))
	}
	return wrapped
}

func (c *Client) logSuccess(op string, start time.Time) {
	c.log.WithField("op", op).WithField("duration", time.Since(start)).Debug("operation succeeded")
	if c.metrics != nil {
		c.metrics.RecordControlPlaneCall(context.Background(), op, time.Since(start))
	}
}

