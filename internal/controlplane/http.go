package controlplane

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/steam-cdn-client/internal/pool"
)

// httpControlPlane speaks the public Steam Web API surface over HTTP/JSON.
// The proprietary binary "CM" protocol used for access_token/product_info/
// depot_key/manifest_request_code in production is not reimplemented here;
// this implementation documents the wire contract those four methods expect
// and exercises it against an httptest.Server in tests. A caller targeting a
// real deployment supplies its own Client implementation.
type httpControlPlane struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Option configures an httpControlPlane.
type Option func(*httpControlPlane)

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *httpControlPlane) { c.logger = logger }
}

// WithHTTPClient overrides the default tuned HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpControlPlane) { c.httpClient = client }
}

// NewHTTPControlPlane constructs a Client against baseURL, the directory
// service host (e.g. "https://api.steampowered.com").
func NewHTTPControlPlane(baseURL string, opts ...Option) Client {
	c := &httpControlPlane{
		baseURL:    baseURL,
		httpClient: newTunedHTTPClient(),
		logger:     logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newTunedHTTPClient mirrors this codebase's download-tuned transport: a
// short dial timeout, keep-alives, and deliberately no overall client timeout
// so a slow-but-progressing manifest or chunk fetch is never killed.
func newTunedHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   16,
			ResponseHeaderTimeout: 10 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

type accessTokenResponse struct {
	Response struct {
		AppAccessTokens []struct {
			AppID       uint32 `json:"appid"`
			AccessToken string `json:"access_token"`
		} `json:"app_access_tokens"`
	} `json:"response"`
}

func (c *httpControlPlane) AccessTokens(ctx context.Context, appIDs []uint32) (map[uint32]string, error) {
	url := fmt.Sprintf("%s/IAuthTicketService/GenerateAccessTokenForApps/v1/?appids=%s", c.baseURL, joinIDs(appIDs))
	var body accessTokenResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, fmt.Errorf("controlplane: access tokens: %w", err)
	}
	out := make(map[uint32]string, len(body.Response.AppAccessTokens))
	for _, t := range body.Response.AppAccessTokens {
		out[t.AppID] = t.AccessToken
	}
	return out, nil
}

type productInfoResponse struct {
	Response struct {
		Apps map[string]struct {
			Buffer string `json:"buffer"` // raw VDF text, passed through undecoded
		} `json:"apps"`
	} `json:"response"`
}

func (c *httpControlPlane) ProductInfo(ctx context.Context, apps []AppToken, metaDataOnly bool) (map[uint32][]byte, error) {
	ids := make([]uint32, len(apps))
	for i, a := range apps {
		ids[i] = a.AppID
	}
	url := fmt.Sprintf("%s/ISteamApps/PICSGetProductInfo/v1/?appids=%s&meta_data_only=%t", c.baseURL, joinIDs(ids), metaDataOnly)
	var body productInfoResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, fmt.Errorf("controlplane: product info: %w", err)
	}
	out := make(map[uint32][]byte, len(body.Response.Apps))
	for idStr, app := range body.Response.Apps {
		var appID uint32
		if _, err := fmt.Sscanf(idStr, "%d", &appID); err != nil {
			continue
		}
		out[appID] = []byte(app.Buffer)
	}
	return out, nil
}

type depotKeyResponse struct {
	Response struct {
		Result   int    `json:"result"`
		DepotKey string `json:"depot_key"` // hex-encoded
	} `json:"response"`
}

func (c *httpControlPlane) DepotKey(ctx context.Context, appID, depotID uint32) (*[32]byte, error) {
	url := fmt.Sprintf("%s/IContentServerDirectoryService/GetDepotDecryptionKey/v1/?appid=%d&depotid=%d", c.baseURL, appID, depotID)
	var body depotKeyResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, fmt.Errorf("controlplane: depot key: %w", err)
	}
	if body.Response.DepotKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(body.Response.DepotKey)
	if err != nil {
		return nil, fmt.Errorf("controlplane: depot key: invalid hex encoding: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrDepotKeySize, len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

type manifestRequestCodeResponse struct {
	Response struct {
		ManifestRequestCode uint64 `json:"manifest_request_code,string"`
	} `json:"response"`
}

func (c *httpControlPlane) ManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
	url := fmt.Sprintf("%s/IContentServerDirectoryService/GetManifestRequestCode/v1/?appid=%d&depotid=%d&manifestid=%d", c.baseURL, appID, depotID, manifestID)
	var body manifestRequestCodeResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return 0, fmt.Errorf("controlplane: manifest request code: %w", err)
	}
	if body.Response.ManifestRequestCode == 0 {
		return 0, fmt.Errorf("controlplane: manifest request code absent from response")
	}
	return body.Response.ManifestRequestCode, nil
}

type serverDirectoryResponse struct {
	Response struct {
		Servers []struct {
			Type         string  `json:"type"`
			Host         string  `json:"host"`
			VHost        string  `json:"vhost"`
			HTTPSSupport string  `json:"https_support"`
			CellID       uint32  `json:"cell_id"`
			Load         float64 `json:"load"`
			WeightedLoad float64 `json:"weighted_load"`
		} `json:"servers"`
	} `json:"response"`
}

func (c *httpControlPlane) ServerDirectory(ctx context.Context, cellID uint32) ([]pool.DirectoryEntry, error) {
	url := fmt.Sprintf("%s/IContentServerDirectoryService/GetServersForSteamPipe/v1/?cell_id=%d", c.baseURL, cellID)
	var body serverDirectoryResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, fmt.Errorf("controlplane: server directory: %w", err)
	}
	out := make([]pool.DirectoryEntry, 0, len(body.Response.Servers))
	for _, s := range body.Response.Servers {
		out = append(out, pool.DirectoryEntry{
			Type:         s.Type,
			Host:         s.Host,
			VHost:        s.VHost,
			HTTPSSupport: s.HTTPSSupport,
			CellID:       s.CellID,
			Load:         s.Load,
			WeightedLoad: s.WeightedLoad,
		})
	}
	return out, nil
}

func joinIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func (c *httpControlPlane) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", url).Debug("control plane request failed")
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response json: %w", err)
	}
	return nil
}
