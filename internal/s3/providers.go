package s3

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ProviderConfig describes one S3-compatible service the mirror can
// republish into.
type ProviderConfig struct {
	Name             string
	DefaultEndpoint  string
	DefaultRegion    string
	Regions          []string
	PathStyle        bool   // path-style addressing instead of virtual-hosted
	EndpointTemplate string // per-region endpoint pattern, %s = region
}

// knownProviders is the registry of services tested against the mirror.
// Operators pointing at an unlisted S3-compatible service can pick "minio"
// and supply an explicit endpoint.
var knownProviders = map[string]ProviderConfig{
	"aws": {
		Name:            "AWS S3",
		DefaultEndpoint: "https://s3.amazonaws.com",
		DefaultRegion:   "us-east-1",
		Regions: []string{
			"us-east-1", "us-east-2", "us-west-1", "us-west-2",
			"eu-west-1", "eu-central-1", "ap-southeast-1", "ap-northeast-1",
		},
	},
	"minio": {
		Name:            "MinIO",
		DefaultEndpoint: "http://localhost:9000",
		DefaultRegion:   "us-east-1",
		PathStyle:       true,
	},
	"wasabi": {
		Name:            "Wasabi",
		DefaultEndpoint: "https://s3.wasabisys.com",
		DefaultRegion:   "us-east-1",
		Regions:         []string{"us-east-1", "us-east-2", "us-west-1", "eu-central-1"},
	},
	"backblaze": {
		Name:             "Backblaze B2",
		DefaultEndpoint:  "https://s3.us-west-000.backblazeb2.com",
		DefaultRegion:    "us-west-000",
		Regions:          []string{"us-west-000", "us-west-001", "us-west-002", "eu-central-003"},
		PathStyle:        true,
		EndpointTemplate: "https://s3.%s.backblazeb2.com",
	},
	"cloudflare": {
		Name:            "Cloudflare R2",
		DefaultEndpoint: "https://<account-id>.r2.cloudflarestorage.com",
		DefaultRegion:   "auto",
	},
	"digitalocean": {
		Name:             "DigitalOcean Spaces",
		DefaultEndpoint:  "https://nyc3.digitaloceanspaces.com",
		DefaultRegion:    "nyc3",
		Regions:          []string{"nyc3", "ams3", "sgp1", "sfo3", "fra1"},
		EndpointTemplate: "https://%s.digitaloceanspaces.com",
	},
	"hetzner": {
		Name:            "Hetzner Storage Box",
		DefaultEndpoint: "https://your-storagebox.your-server.de",
		DefaultRegion:   "nbg1",
		PathStyle:       true,
	},
	"scaleway": {
		Name:             "Scaleway Object Storage",
		DefaultEndpoint:  "https://s3.fr-par.scw.cloud",
		DefaultRegion:    "fr-par",
		Regions:          []string{"fr-par", "nl-ams", "pl-waw"},
		EndpointTemplate: "https://s3.%s.scw.cloud",
	},
}

// GetProviderConfig looks up a provider by name, case-insensitively.
func GetProviderConfig(provider string) (ProviderConfig, error) {
	if provider == "" {
		return ProviderConfig{}, fmt.Errorf("s3: provider name is required")
	}
	cfg, ok := knownProviders[strings.ToLower(provider)]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("s3: unknown provider %q (supported: %s)",
			provider, strings.Join(providerNames(), ", "))
	}
	return cfg, nil
}

// ResolveEndpoint fills in a missing endpoint and region from the provider's
// defaults (using its per-region endpoint template when a region is given)
// and normalizes the endpoint URL.
func ResolveEndpoint(provider, endpoint, region string) (string, string, error) {
	cfg, err := GetProviderConfig(provider)
	if err != nil {
		return "", "", err
	}
	if region == "" {
		region = cfg.DefaultRegion
	}
	if endpoint == "" {
		if cfg.EndpointTemplate != "" && region != "" {
			endpoint = fmt.Sprintf(cfg.EndpointTemplate, region)
		} else {
			endpoint = cfg.DefaultEndpoint
		}
	}

	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return "", "", err
	}
	return endpoint, region, nil
}

// ValidateEndpoint checks that endpoint is an http(s) URL with a host.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("s3: invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("s3: endpoint %q must use http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("s3: endpoint %q has no host", endpoint)
	}
	return nil
}

// RequiresPathStyleAddressing reports whether provider needs path-style
// request addressing. Unknown providers default to virtual-hosted style.
func RequiresPathStyleAddressing(provider string) bool {
	cfg, err := GetProviderConfig(provider)
	if err != nil {
		return false
	}
	return cfg.PathStyle
}

// IsProviderSupported reports whether provider is in the registry.
func IsProviderSupported(provider string) bool {
	_, ok := knownProviders[strings.ToLower(provider)]
	return ok
}

func providerNames() []string {
	names := make([]string, 0, len(knownProviders))
	for name := range knownProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
