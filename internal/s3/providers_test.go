package s3

import (
	"strings"
	"testing"
)

func TestGetProviderConfig(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
		check    func(*testing.T, ProviderConfig)
	}{
		{
			name:     "aws",
			provider: "aws",
			check: func(t *testing.T, cfg ProviderConfig) {
				if cfg.Name != "AWS S3" {
					t.Errorf("expected AWS S3, got %s", cfg.Name)
				}
				if cfg.PathStyle {
					t.Error("aws should use virtual-hosted addressing")
				}
			},
		},
		{
			name:     "minio needs path style",
			provider: "minio",
			check: func(t *testing.T, cfg ProviderConfig) {
				if !cfg.PathStyle {
					t.Error("minio should require path-style addressing")
				}
			},
		},
		{
			name:     "lookup is case-insensitive",
			provider: "MinIO",
		},
		{
			name:     "unknown provider",
			provider: "gopherstore",
			wantErr:  true,
		},
		{
			name:     "empty provider",
			provider: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := GetProviderConfig(tt.provider)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestGetProviderConfig_ErrorNamesSupportedProviders(t *testing.T) {
	_, err := GetProviderConfig("gopherstore")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "minio") || !strings.Contains(err.Error(), "aws") {
		t.Errorf("error should list supported providers, got %v", err)
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		provider     string
		endpoint     string
		region       string
		wantErr      bool
		wantEndpoint string
		wantRegion   string
	}{
		{
			name:         "explicit endpoint wins",
			provider:     "aws",
			endpoint:     "https://s3.us-west-2.amazonaws.com",
			region:       "us-west-2",
			wantEndpoint: "https://s3.us-west-2.amazonaws.com",
			wantRegion:   "us-west-2",
		},
		{
			name:         "default endpoint and region",
			provider:     "aws",
			wantEndpoint: "https://s3.amazonaws.com",
			wantRegion:   "us-east-1",
		},
		{
			name:         "per-region endpoint template",
			provider:     "digitalocean",
			region:       "fra1",
			wantEndpoint: "https://fra1.digitaloceanspaces.com",
			wantRegion:   "fra1",
		},
		{
			name:         "template uses default region when unset",
			provider:     "scaleway",
			wantEndpoint: "https://s3.fr-par.scw.cloud",
			wantRegion:   "fr-par",
		},
		{
			name:         "scheme added when missing",
			provider:     "aws",
			endpoint:     "s3.amazonaws.com",
			wantEndpoint: "https://s3.amazonaws.com",
		},
		{
			name:         "trailing slash stripped",
			provider:     "minio",
			endpoint:     "http://localhost:9000/",
			wantEndpoint: "http://localhost:9000",
			wantRegion:   "us-east-1",
		},
		{
			name:     "unknown provider",
			provider: "gopherstore",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, region, err := ResolveEndpoint(tt.provider, tt.endpoint, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantEndpoint != "" && endpoint != tt.wantEndpoint {
				t.Errorf("endpoint = %s, want %s", endpoint, tt.wantEndpoint)
			}
			if tt.wantRegion != "" && region != tt.wantRegion {
				t.Errorf("region = %s, want %s", region, tt.wantRegion)
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"https endpoint", "https://s3.amazonaws.com", false},
		{"http endpoint", "http://localhost:9000", false},
		{"wrong scheme", "ftp://example.com", true},
		{"no host", "https://", true},
		{"not a url", "not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.endpoint, err, tt.wantErr)
			}
		})
	}
}

func TestRequiresPathStyleAddressing(t *testing.T) {
	tests := []struct {
		provider string
		want     bool
	}{
		{"aws", false},
		{"minio", true},
		{"backblaze", true},
		{"digitalocean", false},
		{"gopherstore", false},
	}

	for _, tt := range tests {
		if got := RequiresPathStyleAddressing(tt.provider); got != tt.want {
			t.Errorf("RequiresPathStyleAddressing(%q) = %v, want %v", tt.provider, got, tt.want)
		}
	}
}

func TestIsProviderSupported(t *testing.T) {
	if !IsProviderSupported("aws") || !IsProviderSupported("AWS") {
		t.Error("aws should be supported, case-insensitively")
	}
	if IsProviderSupported("gopherstore") || IsProviderSupported("") {
		t.Error("unknown providers should not be supported")
	}
}
