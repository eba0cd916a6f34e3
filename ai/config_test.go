package ai

import (
	"testing"
)

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare host", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"already normalized", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty host untouched", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			if cfg.EmbeddingHost != tt.want {
				t.Errorf("Normalize() host = %q, want %q", cfg.EmbeddingHost, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "missing host",
			cfg: &Config{
				EmbeddingModel: "m",
				EmbeddingSize:  10,
			},
			wantErr: true,
		},
		{
			name: "missing model",
			cfg: &Config{
				EmbeddingHost: "http://localhost:11434/v1",
				EmbeddingSize: 10,
			},
			wantErr: true,
		},
		{
			name: "zero embedding size",
			cfg: &Config{
				EmbeddingHost:  "http://localhost:11434/v1",
				EmbeddingModel: "m",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithEmbeddingHost("http://example.com"),
		WithEmbeddingModel("text-embedding-3-small"),
		WithEmbeddingSize(1536),
	)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.EmbeddingHost != "http://example.com/v1" {
		t.Errorf("Host = %q", cfg.EmbeddingHost)
	}
	if cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("Model = %q", cfg.EmbeddingModel)
	}
	if cfg.EmbeddingSize != 1536 {
		t.Errorf("Size = %d", cfg.EmbeddingSize)
	}
}
