package apiingress

import "time"

// Config is the api_ingress module configuration.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `koanf:"listen_addr"`

	// Title and Version feed the OpenAPI info block.
	Title   string `koanf:"title"`
	Version string `koanf:"version"`

	// DocsEnabled controls /openapi.json and the docs page.
	DocsEnabled bool `koanf:"docs_enabled"`

	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`

	StopTimeout time.Duration `koanf:"stop_timeout"`

	CORS CORSConfig `koanf:"cors"`
	Auth AuthConfig `koanf:"auth"`
}

// CORSConfig configures the CORS layer.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	// Disabled switches authentication off entirely.
	Disabled bool `koanf:"disabled"`

	// JWTSecret is the HMAC secret used to validate bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`
}

// DefaultConfig returns the ingress defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:8087",
		Title:          "HyperSpot API",
		Version:        "0.1.0",
		DocsEnabled:    true,
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   16 << 20, // 16MB
		StopTimeout:    30 * time.Second,
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         86400,
		},
	}
}
