package main

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TLSMaterialConfig describes where to load the server's TLS identity and,
// optionally, the trust roots used to verify client certificates for mTLS.
type TLSMaterialConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CertFile          string `mapstructure:"cert_file" validate:"required_if=Enabled true"`
	KeyFile           string `mapstructure:"key_file" validate:"required_if=Enabled true"`
	ClientCAFile      string `mapstructure:"client_ca_file"`
	RequireClientCert bool   `mapstructure:"require_client_cert"`
}

// ServerConfig is the full, validated configuration for one broker process.
// Fields map to spec.md §3's listed parameters.
type ServerConfig struct {
	TCPPort   int `mapstructure:"tcp_port" validate:"required,min=1,max=65535"`
	TLSPort   int `mapstructure:"tls_port" validate:"omitempty,min=1,max=65535"`
	MartiPort int `mapstructure:"marti_port" validate:"required,min=1,max=65535"`

	MaxClients            int `mapstructure:"max_clients" validate:"required,min=1"`
	OutboundQueueCapacity int `mapstructure:"outbound_queue_capacity" validate:"required,min=1"`
	MinEventBytes         int `mapstructure:"min_event_bytes" validate:"required,min=1"`
	MaxEventBytes         int `mapstructure:"max_event_bytes" validate:"required,min=1,gtfield=MinEventBytes"`

	ClientIdleTimeoutSeconds int `mapstructure:"client_idle_timeout_seconds" validate:"required,min=1"`
	HandshakeTimeoutSeconds  int `mapstructure:"handshake_timeout_seconds" validate:"required,min=1"`

	TLSMaterial TLSMaterialConfig `mapstructure:"tls"`

	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Debug    bool   `mapstructure:"debug"`
}

// defaultServerConfig returns the reference defaults named in limits.go,
// used to seed viper before a config file or environment overrides them.
func defaultServerConfig() ServerConfig {
	return ServerConfig{
		TCPPort:                  defaultTCPPort,
		TLSPort:                  0,
		MartiPort:                defaultMartiPort,
		MaxClients:               defaultMaxClients,
		OutboundQueueCapacity:    defaultOutboundQueueCapacity,
		MinEventBytes:            defaultMinEventBytes,
		MaxEventBytes:            defaultMaxEventBytes,
		ClientIdleTimeoutSeconds: int(defaultClientIdleTimeout.Seconds()),
		HandshakeTimeoutSeconds:  int(defaultHandshakeTimeout.Seconds()),
		LogLevel:                 "info",
	}
}

// loadServerConfig reads configuration from the optional file at path (if
// non-empty), overlays environment variables prefixed OMNITAK_, and
// validates the result. A config or validation failure is wrapped in
// ConfigurationError so callers can map it to exit code 64.
func loadServerConfig(path string) (ServerConfig, error) {
	v := viper.New()
	cfg := defaultServerConfig()

	v.SetEnvPrefix("omnitak")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := structToMap(cfg)
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, &ConfigurationError{Field: "config_file", Err: err}
		}
	}

	var out ServerConfig
	if err := v.Unmarshal(&out); err != nil {
		return ServerConfig{}, &ConfigurationError{Err: err}
	}

	if err := validateServerConfig(out); err != nil {
		return ServerConfig{}, err
	}

	return out, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateServerConfig(cfg ServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return &ConfigurationError{
				Field: strings.Join(fields, ","),
				Err:   err,
			}
		}
		return &ConfigurationError{Err: err}
	}
	if cfg.TCPPort == cfg.TLSPort || (cfg.TLSPort != 0 && cfg.TLSPort == cfg.MartiPort) || cfg.TCPPort == cfg.MartiPort {
		return &ConfigurationError{Field: "ports", Err: fmt.Errorf("tcp_port, tls_port, and marti_port must be distinct")}
	}
	if cfg.TLSMaterial.Enabled && cfg.TLSPort == 0 {
		return &ConfigurationError{Field: "tls_port", Err: fmt.Errorf("tls_port is required when tls.enabled is true")}
	}
	if cfg.TLSMaterial.RequireClientCert && cfg.TLSMaterial.ClientCAFile == "" {
		return &ConfigurationError{Field: "tls.client_ca_file", Err: fmt.Errorf("client_ca_file is required when require_client_cert is true")}
	}
	return nil
}

// structToMap flattens a ServerConfig into viper's dotted-key default map.
// Hand-written rather than reflected over mapstructure tags: the field set
// is small and fixed, and an explicit map keeps the defaults readable.
func structToMap(cfg ServerConfig) map[string]interface{} {
	return map[string]interface{}{
		"tcp_port":                    cfg.TCPPort,
		"tls_port":                    cfg.TLSPort,
		"marti_port":                  cfg.MartiPort,
		"max_clients":                 cfg.MaxClients,
		"outbound_queue_capacity":     cfg.OutboundQueueCapacity,
		"min_event_bytes":             cfg.MinEventBytes,
		"max_event_bytes":             cfg.MaxEventBytes,
		"client_idle_timeout_seconds": cfg.ClientIdleTimeoutSeconds,
		"handshake_timeout_seconds":   cfg.HandshakeTimeoutSeconds,
		"log_level":                   cfg.LogLevel,
		"debug":                       cfg.Debug,
		"tls.enabled":                 cfg.TLSMaterial.Enabled,
		"tls.cert_file":               cfg.TLSMaterial.CertFile,
		"tls.key_file":                cfg.TLSMaterial.KeyFile,
		"tls.client_ca_file":          cfg.TLSMaterial.ClientCAFile,
		"tls.require_client_cert":     cfg.TLSMaterial.RequireClientCert,
	}
}
