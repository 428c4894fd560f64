package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every ServerConfiguration validation failure.
var ErrInvalidConfig = errors.New("invalid server configuration")

// Defaults for ServerConfiguration.
const (
	DefaultPort              = 4000
	DefaultRulesFile         = "mocks-config.json"
	DefaultMaxBodySize       = 10 << 20 // 10MB
	DefaultLogBufferSize     = 1000
	DefaultLogMaxBytes       = 10 << 20 // 10MB
	DefaultExpressionTimeout = 50 * time.Millisecond
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Enabled enables CORS handling. When false, no CORS headers are added.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// AllowOrigins specifies allowed origins. "*" allows any origin.
	AllowOrigins []string `json:"allowOrigins,omitempty" yaml:"allowOrigins,omitempty" validate:"dive,required"`
	// AllowMethods specifies allowed HTTP methods.
	AllowMethods []string `json:"allowMethods,omitempty" yaml:"allowMethods,omitempty"`
	// AllowHeaders specifies allowed request headers.
	AllowHeaders []string `json:"allowHeaders,omitempty" yaml:"allowHeaders,omitempty"`
	// ExposeHeaders specifies headers that browsers are allowed to read.
	ExposeHeaders []string `json:"exposeHeaders,omitempty" yaml:"exposeHeaders,omitempty"`
	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty"`
	// MaxAge is the preflight cache duration in seconds. Default: 86400
	MaxAge int `json:"maxAge,omitempty" yaml:"maxAge,omitempty" validate:"gte=0"`
}

// LogConfig configures the dispatch event log.
type LogConfig struct {
	// Level is the minimum event level: debug, info, warn or error
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	// Format is the console format: text or json
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
	// File is an optional JSON-lines file sink
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	// MaxBytes is the file size that triggers rotation. 0 disables rotation.
	MaxBytes int64 `json:"maxBytes" yaml:"maxBytes" validate:"gte=0"`
	// BufferSize is the in-memory ring buffer capacity
	BufferSize int `json:"bufferSize" yaml:"bufferSize" validate:"gt=0"`
}

// ServerConfiguration defines the runtime settings of a mocklane server.
type ServerConfiguration struct {
	// Host is the listen address; empty listens on all interfaces
	Host string `json:"host,omitempty" yaml:"host,omitempty" validate:"omitempty,hostname|ip"`
	// Port is the listen port. 0 picks a free port.
	Port int `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	// RulesPath is a rule file or a glob of rule files. Empty means no rule source.
	RulesPath string `json:"rulesPath,omitempty" yaml:"rulesPath,omitempty"`
	// ReadTimeout is the HTTP read timeout in seconds
	ReadTimeout int `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty" validate:"gte=0"`
	// WriteTimeout is the HTTP write timeout in seconds
	WriteTimeout int `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty" validate:"gte=0"`
	// MaxBodySize is the largest accepted request body in bytes
	MaxBodySize int64 `json:"maxBodySize" yaml:"maxBodySize" validate:"gt=0"`
	// ExpressionTimeout bounds each template expression
	ExpressionTimeout time.Duration `json:"expressionTimeout" yaml:"expressionTimeout" validate:"gt=0"`
	// StatsDAddr mirrors metrics to a DogStatsD agent when set
	StatsDAddr string `json:"statsdAddr,omitempty" yaml:"statsdAddr,omitempty" validate:"omitempty,hostname_port"`
	// CORS configures Cross-Origin Resource Sharing
	CORS *CORSConfig `json:"cors,omitempty" yaml:"cors,omitempty"`
	// Log configures the dispatch event log
	Log LogConfig `json:"log" yaml:"log"`
}

// DefaultServerConfiguration returns a ServerConfiguration with sensible defaults.
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		Port:              DefaultPort,
		ReadTimeout:       30,
		WriteTimeout:      60,
		MaxBodySize:       DefaultMaxBodySize,
		ExpressionTimeout: DefaultExpressionTimeout,
		CORS:              WildcardCORSConfig(),
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxBytes:   DefaultLogMaxBytes,
			BufferSize: DefaultLogBufferSize,
		},
	}
}

// WildcardCORSConfig returns a CORS config that allows all origins.
func WildcardCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:      true,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders: []string{"*"},
		MaxAge:       86400,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all failures at once.
func (c *ServerConfiguration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	errs := make([]error, 0, len(verrs)+1)
	errs = append(errs, ErrInvalidConfig)
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: %s", fieldPath(fe), describe(fe)))
	}
	return errors.Join(errs...)
}

// fieldPath drops the root struct name: "ServerConfiguration.Log.Level" -> "Log.Level".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "gt", "gte", "lte":
		return fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// IsWildcard returns true if the CORS config allows all origins.
func (c *CORSConfig) IsWildcard() bool {
	if c == nil {
		return false
	}
	for _, origin := range c.AllowOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// AllowOriginValue returns the Access-Control-Allow-Origin value for the
// given request origin, or "" when the origin is not allowed. With
// credentials enabled a wildcard echoes the request origin instead of "*".
func (c *CORSConfig) AllowOriginValue(requestOrigin string) string {
	if c == nil || !c.Enabled {
		return ""
	}
	if c.IsWildcard() {
		if !c.AllowCredentials {
			return "*"
		}
		return requestOrigin
	}
	for _, allowed := range c.AllowOrigins {
		if allowed == requestOrigin {
			return requestOrigin
		}
	}
	return ""
}
