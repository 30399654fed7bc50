package config

import (
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/edge-tracker/internal/eligibility"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	TransportQuery  = "query"
	TransportClient = "client"
)

type ServerConfig struct {
	Address           string `mapstructure:"address"`
	Environment       string `mapstructure:"environment"`
	ProxyProtocol     bool   `mapstructure:"proxy_protocol"`
	// Neither limit bounds the body, so proxied streams run to completion.
	ReadHeaderTimeout string `mapstructure:"read_header_timeout"`
	IdleTimeout       string `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type OriginConfig struct {
	// URL is the origin base URL. Empty forwards every request to the URL it
	// was addressed to.
	URL                string `mapstructure:"url"`
	AppendForwardedFor bool   `mapstructure:"append_forwarded_for"`
}

type TrackingConfig struct {
	WebsiteKey      string   `mapstructure:"website_key"`
	APIURL          string   `mapstructure:"api_url"`
	Transport       string   `mapstructure:"transport"`
	Profile         string   `mapstructure:"profile"`
	SkipExtensions  []string `mapstructure:"skip_extensions"`
	SkipPaths       []string `mapstructure:"skip_paths"`
	ClientIPHeader  string   `mapstructure:"client_ip_header"`
	Timeout         string   `mapstructure:"timeout"`
	IntegrationType string   `mapstructure:"integration_type"`
}

type DispatchConfig struct {
	Workers         int    `mapstructure:"workers"`
	QueueSize       int    `mapstructure:"queue_size"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

type CircuitBreakerConfig struct {
	Threshold    int    `mapstructure:"threshold"`
	ResetTimeout string `mapstructure:"reset_timeout"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Key      string `mapstructure:"key"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type HealthConfig struct {
	Path string `mapstructure:"path"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Origin         OriginConfig         `mapstructure:"origin"`
	Tracking       TrackingConfig       `mapstructure:"tracking"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Health         HealthConfig         `mapstructure:"health"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.proxy_protocol", false)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("origin.url", "")
	v.SetDefault("origin.append_forwarded_for", false)
	v.SetDefault("tracking.website_key", "")
	v.SetDefault("tracking.api_url", "")
	v.SetDefault("tracking.transport", TransportQuery)
	v.SetDefault("tracking.profile", string(eligibility.ProfileMinimal))
	v.SetDefault("tracking.skip_extensions", eligibility.DefaultSkipExtensions)
	v.SetDefault("tracking.skip_paths", eligibility.DefaultSkipPaths)
	v.SetDefault("tracking.client_ip_header", "CF-Connecting-IP")
	v.SetDefault("tracking.timeout", "0s")
	v.SetDefault("tracking.integration_type", "reverse-proxy")
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_size", 1024)
	v.SetDefault("dispatch.shutdown_timeout", "10s")
	v.SetDefault("circuit_breaker.threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout", "30s")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.key", "edge:events")
	v.SetDefault("metrics.path", "/__edge/metrics")
	v.SetDefault("health.path", "/__edge/health")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// short names used by existing edge deployments
	_ = v.BindEnv("tracking.website_key", "TRACKING_WEBSITE_KEY", "WEBSITE_KEY")
	_ = v.BindEnv("tracking.api_url", "TRACKING_API_URL", "API_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
		validation.Field(&c.Origin),
		validation.Field(&c.Tracking),
		validation.Field(&c.Dispatch),
		validation.Field(&c.CircuitBreaker),
		validation.Field(&c.Redis),
		validation.Field(&c.Metrics),
		validation.Field(&c.Health),
	)
}

func (sc ServerConfig) Validate() error {
	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&sc.Address,
			validation.Required,
			validation.By(validateHostPort),
		),
		validation.Field(&sc.ReadHeaderTimeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&sc.IdleTimeout,
			validation.Required,
			validation.By(validateDuration),
		),
	)
}

// ReadHeaderTimeoutDuration returns the request header deadline; zero means none.
func (sc ServerConfig) ReadHeaderTimeoutDuration() time.Duration {
	return mustDuration(sc.ReadHeaderTimeout)
}

func (sc ServerConfig) IdleTimeoutDuration() time.Duration {
	return mustDuration(sc.IdleTimeout)
}

func (lc LoggingConfig) Validate() error {
	return validation.ValidateStruct(&lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func (oc OriginConfig) Validate() error {
	return validation.ValidateStruct(&oc,
		validation.Field(&oc.URL, validation.By(validateServerURL)),
	)
}

func (tc TrackingConfig) Validate() error {
	return validation.ValidateStruct(&tc,
		validation.Field(&tc.APIURL,
			validation.When(tc.WebsiteKey != "", validation.Required),
			validation.By(validateServerURL),
		),
		validation.Field(&tc.Transport,
			validation.Required,
			validation.In(TransportQuery, TransportClient),
		),
		validation.Field(&tc.Profile,
			validation.Required,
			validation.In(string(eligibility.ProfileMinimal), string(eligibility.ProfileResponseAware)),
		),
		validation.Field(&tc.Timeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&tc.IntegrationType,
			validation.When(tc.Transport == TransportClient, validation.Required),
		),
	)
}

// TimeoutDuration returns the tracking call timeout; zero means none.
func (tc TrackingConfig) TimeoutDuration() time.Duration {
	return mustDuration(tc.Timeout)
}

func (dc DispatchConfig) Validate() error {
	return validation.ValidateStruct(&dc,
		validation.Field(&dc.Workers, validation.Required, validation.Min(1)),
		validation.Field(&dc.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&dc.ShutdownTimeout,
			validation.Required,
			validation.By(validateDuration),
		),
	)
}

func (dc DispatchConfig) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(dc.ShutdownTimeout)
}

func (cc CircuitBreakerConfig) Validate() error {
	return validation.ValidateStruct(&cc,
		validation.Field(&cc.Threshold, validation.Min(0)),
		validation.Field(&cc.ResetTimeout,
			validation.Required,
			validation.By(validateDuration),
		),
	)
}

func (cc CircuitBreakerConfig) ResetTimeoutDuration() time.Duration {
	return mustDuration(cc.ResetTimeout)
}

func (rc RedisConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.Address, validation.By(func(value interface{}) error {
			if value.(string) == "" {
				return nil
			}
			return validateHostPort(value)
		})),
		validation.Field(&rc.Key, validation.When(rc.Address != "", validation.Required)),
	)
}

var routePathPattern = regexp.MustCompile(`^/\S*$`)

func (mc MetricsConfig) Validate() error {
	return validation.ValidateStruct(&mc,
		validation.Field(&mc.Path, validation.Match(routePathPattern)),
	)
}

func (hc HealthConfig) Validate() error {
	return validation.ValidateStruct(&hc,
		validation.Field(&hc.Path, validation.Match(routePathPattern)),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

// validateServerURL accepts an empty value; pair it with Required where the
// URL is mandatory.
func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
