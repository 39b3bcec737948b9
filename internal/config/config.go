package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var Version = "dev"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHOPCORE_"

// Config is built once at startup and passed by value; nothing mutates it afterwards.
type Config struct {
	Env       string          `toml:"env"`
	HTTP      HTTPConfig      `toml:"http"`
	GRPC      GRPCConfig      `toml:"grpc"`
	Log       LogConfig       `toml:"log"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	MFA       MFAConfig       `toml:"mfa"`
	CORS      CORSConfig      `toml:"cors"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

type HTTPConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	MaxBodyBytes    int64         `toml:"max_body_bytes"`
	// Login attempts allowed per second and per client IP.
	LoginRate  float64 `toml:"login_rate"`
	LoginBurst int     `toml:"login_burst"`
	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies; a bare address becomes a single host prefix.
func (h HTTPConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, raw := range h.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy CIDR %q", raw)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type GRPCConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type DatabaseConfig struct {
	URL            string        `toml:"url"`
	MaxOpenConns   int           `toml:"max_open_conns"`
	MaxIdleConns   int           `toml:"max_idle_conns"`
	ConnMaxIdle    time.Duration `toml:"conn_max_idle"`
	MigrateOnStart bool          `toml:"migrate_on_start"`
}

type AuthConfig struct {
	TokenSecret         string        `toml:"token_secret"`
	TokenExpiryHours    int           `toml:"token_expiry_hours"`
	TokenIssuer         string        `toml:"token_issuer"`
	UnsecuredPaths      []string      `toml:"unsecured_paths"`
	PBACEnabled         bool          `toml:"pbac_enabled"`
	BcryptCost          int           `toml:"bcrypt_cost"`
	PermissionCacheSize int           `toml:"permission_cache_size"`
	PermissionCacheTTL  time.Duration `toml:"permission_cache_ttl"`
}

// TokenExpiry converts the configured hours into a duration.
func (a AuthConfig) TokenExpiry() time.Duration {
	return time.Duration(a.TokenExpiryHours) * time.Hour
}

type MFAConfig struct {
	Digits      int    `toml:"digits"`
	Period      int    `toml:"period_seconds"`
	Discrepancy int    `toml:"allowed_discrepancy"`
	Issuer      string `toml:"issuer"`
	// QRSize is the edge length of the rendered enrollment QR code in pixels.
	QRSize int `toml:"qr_size"`
}

type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowedMethods   []string `toml:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	MaxAge           int      `toml:"max_age"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type BootstrapConfig struct {
	AdminUsername string `toml:"admin_username"`
	AdminPassword string `toml:"admin_password"`
}

// Default returns the configuration used when neither a file nor the environment override a value.
func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			LoginRate:       5,
			LoginBurst:      10,
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Log:  LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 10,
			ConnMaxIdle:  5 * time.Minute,
		},
		Auth: AuthConfig{
			TokenExpiryHours:    168,
			TokenIssuer:         "shopcore",
			UnsecuredPaths:      []string{"/auth/login", "/healthz", "/readyz", "/version", "/metrics"},
			PBACEnabled:         true,
			BcryptCost:          4,
			PermissionCacheSize: 1024,
			PermissionCacheTTL:  time.Minute,
		},
		MFA: MFAConfig{
			Digits:      6,
			Period:      30,
			Discrepancy: 2,
			Issuer:      "DruvStar",
			QRSize:      200,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:           3600,
			AllowCredentials: false,
		},
		Kafka: KafkaConfig{Topic: "shopcore.commerce"},
	}
}

// Load builds the configuration: defaults, then the optional TOML file at path,
// then SHOPCORE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Env = getEnvDefault("ENV", cfg.Env)

	cfg.HTTP.Addr = getEnvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	if cfg.HTTP.ReadTimeout, err = getEnvDuration("HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if cfg.HTTP.WriteTimeout, err = getEnvDuration("HTTP_WRITE_TIMEOUT", cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if cfg.HTTP.ShutdownTimeout, err = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.HTTP.LoginRate, err = getEnvFloat("HTTP_LOGIN_RATE", cfg.HTTP.LoginRate); err != nil {
		return err
	}
	if cfg.HTTP.LoginBurst, err = getEnvInt("HTTP_LOGIN_BURST", cfg.HTTP.LoginBurst); err != nil {
		return err
	}
	if v, ok := lookupEnv("HTTP_TRUSTED_PROXIES"); ok {
		cfg.HTTP.TrustedProxies = parseCSV(v)
	}
	cfg.GRPC.Addr = getEnvDefault("GRPC_ADDR", cfg.GRPC.Addr)

	cfg.Log.Level = getEnvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Database.URL = getEnvDefault("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.MaxOpenConns, err = getEnvInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return err
	}
	if cfg.Database.MigrateOnStart, err = getEnvBool("DATABASE_MIGRATE_ON_START", cfg.Database.MigrateOnStart); err != nil {
		return err
	}

	cfg.Auth.TokenSecret = getEnvDefault("AUTH_TOKEN_SECRET", cfg.Auth.TokenSecret)
	if cfg.Auth.TokenExpiryHours, err = getEnvInt("AUTH_TOKEN_EXPIRY_HOURS", cfg.Auth.TokenExpiryHours); err != nil {
		return err
	}
	cfg.Auth.TokenIssuer = getEnvDefault("AUTH_TOKEN_ISSUER", cfg.Auth.TokenIssuer)
	if v, ok := lookupEnv("AUTH_UNSECURED_PATHS"); ok {
		cfg.Auth.UnsecuredPaths = parseCSV(v)
	}
	if cfg.Auth.PBACEnabled, err = getEnvBool("AUTH_PBAC_ENABLED", cfg.Auth.PBACEnabled); err != nil {
		return err
	}
	if cfg.Auth.BcryptCost, err = getEnvInt("AUTH_BCRYPT_COST", cfg.Auth.BcryptCost); err != nil {
		return err
	}

	if cfg.MFA.Digits, err = getEnvInt("MFA_DIGITS", cfg.MFA.Digits); err != nil {
		return err
	}
	if cfg.MFA.Period, err = getEnvInt("MFA_PERIOD_SECONDS", cfg.MFA.Period); err != nil {
		return err
	}
	if cfg.MFA.Discrepancy, err = getEnvInt("MFA_ALLOWED_DISCREPANCY", cfg.MFA.Discrepancy); err != nil {
		return err
	}
	cfg.MFA.Issuer = getEnvDefault("MFA_ISSUER", cfg.MFA.Issuer)

	if v, ok := lookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = parseCSV(v)
	}
	if v, ok := lookupEnv("CORS_ALLOWED_METHODS"); ok {
		cfg.CORS.AllowedMethods = parseCSV(v)
	}
	if v, ok := lookupEnv("CORS_ALLOWED_HEADERS"); ok {
		cfg.CORS.AllowedHeaders = parseCSV(v)
	}
	if cfg.CORS.MaxAge, err = getEnvInt("CORS_MAX_AGE", cfg.CORS.MaxAge); err != nil {
		return err
	}
	if cfg.CORS.AllowCredentials, err = getEnvBool("CORS_ALLOW_CREDENTIALS", cfg.CORS.AllowCredentials); err != nil {
		return err
	}

	if v, ok := lookupEnv("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = parseCSV(v)
	}
	cfg.Kafka.Topic = getEnvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Bootstrap.AdminUsername = getEnvDefault("BOOTSTRAP_ADMIN_USERNAME", cfg.Bootstrap.AdminUsername)
	cfg.Bootstrap.AdminPassword = getEnvDefault("BOOTSTRAP_ADMIN_PASSWORD", cfg.Bootstrap.AdminPassword)
	return nil
}

// Validate checks the invariants the rest of the service relies on.
func (c Config) Validate() error {
	var errs []error

	if _, err := parseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: invalid value %q, allowed: json, text", c.Log.Format))
	}
	if len(c.Auth.TokenSecret) < 32 {
		errs = append(errs, errors.New("auth.token_secret: must be at least 32 bytes"))
	}
	if c.Auth.TokenExpiryHours <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_expiry_hours: must be positive, got %d", c.Auth.TokenExpiryHours))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost: %d outside 4-31", c.Auth.BcryptCost))
	}
	if c.MFA.Digits < 6 || c.MFA.Digits > 8 {
		errs = append(errs, fmt.Errorf("mfa.digits: %d outside 6-8", c.MFA.Digits))
	}
	if c.MFA.Period <= 0 {
		errs = append(errs, fmt.Errorf("mfa.period_seconds: must be positive, got %d", c.MFA.Period))
	}
	if c.MFA.Discrepancy < 0 {
		errs = append(errs, fmt.Errorf("mfa.allowed_discrepancy: must not be negative, got %d", c.MFA.Discrepancy))
	}
	if c.CORS.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cors.max_age: must not be negative, got %d", c.CORS.MaxAge))
	}
	if c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, "*") && !c.IsDevelopment() {
		errs = append(errs, errors.New("cors.allow_credentials: requires explicit allowed_origins outside development"))
	}
	if _, err := c.HTTP.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, fmt.Errorf("http.trusted_proxies: %w", err))
	}
	if c.Database.URL == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("database.url: required outside development"))
	}
	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("bootstrap: admin_username and admin_password must be set together"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LogLevel returns the parsed level; Validate guarantees it parses.
func (c Config) LogLevel() slog.Level {
	level, _ := parseLogLevel(c.Log.Level)
	return level
}

// MigrationURL rewrites the database URL into the scheme golang-migrate's pgx driver expects.
func (c Config) MigrationURL() string {
	u := c.Database.URL
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(u, scheme) {
			return "pgx5://" + strings.TrimPrefix(u, scheme)
		}
	}
	return u
}

// SetupLogger installs the process logger described by cfg.
func SetupLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", "shopcore", "version", Version)
	slog.SetDefault(logger)

	if cfg.Auth.BcryptCost < 10 && !cfg.IsDevelopment() {
		logger.Warn("bcrypt cost is below the recommended production minimum", "cost", cfg.Auth.BcryptCost)
	}
	return logger
}

func lookupEnv(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}
	return val, true
}

func getEnvDefault(key, defaultVal string) string {
	if val, ok := lookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, key, val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s%s: invalid number %q", EnvPrefix, key, val)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, key, val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s%s: invalid duration %q (use Go format: 30s, 1h, 15m)", EnvPrefix, key, val)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
