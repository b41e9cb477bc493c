package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when GALLERY_CONFIG is unset. It may be absent.
const DefaultConfigPath = "config.yaml"

// ConfigPath is the config file main loads.
var ConfigPath = configPathFromEnv()

const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	AuthModeSupabase = "supabase"
	AuthModeJWT      = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	SupabaseURL     string `yaml:"supabaseURL"`
	SupabaseAnonKey string `yaml:"supabaseAnonKey"`

	GoogleDriveClientID     string `yaml:"googleDriveClientID"`
	GoogleDriveClientSecret string `yaml:"googleDriveClientSecret"`
	GoogleDriveRefreshToken string `yaml:"googleDriveRefreshToken"`
	GoogleTokenURL          string `yaml:"googleTokenURL"`
	DriveAPIBaseURL         string `yaml:"driveAPIBaseURL"`
	DriveUploadBaseURL      string `yaml:"driveUploadBaseURL"`
	DriveViewBaseURL        string `yaml:"driveViewBaseURL"`
	DriveRootFolderID       string `yaml:"driveRootFolderID"`

	MetadataBackend string `yaml:"metadataBackend"`
	DatabaseURL     string `yaml:"databaseURL"`
	AutoMigrate     bool   `yaml:"autoMigrate"`

	AuthMode    string `yaml:"authMode"`
	JWKSURL     string `yaml:"jwksURL"`
	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	RedisAddr              string   `yaml:"redisAddr"`
	RedisPassword          string   `yaml:"redisPassword"`
	UploadRateLimit        int      `yaml:"uploadRateLimit"`
	AccessRateLimit        int      `yaml:"accessRateLimit"`
	RateLimitWindowSeconds int      `yaml:"rateLimitWindowSeconds"`
	TrustedProxies         []string `yaml:"trustedProxies"`

	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	MaxPhotosPerUpload     int      `yaml:"maxPhotosPerUpload"`
	AllowedContentTypes    []string `yaml:"allowedContentTypes"`
	UpstreamTimeoutSeconds int      `yaml:"upstreamTimeoutSeconds"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to ConfigPath), then applies
// environment overrides. Drive credentials are not required here; the
// token provider reports them missing per request.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath:
		// env-only deployment
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	setString("SUPABASE_URL", &cfg.SupabaseURL)
	setString("SUPABASE_ANON_KEY", &cfg.SupabaseAnonKey)
	setString("GOOGLE_DRIVE_CLIENT_ID", &cfg.GoogleDriveClientID)
	setString("GOOGLE_DRIVE_CLIENT_SECRET", &cfg.GoogleDriveClientSecret)
	setString("GOOGLE_DRIVE_REFRESH_TOKEN", &cfg.GoogleDriveRefreshToken)
	setString("GOOGLE_TOKEN_URL", &cfg.GoogleTokenURL)
	setString("DRIVE_API_BASE_URL", &cfg.DriveAPIBaseURL)
	setString("DRIVE_UPLOAD_BASE_URL", &cfg.DriveUploadBaseURL)
	setString("DRIVE_VIEW_BASE_URL", &cfg.DriveViewBaseURL)
	setString("DRIVE_ROOT_FOLDER_ID", &cfg.DriveRootFolderID)
	setString("METADATA_BACKEND", &cfg.MetadataBackend)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setBool("DATABASE_AUTO_MIGRATE", &cfg.AutoMigrate)
	setString("AUTH_MODE", &cfg.AuthMode)
	setString("SUPABASE_JWKS_URL", &cfg.JWKSURL)
	setString("SUPABASE_JWT_SECRET", &cfg.JWTSecret)
	setString("SUPABASE_JWT_ISSUER", &cfg.JWTIssuer)
	setString("SUPABASE_JWT_AUDIENCE", &cfg.JWTAudience)
	setString("SUPABASE_JWT_LEEWAY", &cfg.JWTLeeway)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setInt("GALLERY_UPLOAD_RATE_LIMIT", &cfg.UploadRateLimit)
	setInt("GALLERY_ACCESS_RATE_LIMIT", &cfg.AccessRateLimit)
	setInt("GALLERY_RATE_LIMIT_WINDOW_SECONDS", &cfg.RateLimitWindowSeconds)
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("GALLERY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	setInt("GALLERY_MAX_PHOTOS", &cfg.MaxPhotosPerUpload)
	if v := os.Getenv("GALLERY_ALLOWED_CONTENT_TYPES"); v != "" {
		cfg.AllowedContentTypes = splitCSV(v)
	}
	setInt("UPSTREAM_TIMEOUT_SECONDS", &cfg.UpstreamTimeoutSeconds)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)
	setBool("MINIO_USE_SSL", &cfg.MinioUseSSL)
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8086"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	cfg.MetadataBackend = strings.ToLower(strings.TrimSpace(cfg.MetadataBackend))
	if cfg.MetadataBackend == "" {
		cfg.MetadataBackend = BackendSupabase
	}
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeSupabase
	}
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if cfg.SupabaseURL != "" {
		if cfg.JWTIssuer == "" {
			cfg.JWTIssuer = cfg.SupabaseURL + "/auth/v1"
		}
		if cfg.AuthMode == AuthModeJWT && cfg.JWKSURL == "" && cfg.JWTSecret == "" {
			cfg.JWKSURL = cfg.SupabaseURL + "/auth/v1/.well-known/jwks.json"
		}
	}
	if cfg.JWTAudience == "" {
		cfg.JWTAudience = "authenticated"
	}
	if cfg.UploadRateLimit == 0 {
		cfg.UploadRateLimit = 30
	}
	if cfg.AccessRateLimit == 0 {
		cfg.AccessRateLimit = 10
	}
	if cfg.RateLimitWindowSeconds == 0 {
		cfg.RateLimitWindowSeconds = 60
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	if cfg.MaxPhotosPerUpload == 0 {
		cfg.MaxPhotosPerUpload = 50
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"image/jpeg", "image/png"}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	needSupabase := cfg.MetadataBackend == BackendSupabase || cfg.AuthMode == AuthModeSupabase
	switch cfg.MetadataBackend {
	case BackendSupabase, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres backend (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: metadataBackend %q is not one of supabase, postgres, memory", cfg.MetadataBackend)
	}
	switch cfg.AuthMode {
	case AuthModeSupabase:
	case AuthModeJWT:
		if cfg.JWKSURL == "" && cfg.JWTSecret == "" {
			return errors.New("config: jwksURL or jwtSecret is required for jwt auth (set in config.yaml, SUPABASE_JWKS_URL or SUPABASE_JWT_SECRET)")
		}
	default:
		return fmt.Errorf("config: authMode %q is not one of supabase, jwt", cfg.AuthMode)
	}
	if needSupabase {
		if cfg.SupabaseURL == "" {
			return errors.New("config: supabaseURL is required (set in config.yaml or SUPABASE_URL)")
		}
		if cfg.SupabaseAnonKey == "" {
			return errors.New("config: supabaseAnonKey is required (set in config.yaml or SUPABASE_ANON_KEY)")
		}
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be positive")
	}
	if cfg.MaxPhotosPerUpload < 1 {
		return errors.New("config: maxPhotosPerUpload must be at least 1")
	}
	if cfg.UploadRateLimit < 0 || cfg.AccessRateLimit < 0 || cfg.RateLimitWindowSeconds < 1 {
		return errors.New("config: rate limits must be positive")
	}
	if cfg.UpstreamTimeoutSeconds < 0 {
		return errors.New("config: upstreamTimeoutSeconds must not be negative")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
	}
	return nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// UpstreamTimeout bounds each outbound HTTP call. Zero means no timeout.
func (c FileConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

func (c FileConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("GALLERY_CONFIG")); v != "" {
		return v
	}
	return DefaultConfigPath
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
