package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/storage"
)

const (
	defaultMaxUploadSize = "32MB"
	minAuthSecretLength  = 32
)

type Config struct {
	Env             string
	Port            int
	LogLevel        string
	ShutdownTimeout time.Duration

	// Upstream timeout of the download proxy
	DownloadTimeout time.Duration

	// Hosts the download proxy may fetch from. Empty allows any host.
	DownloadAllowedHosts []string

	// Application base URL (local upload endpoint, relative download URLs)
	BaseURL string

	// Optional. Photo records and date repair are disabled without it.
	DatabaseUrl string

	// Signs session and local upload tokens. At least 32 bytes.
	AuthSecret string

	// Sign-in accounts, one per role. An account without both email and
	// hash cannot sign in.
	AdminEmail                 string
	AdminPasswordHash          string
	VisitorPrivateEmail        string
	VisitorPrivatePasswordHash string
	VisitorPublicEmail         string
	VisitorPublicPasswordHash  string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string

	// Uploads
	MaxUploadSize int64
	StripGPSData  bool

	// Storage Configuration
	StoragePreference     string // empty picks the first configured backend
	StorageOwnershipOrder []storage.Backend

	// Vercel Blob
	BlobReadWriteToken string
	VercelBlobAPIURL   string

	// AWS S3
	AWSS3Bucket          string
	AWSS3Region          string
	AWSS3AccessKey       string
	AWSS3SecretAccessKey string

	// Cloudflare R2
	R2Bucket          string
	R2AccountID       string
	R2PublicDomain    string
	R2AccessKey       string
	R2SecretAccessKey string

	// MinIO
	MinIOBucket          string
	MinIODomain          string
	MinIOPort            string
	MinIODisableSSL      bool
	MinIOAccessKey       string
	MinIOSecretAccessKey string

	// Local filesystem
	LocalFSStorageDir string
	LocalFSBaseURL    string
	localFSExplicit   bool

	// CurrentStorage is the backend new files are written to.
	CurrentStorage storage.Backend
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),

		// Base URL defaults to localhost for development
		BaseURL: strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		DatabaseUrl: os.Getenv("DATABASE_URL"),
		AuthSecret:  os.Getenv("AUTH_SECRET"),

		AdminEmail:                 getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash:          getEnv("ADMIN_PASSWORD_HASH", ""),
		VisitorPrivateEmail:        getEnv("VISITOR_PRIVATE_EMAIL", ""),
		VisitorPrivatePasswordHash: getEnv("VISITOR_PRIVATE_PASSWORD_HASH", ""),
		VisitorPublicEmail:         getEnv("VISITOR_PUBLIC_EMAIL", ""),
		VisitorPublicPasswordHash:  getEnv("VISITOR_PUBLIC_PASSWORD_HASH", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		StripGPSData: getEnvBool("STRIP_GPS_DATA", true),

		StoragePreference: getEnv("STORAGE_PREFERENCE", ""),

		BlobReadWriteToken: getEnv("BLOB_READ_WRITE_TOKEN", ""),
		VercelBlobAPIURL:   getEnv("VERCEL_BLOB_API_URL", ""),

		AWSS3Bucket:          getEnv("AWS_S3_BUCKET", ""),
		AWSS3Region:          getEnv("AWS_S3_REGION", ""),
		AWSS3AccessKey:       getEnv("AWS_S3_ACCESS_KEY", ""),
		AWSS3SecretAccessKey: getEnv("AWS_S3_SECRET_ACCESS_KEY", ""),

		R2Bucket:          getEnv("CLOUDFLARE_R2_BUCKET", ""),
		R2AccountID:       getEnv("CLOUDFLARE_R2_ACCOUNT_ID", ""),
		R2PublicDomain:    getEnv("CLOUDFLARE_R2_PUBLIC_DOMAIN", ""),
		R2AccessKey:       getEnv("CLOUDFLARE_R2_ACCESS_KEY", ""),
		R2SecretAccessKey: getEnv("CLOUDFLARE_R2_SECRET_ACCESS_KEY", ""),

		MinIOBucket:          getEnv("MINIO_BUCKET", ""),
		MinIODomain:          getEnv("MINIO_DOMAIN", ""),
		MinIOPort:            getEnv("MINIO_PORT", ""),
		MinIODisableSSL:      getEnvBool("MINIO_DISABLE_SSL", false),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretAccessKey: getEnv("MINIO_SECRET_ACCESS_KEY", ""),

		LocalFSStorageDir: getEnv("LOCAL_FS_STORAGE_DIR", "./public/uploads"),
		LocalFSBaseURL:    getEnv("LOCAL_FS_BASE_URL", "/uploads"),
		localFSExplicit:   os.Getenv("LOCAL_FS_STORAGE_DIR") != "",
	}

	// Required
	if len(cfg.AuthSecret) < minAuthSecretLength {
		return nil, fmt.Errorf("AUTH_SECRET is required and must be at least %d characters", minAuthSecretLength)
	}

	maxUpload, err := humanize.ParseBytes(getEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	for _, host := range strings.Split(getEnv("DOWNLOAD_ALLOWED_HOSTS", ""), ",") {
		if host = strings.TrimSpace(host); host != "" {
			cfg.DownloadAllowedHosts = append(cfg.DownloadAllowedHosts, strings.ToLower(host))
		}
	}

	// Parse ownership order from comma-separated environment variable
	if orderStr := getEnv("STORAGE_OWNERSHIP_ORDER", ""); orderStr != "" {
		for _, name := range strings.Split(orderStr, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			b, err := storage.ParseBackend(name)
			if err != nil {
				return nil, fmt.Errorf("STORAGE_OWNERSHIP_ORDER: %w", err)
			}
			cfg.StorageOwnershipOrder = append(cfg.StorageOwnershipOrder, b)
		}
	}

	current, err := cfg.resolveCurrentStorage()
	if err != nil {
		return nil, err
	}
	cfg.CurrentStorage = current

	return cfg, nil
}

// resolveCurrentStorage picks STORAGE_PREFERENCE when set, else the first
// configured of Vercel Blob, Cloudflare R2, AWS S3 and MinIO, else the
// local filesystem.
func (c *Config) resolveCurrentStorage() (storage.Backend, error) {
	if c.StoragePreference != "" {
		b, err := storage.ParseBackend(c.StoragePreference)
		if err != nil {
			return "", fmt.Errorf("STORAGE_PREFERENCE: %w", err)
		}
		if b != storage.BackendLocalFS && !c.hasBackend(b) {
			return "", fmt.Errorf("STORAGE_PREFERENCE is %s but that backend is not configured", b)
		}
		return b, nil
	}

	for _, b := range []storage.Backend{
		storage.BackendVercelBlob,
		storage.BackendCloudflareR2,
		storage.BackendAWSS3,
		storage.BackendMinIO,
	} {
		if c.hasBackend(b) {
			return b, nil
		}
	}
	return storage.BackendLocalFS, nil
}

func (c *Config) hasBackend(b storage.Backend) bool {
	switch b {
	case storage.BackendVercelBlob:
		return c.HasVercelBlobStorage()
	case storage.BackendAWSS3:
		return c.HasAWSS3Storage()
	case storage.BackendCloudflareR2:
		return c.HasCloudflareR2Storage()
	case storage.BackendMinIO:
		return c.HasMinIOStorage()
	case storage.BackendLocalFS:
		return c.HasLocalFSStorage()
	}
	return false
}

func (c *Config) HasVercelBlobStorage() bool {
	return c.BlobReadWriteToken != ""
}

func (c *Config) HasAWSS3Storage() bool {
	return c.AWSS3Bucket != "" && c.AWSS3Region != "" &&
		c.AWSS3AccessKey != "" && c.AWSS3SecretAccessKey != ""
}

func (c *Config) HasCloudflareR2Storage() bool {
	return c.R2Bucket != "" && c.R2AccountID != "" &&
		c.R2AccessKey != "" && c.R2SecretAccessKey != ""
}

func (c *Config) HasMinIOStorage() bool {
	return c.MinIOBucket != "" && c.MinIODomain != "" &&
		c.MinIOAccessKey != "" && c.MinIOSecretAccessKey != ""
}

// HasLocalFSStorage reports whether the local filesystem backend is
// active: it is the current backend or LOCAL_FS_STORAGE_DIR was set.
func (c *Config) HasLocalFSStorage() bool {
	return c.localFSExplicit || c.CurrentStorage == storage.BackendLocalFS
}

// HasDatabase reports whether photo records are persisted.
func (c *Config) HasDatabase() bool {
	return c.DatabaseUrl != ""
}

// IsSecure reports whether cookies and HSTS should require HTTPS.
func (c *Config) IsSecure() bool {
	return c.Env != "development"
}

// LocalUploadEndpoint is the route presigned local-fs URLs point at.
func (c *Config) LocalUploadEndpoint() string {
	return c.BaseURL + "/api/storage/local-upload"
}

// StorageConfig builds the storage router configuration. signer issues
// tokens for local-fs presigned uploads.
func (c *Config) StorageConfig(signer storage.UploadTokenSigner) storage.Config {
	cfg := storage.Config{
		Current:        c.CurrentStorage,
		OwnershipOrder: c.StorageOwnershipOrder,
	}
	if c.HasVercelBlobStorage() {
		cfg.VercelBlob = &storage.VercelBlobConfig{
			Token:  c.BlobReadWriteToken,
			APIURL: c.VercelBlobAPIURL,
		}
	}
	if c.HasAWSS3Storage() {
		cfg.AWSS3 = &storage.S3Config{
			Bucket:          c.AWSS3Bucket,
			Region:          c.AWSS3Region,
			AccessKeyID:     c.AWSS3AccessKey,
			SecretAccessKey: c.AWSS3SecretAccessKey,
		}
	}
	if c.HasCloudflareR2Storage() {
		cfg.R2 = &storage.R2Config{
			AccountID:       c.R2AccountID,
			AccessKeyID:     c.R2AccessKey,
			SecretAccessKey: c.R2SecretAccessKey,
			Bucket:          c.R2Bucket,
			PublicDomain:    c.R2PublicDomain,
		}
	}
	if c.HasMinIOStorage() {
		cfg.MinIO = &storage.MinIOConfig{
			Bucket:          c.MinIOBucket,
			Domain:          c.MinIODomain,
			Port:            c.MinIOPort,
			DisableSSL:      c.MinIODisableSSL,
			AccessKeyID:     c.MinIOAccessKey,
			SecretAccessKey: c.MinIOSecretAccessKey,
		}
	}
	if c.HasLocalFSStorage() {
		cfg.LocalFS = &storage.LocalConfig{
			BasePath:       c.LocalFSStorageDir,
			BaseURL:        c.LocalFSBaseURL,
			UploadEndpoint: c.LocalUploadEndpoint(),
			Signer:         signer,
		}
	}
	return cfg
}

// Accounts returns the configured sign-in accounts.
func (c *Config) Accounts() []auth.Account {
	return []auth.Account{
		{Email: c.AdminEmail, PasswordHash: c.AdminPasswordHash, Role: auth.RoleAdmin},
		{Email: c.VisitorPrivateEmail, PasswordHash: c.VisitorPrivatePasswordHash, Role: auth.RolePrivateViewer},
		{Email: c.VisitorPublicEmail, PasswordHash: c.VisitorPublicPasswordHash, Role: auth.RolePublicViewer},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
