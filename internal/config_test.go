package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/storage"
)

const testAuthSecret = "0123456789abcdef0123456789abcdef"

var storageEnv = []string{
	"STORAGE_PREFERENCE", "STORAGE_OWNERSHIP_ORDER",
	"BLOB_READ_WRITE_TOKEN", "VERCEL_BLOB_API_URL",
	"AWS_S3_BUCKET", "AWS_S3_REGION", "AWS_S3_ACCESS_KEY", "AWS_S3_SECRET_ACCESS_KEY",
	"CLOUDFLARE_R2_BUCKET", "CLOUDFLARE_R2_ACCOUNT_ID", "CLOUDFLARE_R2_PUBLIC_DOMAIN",
	"CLOUDFLARE_R2_ACCESS_KEY", "CLOUDFLARE_R2_SECRET_ACCESS_KEY",
	"MINIO_BUCKET", "MINIO_DOMAIN", "MINIO_PORT", "MINIO_DISABLE_SSL",
	"MINIO_ACCESS_KEY", "MINIO_SECRET_ACCESS_KEY",
	"LOCAL_FS_STORAGE_DIR", "LOCAL_FS_BASE_URL",
	"MAX_UPLOAD_SIZE", "DATABASE_URL", "BASE_URL", "DOWNLOAD_ALLOWED_HOSTS",
}

// cleanEnv blanks every variable NewConfig reads so the host environment
// does not leak into a test.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range storageEnv {
		t.Setenv(k, "")
	}
	t.Setenv("AUTH_SECRET", testAuthSecret)
}

func setR2(t *testing.T) {
	t.Setenv("CLOUDFLARE_R2_BUCKET", "photos")
	t.Setenv("CLOUDFLARE_R2_ACCOUNT_ID", "acct")
	t.Setenv("CLOUDFLARE_R2_ACCESS_KEY", "key")
	t.Setenv("CLOUDFLARE_R2_SECRET_ACCESS_KEY", "secret")
}

func setS3(t *testing.T) {
	t.Setenv("AWS_S3_BUCKET", "photos")
	t.Setenv("AWS_S3_REGION", "us-east-1")
	t.Setenv("AWS_S3_ACCESS_KEY", "key")
	t.Setenv("AWS_S3_SECRET_ACCESS_KEY", "secret")
}

func TestNewConfig_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocalFS, cfg.CurrentStorage)
	assert.True(t, cfg.HasLocalFSStorage())
	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, int64(32_000_000), cfg.MaxUploadSize)
	assert.True(t, cfg.StripGPSData)
	assert.Equal(t, "http://localhost:8080/api/storage/local-upload", cfg.LocalUploadEndpoint())
}

func TestNewConfig_RequiresAuthSecret(t *testing.T) {
	cleanEnv(t)
	t.Setenv("AUTH_SECRET", "short")

	_, err := NewConfig()

	assert.ErrorContains(t, err, "AUTH_SECRET")
}

func TestNewConfig_CurrentStorage(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T)
		want    storage.Backend
		wantErr string
	}{
		{
			name: "r2 beats s3",
			setup: func(t *testing.T) {
				setS3(t)
				setR2(t)
			},
			want: storage.BackendCloudflareR2,
		},
		{
			name: "vercel blob first",
			setup: func(t *testing.T) {
				setR2(t)
				t.Setenv("BLOB_READ_WRITE_TOKEN", "vercel_blob_rw_store_secret")
			},
			want: storage.BackendVercelBlob,
		},
		{
			name: "preference wins",
			setup: func(t *testing.T) {
				setR2(t)
				setS3(t)
				t.Setenv("STORAGE_PREFERENCE", "aws-s3")
			},
			want: storage.BackendAWSS3,
		},
		{
			name: "preference for local-fs",
			setup: func(t *testing.T) {
				setR2(t)
				t.Setenv("STORAGE_PREFERENCE", "local-fs")
			},
			want: storage.BackendLocalFS,
		},
		{
			name:    "preference not configured",
			setup:   func(t *testing.T) { t.Setenv("STORAGE_PREFERENCE", "minio") },
			wantErr: "not configured",
		},
		{
			name:    "unknown preference",
			setup:   func(t *testing.T) { t.Setenv("STORAGE_PREFERENCE", "dropbox") },
			wantErr: "STORAGE_PREFERENCE",
		},
		{
			name: "incomplete s3 is ignored",
			setup: func(t *testing.T) {
				t.Setenv("AWS_S3_BUCKET", "photos")
			},
			want: storage.BackendLocalFS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			tt.setup(t)

			cfg, err := NewConfig()

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.CurrentStorage)
		})
	}
}

func TestNewConfig_OwnershipOrder(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORAGE_OWNERSHIP_ORDER", "minio, local-fs,aws-s3,")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, []storage.Backend{storage.BackendMinIO, storage.BackendLocalFS, storage.BackendAWSS3}, cfg.StorageOwnershipOrder)

	t.Setenv("STORAGE_OWNERSHIP_ORDER", "minio,ftp")
	_, err = NewConfig()
	assert.ErrorContains(t, err, "STORAGE_OWNERSHIP_ORDER")
}

func TestNewConfig_DownloadAllowedHosts(t *testing.T) {
	cleanEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.DownloadAllowedHosts)

	t.Setenv("DOWNLOAD_ALLOWED_HOSTS", "Photos.Example.com, localhost:9000,")
	cfg, err = NewConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"photos.example.com", "localhost:9000"}, cfg.DownloadAllowedHosts)
}

func TestNewConfig_MaxUploadSize(t *testing.T) {
	cleanEnv(t)
	t.Setenv("MAX_UPLOAD_SIZE", "10 MiB")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)

	t.Setenv("MAX_UPLOAD_SIZE", "lots")
	_, err = NewConfig()
	assert.ErrorContains(t, err, "MAX_UPLOAD_SIZE")
}

func TestConfig_StorageConfig(t *testing.T) {
	cleanEnv(t)
	setR2(t)
	t.Setenv("LOCAL_FS_STORAGE_DIR", "/var/lib/darkroom/uploads")

	cfg, err := NewConfig()
	require.NoError(t, err)

	sc := cfg.StorageConfig(nil)

	assert.Equal(t, storage.BackendCloudflareR2, sc.Current)
	require.NotNil(t, sc.R2)
	assert.Equal(t, "acct", sc.R2.AccountID)
	require.NotNil(t, sc.LocalFS)
	assert.Equal(t, "/var/lib/darkroom/uploads", sc.LocalFS.BasePath)
	assert.Nil(t, sc.AWSS3)
	assert.Nil(t, sc.MinIO)
	assert.Nil(t, sc.VercelBlob)
}

func TestConfig_Accounts(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ADMIN_EMAIL", "me@example.com")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$12$hash")

	cfg, err := NewConfig()
	require.NoError(t, err)

	accounts := cfg.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, auth.Account{Email: "me@example.com", PasswordHash: "$2a$12$hash", Role: auth.RoleAdmin}, accounts[0])
}
