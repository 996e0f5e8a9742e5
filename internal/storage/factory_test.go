package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allBackendsConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Current:    BackendCloudflareR2,
		VercelBlob: &VercelBlobConfig{Token: testBlobToken},
		AWSS3: &S3Config{
			Bucket: "gallery",
			Region: "eu-west-1",
		},
		R2: &R2Config{
			AccountID:    "acct",
			Bucket:       "gallery",
			PublicDomain: "https://photos.example.com/",
		},
		MinIO: &MinIOConfig{
			Bucket:     "gallery",
			Domain:     "localhost",
			Port:       "9000",
			DisableSSL: true,
		},
		LocalFS: &LocalConfig{BasePath: t.TempDir(), BaseURL: "/uploads/"},
	}
}

func TestNewRouterFromConfig_ConfiguresEveryBackend(t *testing.T) {
	r, err := NewRouterFromConfig(allBackendsConfig(t), testLogger())
	require.NoError(t, err)

	assert.Equal(t, AllBackends, r.Configured())
	assert.Equal(t, BackendCloudflareR2, r.CurrentBackend())
	assert.Equal(t, "https://photos.example.com", r.Current().BaseURLs()[0])
}

func TestNewRouterFromConfig_URLsOwnedByTheirBackendOnly(t *testing.T) {
	r, err := NewRouterFromConfig(allBackendsConfig(t), testLogger())
	require.NoError(t, err)

	keys := []string{
		"upload-0123456789abcdef.jpg",
		"photo-0123456789abcdef-md.webp",
		"photo-abcdef0123456789.png",
	}
	for _, b := range AllBackends {
		owner, ok := r.Adapter(b)
		require.True(t, ok, b)

		for _, key := range keys {
			u := owner.URLForKey(key)
			assert.Equal(t, b, r.BackendForURL(u), u)
			assert.Equal(t, key, ParseKey(u).FileName, u)

			for _, other := range AllBackends {
				a, _ := r.Adapter(other)
				assert.Equal(t, other == b, a.OwnsURL(u), "%s owns %s", other, u)
			}
		}
	}
}

func TestNewRouterFromConfig_RejectsBadBackendConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"s3 without region", func(c *Config) { c.AWSS3.Region = "" }},
		{"r2 without account", func(c *Config) { c.R2.AccountID = "" }},
		{"minio without domain", func(c *Config) { c.MinIO.Domain = " " }},
		{"malformed blob token", func(c *Config) { c.VercelBlob.Token = "nope" }},
		{"current not configured", func(c *Config) { c.R2 = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := allBackendsConfig(t)
			tt.mutate(&cfg)
			_, err := NewRouterFromConfig(cfg, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestNewR2Storage_BaseURLs(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   []string
	}{
		{"public domain with protocol", "https://photos.example.com/", []string{"https://photos.example.com", "https://acct.r2.cloudflarestorage.com/gallery"}},
		{"bare public domain", "photos.example.com", []string{"https://photos.example.com", "https://acct.r2.cloudflarestorage.com/gallery"}},
		{"private only", "", []string{"https://acct.r2.cloudflarestorage.com/gallery"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewR2Storage(R2Config{AccountID: "acct", Bucket: "gallery", PublicDomain: tt.domain}, testLogger())
			require.NoError(t, err)

			assert.Equal(t, tt.want, s.BaseURLs())
			assert.Equal(t, tt.want[0]+"/photo-0123456789abcdef.jpg", s.URLForKey("photo-0123456789abcdef.jpg"))
			for _, base := range tt.want {
				assert.True(t, s.OwnsURL(base+"/photo-0123456789abcdef.jpg"), base)
			}
			assert.False(t, s.OwnsURL("https://acct.r2.cloudflarestorage.com/other/photo-0123456789abcdef.jpg"))
		})
	}
}

func TestNewMinIOStorage_BaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  MinIOConfig
		want string
	}{
		{"ssl without port", MinIOConfig{Bucket: "gallery", Domain: "minio.example.com"}, "https://minio.example.com/gallery"},
		{"ssl with port", MinIOConfig{Bucket: "gallery", Domain: "minio.example.com", Port: "9443"}, "https://minio.example.com:9443/gallery"},
		{"plain http with port", MinIOConfig{Bucket: "gallery", Domain: "localhost", Port: "9000", DisableSSL: true}, "http://localhost:9000/gallery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewMinIOStorage(tt.cfg, testLogger())
			require.NoError(t, err)

			assert.Equal(t, []string{tt.want}, s.BaseURLs())
			assert.Equal(t, tt.want+"/photo-0123456789abcdef.jpg", s.URLForKey("photo-0123456789abcdef.jpg"))
			assert.True(t, s.OwnsURL(tt.want+"/photo-0123456789abcdef.jpg"))
			assert.False(t, s.OwnsURL(tt.want+"-other/photo-0123456789abcdef.jpg"))
		})
	}
}

func TestNewAWSS3Storage_BaseURL(t *testing.T) {
	s, err := NewAWSS3Storage(S3Config{Bucket: "gallery", Region: "eu-west-1"}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://gallery.s3.eu-west-1.amazonaws.com"}, s.BaseURLs())
	assert.Equal(t, BackendAWSS3, s.Backend())
	assert.True(t, s.OwnsURL("https://gallery.s3.eu-west-1.amazonaws.com/photo-0123456789abcdef.jpg"))
	assert.False(t, s.OwnsURL("https://gallery.s3.us-east-1.amazonaws.com/photo-0123456789abcdef.jpg"))
}
