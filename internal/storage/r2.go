package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// NewR2Storage creates an adapter for a Cloudflare R2 bucket.
//
// The R2 endpoint is derived from the account ID. Objects are addressed on
// the public domain when one is configured; URLs on the private bucket
// endpoint are recognised as well.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*S3Storage, error) {
	if cfg.AccountID == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("cloudflare r2: account id and bucket are required")
	}

	// Format: https://{account_id}.r2.cloudflarestorage.com
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	private := endpoint + "/" + cfg.Bucket

	var baseURLs []string
	if domain := removeURLProtocol(cfg.PublicDomain); domain != "" {
		baseURLs = append(baseURLs, "https://"+domain)
	}
	baseURLs = append(baseURLs, private)

	logger.Info("initialized R2 storage",
		"bucket", cfg.Bucket,
		"endpoint", endpoint,
		"public_url", baseURLs[0],
	)

	return newS3Storage(BackendCloudflareR2, cfg.Bucket, baseURLs, s3Options{
		region:          "auto",
		endpoint:        endpoint,
		pathStyle:       true,
		accessKeyID:     cfg.AccessKeyID,
		secretAccessKey: cfg.SecretAccessKey,
	}, logger), nil
}

func removeURLProtocol(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimSuffix(u, "/")
}
