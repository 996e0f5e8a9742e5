package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/storage"
	"github.com/DukeRupert/darkroom/internal/upload"
)

var (
	uploadServer   string
	uploadAttempts int
)

// uploadCmd represents the upload command.
var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file through the server's presigned-upload gateway",
	Long: `Asks a running server for a presigned URL and PUTs the file to it,
retrying transient failures. Prints the storage URL of the upload, ready for
POST /api/admin/photos/ingest.

	darkroomctl upload ./IMG_0042.jpg --server https://photos.example.com
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := commandLogger(cmd, cfg)

		path := args[0]
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if ext == "" {
			return fmt.Errorf("%s has no file extension", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		router, err := openRouter(cfg, logger)
		if err != nil {
			return err
		}

		tokens, err := auth.NewTokenIssuer(cfg.AuthSecret)
		if err != nil {
			return err
		}
		token, _, err := tokens.IssueSession("darkroomctl", auth.RoleAdmin)
		if err != nil {
			return err
		}

		server := uploadServer
		if server == "" {
			server = cfg.BaseURL
		}
		client, err := upload.NewClient(upload.Config{
			PresignEndpoint: strings.TrimSuffix(server, "/") + "/api/storage/presigned-url",
			StorageBaseURL:  router.Current().BaseURLs()[0],
			SessionToken:    token,
			Attempts:        uploadAttempts,
		}, logger)
		if err != nil {
			return err
		}

		start := time.Now()
		url, err := client.Upload(cmd.Context(), data, storage.PrefixUpload, ext, true)
		if err != nil {
			return err
		}
		logger.Info("uploaded", "url", url, "bytes", len(data), "elapsed", time.Since(start))
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadServer, "server", "", "server base URL (default BASE_URL)")
	uploadCmd.Flags().IntVar(&uploadAttempts, "attempts", 3, "upload attempts before giving up")
}
