package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/darkroom/internal/storage"
)

// storageCmd represents the storage command.
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect configured storage backends",
}

var storageLsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List objects on every configured backend, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		router, err := openRouter(cfg, commandLogger(cmd, cfg))
		if err != nil {
			return err
		}

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		items, partial := router.ListPrefix(cmd.Context(), prefix)
		printListing(cmd, items, time.Now())

		for _, p := range partial {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s listing failed: %v\n", p.Backend.Label(), p.Err)
		}
		if len(partial) > 0 {
			return fmt.Errorf("%d backend(s) failed to list", len(partial))
		}
		return nil
	},
}

var storageCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every configured backend answers a listing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		router, err := openRouter(cfg, commandLogger(cmd, cfg))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "current: %s\n", router.CurrentBackend().Label())
		if err := router.TestConnection(cmd.Context()); err != nil {
			return err
		}
		for _, b := range router.Configured() {
			fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\n", b.Label())
		}
		return nil
	},
}

func printListing(cmd *cobra.Command, items []storage.ListItem, now time.Time) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UPLOADED\tSIZE\tURL")
	for _, item := range items {
		uploaded := "-"
		if !item.UploadedAt.IsZero() {
			uploaded = humanize.RelTime(item.UploadedAt, now, "ago", "from now")
		}
		size := item.Size
		if size == "" {
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", uploaded, size, item.URL)
	}
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageLsCmd)
	storageCmd.AddCommand(storageCheckCmd)
}
