package main

import (
	"fmt"
	"os"

	"github.com/example/go-image-classify/internal/model"
	"github.com/spf13/cobra"
)

func newModelDownloadCmd() *cobra.Command {
	var bundleID string
	var bundleURL string
	var sha256Sum string
	var lockFile string
	var outDir string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and extract a classifier model bundle",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cfg.Paths.BundleDir
			}

			err = model.Download(model.DownloadOptions{
				BundleID:  bundleID,
				BundleURL: bundleURL,
				SHA256:    sha256Sum,
				LockFile:  lockFile,
				OutDir:    outDir,
				Quiet:     quiet,
				Stdout:    os.Stdout,
				Stderr:    os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("bundle download failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&bundleID, "bundle-id", "", "Bundle ID to resolve from the lock file (default: first entry)")
	cmd.Flags().StringVar(&bundleURL, "bundle-url", "", "Direct bundle archive URL (bypasses the lock file)")
	cmd.Flags().StringVar(&sha256Sum, "sha256", "", "Expected archive checksum (overrides the lock file entry)")
	cmd.Flags().StringVar(&lockFile, "lock-file", "", "Bundle lock file path (default: bundles/classifier-bundles.lock.json)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Extraction directory (default: configured bundle dir)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress the download progress bar")

	return cmd
}
