package main

import (
	"fmt"
	"os"

	"github.com/example/go-image-classify/internal/model"
	"github.com/spf13/cobra"
)

func newModelVerifyCmd() *cobra.Command {
	var bundleDir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate the bundle manifest and label table",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dir := bundleDir
			if dir == "" {
				dir = cfg.Paths.BundleDir
			}

			report, err := model.Verify(model.VerifyOptions{
				Dir:    dir,
				Stdout: os.Stdout,
			})
			if err != nil {
				return fmt.Errorf("bundle verify failed: %w", err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "bundle %q verified (%d classes)\n", report.Name, report.ClassCount)

			return nil
		},
	}

	cmd.Flags().StringVar(&bundleDir, "bundle-dir", "", "Bundle directory to verify (default: configured bundle dir)")

	return cmd
}
