package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/go-image-classify/internal/doctor"
	"github.com/example/go-image-classify/internal/engine"
	"github.com/example/go-image-classify/internal/model"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var skipEngine bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local engine and bundle checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg := doctor.Config{
				EngineLibrary: func() (string, error) {
					info, err := engine.DetectRuntime(cfg.Runtime)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%s (%s)", info.LibraryPath, info.Version), nil
				},
				SkipEngine:  skipEngine,
				BundleFiles: collectBundleFiles(cfg.Paths.BundleDir),
				LabelCheck: func() (string, error) {
					report, err := model.Verify(model.VerifyOptions{Dir: cfg.Paths.BundleDir, Stdout: io.Discard})
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%d classes", report.ClassCount), nil
				},
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEngine, "skip-engine", false, "Skip the inference-engine library check")

	return cmd
}

// collectBundleFiles resolves the bundle's file paths for the doctor stat
// checks. When the bundle cannot be opened the manifest path itself is
// returned so the failure surfaces with a useful message.
func collectBundleFiles(bundleDir string) []string {
	bundle, err := model.Open(bundleDir)
	if err != nil {
		return []string{filepath.Join(bundleDir, "manifest.json")}
	}

	paths := []string{
		bundle.Path("manifest.json"),
		bundle.GraphPath(),
		bundle.LabelsPath(),
	}
	if bundle.Manifest.Checkpoint != "" {
		paths = append(paths, bundle.Path(bundle.Manifest.Checkpoint))
	}

	return paths
}
