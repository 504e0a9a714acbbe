package model

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// BundleLock pins downloadable bundles to exact URLs and checksums.
type BundleLock struct {
	Version int          `json:"version"`
	Bundles []LockedItem `json:"bundles"`
}

type LockedItem struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

type DownloadOptions struct {
	BundleID   string
	BundleURL  string
	SHA256     string
	LockFile   string
	OutDir     string
	HTTPClient *http.Client
	Quiet      bool
	Stdout     io.Writer
	Stderr     io.Writer
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches a classifier bundle archive (zip or tar.gz), verifies its
// checksum, extracts it into OutDir, and validates the extracted manifest.
func Download(opts DownloadOptions) error {
	if opts.OutDir == "" {
		return errors.New("out dir is required")
	}

	if opts.LockFile == "" {
		opts.LockFile = filepath.Join("bundles", "classifier-bundles.lock.json")
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 0}
	}

	bundleURL := strings.TrimSpace(opts.BundleURL)

	checksum := strings.ToLower(strings.TrimSpace(opts.SHA256))
	if bundleURL == "" {
		item, err := resolveFromLock(opts.LockFile, opts.BundleID)
		if err != nil {
			return err
		}

		bundleURL = item.URL
		if checksum == "" {
			checksum = strings.ToLower(strings.TrimSpace(item.SHA256))
		}

		_, _ = fmt.Fprintf(opts.Stdout, "resolved bundle from lock: id=%s url=%s\n", item.ID, item.URL)
	}

	if bundleURL == "" {
		return fmt.Errorf("bundle URL is required (pass --bundle-url or configure %s)", opts.LockFile)
	}

	if checksum != "" && !shaHexPattern.MatchString(checksum) {
		return fmt.Errorf("invalid sha256 checksum %q", checksum)
	}

	err := os.MkdirAll(opts.OutDir, 0o755)
	if err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	tmpArchive, actualSHA, size, err := fetchArchive(opts.HTTPClient, bundleURL, opts.Quiet, opts.Stderr)
	if err != nil {
		return err
	}

	defer func() { _ = os.Remove(tmpArchive) }()

	if checksum != "" && checksum != actualSHA {
		return fmt.Errorf("bundle checksum mismatch: expected %s got %s", checksum, actualSHA)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "downloaded bundle (%s, %s) sha256=%s\n",
		bundleURL, humanize.Bytes(uint64(size)), actualSHA)

	err = extractArchive(tmpArchive, opts.OutDir)
	if err != nil {
		return err
	}

	if _, err := Open(opts.OutDir); err != nil {
		return fmt.Errorf("extracted bundle invalid: %w", err)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "verified bundle manifest in %s\n", opts.OutDir)

	return nil
}

func resolveFromLock(lockFile, bundleID string) (LockedItem, error) {
	data, err := os.ReadFile(lockFile)
	if err != nil {
		return LockedItem{}, fmt.Errorf("read bundle lock file %q: %w", lockFile, err)
	}

	var lock BundleLock

	err = json.Unmarshal(data, &lock)
	if err != nil {
		return LockedItem{}, fmt.Errorf("decode bundle lock file %q: %w", lockFile, err)
	}

	if len(lock.Bundles) == 0 {
		return LockedItem{}, fmt.Errorf("bundle lock %q has no bundles; pass --bundle-url", lockFile)
	}

	if bundleID == "" {
		return lock.Bundles[0], nil
	}

	for _, b := range lock.Bundles {
		if b.ID == bundleID {
			return b, nil
		}
	}

	return LockedItem{}, fmt.Errorf("bundle id %q not found in %s", bundleID, lockFile)
}

func fetchArchive(client *http.Client, bundleURL string, quiet bool, progressOut io.Writer) (string, string, int64, error) {
	tmpFile, err := os.CreateTemp("", "imageclassify-bundle-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp bundle file: %w", err)
	}

	tmpPath := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	var (
		reader io.ReadCloser
		total  int64 = -1
	)

	if strings.HasPrefix(bundleURL, "http://") || strings.HasPrefix(bundleURL, "https://") {
		resp, err := client.Get(bundleURL)
		if err != nil {
			cleanup()
			return "", "", 0, fmt.Errorf("bundle download failed: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = resp.Body.Close()
			cleanup()

			return "", "", 0, fmt.Errorf("bundle download failed: %s", resp.Status)
		}

		reader = resp.Body
		total = resp.ContentLength
	} else {
		local := strings.TrimPrefix(bundleURL, "file://")

		fh, err := os.Open(local)
		if err != nil {
			cleanup()
			return "", "", 0, fmt.Errorf("open local bundle %q: %w", local, err)
		}

		if st, err := fh.Stat(); err == nil {
			total = st.Size()
		}

		reader = fh
	}

	defer func() { _ = reader.Close() }()

	h := sha256.New()
	dst := io.MultiWriter(tmpFile, h)

	if !quiet {
		bar := progressbar.NewOptions64(
			total,
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("downloading bundle"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(tmpFile, h, bar)
	}

	size, err := io.Copy(dst, reader)
	if err != nil {
		cleanup()
		return "", "", 0, fmt.Errorf("write temp bundle file: %w", err)
	}

	err = tmpFile.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", "", 0, fmt.Errorf("close temp bundle file: %w", err)
	}

	return tmpPath, hex.EncodeToString(h.Sum(nil)), size, nil
}

func extractArchive(archivePath, outDir string) error {
	base := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(base, ".zip"):
		return extractZip(archivePath, outDir)
	case strings.HasSuffix(base, ".tar.gz"), strings.HasSuffix(base, ".tgz"):
		return extractTarGz(archivePath, outDir)
	default:
		// Temp files carry no extension; try ZIP first, then tar.gz.
		if err := extractZip(archivePath, outDir); err == nil {
			return nil
		}

		if err := extractTarGz(archivePath, outDir); err == nil {
			return nil
		}

		return fmt.Errorf("unsupported bundle format for %s (expected .zip or .tar.gz/.tgz)", archivePath)
	}
}

func extractZip(archivePath, outDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip bundle: %w", err)
	}

	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		targetPath, err := safeExtractPath(outDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", targetPath, err)
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", targetPath, err)
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}

		dst, err := os.Create(targetPath)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("create extracted file %s: %w", targetPath, err)
		}

		_, err = io.Copy(dst, src)
		if err != nil {
			_ = dst.Close()
			_ = src.Close()

			return fmt.Errorf("extract zip entry %s: %w", f.Name, err)
		}

		_ = dst.Close()
		_ = src.Close()
	}

	return nil
}

func extractTarGz(archivePath, outDir string) error {
	fh, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open tar.gz bundle: %w", err)
	}

	defer func() { _ = fh.Close() }()

	gz, err := gzip.NewReader(fh)
	if err != nil {
		return fmt.Errorf("open gzip reader: %w", err)
	}

	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		targetPath, err := safeExtractPath(outDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", targetPath, err)
			}

			dst, err := os.Create(targetPath)
			if err != nil {
				return fmt.Errorf("create extracted file %s: %w", targetPath, err)
			}

			_, err = io.Copy(dst, tr)
			if err != nil {
				_ = dst.Close()
				return fmt.Errorf("extract tar entry %s: %w", hdr.Name, err)
			}

			_ = dst.Close()
		default:
			// Ignore non-regular entries for bundle portability.
		}
	}

	return nil
}

func safeExtractPath(baseDir, entryName string) (string, error) {
	cleaned := filepath.Clean(strings.TrimPrefix(entryName, "/"))
	target := filepath.Join(baseDir, cleaned)

	base := filepath.Clean(baseDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), base) {
		return "", fmt.Errorf("unsafe archive path traversal attempt: %q", entryName)
	}

	return target, nil
}
