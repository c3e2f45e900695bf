package harvest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrArrivalTimeout is returned when no matching file lands in the staging
// directory within the wait budget. Callers treat it as a retryable unit
// failure, never a crash.
var ErrArrivalTimeout = eris.New("harvest: download never arrived")

// Downloads owns the browser's staging directory: it waits for files the
// browser drops there, moves them into their target location, and unpacks
// archive-delivered invoices.
type Downloads struct {
	stagingDir   string
	pollInterval time.Duration
	log          *zap.Logger
}

// NewDownloads creates a Downloads primitive over the staging directory.
func NewDownloads(stagingDir string) *Downloads {
	return &Downloads{
		stagingDir:   stagingDir,
		pollInterval: 500 * time.Millisecond,
		log:          zap.L().With(zap.String("component", "downloads")),
	}
}

// StagingDir returns the watched directory.
func (d *Downloads) StagingDir() string { return d.stagingDir }

// Snapshot lists the files currently present in the staging directory, for
// use as the "before" set of a subsequent WaitForNewFile call.
func (d *Downloads) Snapshot() (map[string]struct{}, error) {
	entries, err := os.ReadDir(d.stagingDir)
	if err != nil {
		return nil, eris.Wrapf(err, "downloads: list staging dir %s", d.stagingDir)
	}
	files := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = struct{}{}
		}
	}
	return files, nil
}

// WaitForNewFile polls the staging directory until a file with the given
// extension appears that was not in before and has no in-progress partial
// companion. Returns the bare filename, or ErrArrivalTimeout.
func (d *Downloads) WaitForNewFile(ctx context.Context, before map[string]struct{}, ext string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		entries, err := os.ReadDir(d.stagingDir)
		if err != nil {
			return "", eris.Wrapf(err, "downloads: list staging dir %s", d.stagingDir)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				continue
			}
			if _, seen := before[name]; seen {
				continue
			}
			if !strings.EqualFold(filepath.Ext(name), ext) {
				continue
			}
			if d.partialExists(name) {
				continue
			}
			return name, nil
		}

		if time.Now().After(deadline) {
			return "", eris.Wrapf(ErrArrivalTimeout, "downloads: no new %s file within %s", ext, timeout)
		}
		timer := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// partialExists reports whether the browser still holds an in-progress
// marker for the file.
func (d *Downloads) partialExists(name string) bool {
	for _, suffix := range []string{".crdownload", ".part"} {
		if _, err := os.Stat(filepath.Join(d.stagingDir, name+suffix)); err == nil {
			return true
		}
	}
	return false
}

// MoveFile moves src into targetDir under newName. With overwrite false a
// name collision gets a numeric suffix until a free name is found; this
// policy is for ambiguous browser-named files only — canonical invoice
// names are checked for existence before any download is attempted.
func (d *Downloads) MoveFile(src, targetDir, newName string, overwrite bool) (string, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "downloads: create target dir %s", targetDir)
	}

	dest := filepath.Join(targetDir, newName)
	if !overwrite {
		ext := filepath.Ext(newName)
		base := strings.TrimSuffix(newName, ext)
		for n := 1; ; n++ {
			if _, err := os.Stat(dest); os.IsNotExist(err) {
				break
			}
			dest = filepath.Join(targetDir, fmt.Sprintf("%s_%d%s", base, n, ext))
		}
	}

	if err := os.Rename(src, dest); err != nil {
		// Staging and target can live on different filesystems.
		if copyErr := copyAndRemove(src, dest); copyErr != nil {
			return "", eris.Wrapf(copyErr, "downloads: move %s to %s", src, dest)
		}
	}

	d.log.Info("file moved", zap.String("dest", dest))
	return dest, nil
}

// ExtractArchive unpacks every regular file from the zip at path into
// destDir and returns the extracted filenames.
func (d *Downloads) ExtractArchive(path, destDir string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrapf(err, "downloads: open archive %s", path)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "downloads: create dest dir %s", destDir)
	}

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Flatten to the base name; archive paths are untrusted.
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		if err := extractOne(f, filepath.Join(destDir, name)); err != nil {
			return names, eris.Wrapf(err, "downloads: extract %s from %s", f.Name, path)
		}
		names = append(names, name)
	}
	return names, nil
}

func extractOne(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
