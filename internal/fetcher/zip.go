package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}

	return extracted, nil
}

// extractZIPEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path, or empty string for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}

// WriteZIP packs the given files (stored under their base names) into a
// deflate-compressed archive at zipPath, replacing any previous archive.
func WriteZIP(zipPath string, files ...string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return eris.Wrap(err, "zip: create archive")
	}

	w := zip.NewWriter(out)
	for _, name := range files {
		if err := addZIPEntry(w, name); err != nil {
			_ = w.Close()
			_ = out.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return eris.Wrap(err, "zip: finalize archive")
	}
	return eris.Wrap(out.Close(), "zip: close archive")
}

func addZIPEntry(w *zip.Writer, name string) error {
	in, err := os.Open(name)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", name)
	}
	defer in.Close() //nolint:errcheck

	info, err := in.Stat()
	if err != nil {
		return eris.Wrapf(err, "zip: stat %s", name)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return eris.Wrapf(err, "zip: header %s", name)
	}
	hdr.Name = filepath.Base(name)
	hdr.Method = zip.Deflate

	fw, err := w.CreateHeader(hdr)
	if err != nil {
		return eris.Wrapf(err, "zip: add %s", name)
	}
	if _, err := io.Copy(fw, in); err != nil {
		return eris.Wrapf(err, "zip: write %s", name)
	}
	return nil
}
