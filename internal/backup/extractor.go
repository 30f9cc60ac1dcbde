package backup

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// vectorIndexEntry is the directory prefix for vector index files inside
// an archive.
const vectorIndexEntry = "vector_index"

// registerZipCodecs installs the klauspost flate codec on a zip writer.
// Same Deflate wire format, faster codec.
func registerZipCodecs(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
}

// packArchive zips the contents of srcDir into destPath. Entry names are
// relative to srcDir with forward slashes.
func packArchive(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return NewIOError("failed to create archive file", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	registerZipCodecs(zw)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return NewIOError("failed to pack archive", err)
	}

	if err := zw.Close(); err != nil {
		return NewIOError("failed to finalize archive", err)
	}
	return out.Sync()
}

// unpackArchive extracts archivePath into destDir. Entries resolving outside
// destDir are rejected.
func unpackArchive(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return NewCorruptArchiveError("failed to open archive", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return NewCorruptArchiveError("archive entry escapes destination directory: "+entry.Name, nil)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return NewIOError("failed to create directory", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return NewIOError("failed to create directory", err)
		}

		if err := extractEntry(entry, target); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry writes a single archive entry to target
func extractEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return NewCorruptArchiveError("failed to open archive entry "+entry.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode())
	if err != nil {
		return NewIOError("failed to create file "+target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return NewIOError("failed to extract "+entry.Name, err)
	}
	return nil
}

// readArchiveManifest reads and parses the manifest entry of a plaintext
// archive without extracting it.
func readArchiveManifest(archivePath string) (*Manifest, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, NewCorruptArchiveError("failed to open archive", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.Name != ManifestFilename {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, NewCorruptArchiveError("failed to open manifest entry", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, NewCorruptArchiveError("failed to read manifest entry", err)
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, NewCorruptArchiveError("failed to parse manifest", err)
		}
		return &manifest, nil
	}

	return nil, NewCorruptArchiveError("archive has no manifest", nil)
}

// copyDir copies the contents of srcDir into destDir verbatim
func copyDir(srcDir, destDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

// copyFile copies a single file preserving the given mode
func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
