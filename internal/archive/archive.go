// Package archive reads and writes the zip archives produced by the backup
// job. An archive holds the public file tree under FileTreePrefix and one or
// more plain SQL dumps under DumpDir.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	// FileTreePrefix is where the public file tree lives inside an archive.
	FileTreePrefix = "storage/app/public"
	// DumpDir is where database dumps live inside an archive.
	DumpDir = "db-dumps"
	DumpExt = ".sql"
	Ext     = ".zip"
)

var (
	ErrDumpNotFound     = errors.New("dump not found")
	ErrFileTreeNotFound = errors.New("file tree not found")
	ErrUnsafePath       = errors.New("archive entry escapes destination")
)

// Create writes a new archive at archivePath containing the dump and, when
// fileTreePath is non-empty, the whole tree under FileTreePrefix. The archive
// is written next to its final location and renamed into place so that a
// partial file is never listed.
func Create(archivePath, dumpPath, fileTreePath string) (err error) {
	tmp := archivePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(f)
	if err = addFile(zw, dumpPath, path.Join(DumpDir, filepath.Base(dumpPath))); err != nil {
		return err
	}
	if fileTreePath != "" {
		if err = addTree(zw, fileTreePath, FileTreePrefix); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err = os.Rename(tmp, archivePath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	return nil
}

func addTree(zw *zip.Writer, root, prefix string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		case d.Type().IsRegular():
			return addFile(zw, p, name)
		default:
			// Symlinks and special files are not carried.
			return nil
		}
	})
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", src, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Extract unpacks archivePath into destDir. Entries that would land outside
// destDir are rejected; only directories and regular files are written.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", filepath.Base(archivePath), err)
	}
	defer r.Close()

	destDir = filepath.Clean(destDir)
	for _, f := range r.File {
		target, err := destPath(destDir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", f.Name, err)
			}
		case mode.IsRegular():
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func destPath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	size := int64(f.UncompressedSize64)
	n, err := io.Copy(out, io.LimitReader(rc, size+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > size {
		return fmt.Errorf("extract %s: entry larger than declared size", f.Name)
	}
	return nil
}

// LocateDump returns the first file below dir, in lexical walk order, whose
// name ends in DumpExt.
func LocateDump(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), DumpExt) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search for dump: %w", err)
	}
	if found == "" {
		return "", ErrDumpNotFound
	}
	return found, nil
}

// LocateFileTree returns the public file tree directory inside an extracted
// archive.
func LocateFileTree(dir string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(FileTreePrefix))
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return "", ErrFileTreeNotFound
	}
	return p, nil
}
