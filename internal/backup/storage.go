// Package backup manages the archive store: listing, naming rules, uploads
// and creation of new archives.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edvin/periodical/internal/archive"
	"github.com/edvin/periodical/internal/model"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("backup file not found")
	ErrExists      = errors.New("a backup file with this name already exists")
	ErrNotArchive  = errors.New("backup file must be a .zip archive")
	ErrInvalidMode = errors.New("invalid backup mode")
)

// ValidateName accepts only bare file names. Anything that could address a
// file outside the backup directory is rejected.
func ValidateName(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) ||
		filepath.Base(name) != name {
		return ErrInvalidName
	}
	return nil
}

// Storage is a directory of backup archives.
type Storage struct {
	dir       string
	legacyDir string
}

// NewStorage returns a store rooted at dir. legacyDir, when set, is searched
// for archives that are not in dir; it is never written to or listed.
func NewStorage(dir, legacyDir string) *Storage {
	return &Storage{dir: dir, legacyDir: legacyDir}
}

func (s *Storage) Dir() string { return s.dir }

// List returns all .zip archives, newest first.
func (s *Storage) List() ([]model.BackupArchive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.BackupArchive{}, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	archives := make([]model.BackupArchive, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), archive.Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		archives = append(archives, describe(filepath.Join(s.dir, e.Name()), info))
	}

	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].ModifiedAt.Equal(archives[j].ModifiedAt) {
			return archives[i].ModifiedAt.After(archives[j].ModifiedAt)
		}
		return archives[i].FileName > archives[j].FileName
	})
	return archives, nil
}

// Stat validates name and describes the archive.
func (s *Storage) Stat(name string) (model.BackupArchive, error) {
	p, info, err := s.lookup(name)
	if err != nil {
		return model.BackupArchive{}, err
	}
	return describe(p, info), nil
}

// Path validates name and returns the absolute location of the archive.
func (s *Storage) Path(name string) (string, error) {
	p, _, err := s.lookup(name)
	return p, err
}

// Open validates name and opens the archive for reading.
func (s *Storage) Open(name string) (*os.File, model.BackupArchive, error) {
	p, info, err := s.lookup(name)
	if err != nil {
		return nil, model.BackupArchive{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, model.BackupArchive{}, fmt.Errorf("open backup %s: %w", name, err)
	}
	return f, describe(p, info), nil
}

func (s *Storage) lookup(name string) (string, os.FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return "", nil, err
	}
	for _, dir := range []string{s.dir, s.legacyDir} {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return "", nil, fmt.Errorf("resolve backup path: %w", err)
			}
			return abs, info, nil
		}
	}
	return "", nil, ErrNotFound
}

// Save stores an uploaded archive under name. An existing archive is never
// overwritten.
func (s *Storage) Save(name string, r io.Reader) (model.BackupArchive, error) {
	if err := ValidateName(name); err != nil {
		return model.BackupArchive{}, err
	}
	if !strings.EqualFold(filepath.Ext(name), archive.Ext) {
		return model.BackupArchive{}, ErrNotArchive
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return model.BackupArchive{}, fmt.Errorf("create backup directory: %w", err)
	}

	p := filepath.Join(s.dir, name)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsExist(err) {
			return model.BackupArchive{}, ErrExists
		}
		return model.BackupArchive{}, fmt.Errorf("create backup file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return model.BackupArchive{}, fmt.Errorf("write backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return model.BackupArchive{}, fmt.Errorf("close backup file: %w", err)
	}
	return s.Stat(name)
}

// Remove deletes an archive from the primary directory.
func (s *Storage) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove backup %s: %w", name, err)
	}
	return nil
}

func describe(p string, info os.FileInfo) model.BackupArchive {
	return model.BackupArchive{
		FileName:   info.Name(),
		SizeBytes:  info.Size(),
		FileSize:   HumanSize(info.Size()),
		CreatedAt:  info.ModTime().Format(model.ArchiveTimeLayout),
		ModifiedAt: info.ModTime(),
		Location:   p,
	}
}
