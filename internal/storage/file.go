package storage

import (
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/draftkeep/internal/errors"
)

const fileExt = ".json"

// File stores one file per key under a directory.
// File names are the base64url encoding of the key so any key is a safe name.
// Writes go through a temp file and rename, so a reader never sees half a value.
type File struct {
	dir string
}

// NewFile creates the directory (0700) if needed and returns a medium rooted there.
func NewFile(dir string) (*File, error) {
	dir = filepath.Join(dir, "drafts")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewStorageUnavailable(fmt.Sprintf("create %s: %v", dir, err))
	}
	_ = os.Chmod(dir, 0700)
	return &File{dir: dir}, nil
}

// Dir returns the directory holding the entries.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

// Get implements Storage.
func (f *File) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, errors.NewStorageUnavailable(err.Error())
	}
	return string(data), true, nil
}

// Set implements Storage.
func (f *File) Set(key, value string) error {
	target := f.path(key)

	tmp, err := os.CreateTemp(f.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return errors.NewStorageUnavailable(err.Error())
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.NewStorageUnavailable(err.Error())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewStorageUnavailable(err.Error())
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewStorageUnavailable(err.Error())
	}
	return nil
}

// Delete implements Storage.
func (f *File) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.NewStorageUnavailable(err.Error())
	}
	return nil
}

// Keys implements Lister. Files whose names don't decode are skipped.
func (f *File) Keys(prefix string) ([]string, error) {
	dirEntries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err.Error())
	}

	keys := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		if k := string(raw); strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
