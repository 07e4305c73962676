//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/draftkeep/internal/errors"
)

// createNoFollow opens a backup file for writing. Windows has no O_NOFOLLOW;
// PathPolicy.Check rejects symlinks before this is reached.
func createNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
}

// openNoFollow opens a backup file for reading.
func openNoFollow(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
