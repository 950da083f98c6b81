package daemon

import (
	"path/filepath"

	"github.com/gofrs/flock"

	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

const lockFileName = "memobackup.lock"

// dataDirLock keeps two coordinators from syncing the same store.
type dataDirLock struct {
	fl *flock.Flock
}

func acquireLock(dataDir string) (*dataDirLock, error) {
	path := filepath.Join(dataDir, lockFileName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "acquiring data directory lock").
			WithContext("path", path).
			Build()
	}
	if !locked {
		return nil, ferrors.DaemonError("another memobackup process is using this data directory").
			WithContext("path", path).
			Build()
	}
	return &dataDirLock{fl: fl}, nil
}

func (l *dataDirLock) release() error {
	return l.fl.Unlock()
}
