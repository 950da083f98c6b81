package remote

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// DirClient writes backups into a directory, typically one kept in sync by
// a desktop sync client. The silent flag has no effect.
type DirClient struct {
	fs   afero.Fs
	root string
}

// NewDirClient writes into root on fs (the OS filesystem when nil).
func NewDirClient(fs afero.Fs, root string) *DirClient {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DirClient{fs: fs, root: root}
}

func (d *DirClient) Name() string { return "dir" }

// Upload writes to a temporary file and renames it so readers never see partial backups.
func (d *DirClient) Upload(ctx context.Context, fileName string, content []byte, _ bool) (UploadResult, error) {
	if err := validateUpload(fileName, content); err != nil {
		return UploadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryNetwork, "upload canceled").Retryable().Build()
	}
	if err := d.ensureRoot(); err != nil {
		return UploadResult{}, err
	}

	target := filepath.Join(d.root, fileName)
	tmp := target + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, content, 0o600); err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "write backup").
			WithContext("path", tmp).
			Retryable().
			Build()
	}
	if err := d.fs.Rename(tmp, target); err != nil {
		_ = d.fs.Remove(tmp)
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "rename backup").
			WithContext("path", target).
			Retryable().
			Build()
	}
	return UploadResult{FileName: fileName, Location: target, Bytes: len(content)}, nil
}

// Check verifies the directory exists (creating it if needed) and is writable.
func (d *DirClient) Check(_ context.Context) error {
	if err := d.ensureRoot(); err != nil {
		return err
	}
	probe, err := afero.TempFile(d.fs, d.root, ".memobackup-check-*")
	if err != nil {
		return errors.WrapError(err, errors.CategoryNotConnected, "backup directory is not writable").
			WithContext("path", d.root).
			UserAction().
			Build()
	}
	name := probe.Name()
	_ = probe.Close()
	_ = d.fs.Remove(name)
	return nil
}

func (d *DirClient) ensureRoot() error {
	if d.root == "" {
		return errors.NotConnectedError("no backup directory configured").Build()
	}
	if info, err := d.fs.Stat(d.root); err == nil && info.IsDir() {
		return nil
	}
	if err := d.fs.MkdirAll(d.root, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryNotConnected, fmt.Sprintf("backup directory %s is unavailable", d.root)).
			WithContext("path", d.root).
			UserAction().
			Build()
	}
	info, err := d.fs.Stat(d.root)
	if err != nil || !info.IsDir() {
		return errors.NotConnectedError(fmt.Sprintf("backup directory %s is unavailable", d.root)).
			WithContext("path", d.root).
			Build()
	}
	return nil
}

var _ Client = (*DirClient)(nil)

