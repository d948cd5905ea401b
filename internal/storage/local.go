package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
)

// localDisk is the local-filesystem driver.
type localDisk struct {
	root    string
	baseURL string
}

// NewLocal returns a disk rooted at root whose files are served under baseURL.
func NewLocal(root, baseURL string) (Disk, error) {
	if !filepath.IsAbs(root) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "getwd")
		}
		root = filepath.Join(cwd, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage/local: mkdir root")
	}

	return &localDisk{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (d *localDisk) abs(path string) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(path))
	if full != d.root && !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", errors.Errorf("storage/local: path %q escapes root", path)
	}
	return full, nil
}

func (d *localDisk) Put(_ context.Context, path string, content []byte, _ string) error {
	full, err := d.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "storage/local: mkdir")
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errors.Wrapf(err, "storage/local: write %s", path)
	}
	return nil
}

func (d *localDisk) Delete(_ context.Context, path string) error {
	full, err := d.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage/local: delete %s", path)
	}
	return nil
}

func (d *localDisk) URL(path string) string {
	return d.baseURL + "/" + strings.TrimLeft(filepath.ToSlash(path), "/")
}
