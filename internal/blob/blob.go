// Package blob stores uploaded attachments and serves them back by URL.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxBlobSize caps one upload at 5 MiB.
const MaxBlobSize = 5 << 20

// ErrTooLarge indicates an upload over MaxBlobSize.
var ErrTooLarge = errors.New("blob: upload too large")

// ErrBadType indicates an upload with an unsupported content type.
var ErrBadType = errors.New("blob: unsupported content type")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store saves blobs and returns public URLs for them.
type Store interface {
	// Put stores the blob and returns its public URL path.
	Put(contentType string, data []byte) (string, error)
	// Open resolves a public URL path back to a filesystem path.
	Open(urlPath string) (string, error)
}

// DiskStore keeps blobs as flat files under a root directory, named by
// a fresh UUID so uploads never collide or overwrite.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the root directory if needed. baseURL is the
// URL prefix blobs are served under, e.g. "/blobs".
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (d *DiskStore) Put(contentType string, data []byte) (string, error) {
	if len(data) > MaxBlobSize {
		return "", ErrTooLarge
	}
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadType, contentType)
	}

	name := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(d.root, name), data, 0644); err != nil {
		return "", err
	}
	return d.baseURL + "/" + name, nil
}

func (d *DiskStore) Open(urlPath string) (string, error) {
	name := strings.TrimPrefix(urlPath, d.baseURL+"/")
	// A name with path separators is an escape attempt, not a blob.
	if name == "" || name != filepath.Base(name) {
		return "", os.ErrNotExist
	}
	path := filepath.Join(d.root, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
