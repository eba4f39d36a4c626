// Package media is the client side of the media pipeline collaborator: an
// inbound base64 payload goes in, a stored-file reference URL comes out. The
// core never inspects the bytes beyond decoding them.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"relay/infrastructure"
)

type Resolver interface {
	// Resolve stores the payload and returns the reference URL for it.
	Resolve(ctx context.Context, payload string) (string, error)
}

// DiskStore writes uploads under a local directory and serves them by URL
// prefix. In a multi-process deployment the directory is expected to be
// shared storage.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) *DiskStore {
	return &DiskStore{dir: dir, baseURL: baseURL}
}

func (s *DiskStore) Resolve(ctx context.Context, payload string) (string, error) {
	if payload == "" {
		return "", infrastructure.ErrValidation
	}

	// Accept both bare base64 and data-URL form.
	if i := strings.Index(payload, "base64,"); i >= 0 {
		payload = payload[i+len("base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: malformed media payload", infrastructure.ErrValidation)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	name := uuid.NewString() + ".bin"
	if err := os.WriteFile(path.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	return s.baseURL + path.Join(s.dir, name), nil
}
