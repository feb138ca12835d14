// Package modelstore persists trained model blobs, one per tenant. The core
// treats the blob as opaque bytes; the only contract is that Save followed by
// Load returns byte-identical content.
package modelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appconfig "github.com/merchantry/affinity/internal/config"
)

// ErrModelNotFound is returned by Load when no blob exists for the tenant.
var ErrModelNotFound = errors.New("modelstore: model not found")

type Store interface {
	Exists(ctx context.Context, tenantID uuid.UUID) (bool, error)
	Load(ctx context.Context, tenantID uuid.UUID) ([]byte, error)
	Save(ctx context.Context, tenantID uuid.UUID, blob []byte) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

// New selects the store backend from configuration.
func New(ctx context.Context, cfg *appconfig.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case "filesystem":
		return NewFilesystemStore(cfg.Storage.Filesystem.Path, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
