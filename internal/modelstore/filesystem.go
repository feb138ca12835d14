package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FilesystemStore keeps one <tenantID>.model file per tenant under a base
// directory. Writes go through a temp file and rename so a crashed Save never
// leaves a truncated blob behind.
type FilesystemStore struct {
	baseDir string
	logger  *logrus.Logger
}

func NewFilesystemStore(baseDir string, logger *logrus.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir, logger: logger}, nil
}

func (s *FilesystemStore) path(tenantID uuid.UUID) string {
	return filepath.Join(s.baseDir, tenantID.String()+".model")
}

func (s *FilesystemStore) Exists(_ context.Context, tenantID uuid.UUID) (bool, error) {
	_, err := os.Stat(s.path(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat model file: %w", err)
	}
	return true, nil
}

func (s *FilesystemStore) Load(_ context.Context, tenantID uuid.UUID) ([]byte, error) {
	blob, err := os.ReadFile(s.path(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return blob, nil
}

func (s *FilesystemStore) Save(_ context.Context, tenantID uuid.UUID, blob []byte) error {
	tmp, err := os.CreateTemp(s.baseDir, tenantID.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write model blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp model file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(tenantID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace model file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"bytes":     len(blob),
	}).Debug("Model blob saved to filesystem")

	return nil
}

func (s *FilesystemStore) Delete(_ context.Context, tenantID uuid.UUID) error {
	if err := os.Remove(s.path(tenantID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete model file: %w", err)
	}
	return nil
}
