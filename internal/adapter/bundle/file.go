// Package bundle provides a BundleProvider reading session bundles from a directory.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// extensions are the bundle file types, in lookup order. JSON parses as YAML.
var extensions = []string{".yaml", ".yml", ".json"}

// FileProvider reads <dir>/<sessionId>.{yaml,yml,json}.
type FileProvider struct {
	logger *slog.Logger
	dir    string
}

// NewFileProvider creates a provider over dir.
func NewFileProvider(logger *slog.Logger, dir string) *FileProvider {
	return &FileProvider{logger: logger, dir: dir}
}

// Dir returns the directory bundles are read from.
func (p *FileProvider) Dir() string {
	return p.dir
}

// Bundle reads and validates the bundle of sessionID.
// A file without a sessionId takes the session id from its name.
func (p *FileProvider) Bundle(ctx context.Context, sessionID string) (*domain.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return nil, fmt.Errorf("%w: invalid session id %q", domain.ErrBundleNotFound, sessionID)
	}

	for _, ext := range extensions {
		path := filepath.Join(p.dir, sessionID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle %s: %w", path, err)
		}

		bundle, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse bundle %s: %w", path, err)
		}
		if bundle.SessionID == "" {
			bundle.SessionID = sessionID
		}
		if err := bundle.Validate(); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", path, err)
		}

		p.logger.Debug("bundle read", slog.String("session_id", sessionID), slog.String("path", path))
		return bundle, nil
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrBundleNotFound, sessionID)
}

// Sessions lists the session ids that have a bundle file, sorted.
func (p *FileProvider) Sessions() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := SessionIDFromPath(entry.Name())
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Parse decodes a YAML or JSON bundle document.
func Parse(data []byte) (*domain.Bundle, error) {
	var bundle domain.Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidBundle, err)
	}
	return &bundle, nil
}

// SessionIDFromPath returns the session id a bundle file name stands for.
func SessionIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext == candidate {
			return strings.TrimSuffix(name, filepath.Ext(name)), true
		}
	}
	return "", false
}

// Verify that FileProvider implements the BundleProvider interface
var _ ports.BundleProvider = (*FileProvider)(nil)
