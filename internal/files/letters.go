// Package files stores uploaded supporting letters on disk and hands out
// stable references. The core keeps only the reference; the bytes live here.
package files

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"school-device-issuance/internal/fault"
)

// Letters only accepts PDF uploads.
var pdfMagic = []byte("%PDF-")

type Letters struct {
	folder  string
	maxSize int64
	logger  *slog.Logger
}

func NewLetters(folder string, maxSize int64) (*Letters, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create letter folder: %w", err)
	}
	return &Letters{
		folder:  folder,
		maxSize: maxSize,
		logger:  slog.With("component", "letters"),
	}, nil
}

// Store validates and persists the letter, returning its reference. The
// reference is opaque to callers; only this package resolves it to a path.
func (l *Letters) Store(data []byte, contentType string) (string, error) {
	if contentType != "application/pdf" {
		return "", fault.Validationf("letters must be PDF, got %s", contentType)
	}
	if int64(len(data)) > l.maxSize {
		return "", fault.Validationf("letter exceeds maximum size of %d bytes", l.maxSize)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fault.Validationf("letter content is not a PDF")
	}

	ref := uuid.NewString() + ".pdf"
	if err := os.WriteFile(l.path(ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write letter: %w", err)
	}

	l.logger.Debug("Letter stored", "ref", ref, "bytes", len(data))
	return ref, nil
}

func (l *Letters) Exists(ref string) bool {
	if !validRef(ref) {
		return false
	}
	_, err := os.Stat(l.path(ref))
	return err == nil
}

func (l *Letters) Read(ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, fault.Validationf("malformed letter reference %q", ref)
	}
	data, err := os.ReadFile(l.path(ref))
	if os.IsNotExist(err) {
		return nil, fault.NotFoundf("letter %s", ref)
	}
	return data, err
}

// Delete removes a stored letter. Used to clean up orphans when application
// submission fails after the upload succeeded.
func (l *Letters) Delete(ref string) error {
	if !validRef(ref) {
		return fault.Validationf("malformed letter reference %q", ref)
	}
	err := os.Remove(l.path(ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Letters) path(ref string) string {
	return filepath.Join(l.folder, ref)
}

// validRef rejects anything that could traverse out of the letter folder.
func validRef(ref string) bool {
	if ref == "" || strings.ContainsAny(ref, "/\\") {
		return false
	}
	if !strings.HasSuffix(ref, ".pdf") {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(ref, ".pdf"))
	return err == nil
}
