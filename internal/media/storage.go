// Package media stores uploaded images and turns them into URLs the
// Graph API can fetch.
package media

import (
	"crypto/md5"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/utils"
)

// LocalFile is an upload saved under the upload directory.
type LocalFile struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Path         string `json:"-"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// Storage writes uploads to disk.
type Storage struct {
	dir          string
	maxSize      int64
	allowedTypes []string
	now          func() time.Time
}

func NewStorage(dir string, maxSize int64, allowedTypes []string) *Storage {
	return &Storage{dir: dir, maxSize: maxSize, allowedTypes: allowedTypes, now: time.Now}
}

func (s *Storage) Dir() string { return s.dir }

// SaveUpload validates and stores a multipart file.
func (s *Storage) SaveUpload(fh *multipart.FileHeader) (LocalFile, error) {
	const op = "media.SaveUpload"

	if err := s.validateFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size); err != nil {
		return LocalFile{}, err
	}

	src, err := fh.Open()
	if err != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to open file: %w", err))
	}
	defer src.Close()

	return s.Save(src, fh.Filename, fh.Header.Get("Content-Type"))
}

// Save copies r into the upload directory. The stored name is prefixed with
// a content hash so repeated uploads of the same name do not collide.
func (s *Storage) Save(r io.Reader, filename, contentType string) (LocalFile, error) {
	const op = "media.Save"

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to create upload directory: %w", err))
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to create file: %w", err))
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	limit := s.maxSize
	if limit <= 0 {
		limit = 1<<63 - 1
	}
	n, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(r, limit+1))
	closeErr := tmp.Close()
	if err != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to save file: %w", err))
	}
	if closeErr != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, closeErr)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return LocalFile{}, apperr.Newf(apperr.KindValidation, op, "file %s exceeds %d bytes", filename, s.maxSize)
	}

	base := SanitizeFilename(filename)
	if filepath.Ext(base) == "" {
		base += utils.GetImageExtension(contentType)
	}
	name := fmt.Sprintf("%x_%d_%s", hash.Sum(nil)[:4], s.now().Unix(), base)
	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return LocalFile{}, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to store file: %w", err))
	}

	return LocalFile{
		Name:         name,
		OriginalName: filename,
		Path:         path,
		ContentType:  contentType,
		Size:         n,
	}, nil
}

func (s *Storage) validateFile(filename, contentType string, size int64) error {
	const op = "media.validateFile"

	if filename == "" {
		return apperr.Validation(op, "no file was selected")
	}
	if s.maxSize > 0 && size > s.maxSize {
		return apperr.Newf(apperr.KindValidation, op, "file %s exceeds %d bytes", filename, s.maxSize)
	}
	if !utils.IsValidImageType(contentType) {
		return apperr.Newf(apperr.KindValidation, op, "file %s has unsupported type %q", filename, contentType)
	}
	if len(s.allowedTypes) > 0 && !containsFold(s.allowedTypes, contentType) {
		return apperr.Newf(apperr.KindValidation, op, "file type %q is not allowed", contentType)
	}
	return nil
}

// SanitizeFilename keeps the base name and replaces characters that do not
// survive a URL path.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "upload"
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
