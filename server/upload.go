package server

import (
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"wavecast/config"
	"wavecast/logger"
)

// FileKind selects which allow-list applies to a field.
type FileKind int

const (
	KindAudio FileKind = iota
	KindImage
)

// FieldConfig describes one named multipart field the pipeline accepts.
type FieldConfig struct {
	Name     string
	Required bool
	MaxSize  int64
	Kind     FileKind
}

// Field configurations for the two upload surfaces. Track uploads take
// audio plus an optional cover; profile updates take a single avatar.
var (
	AudioField      = FieldConfig{Name: "audio", Required: true, MaxSize: 100 << 20, Kind: KindAudio}
	CoverImageField = FieldConfig{Name: "coverImage", Required: false, MaxSize: 5 << 20, Kind: KindImage}
	AvatarField     = FieldConfig{Name: "avatar", Required: true, MaxSize: 5 << 20, Kind: KindImage}
)

var audioExtensions = []string{".mp3", ".wav", ".aac", ".ogg", ".webm", ".mp4", ".m4a", ".flac"}

var audioMimeTypes = map[string]bool{
	"audio/mpeg": true, "audio/mp3": true,
	"audio/wav": true, "audio/x-wav": true, "audio/wave": true,
	"audio/aac": true,
	"audio/ogg": true,
	"audio/webm": true, "video/webm": true,
	"audio/mp4": true, "video/mp4": true,
	"audio/x-m4a": true,
	"audio/flac": true, "audio/x-flac": true,
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// acceptable applies the OR policy: a file passes if EITHER its declared
// MIME type OR its lowercased extension is in the allow-list. Mismatched
// but plausible pairs are accepted deliberately.
func acceptable(kind FileKind, mimeType, ext string) bool {
	switch kind {
	case KindAudio:
		if audioMimeTypes[mimeType] {
			return true
		}
		for _, e := range audioExtensions {
			if e == ext {
				return true
			}
		}
	case KindImage:
		if imageMimeTypes[mimeType] {
			return true
		}
		for _, e := range imageExtensions {
			if e == ext {
				return true
			}
		}
	}
	return false
}

func allowedExtensions(kind FileKind) string {
	exts := imageExtensions
	if kind == KindAudio {
		exts = audioExtensions
	}
	trimmed := make([]string, len(exts))
	for i, e := range exts {
		trimmed[i] = strings.TrimPrefix(e, ".")
	}
	return strings.Join(trimmed, ", ")
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// uniqueFilename derives a collision-resistant storage name: the original
// base stripped to alphanumerics (runs of anything else become a hyphen),
// truncated to 50 chars, plus millis and a random 9-digit integer. Not
// cryptographic; the birthday bound is negligible at expected volumes.
func uniqueFilename(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = nonAlphanumeric.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "file"
	}
	if len(base) > 50 {
		base = base[:50]
	}
	return fmt.Sprintf("%s-%d-%09d%s", base, time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
}

// UploadedFile is the normalized descriptor of one accepted file.
type UploadedFile struct {
	FieldName    string
	Path         string // absolute-ish disk location
	URL          string // public serving path under /uploads/
	Filename     string // generated unique storage name
	OriginalName string
	MimeType     string
	Size         int64
}

// UploadScope holds the files a single request produced. It lives for the
// request only: on handler failure Cleanup must be called so nothing
// half-accepted stays on disk.
type UploadScope struct {
	files    []*UploadedFile
	released bool
}

// File returns the single file uploaded in the named field, or nil.
func (s *UploadScope) File(field string) *UploadedFile {
	for _, f := range s.files {
		if f.FieldName == field {
			return f
		}
	}
	return nil
}

// Files returns every accepted file.
func (s *UploadScope) Files() []*UploadedFile {
	return s.files
}

// Cleanup deletes the scope's files from disk. Idempotent and best-effort:
// delete errors are logged, never failed on, since the response may already
// be on the wire.
func (s *UploadScope) Cleanup() {
	if s == nil || s.released {
		return
	}
	s.released = true
	for _, f := range s.files {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove uploaded file",
				logger.String("path", f.Path),
				logger.ErrorField(err))
		}
	}
}

// Uploader validates and stores multipart uploads. The destination directory
// is chosen purely by field name: audio goes to the audio dir, image fields
// to the image dir, anything else to the temp dir.
type Uploader struct {
	audioDir string
	imageDir string
	tempDir  string
}

// NewUploader creates an uploader rooted at the configured upload dirs.
func NewUploader(cfg *config.Config) *Uploader {
	return &Uploader{
		audioDir: cfg.AudioUploadDir,
		imageDir: cfg.ImageUploadDir,
		tempDir:  cfg.TempUploadDir,
	}
}

// EnsureDirs eagerly creates the destination directories.
func (u *Uploader) EnsureDirs() error {
	for _, dir := range []string{u.audioDir, u.imageDir, u.tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create upload directory %s: %w", dir, err)
		}
	}
	return nil
}

func (u *Uploader) destination(field string, kind FileKind) (dir, urlBase string) {
	switch field {
	case "audio":
		return u.audioDir, "/uploads/audio/"
	case "coverImage", "avatar":
		return u.imageDir, "/uploads/images/"
	default:
		_ = kind
		return u.tempDir, "/uploads/tmp/"
	}
}

// Accept validates the request's multipart files against the given field
// configurations and stores them. On any violation it removes whatever was
// already written and returns a violation-specific error; the caller never
// sees a partial scope.
func (u *Uploader) Accept(r *http.Request, fields ...FieldConfig) (*UploadScope, *APIError) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "request body too large"), strings.Contains(msg, "multipart message too large"):
			return nil, errValidation("Uploaded file is too large")
		case strings.Contains(msg, "not multipart"):
			return nil, errValidation("Request must be multipart/form-data")
		default:
			return nil, errValidation("Failed to parse upload form: " + msg)
		}
	}

	known := make(map[string]FieldConfig, len(fields))
	for _, f := range fields {
		known[f.Name] = f
	}

	form := r.MultipartForm
	if form == nil {
		return nil, errValidation("Request must be multipart/form-data")
	}

	scope := &UploadScope{}

	for name := range form.File {
		if _, ok := known[name]; !ok {
			scope.Cleanup()
			return nil, errValidation(fmt.Sprintf("Unexpected file field %q", name))
		}
	}

	for _, field := range fields {
		headers := form.File[field.Name]

		if len(headers) == 0 {
			if field.Required {
				scope.Cleanup()
				return nil, errValidation(fmt.Sprintf("Missing required file field %q", field.Name))
			}
			continue
		}
		if len(headers) > 1 {
			scope.Cleanup()
			return nil, errValidation(fmt.Sprintf("Field %q accepts exactly one file", field.Name))
		}

		header := headers[0]
		if header.Size > field.MaxSize {
			scope.Cleanup()
			return nil, errValidation(fmt.Sprintf("File too large for field %q. Maximum size is %d MB", field.Name, field.MaxSize>>20))
		}

		mimeType := header.Header.Get("Content-Type")
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !acceptable(field.Kind, mimeType, ext) {
			scope.Cleanup()
			return nil, errValidation(fmt.Sprintf("Invalid file type for field %q. Allowed: %s", field.Name, allowedExtensions(field.Kind)))
		}

		uf, err := u.store(header, field)
		if err != nil {
			scope.Cleanup()
			logger.Error("failed to store uploaded file",
				logger.String("field", field.Name),
				logger.String("filename", header.Filename),
				logger.ErrorField(err))
			return nil, errInternal("Failed to store uploaded file")
		}
		scope.files = append(scope.files, uf)
	}

	// Required-file presence re-check before any handler logic runs.
	for _, field := range fields {
		if field.Required && scope.File(field.Name) == nil {
			scope.Cleanup()
			return nil, errValidation(fmt.Sprintf("Missing required file field %q", field.Name))
		}
	}

	return scope, nil
}

func (u *Uploader) store(header *multipart.FileHeader, field FieldConfig) (*UploadedFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dir, urlBase := u.destination(field.Name, field.Kind)
	filename := uniqueFilename(header.Filename)
	path := filepath.Join(dir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Partial write: remove before reporting.
		if rmerr := os.Remove(path); rmerr != nil && !os.IsNotExist(rmerr) {
			logger.Warn("failed to remove partial upload", logger.String("path", path), logger.ErrorField(rmerr))
		}
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return &UploadedFile{
		FieldName:    field.Name,
		Path:         path,
		URL:          urlBase + filename,
		Filename:     filename,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         written,
	}, nil
}
