package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	buf, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/songs", buf)
	req.Header.Set("Content-Type", contentType)
	return req
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	count := 0
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestUploaderAccept(t *testing.T) {
	mp3 := filePart{field: "audio", filename: "song.mp3", contentType: "audio/mpeg", content: []byte("ID3 fake audio")}

	t.Run("missing required field", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, map[string]string{"title": "x"})

		scope, apiErr := env.h.uploader.Accept(req, AudioField, CoverImageField)
		require.NotNil(t, apiErr)
		assert.Nil(t, scope)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Contains(t, apiErr.Message, `"audio"`)
		assert.Equal(t, 0, countFiles(t, env.cfg.UploadDir))
	})

	t.Run("accepted by mime type despite unknown extension", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, filePart{field: "audio", filename: "song.bin", contentType: "audio/mpeg", content: []byte("x")})

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.Nil(t, apiErr)
		require.NotNil(t, scope.File("audio"))
	})

	t.Run("accepted by extension despite generic mime type", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, filePart{field: "audio", filename: "song.mp3", contentType: "application/octet-stream", content: []byte("x")})

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.Nil(t, apiErr)
		require.NotNil(t, scope.File("audio"))
	})

	t.Run("rejected when neither mime type nor extension match", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, filePart{field: "audio", filename: "notes.txt", contentType: "text/plain", content: []byte("x")})

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.NotNil(t, apiErr)
		assert.Nil(t, scope)
		assert.Contains(t, apiErr.Message, "Invalid file type")
		assert.Equal(t, 0, countFiles(t, env.cfg.UploadDir))
	})

	t.Run("unexpected file field is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, mp3,
			filePart{field: "sneaky", filename: "x.mp3", contentType: "audio/mpeg", content: []byte("x")})

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.NotNil(t, apiErr)
		assert.Nil(t, scope)
		assert.Contains(t, apiErr.Message, "sneaky")
		assert.Equal(t, 0, countFiles(t, env.cfg.UploadDir))
	})

	t.Run("size cap per field", func(t *testing.T) {
		env := newTestEnv(t)
		small := FieldConfig{Name: "audio", Required: true, MaxSize: 4, Kind: KindAudio}
		req := multipartRequest(t, nil, filePart{field: "audio", filename: "big.mp3", contentType: "audio/mpeg", content: []byte("12345")})

		scope, apiErr := env.h.uploader.Accept(req, small)
		require.NotNil(t, apiErr)
		assert.Nil(t, scope)
		assert.Contains(t, apiErr.Message, "too large")
		assert.Equal(t, 0, countFiles(t, env.cfg.UploadDir))
	})

	t.Run("exactly one file per field", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, mp3, mp3)

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.NotNil(t, apiErr)
		assert.Nil(t, scope)
		assert.Contains(t, apiErr.Message, "exactly one")
	})

	t.Run("optional field may be absent", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, mp3)

		scope, apiErr := env.h.uploader.Accept(req, AudioField, CoverImageField)
		require.Nil(t, apiErr)
		require.NotNil(t, scope.File("audio"))
		assert.Nil(t, scope.File("coverImage"))
		assert.Len(t, scope.Files(), 1)
	})

	t.Run("fields route to their own directories", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, mp3,
			filePart{field: "coverImage", filename: "cover.png", contentType: "image/png", content: []byte("png")})

		scope, apiErr := env.h.uploader.Accept(req, AudioField, CoverImageField)
		require.Nil(t, apiErr)

		audio := scope.File("audio")
		require.NotNil(t, audio)
		assert.Equal(t, env.cfg.AudioUploadDir, filepath.Dir(audio.Path))
		assert.True(t, strings.HasPrefix(audio.URL, "/uploads/audio/"))

		cover := scope.File("coverImage")
		require.NotNil(t, cover)
		assert.Equal(t, env.cfg.ImageUploadDir, filepath.Dir(cover.Path))
		assert.True(t, strings.HasPrefix(cover.URL, "/uploads/images/"))
	})

	t.Run("stored file content and metadata", func(t *testing.T) {
		env := newTestEnv(t)
		req := multipartRequest(t, nil, mp3)

		scope, apiErr := env.h.uploader.Accept(req, AudioField)
		require.Nil(t, apiErr)

		f := scope.File("audio")
		require.NotNil(t, f)
		assert.Equal(t, "song.mp3", f.OriginalName)
		assert.Equal(t, "audio/mpeg", f.MimeType)
		assert.Equal(t, int64(len(mp3.content)), f.Size)

		data, err := os.ReadFile(f.Path)
		require.NoError(t, err)
		assert.Equal(t, mp3.content, data)
	})
}

func TestUniqueFilename(t *testing.T) {
	t.Run("strips non-alphanumerics and keeps the extension", func(t *testing.T) {
		name := uniqueFilename("My Song (Live!).MP3")
		assert.Regexp(t, regexp.MustCompile(`^My-Song-Live-\d+-\d{9}\.mp3$`), name)
	})

	t.Run("truncates long base names", func(t *testing.T) {
		name := uniqueFilename(strings.Repeat("a", 80) + ".wav")
		assert.Regexp(t, regexp.MustCompile(`^a{50}-\d+-\d{9}\.wav$`), name)
	})

	t.Run("falls back when nothing survives stripping", func(t *testing.T) {
		name := uniqueFilename("....mp3")
		assert.Regexp(t, regexp.MustCompile(`^file-\d+-\d{9}\.mp3$`), name)
	})

	t.Run("two calls never collide", func(t *testing.T) {
		assert.NotEqual(t, uniqueFilename("song.mp3"), uniqueFilename("song.mp3"))
	})
}

func TestUploadScopeCleanup(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, nil,
		filePart{field: "audio", filename: "song.mp3", contentType: "audio/mpeg", content: []byte("x")})

	scope, apiErr := env.h.uploader.Accept(req, AudioField)
	require.Nil(t, apiErr)

	path := scope.File("audio").Path
	_, err := os.Stat(path)
	require.NoError(t, err)

	scope.Cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Idempotent, and safe on nil.
	scope.Cleanup()
	var nilScope *UploadScope
	nilScope.Cleanup()
}
