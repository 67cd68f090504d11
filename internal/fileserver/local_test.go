package fileserver

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}

func newLocal(t *testing.T) *Local {
	t.Helper()
	return NewLocal(t.TempDir(), 1<<20, "", "test-secret", time.Minute)
}

func tokenOf(t *testing.T, uploadURL string) string {
	t.Helper()
	u, err := url.Parse(uploadURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestSaveAndServe(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	target, err := s.NewUpload(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, target.Method)

	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte("x"), 2048)...)
	ref, size, err := s.Save(ctx, tokenOf(t, target.URL), bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, target.StorageID, ref)
	assert.Equal(t, int64(len(body)), size)

	link, err := s.URL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/"+ref, link)

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, link, nil), ref)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, body, rec.Body.Bytes())

	// повторно по тому же токену нельзя
	_, _, err = s.Save(ctx, tokenOf(t, target.URL), bytes.NewReader(body))
	assert.ErrorIs(t, err, ErrAlreadyTaken)
}

func TestSaveRejects(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	target, err := s.NewUpload(ctx)
	require.NoError(t, err)
	tok := tokenOf(t, target.URL)

	_, _, err = s.Save(ctx, tok, strings.NewReader("#!/bin/sh\necho pwned"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, _, err = s.Save(ctx, tok[:len(tok)-2]+"xx", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrBadToken)

	other := NewLocal(s.UploadDir, 1<<20, "", "other-secret", time.Minute)
	_, _, err = other.Save(ctx, tok, bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrBadToken)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, _, err = s.Save(ctx, tok, bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrBadToken, "expired")
}

func TestUploadHandler(t *testing.T) {
	s := newLocal(t)
	target, err := s.NewUpload(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, err = fw.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target.URL, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Upload(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), target.StorageID)

	req = httptest.NewRequest(http.MethodPost, "/api/files/upload?token=bogus", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	s.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	objs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objs)

	target, err := s.NewUpload(ctx)
	require.NoError(t, err)
	ref, _, err := s.Save(ctx, tokenOf(t, target.URL), bytes.NewReader(pngHeader))
	require.NoError(t, err)

	objs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, ref, objs[0].Ref)

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref), "deleting twice is fine")
	assert.Error(t, s.Delete(ctx, "../etc/passwd"))

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), ref)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, _ = io.Copy(io.Discard, rec.Body)
}

func TestExists(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	target, err := s.NewUpload(ctx)
	require.NoError(t, err)

	ok, err := s.Exists(ctx, target.StorageID)
	require.NoError(t, err)
	assert.False(t, ok, "upload url issued but nothing saved")

	_, _, err = s.Save(ctx, tokenOf(t, target.URL), bytes.NewReader(pngHeader))
	require.NoError(t, err)
	ok, err = s.Exists(ctx, target.StorageID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "../etc/passwd")
	require.NoError(t, err)
	assert.False(t, ok)
}
