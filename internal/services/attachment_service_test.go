package services

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirpputori/backend/internal/middleware"
	"github.com/kirpputori/backend/internal/store"
)

func newAttachmentTest(t *testing.T) (*AttachmentService, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	dir := t.TempDir()
	return NewAttachmentService(store.New(db), dir), mock, dir
}

func uploadRequest(t *testing.T, filename string, content []byte, userID int64) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/attachment/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

// pngHeader builds a valid PNG signature and IHDR chunk declaring the given
// dimensions, with no pixel data behind it.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], width)
	binary.BigEndian.PutUint32(data[4:8], height)
	data[8] = 8 // bit depth
	data[9] = 2 // truecolor

	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString("IHDR")
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte("IHDR"))
	crc.Write(data)
	binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

func dirEntryCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestUpload(t *testing.T) {
	t.Run("stores the image, its thumbnail and a row", func(t *testing.T) {
		svc, mock, dir := newAttachmentTest(t)

		mock.ExpectQuery(`INSERT INTO attachments`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow(int64(4), testClock))

		rec := httptest.NewRecorder()
		svc.Upload(rec, uploadRequest(t, "photo.png", encodePNG(t, 640, 480), 1))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, dirEntryCount(t, dir))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects oversized declared dimensions without decoding", func(t *testing.T) {
		svc, mock, dir := newAttachmentTest(t)

		// A few hundred bytes claiming a 30000x30000 pixel buffer. If this
		// were decoded before the dimension check the test would need
		// gigabytes of memory.
		rec := httptest.NewRecorder()
		svc.Upload(rec, uploadRequest(t, "bomb.png", pngHeader(30000, 30000), 1))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "resolution")
		assert.Equal(t, 0, dirEntryCount(t, dir))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects disallowed file extensions", func(t *testing.T) {
		svc, mock, dir := newAttachmentTest(t)

		rec := httptest.NewRecorder()
		svc.Upload(rec, uploadRequest(t, "photo.gif", encodePNG(t, 32, 32), 1))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, dirEntryCount(t, dir))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a file that is not an image", func(t *testing.T) {
		svc, mock, dir := newAttachmentTest(t)

		rec := httptest.NewRecorder()
		svc.Upload(rec, uploadRequest(t, "photo.jpg", []byte("not an image"), 1))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, dirEntryCount(t, dir))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a call without a session", func(t *testing.T) {
		svc, _, _ := newAttachmentTest(t)

		req := httptest.NewRequest(http.MethodPost, "/api/attachment/upload", nil)
		rec := httptest.NewRecorder()
		svc.Upload(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
