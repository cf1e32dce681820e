package services

import (
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	// Registers webp decoding for imaging.Open.
	_ "golang.org/x/image/webp"

	"github.com/kirpputori/backend/internal/middleware"
	"github.com/kirpputori/backend/internal/models"
	"github.com/kirpputori/backend/internal/store"
)

// Upload limits.
const (
	maxUploadBytes     = 10 << 20
	maxImageDimension  = 10000
	thumbnailDimension = 320
	thumbnailQuality   = 50
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// AttachmentService handles image uploads. Files land in uploadDir under a
// random name and start out unbound; the sweeper reaps them if no listing
// claims them in time.
type AttachmentService struct {
	store     *store.Store
	uploadDir string
}

func NewAttachmentService(st *store.Store, uploadDir string) *AttachmentService {
	return &AttachmentService{
		store:     st,
		uploadDir: uploadDir,
	}
}

// Upload stores one image and its thumbnail and records the attachment.
func (s *AttachmentService) Upload(w http.ResponseWriter, r *http.Request) {
	uploaderID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		SendErrorResponse(w, "File is too large or the request is malformed", http.StatusBadRequest, nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		SendErrorResponse(w, "Request must contain a single file field", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		SendErrorResponse(w, "Only jpg, jpeg, png and webp files are accepted", http.StatusBadRequest, nil)
		return
	}

	base := uuid.NewString()
	filePath := filepath.Join(s.uploadDir, base+ext)
	thumbnailPath := filepath.Join(s.uploadDir, base+".thumb.jpg")

	out, err := os.Create(filePath)
	if err != nil {
		log.Printf("[ATTACHMENT] Failed to create %s: %v", filePath, err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(filePath)
		log.Printf("[ATTACHMENT] Failed to write %s: %v", filePath, err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}
	out.Close()

	// Dimensions come from the header, so an oversized image is rejected
	// before its pixel buffer is ever allocated.
	width, height, err := imageDimensions(filePath)
	if err != nil {
		os.Remove(filePath)
		SendErrorResponse(w, "File could not be decoded as an image", http.StatusBadRequest, nil)
		return
	}
	if width > maxImageDimension || height > maxImageDimension {
		os.Remove(filePath)
		SendErrorResponse(w, "Image resolution is too large", http.StatusBadRequest, nil)
		return
	}

	img, err := imaging.Open(filePath)
	if err != nil {
		os.Remove(filePath)
		SendErrorResponse(w, "File could not be decoded as an image", http.StatusBadRequest, nil)
		return
	}

	thumbnail := imaging.Fit(img, thumbnailDimension, thumbnailDimension, imaging.Lanczos)
	if err := imaging.Save(thumbnail, thumbnailPath, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		os.Remove(filePath)
		log.Printf("[ATTACHMENT] Failed to write thumbnail %s: %v", thumbnailPath, err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	attachment := &models.Attachment{
		FilePath:      filePath,
		ThumbnailPath: thumbnailPath,
		UploaderID:    uploaderID,
	}
	if err := s.store.CreateAttachment(r.Context(), attachment); err != nil {
		os.Remove(filePath)
		os.Remove(thumbnailPath)
		log.Printf("[ATTACHMENT] Failed to record attachment: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ATTACHMENT] User %d uploaded attachment %d (%s)", uploaderID, attachment.ID, filePath)
	SendJSONResponse(w, http.StatusOK, attachment)
}

// imageDimensions reads an image's declared size from its header without
// decoding any pixel data.
func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	config, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}
