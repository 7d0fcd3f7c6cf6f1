package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"physiocore/clinic-media/internal/config"
	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"
	"physiocore/clinic-media/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// allowedVideoMimeTypes is the accept-list enforced before the pipeline is
// invoked. Rejected files never produce a record.
var allowedVideoMimeTypes = map[string]bool{
	"video/mp4":        true,
	"video/mpeg":       true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-flv":      true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
}

// MediaHandler holds the media pipeline dependencies.
type MediaHandler struct {
	mediaService  service.MediaService
	asyncUploader service.AsyncUploader
	presign       service.PresignService
	uploadCfg     config.UploadConfig
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(
	mediaService service.MediaService,
	asyncUploader service.AsyncUploader,
	presign service.PresignService,
	uploadCfg config.UploadConfig,
) *MediaHandler {
	return &MediaHandler{
		mediaService:  mediaService,
		asyncUploader: asyncUploader,
		presign:       presign,
		uploadCfg:     uploadCfg,
	}
}

// --- DTOs for API (Data Transfer Objects) ---

// MediaResponse is the DTO for returning a media record.
type MediaResponse struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename,omitempty"`
	OriginalFilename string           `json:"original_filename"`
	Path             string           `json:"path,omitempty"`
	URL              string           `json:"url,omitempty"`
	CDNURL           string           `json:"cdn_url,omitempty"`
	MimeType         string           `json:"mime_type,omitempty"`
	Size             int64            `json:"size"`
	HumanSize        string           `json:"human_size"`
	Status           string           `json:"status"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Owner            *domain.OwnerRef `json:"owner,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// MapMediaToResponse converts a domain.MediaUpload to MediaResponse DTO.
func MapMediaToResponse(m *domain.MediaUpload) MediaResponse {
	if m == nil {
		return MediaResponse{}
	}
	return MediaResponse{
		ID:               m.ID.Hex(),
		Filename:         m.Filename,
		OriginalFilename: m.OriginalFilename,
		Path:             m.Path,
		URL:              m.URL,
		CDNURL:           m.CDNURL,
		MimeType:         m.MimeType,
		Size:             m.Size,
		HumanSize:        humanize.Bytes(uint64(m.Size)),
		Status:           string(m.Status),
		Metadata:         m.Metadata,
		Owner:            m.Owner,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// MapMediaListToResponse converts a slice of domain.MediaUpload to DTOs.
func MapMediaListToResponse(items []domain.MediaUpload) []MediaResponse {
	responses := make([]MediaResponse, len(items))
	for i, m := range items {
		responses[i] = MapMediaToResponse(&m)
	}
	return responses
}

// BatchUploadResponse reports partial success for multi-file uploads.
type BatchUploadResponse struct {
	Uploaded int             `json:"uploaded"`
	Failed   int             `json:"failed"`
	Videos   []MediaResponse `json:"videos"`
	Errors   []BatchItemErr  `json:"errors"`
}

type BatchItemErr struct {
	OriginalFilename string `json:"original_filename"`
	Error            string `json:"error"`
}

// PresignRequestBody is the request-phase payload for direct uploads.
type PresignRequestBody struct {
	Filename  string `json:"filename" binding:"required"`
	MimeType  string `json:"mime_type" binding:"required"`
	Size      int64  `json:"size" binding:"required,min=1"`
	OwnerKind string `json:"owner_kind" binding:"omitempty"`
	OwnerID   string `json:"owner_id" binding:"omitempty"`
}

// PresignResponse is the request-phase reply.
type PresignResponse struct {
	VideoID   string        `json:"video_id"`
	UploadURL string        `json:"upload_url"`
	Path      string        `json:"path"`
	ExpiresAt time.Time     `json:"expires_at"`
	Video     MediaResponse `json:"video"`
}

// ConfirmUploadBody optionally corrects size/mime after client-side
// compression.
type ConfirmUploadBody struct {
	Size     *int64  `json:"size" binding:"omitempty,min=0"`
	MimeType *string `json:"mime_type" binding:"omitempty"`
}

// StatsResponse is the admin dashboard aggregate.
type StatsResponse struct {
	Count          int64           `json:"count"`
	TotalSize      int64           `json:"total_size"`
	TotalSizeHuman string          `json:"total_size_human"`
	Recent         []MediaResponse `json:"recent"`
}

// --- Helpers ---

func parseMediaID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid media ID format.")
		return primitive.NilObjectID, false
	}
	return id, true
}

func ownerFromValues(kind, id string) *domain.OwnerRef {
	if kind == "" || id == "" {
		return nil
	}
	return &domain.OwnerRef{Kind: domain.OwnerKind(kind), ID: id}
}

// validateUpload enforces the boundary policy (type and size caps) before
// any record is created.
func (h *MediaHandler) validateUpload(originalFilename, mimeType string, size int64) string {
	if originalFilename == "" {
		return "A filename is required."
	}
	if !allowedVideoMimeTypes[mimeType] {
		return "Unsupported media type: " + mimeType
	}
	if h.uploadCfg.MaxSizeBytes > 0 && size > h.uploadCfg.MaxSizeBytes {
		return "File exceeds the maximum allowed size of " + humanize.Bytes(uint64(h.uploadCfg.MaxSizeBytes))
	}
	return ""
}

func (h *MediaHandler) directoryOrDefault(c *gin.Context) string {
	if dir := c.PostForm("directory"); dir != "" {
		return dir
	}
	return h.uploadCfg.Directory
}

// --- Handler Methods ---

// UploadVideo handles POST /videos/upload — the synchronous server-proxy
// path. The transfer happens within this request; the response carries the
// terminal record state.
func (h *MediaHandler) UploadVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "A 'file' upload is required.")
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if msg := h.validateUpload(fileHeader.Filename, mimeType, fileHeader.Size); msg != "" {
		abortWithError(c, http.StatusBadRequest, msg)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Unable to read the uploaded file.")
		return
	}
	defer src.Close()

	owner := ownerFromValues(c.PostForm("owner_kind"), c.PostForm("owner_id"))

	record, err := h.mediaService.UploadOne(c.Request.Context(), service.UploadedFile{
		Content:          src,
		OriginalFilename: fileHeader.Filename,
		MimeType:         mimeType,
		Size:             fileHeader.Size,
	}, h.directoryOrDefault(c), owner)
	if err != nil {
		if errors.Is(err, service.ErrValidationFailed) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			// The failed record is retained for diagnosis; the client gets
			// the gateway-style error.
			abortWithError(c, http.StatusBadGateway, "Upload to storage failed.")
		}
		return
	}

	c.JSON(http.StatusCreated, MapMediaToResponse(record))
}

// UploadMultiple handles POST /videos/upload-multiple. Each file is uploaded
// independently; the response always reports partial success.
func (h *MediaHandler) UploadMultiple(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "A multipart form with 'files' is required.")
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		abortWithError(c, http.StatusBadRequest, "At least one file is required.")
		return
	}
	if h.uploadCfg.MaxBatch > 0 && len(fileHeaders) > h.uploadCfg.MaxBatch {
		abortWithError(c, http.StatusBadRequest, "Too many files: the limit is "+strconv.Itoa(h.uploadCfg.MaxBatch))
		return
	}

	directory := h.directoryOrDefault(c)
	resp := BatchUploadResponse{Videos: []MediaResponse{}, Errors: []BatchItemErr{}}

	for _, fh := range fileHeaders {
		mimeType := fh.Header.Get("Content-Type")
		if msg := h.validateUpload(fh.Filename, mimeType, fh.Size); msg != "" {
			resp.Errors = append(resp.Errors, BatchItemErr{OriginalFilename: fh.Filename, Error: msg})
			continue
		}

		src, err := fh.Open()
		if err != nil {
			resp.Errors = append(resp.Errors, BatchItemErr{OriginalFilename: fh.Filename, Error: "unable to read file"})
			continue
		}

		record, err := h.mediaService.UploadOne(c.Request.Context(), service.UploadedFile{
			Content:          src,
			OriginalFilename: fh.Filename,
			MimeType:         mimeType,
			Size:             fh.Size,
		}, directory, nil)
		src.Close()
		if err != nil {
			resp.Errors = append(resp.Errors, BatchItemErr{OriginalFilename: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Videos = append(resp.Videos, MapMediaToResponse(record))
	}

	resp.Uploaded = len(resp.Videos)
	resp.Failed = len(resp.Errors)
	c.JSON(http.StatusOK, resp)
}

// UploadAsync handles POST /videos/upload-async: the file is staged locally
// and transferred by a background worker. The response returns immediately
// with the record still pending.
func (h *MediaHandler) UploadAsync(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "A 'file' upload is required.")
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if msg := h.validateUpload(fileHeader.Filename, mimeType, fileHeader.Size); msg != "" {
		abortWithError(c, http.StatusBadRequest, msg)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Unable to read the uploaded file.")
		return
	}
	defer src.Close()

	owner := ownerFromValues(c.PostForm("owner_kind"), c.PostForm("owner_id"))

	record, err := h.asyncUploader.Dispatch(c.Request.Context(), service.UploadedFile{
		Content:          src,
		OriginalFilename: fileHeader.Filename,
		MimeType:         mimeType,
		Size:             fileHeader.Size,
	}, h.directoryOrDefault(c), owner)
	if err != nil {
		if errors.Is(err, service.ErrValidationFailed) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to queue the upload.")
		}
		return
	}

	c.JSON(http.StatusAccepted, MapMediaToResponse(record))
}

// GetVideo handles GET /videos/:id.
func (h *MediaHandler) GetVideo(c *gin.Context) {
	id, ok := parseMediaID(c)
	if !ok {
		return
	}

	record, err := h.mediaService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			abortWithError(c, http.StatusNotFound, "Media record not found.")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to fetch media record.")
		}
		return
	}

	c.JSON(http.StatusOK, MapMediaToResponse(record))
}

// ListVideos handles GET /videos with pagination and status/search filters.
func (h *MediaHandler) ListVideos(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("per_page", "15"))

	result, err := h.mediaService.List(c.Request.Context(), repository.Filter{
		Status:   domain.Status(c.Query("status")),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list media records.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     MapMediaListToResponse(result.Items),
		"page":     result.Page,
		"per_page": result.PageSize,
		"total":    result.Total,
	})
}

// DeleteVideo handles DELETE /videos/:id (+ ?force=true).
func (h *MediaHandler) DeleteVideo(c *gin.Context) {
	id, ok := parseMediaID(c)
	if !ok {
		return
	}

	force := c.Query("force") == "true"
	err := h.mediaService.Delete(c.Request.Context(), id, force)
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			abortWithError(c, http.StatusNotFound, "Media record not found.")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to delete media record.")
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// RestoreVideo handles POST /videos/:id/restore for soft-deleted records.
func (h *MediaHandler) RestoreVideo(c *gin.Context) {
	id, ok := parseMediaID(c)
	if !ok {
		return
	}

	if err := h.mediaService.Restore(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			abortWithError(c, http.StatusNotFound, "No soft-deleted media record with that ID.")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to restore media record.")
		}
		return
	}

	record, err := h.mediaService.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to fetch restored record.")
		return
	}
	c.JSON(http.StatusOK, MapMediaToResponse(record))
}

// UpdateMetadata handles PATCH /videos/:id/metadata with a shallow merge.
func (h *MediaHandler) UpdateMetadata(c *gin.Context) {
	id, ok := parseMediaID(c)
	if !ok {
		return
	}

	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		abortWithError(c, http.StatusBadRequest, "A JSON object of metadata is required.")
		return
	}

	record, err := h.mediaService.UpdateMetadata(c.Request.Context(), id, partial)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMediaNotFound):
			abortWithError(c, http.StatusNotFound, "Media record not found.")
		case errors.Is(err, service.ErrValidationFailed):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to update metadata.")
		}
		return
	}

	c.JSON(http.StatusOK, MapMediaToResponse(record))
}

// PresignedUploadRequest handles POST /videos/presigned-upload-request:
// phase one of the direct-to-storage protocol.
func (h *MediaHandler) PresignedUploadRequest(c *gin.Context) {
	var req PresignRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if msg := h.validateUpload(req.Filename, req.MimeType, req.Size); msg != "" {
		abortWithError(c, http.StatusBadRequest, msg)
		return
	}

	owner := ownerFromValues(req.OwnerKind, req.OwnerID)
	result, err := h.presign.Request(c.Request.Context(), req.Filename, req.MimeType, req.Size, owner)
	if err != nil {
		if errors.Is(err, service.ErrValidationFailed) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusBadGateway, "Failed to generate upload URL.")
		}
		return
	}

	c.JSON(http.StatusCreated, PresignResponse{
		VideoID:   result.VideoID.Hex(),
		UploadURL: result.UploadURL,
		Path:      result.Path,
		ExpiresAt: result.ExpiresAt,
		Video:     MapMediaToResponse(result.Record),
	})
}

// ConfirmUpload handles POST /videos/:id/confirm-upload: phase three of the
// direct-to-storage protocol.
func (h *MediaHandler) ConfirmUpload(c *gin.Context) {
	id, ok := parseMediaID(c)
	if !ok {
		return
	}

	// The body is optional; an empty one means "no corrections".
	var req ConfirmUploadBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	record, err := h.presign.Confirm(c.Request.Context(), id, req.Size, req.MimeType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMediaNotFound):
			abortWithError(c, http.StatusNotFound, "Media record not found.")
		case errors.Is(err, service.ErrValidationFailed):
			abortWithError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to confirm upload.")
		}
		return
	}

	c.JSON(http.StatusOK, MapMediaToResponse(record))
}

// UploadMode handles GET /videos/upload-mode so clients know which flow to
// drive.
func (h *MediaHandler) UploadMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"use_presigned": h.uploadCfg.UsePresigned})
}

// GetStats handles GET /videos/stats for the admin dashboard.
func (h *MediaHandler) GetStats(c *gin.Context) {
	stats, err := h.mediaService.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to compute media stats.")
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Count:          stats.Count,
		TotalSize:      stats.TotalSize,
		TotalSizeHuman: humanize.Bytes(uint64(stats.TotalSize)),
		Recent:         MapMediaListToResponse(stats.Recent),
	})
}
