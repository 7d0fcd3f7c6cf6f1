package api

import (
	"net/http"

	"physiocore/clinic-media/internal/config"
	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the media pipeline endpoints. Every /videos route is
// JWT-protected; mutating routes additionally require a staff role —
// patients only ever receive media through the owning entities.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	mediaService service.MediaService,
	asyncUploader service.AsyncUploader,
	presignService service.PresignService,
	uploadCfg config.UploadConfig,
) {
	mediaHandler := NewMediaHandler(mediaService, asyncUploader, presignService, uploadCfg)

	authMiddleware := AuthMiddleware(jwtSecret)
	staffOnly := RoleMiddleware(domain.RoleAdmin, domain.RoleTherapist)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")

	videos := apiV1.Group("/videos")
	videos.Use(authMiddleware)
	{
		videos.GET("", mediaHandler.ListVideos)
		videos.GET("/upload-mode", mediaHandler.UploadMode)
		videos.GET("/stats", staffOnly, mediaHandler.GetStats)
		videos.GET("/:id", mediaHandler.GetVideo)

		videos.POST("/upload", staffOnly, mediaHandler.UploadVideo)
		videos.POST("/upload-multiple", staffOnly, mediaHandler.UploadMultiple)
		videos.POST("/upload-async", staffOnly, mediaHandler.UploadAsync)

		videos.POST("/presigned-upload-request", staffOnly, mediaHandler.PresignedUploadRequest)
		videos.POST("/:id/confirm-upload", staffOnly, mediaHandler.ConfirmUpload)

		videos.PATCH("/:id/metadata", staffOnly, mediaHandler.UpdateMetadata)
		videos.DELETE("/:id", staffOnly, mediaHandler.DeleteVideo)
		videos.POST("/:id/restore", staffOnly, mediaHandler.RestoreVideo)
	}
}
