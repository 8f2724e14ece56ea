package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"leaf-disease-service/internal/adapters/primary/http/dto"
	"leaf-disease-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// multipartOverhead leaves room for form boundaries and headers on top of the image itself.
const multipartOverhead = 1 << 20

// Classify accepts either a multipart form with an "image" field or a raw
// image/* body.
func (h *Handler) Classify(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	data, err := h.readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			mapDomainError(c, domain.ErrImageTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.classifierSvc.Classify(c.Request.Context(), data)
	if err != nil {
		log.WithError(err).WithField("request_id", c.GetString("request_id")).Error("classify image failed")
		mapDomainError(c, err)
		return
	}

	var disease *domain.DiseaseRecord
	if record, err := h.classifierSvc.Disease(result.Label); err == nil {
		disease = &record
	}

	c.JSON(http.StatusOK, dto.ToClassificationResponse(result, disease))
}

func (h *Handler) readImage(c *gin.Context) ([]byte, error) {
	limit := h.maxUploadBytes
	if limit <= 0 {
		limit = 32 << 20
	}

	if strings.HasPrefix(c.ContentType(), "image/") {
		return io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("no image file provided, use 'image' as the form field name")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	log.WithFields(log.Fields{
		"filename":   fileHeader.Filename,
		"size_bytes": fileHeader.Size,
	}).Debug("received image upload")

	return io.ReadAll(io.LimitReader(file, limit+1))
}
