package handlers

import (
	"leaf-disease-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	classifierSvc  *services.ClassifierService
	maxUploadBytes int64
}

func New(classifierSvc *services.ClassifierService, maxUploadBytes int64) *Handler {
	return &Handler{
		classifierSvc:  classifierSvc,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Classification
	r.POST("/classify", h.Classify)

	// Reference data
	r.GET("/labels", h.ListLabels)
	r.GET("/diseases", h.ListDiseases)
	r.GET("/diseases/:label", h.GetDisease)

	// Model artifact
	r.GET("/model", h.GetModelStatus)
	r.POST("/model/ensure", h.EnsureModel)
	r.GET("/model/events", h.ListModelEvents)
}
