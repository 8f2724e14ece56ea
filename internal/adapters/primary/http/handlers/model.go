package handlers

import (
	"net/http"
	"strconv"

	"leaf-disease-service/internal/adapters/primary/http/dto"
	"leaf-disease-service/internal/core/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) Health(c *gin.Context) {
	st := h.classifierSvc.Status()

	status := "ok"
	if st.State == services.ModelStateUnavailable {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"model":  dto.ToModelStatusResponse(st),
	})
}

func (h *Handler) GetModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToModelStatusResponse(h.classifierSvc.Status()))
}

func (h *Handler) EnsureModel(c *gin.Context) {
	st, err := h.classifierSvc.EnsureModel(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("ensure model failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToModelStatusResponse(st))
}

func (h *Handler) ListModelEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	events, err := h.classifierSvc.ModelEvents(c.Request.Context(), limit)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	items := make([]dto.ArtifactEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, dto.ToArtifactEventResponse(e))
	}

	c.JSON(http.StatusOK, dto.ListArtifactEventsResponse{
		Items: items,
		Total: len(items),
	})
}
