package handlers

import (
	"net/http"

	"leaf-disease-service/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListLabels(c *gin.Context) {
	c.JSON(http.StatusOK, dto.LabelsResponse{Labels: h.classifierSvc.Labels()})
}

func (h *Handler) ListDiseases(c *gin.Context) {
	records := h.classifierSvc.Diseases()

	items := make([]dto.DiseaseResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.ToDiseaseResponse(r))
	}

	c.JSON(http.StatusOK, dto.ListDiseasesResponse{
		Items: items,
		Total: len(items),
	})
}

func (h *Handler) GetDisease(c *gin.Context) {
	record, err := h.classifierSvc.Disease(c.Param("label"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDiseaseResponse(record))
}
