package handler

import (
	"farm_community/internal/domain/profile/service"
	"farm_community/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	service service.ProfileService
}

func NewProfileHandler(s service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: s}
}

// GetProfile 获取用户公开资料
// @Summary 获取资料
// @Tags Profile
// @Param id path string true "用户ID"
// @Success 200 {object} model.Profile
// @Router /profiles/{id} [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	p, err := h.service.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}
