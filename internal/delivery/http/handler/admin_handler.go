package handler

import (
	"context"
	"net/http"

	usecase "prediction-platform/internal/usecase/user"
	"prediction-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminHandler struct {
	service *usecase.Service
}

func NewAdminHandler(service *usecase.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes expects router to already enforce authentication and the
// admin role.
func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("/:id/ban", h.Ban)
		users.POST("/:id/unban", h.Unban)
		users.POST("/:id/deactivate", h.Deactivate)
		users.POST("/:id/activate", h.Activate)
		users.DELETE("/:id/identity", h.DeleteIdentity)
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListAllUsers(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Users retrieved successfully", users)
}

func (h *AdminHandler) Ban(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	target, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req usecase.BanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	req.Reason = utils.SanitizeText(req.Reason)

	if err := h.service.BanUser(c.Request.Context(), actor, target, &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "User banned successfully", nil)
}

func (h *AdminHandler) Unban(c *gin.Context) {
	h.moderate(c, h.service.UnbanUser, "User unbanned successfully")
}

func (h *AdminHandler) Deactivate(c *gin.Context) {
	h.moderate(c, h.service.DeactivateUser, "User deactivated successfully")
}

func (h *AdminHandler) Activate(c *gin.Context) {
	h.moderate(c, h.service.ActivateUser, "User activated successfully")
}

func (h *AdminHandler) DeleteIdentity(c *gin.Context) {
	h.moderate(c, h.service.DeleteIdentity, "User identity deleted successfully")
}

func (h *AdminHandler) moderate(c *gin.Context, action func(ctx context.Context, actor usecase.Actor, target uuid.UUID) error, message string) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	target, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := action(c.Request.Context(), actor, target); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, message, nil)
}
