package handler

import (
	"errors"
	"net/http"

	"prediction-platform/internal/logger"
	"prediction-platform/internal/middleware"
	usecase "prediction-platform/internal/usecase/user"
	appErrors "prediction-platform/pkg/errors"
	"prediction-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondWithError writes err using the status of its AppError code. Server
// errors are logged with their cause and answered with a generic message.
func respondWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	appErr, ok := appErrors.As(err)
	if !ok {
		appErr = appErrors.NewServerError("Internal server error", err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.WithRequestID(middleware.GetRequestID(c)).Error("Internal server error",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("message", appErr.Message),
			zap.Error(appErr.Err),
		)
		_ = c.Error(err)
		utils.ErrorResponse(c, status, "Internal server error")
		return
	}

	if len(appErr.Fields) > 0 {
		utils.ValidationResponse(c, status, appErr.Message, appErr.Fields)
		return
	}
	utils.ErrorResponse(c, status, appErr.Message)
}

func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}
	return userID, true
}

func requireActor(c *gin.Context) (usecase.Actor, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return usecase.Actor{}, false
	}
	return usecase.Actor{ID: userID, Role: middleware.CurrentRole(c)}, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
