package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/pkg/apperr"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid proposal id"
	msgInternal         = "internal error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternal})
		return
	}
	c.JSON(appErr.HTTPStatus(), errorResponse{Error: appErr.Message})
}

func respondInvalid(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgValidationFailed, Details: verrs.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidRequest, Details: err.Error()})
}
