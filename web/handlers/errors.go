package handlers

import (
	"net/http"

	apperrors "askme/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	// Log technical error with context
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}

	// Return user-friendly message
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithServiceError maps service errors to status codes. Only
// server-side failures are logged.
func respondWithServiceError(c *gin.Context, err error, logger *zap.Logger, fields ...zap.Field) {
	switch {
	case apperrors.IsInvalidInput(err):
		respondWithClientError(c, http.StatusBadRequest, "Message cannot be empty")
	case apperrors.IsBusy(err):
		respondWithClientError(c, http.StatusConflict, "Still answering the previous question")
	case apperrors.IsNotFound(err):
		respondWithClientError(c, http.StatusNotFound, "Not found")
	default:
		respondWithError(c, http.StatusInternalServerError, err, "Something went wrong", logger, fields...)
	}
}
