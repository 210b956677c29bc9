package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Respond übersetzt einen Fehler in eine JSON-Antwort mit passendem Statuscode.
func Respond(c *gin.Context, log *zap.Logger, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "title": "validation error"})
		return
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
		return
	}

	log.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
