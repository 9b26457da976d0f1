package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trektrace/internal/model"
)

var statusByKind = map[string]int{
	"PermissionDenied":     http.StatusForbidden,
	"NoActiveSession":      http.StatusConflict,
	"SessionAlreadyActive": http.StatusConflict,
	"NotFound":             http.StatusNotFound,
	"EmptyTrack":           http.StatusUnprocessableEntity,
	"NoData":               http.StatusUnprocessableEntity,
	"InvalidFormat":        http.StatusBadRequest,
	"Offline":              http.StatusServiceUnavailable,
	"PersistenceFailure":   http.StatusInternalServerError,
}

// StatusFor maps an error kind to the HTTP status reported for it.
func StatusFor(kind string) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": kind, "message": reason} and aborts the chain.
func respondError(c *gin.Context, err error) {
	kind := model.ErrorKind(err)
	status := StatusFor(kind)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   kind,
		"message": err.Error(),
	})
}

// badRequest reports a malformed request body or query.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "InvalidFormat",
		"message": err.Error(),
	})
}
