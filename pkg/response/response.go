package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Upload is the body returned by the upload endpoint.
type Upload struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// Uploaded sends {"ok": true, "url": url}.
func Uploaded(c *gin.Context, url string) {
	c.JSON(http.StatusOK, Upload{OK: true, URL: url})
}

// Error sends {"ok": false, "error": message} with the given status.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Upload{OK: false, Error: message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// BadGateway sends a 502 error response.
func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// List sends a bare JSON array, never null.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, items)
}
