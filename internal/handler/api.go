package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/middleware"
	"github.com/weiawesome/flow-market/pkg/response"
	"github.com/weiawesome/flow-market/pkg/storage"
)

// Health reports liveness with product and message counts.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status, err := h.health.Health(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "service": domain.ServiceName, "error": "database unavailable"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Messages returns the recent history of a room, oldest first.
func (h *Handler) Messages(c *gin.Context) {
	ctx := c.Request.Context()
	room := c.Param("room")

	entries, err := h.chat.History(ctx, room)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to load history")
		response.InternalError(c, "failed to load messages")
		return
	}

	response.List(c, entries)
}

// Products returns every product.
func (h *Handler) Products(c *gin.Context) {
	ctx := c.Request.Context()

	products, err := h.products.ListAll(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list products")
		response.InternalError(c, "failed to list products")
		return
	}

	response.List(c, products)
}

// Product returns one product with its owner's name.
func (h *Handler) Product(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		response.NotFound(c, "product not found")
		return
	}

	product, err := h.products.Get(ctx, uint(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "product not found")
			return
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Uint64(log.FieldProductID, id).Msg("failed to load product")
		response.InternalError(c, "failed to load product")
		return
	}

	c.JSON(http.StatusOK, product)
}

// Upload forwards a multipart "file" to the configured image host.
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "no file")
		return
	}
	if fh.Filename == "" {
		response.BadRequest(c, "empty filename")
		return
	}
	f, err := fh.Open()
	if err != nil {
		l.Warn().Err(err).Msg("failed to open uploaded file")
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	// One byte past the limit is enough for the service to reject the file.
	var r io.Reader = f
	if h.maxUpload > 0 {
		r = io.LimitReader(f, h.maxUpload+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		l.Warn().Err(err).Msg("failed to read uploaded file")
		response.BadRequest(c, "unreadable file")
		return
	}

	var userID uint
	if id := middleware.CurrentUser(c); id != nil {
		userID = id.UserID
	}

	url, err := h.uploads.Upload(ctx, userID, &domain.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			response.BadRequest(c, err.Error())
			return
		}
		response.BadGateway(c, err.Error())
		return
	}

	response.Uploaded(c, url)
}

// Media serves images kept in local storage.
func (h *Handler) Media(c *gin.Context) {
	ctx := c.Request.Context()
	key := strings.TrimPrefix(c.Param("key"), "/")

	obj, err := h.media.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str("key", key).Msg("failed to read media")
		}
		c.Status(http.StatusNotFound)
		return
	}
	defer obj.Body.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, nil)
}
