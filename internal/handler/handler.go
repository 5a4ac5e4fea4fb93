package handler

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/internal/service"
	"github.com/weiawesome/flow-market/pkg/middleware"
	"github.com/weiawesome/flow-market/pkg/storage"
)

const loginPath = "/login"

// Deps are the collaborators the HTTP layer delegates to.
type Deps struct {
	Auth     service.AuthService
	Products service.ProductService
	Chat     service.ChatService
	Uploads  service.UploadService
	Health   service.HealthService
	Hub      *hub.Hub

	Cookie    middleware.SessionCookie
	WebSocket config.WebSocketConfig
	FeedLimit int
	MaxUpload int64

	// Media, when set, is served under MediaPrefix.
	Media       storage.Store
	MediaPrefix string
}

// Handler serves the market's pages, JSON endpoints and realtime socket.
type Handler struct {
	auth     service.AuthService
	products service.ProductService
	chat     service.ChatService
	uploads  service.UploadService
	health   service.HealthService
	hub      *hub.Hub

	cookie      middleware.SessionCookie
	wsCfg       config.WebSocketConfig
	feedLimit   int
	maxUpload   int64
	media       storage.Store
	mediaPrefix string
	templates   *template.Template
}

func NewHandler(d Deps) (*Handler, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	feedLimit := d.FeedLimit
	if feedLimit <= 0 {
		feedLimit = 60
	}

	return &Handler{
		auth:        d.Auth,
		products:    d.Products,
		chat:        d.Chat,
		uploads:     d.Uploads,
		health:      d.Health,
		hub:         d.Hub,
		cookie:      d.Cookie,
		wsCfg:       d.WebSocket,
		feedLimit:   feedLimit,
		maxUpload:   d.MaxUpload,
		media:       d.Media,
		mediaPrefix: strings.TrimSuffix(d.MediaPrefix, "/"),
		templates:   tmpl,
	}, nil
}

// RegisterRoutes registers all routes. The session middleware must already be
// installed on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(h.templates)
	r.StaticFS("/static", staticFileSystem())

	// Pages
	r.GET("/", h.Index)
	r.GET("/register", h.RegisterPage)
	r.POST("/register", h.Register)
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)

	authed := r.Group("", middleware.RequireAuth(loginPath))
	{
		authed.GET("/logout", h.Logout)
		authed.GET("/add_product", h.AddProductPage)
		authed.POST("/add_product", h.AddProduct)
	}

	// JSON
	r.GET("/health", h.Health)
	r.POST("/upload", h.Upload)
	r.GET("/api/messages/:room", h.Messages)
	r.GET("/products", h.Products)
	r.GET("/products/:id", h.Product)

	// Realtime
	r.GET("/ws", h.ServeWS)

	if h.media != nil && h.mediaPrefix != "" {
		r.GET(h.mediaPrefix+"/*key", h.Media)
	}
}
