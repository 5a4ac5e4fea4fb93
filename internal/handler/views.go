package handler

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

func loadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

func staticFileSystem() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

const flashCookie = "flow_flash"

const (
	flashError   = "error"
	flashSuccess = "success"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Kind    string `json:"k"`
	Message string `json:"m"`
}

type pageData struct {
	Title    string
	User     *middleware.Identity
	Flashes  []Flash
	Products []*domain.ProductListing
	Next     string
	Lobby    string
}

func (h *Handler) setFlash(c *gin.Context, kind, message string) {
	raw, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(raw), 60, "/", "", h.cookie.Secure, true)
}

// takeFlashes reads and clears the pending flash.
func (h *Handler) takeFlashes(c *gin.Context) []Flash {
	value, err := c.Cookie(flashCookie)
	if err != nil || value == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", h.cookie.Secure, true)

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil || f.Message == "" {
		return nil
	}
	return []Flash{f}
}

func (h *Handler) render(c *gin.Context, status int, name string, data pageData) {
	data.User = middleware.CurrentUser(c)
	data.Lobby = domain.LobbyRoom
	data.Flashes = append(h.takeFlashes(c), data.Flashes...)
	c.HTML(status, name, data)
}

// redirectWithFlash answers a form post with a flash and a 303 to target.
func (h *Handler) redirectWithFlash(c *gin.Context, target, kind, message string) {
	h.setFlash(c, kind, message)
	c.Redirect(http.StatusSeeOther, target)
}

// safeNext only allows same-site relative paths as post-login targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
