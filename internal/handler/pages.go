package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/middleware"
)

const msgTryAgain = "Something went wrong, please try again."

// Index renders the product feed.
func (h *Handler) Index(c *gin.Context) {
	ctx := c.Request.Context()

	products, err := h.products.Feed(ctx, h.feedLimit)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to load product feed")
		h.render(c, http.StatusInternalServerError, "index", pageData{
			Flashes: []Flash{{Kind: flashError, Message: msgTryAgain}},
		})
		return
	}

	h.render(c, http.StatusOK, "index", pageData{Products: products})
}

func (h *Handler) RegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "register", pageData{Title: "Register"})
}

// Register creates the account and signs the new user in.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register form")
		h.redirectWithFlash(c, "/register", flashError, "Please fill in every field.")
		return
	}

	session, err := h.auth.Register(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.redirectWithFlash(c, "/register", flashError, "Please fill in every field.")
		case errors.Is(err, domain.ErrConflict):
			h.redirectWithFlash(c, "/register", flashError, "That username or email is already taken.")
		default:
			l.Error().Err(err).Msg("register failed")
			h.redirectWithFlash(c, "/register", flashError, msgTryAgain)
		}
		return
	}

	h.cookie.Set(c, session.Token)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) LoginPage(c *gin.Context) {
	if middleware.CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, safeNext(c.Query("next")))
		return
	}
	h.render(c, http.StatusOK, "login", pageData{Title: "Log in", Next: safeNext(c.Query("next"))})
}

// Login checks credentials and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	retry := loginRetryPath(c.PostForm("next"))

	var req domain.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login form")
		h.redirectWithFlash(c, retry, flashError, "Invalid username or password.")
		return
	}

	session, err := h.auth.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.redirectWithFlash(c, retry, flashError, "Invalid username or password.")
			return
		}
		l.Error().Err(err).Msg("login failed")
		h.redirectWithFlash(c, retry, flashError, msgTryAgain)
		return
	}

	h.cookie.Set(c, session.Token)
	c.Redirect(http.StatusSeeOther, safeNext(c.PostForm("next")))
}

// loginRetryPath sends a failed login back to the form with its target intact.
func loginRetryPath(next string) string {
	if next == "" {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(safeNext(next))
}

// Logout drops the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context(), middleware.CurrentUser(c).UserID)
	h.cookie.Clear(c)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) AddProductPage(c *gin.Context) {
	h.render(c, http.StatusOK, "add_product", pageData{Title: "Sell something"})
}

// AddProduct publishes a listing owned by the signed-in user.
func (h *Handler) AddProduct(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		l.Warn().Err(err).Msg("invalid product form")
		h.redirectWithFlash(c, "/add_product", flashError, "Please fill in every field and attach an image.")
		return
	}

	if _, err := h.products.Create(ctx, middleware.CurrentUser(c).UserID, &req); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.redirectWithFlash(c, "/add_product", flashError, "Please fill in every field and attach an image.")
			return
		}
		l.Error().Err(err).Msg("failed to add product")
		h.redirectWithFlash(c, "/add_product", flashError, msgTryAgain)
		return
	}

	h.redirectWithFlash(c, "/", flashSuccess, "Product added.")
}
