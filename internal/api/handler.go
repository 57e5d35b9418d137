package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/service"
)

const notFoundMessage = "link has expired or not found"

// Handler holds HTTP handlers and dependencies.
// It receives interfaces rather than concrete implementations for testability.
type Handler struct {
	links  service.LinkServiceInterface
	db     Pinger // health check only
	cache  Pinger // health check only
	logger *slog.Logger
}

// Pinger is a dependency the health check pings
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
func NewHandler(links service.LinkServiceInterface, db Pinger, cache Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		links:  links,
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller creates the engine and adds middleware first, so middleware
// runs in the correct order.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/shorten", h.createShortURL)
		v1.GET("/links/:alias", h.getInfo)
		v1.GET("/links/:alias/analytics", h.getAnalytics)
		v1.DELETE("/links/:alias", h.deleteLink)
	}

	// Public redirect. Registered last; reserved aliases keep it from
	// shadowing the fixed routes above.
	r.GET("/:alias", h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: All dependencies are healthy
//   - 503 Service Unavailable: One or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"cache": "up", "database": "up"}

	if err := h.cache.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["cache"] = "down"
	}
	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["database"] = "down"
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// createShortURL handles POST /api/v1/shorten
// Response codes:
//   - 201 Created: Link created
//   - 400 Bad Request: Invalid body, URL or alias
//   - 409 Conflict: Alias already exists
//   - 503 Service Unavailable: No free alias could be generated
//   - 500 Internal Server Error: Storage failure
func (h *Handler) createShortURL(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.CreateLinkRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	link, err := h.links.CreateShortURL(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflict):
			h.errorResponse(c, http.StatusConflict, "Alias already exists")
		case errors.Is(err, service.ErrInvalidAlias):
			h.errorResponse(c, http.StatusBadRequest, "Invalid alias")
		default:
			h.serviceError(c, err, "")
		}
		return
	}

	resp := model.CreateLinkResponse{
		Alias:       link.Alias,
		ShortURL:    h.links.ShortURL(link.Alias),
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt.UTC().Format(time.RFC3339),
	}
	if link.ExpiresAt != nil {
		resp.ExpiresAt = link.ExpiresAt.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusCreated, resp)
}

// getInfo handles GET /api/v1/links/:alias
// Expired links are still reported. It does not count as a click.
func (h *Handler) getInfo(c *gin.Context) {
	alias := c.Param("alias")

	info, err := h.links.GetInfo(c.Request.Context(), alias)
	if err != nil {
		h.serviceError(c, err, alias)
		return
	}

	c.JSON(http.StatusOK, info)
}

// getAnalytics handles GET /api/v1/links/:alias/analytics
func (h *Handler) getAnalytics(c *gin.Context) {
	alias := c.Param("alias")

	analytics, err := h.links.GetAnalytics(c.Request.Context(), alias)
	if err != nil {
		h.serviceError(c, err, alias)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// deleteLink handles DELETE /api/v1/links/:alias
// The link and its click history are removed permanently.
func (h *Handler) deleteLink(c *gin.Context) {
	alias := c.Param("alias")

	if err := h.links.DeleteByAlias(c.Request.Context(), alias); err != nil {
		h.serviceError(c, err, alias)
		return
	}

	c.JSON(http.StatusOK, model.MessageResponse{Message: "link deleted successfully"})
}

// redirect handles GET /:alias
// Response codes:
//   - 302 Found: Redirects to the original URL and records the click
//   - 404 Not Found: Alias is unknown or expired
//   - 500 Internal Server Error: Storage failure
func (h *Handler) redirect(c *gin.Context) {
	alias := c.Param("alias")

	link, err := h.links.Resolve(c.Request.Context(), alias, c.ClientIP())
	if err != nil {
		h.serviceError(c, err, alias)
		return
	}

	// 302 keeps browsers from caching the redirect, so every visit is counted.
	c.Redirect(http.StatusFound, link.OriginalURL)
}

// serviceError maps the errors shared by every operation
func (h *Handler) serviceError(c *gin.Context, err error, alias string) {
	ctx := c.Request.Context()
	var storageErr *service.StorageError

	switch {
	case errors.Is(err, service.ErrNotFound):
		h.errorResponse(c, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, service.ErrAliasGeneration):
		h.logger.ErrorContext(ctx, "alias generation exhausted", slog.String("error", err.Error()))
		h.errorResponse(c, http.StatusServiceUnavailable, "Could not allocate an alias, try again")
	case errors.As(err, &storageErr):
		h.logger.ErrorContext(ctx, "storage failure",
			slog.String("op", storageErr.Op),
			slog.String("alias", alias),
			slog.String("error", storageErr.Err.Error()))
		h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
	default:
		h.logger.ErrorContext(ctx, "unexpected error",
			slog.String("alias", alias),
			slog.String("error", err.Error()))
		h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status), // e.g., "Bad Request", "Not Found"
		Message: message,
	})
}
