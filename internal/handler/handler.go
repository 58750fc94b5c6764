package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/set-night/roulette/internal/middleware"
	"github.com/set-night/roulette/internal/notify"
	"github.com/set-night/roulette/internal/service"
	"github.com/set-night/roulette/internal/sfu"
)

// ErrorReporter receives unexpected faults for operator attention.
type ErrorReporter interface {
	LogError(err error, context string)
}

// Handler holds all dependencies needed by the HTTP routes.
type Handler struct {
	cfg       *config.Config
	roulette  *service.Roulette
	hub       *notify.Hub
	redirects *notify.Redirects
	limiter   *middleware.WindowCounter
	reporter  ErrorReporter
	logger    *slog.Logger
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Cfg       *config.Config
	Roulette  *service.Roulette
	Hub       *notify.Hub
	Redirects *notify.Redirects
	Limiter   *middleware.WindowCounter
	Reporter  ErrorReporter // optional
	Logger    *slog.Logger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		cfg:       deps.Cfg,
		roulette:  deps.Roulette,
		hub:       deps.Hub,
		redirects: deps.Redirects,
		limiter:   deps.Limiter,
		reporter:  deps.Reporter,
		logger:    deps.Logger,
	}
}

// Register wires every route onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	participants := middleware.RequireRole(domain.RoleClient, domain.RoleModel)
	clients := middleware.RequireRole(domain.RoleClient)
	models := middleware.RequireRole(domain.RoleModel)
	system := middleware.RequireRole(domain.RoleSystem)

	v1 := r.Group("/v1",
		middleware.Authenticate(h.cfg.IdentitySecret),
		middleware.RateLimit(h.limiter, h.cfg.RateLimitPerMinute, h.logger),
	)

	v1.POST("/match/start", participants, h.startMatch)
	v1.POST("/match/next", participants, h.nextMatch)

	v1.POST("/sessions/:room/end", participants, h.endSession)
	v1.GET("/sessions/:room/join", participants, h.joinSession)
	v1.POST("/sessions/:room/tick", system, h.tick)

	v1.GET("/gifts/catalog", h.giftCatalog)
	v1.POST("/gifts/requests", models, h.requestGift)
	v1.GET("/gifts/requests/pending", clients, h.pendingGifts)
	v1.POST("/gifts/requests/:id/accept", clients, h.acceptGift)
	v1.POST("/gifts/requests/:id/reject", clients, h.rejectGift)
	v1.POST("/gifts/requests/:id/cancel", models, h.cancelGift)

	v1.GET("/balance", h.balance)
	v1.GET("/redirects", h.takeRedirects)
	v1.GET("/events", h.events)

	v1.POST("/internal/credits", system, h.credit)
	v1.PUT("/internal/settings/commission", system, h.setCommission)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail writes the error response for err. Unexpected faults are logged and
// hidden behind a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
		if h.reporter != nil {
			h.reporter.LogError(err, c.Request.Method+" "+c.FullPath())
		}
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, sfu.ErrRoomReleased) {
		return http.StatusConflict
	}
	switch domain.Kind(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrInsufficientBalance:
		return http.StatusPaymentRequired
	case domain.ErrSecurityViolation:
		return http.StatusForbidden
	case domain.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func identity(c *gin.Context) middleware.Identity {
	id, _ := middleware.GetIdentity(c)
	return id
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
