package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	svcmetrics "PulsePrice/internal/service/metrics"
	"PulsePrice/internal/service/ratelimit"
	"PulsePrice/internal/usecase"
	xhttp "PulsePrice/pkg/http"
	applogger "PulsePrice/pkg/logger"
	"PulsePrice/pkg/util"
)

// PriceService is the engine surface served over HTTP.
type PriceService interface {
	Current(ctx context.Context, tokenID string) (models.TokenQuote, error)
	CurrentAll(ctx context.Context) (map[string]models.TokenQuote, error)
	History(ctx context.Context, tokenID string, limit int) ([]models.PricePoint, error)
	Ohlc(ctx context.Context, tokenID string) (models.OhlcCandle, error)
	Trigger(ctx context.Context, tokenID string) (models.PricePoint, error)
	Config() models.EngineConfig
	UpdateConfig(patch models.EngineConfigPatch) (models.EngineConfig, error)
	Health(ctx context.Context) (usecase.Health, error)
	Subscribe() *usecase.Subscription
	Unsubscribe(sub *usecase.Subscription)
}

// TriggerLimit is the per-client token bucket for manual updates.
type TriggerLimit struct {
	Burst      float64
	RefillRate float64 // tokens per second
}

const defaultArchiveWindow = 24 * time.Hour

// PriceHandler serves the REST price endpoints.
type PriceHandler struct {
	logger  *applogger.Logger
	engine  PriceService
	limiter *ratelimit.Limiter
	limit   TriggerLimit
	archive domrepo.PriceArchive
	metrics *svcmetrics.APIMetrics
	now     func() time.Time
}

// NewPriceHandler wires the REST endpoints. archive may be nil, which leaves
// the archive route unregistered.
func NewPriceHandler(l *applogger.Logger, engine PriceService, limiter *ratelimit.Limiter, limit TriggerLimit, archive domrepo.PriceArchive, metrics *svcmetrics.APIMetrics) *PriceHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if limit.Burst <= 0 {
		limit.Burst = 5
	}
	if limit.RefillRate <= 0 {
		limit.RefillRate = 1
	}
	return &PriceHandler{
		logger:  l,
		engine:  engine,
		limiter: limiter,
		limit:   limit,
		archive: archive,
		metrics: metrics,
		now:     time.Now,
	}
}

func (h *PriceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/current", h.CurrentAll)
	e.GET("/current/:tokenId", h.Current)
	e.GET("/history/:tokenId", h.History)
	e.GET("/ohlc/:tokenId", h.Ohlc)
	e.POST("/update/:tokenId", h.Trigger)
	e.GET("/config", h.GetConfig)
	e.POST("/config", h.UpdateConfig)
	e.GET("/healthz", h.Health)
	if h.archive != nil {
		e.GET("/archive/:tokenId", h.Archive)
	}
}

func (h *PriceHandler) CurrentAll(c echo.Context) error {
	defer h.metrics.Observe("current_all", time.Now())

	res, err := h.engine.CurrentAll(c.Request().Context())
	if err != nil {
		return h.fail(c, "current_all", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PriceHandler) Current(c echo.Context) error {
	defer h.metrics.Observe("current", time.Now())
	req := &models.TokenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.Current(c.Request().Context(), req.TokenID)
	if err != nil {
		return h.fail(c, "current", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PriceHandler) History(c echo.Context) error {
	defer h.metrics.Observe("history", time.Now())
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.History(c.Request().Context(), req.TokenID, req.Limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PriceHandler) Ohlc(c echo.Context) error {
	defer h.metrics.Observe("ohlc", time.Now())
	req := &models.TokenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.Ohlc(c.Request().Context(), req.TokenID)
	if err != nil {
		return h.fail(c, "ohlc", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Trigger recomputes one token immediately. Callers are rate limited by IP.
func (h *PriceHandler) Trigger(c echo.Context) error {
	defer h.metrics.Observe("update", time.Now())
	req := &models.TokenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.limiter.Allow(c.RealIP(), h.limit.Burst, h.limit.RefillRate) {
		h.metrics.RateLimited()
		appErr := xhttp.TooManyRequestsError("too many manual updates, retry later")
		h.metrics.Error("update", appErr.Code)
		c.Response().Header().Set("Retry-After", "1")
		return xhttp.AppErrorResponse(c, appErr)
	}

	point, err := h.engine.Trigger(c.Request().Context(), req.TokenID)
	if err != nil {
		return h.fail(c, "update", err)
	}
	return c.JSON(http.StatusOK, point)
}

func (h *PriceHandler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Config())
}

// UpdateConfig merges a partial config. Unknown fields are rejected.
func (h *PriceHandler) UpdateConfig(c echo.Context) error {
	defer h.metrics.Observe("config", time.Now())
	patch := &models.EngineConfigPatch{}
	if verr := xhttp.ReadStrictRequest(c, patch); verr != nil {
		h.metrics.Error("config", "ERR_BAD_REQUEST")
		return xhttp.BadRequestResponse(c, verr)
	}
	if patch.Empty() {
		return c.JSON(http.StatusOK, h.engine.Config())
	}

	cfg, err := h.engine.UpdateConfig(*patch)
	if err != nil {
		return h.fail(c, "config", err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *PriceHandler) Health(c echo.Context) error {
	res, err := h.engine.Health(c.Request().Context())
	if err != nil {
		h.logger.Warn("health check degraded", applogger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	return c.JSON(http.StatusOK, res)
}

// Archive serves persisted points beyond the in-memory history window.
func (h *PriceHandler) Archive(c echo.Context) error {
	defer h.metrics.Observe("archive", time.Now())
	req := &models.ArchiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	to, ok := parseBound(req.To, h.now())
	if !ok {
		return h.fail(c, "archive", fmt.Errorf("%w: invalid to %q", models.ErrValidation, req.To))
	}
	from, ok := parseBound(req.From, to.Add(-defaultArchiveWindow))
	if !ok {
		return h.fail(c, "archive", fmt.Errorf("%w: invalid from %q", models.ErrValidation, req.From))
	}
	if from.After(to) {
		return h.fail(c, "archive", fmt.Errorf("%w: from must not be after to", models.ErrValidation))
	}

	ctx := c.Request().Context()
	if _, err := h.engine.Current(ctx, req.TokenID); err != nil {
		return h.fail(c, "archive", err)
	}
	res, err := h.archive.Range(ctx, req.TokenID, from, to, req.Limit)
	if err != nil {
		return h.fail(c, "archive", fmt.Errorf("%w: archive: %w", models.ErrUpstreamUnavailable, err))
	}
	return c.JSON(http.StatusOK, res)
}

// parseBound returns def for an empty bound.
func parseBound(s string, def time.Time) (time.Time, bool) {
	if s == "" {
		return def, true
	}
	return util.ParseTime(s)
}

// fail maps engine errors onto the error envelope.
func (h *PriceHandler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrNotFound):
		appErr = xhttp.NotFoundErrorf("token %s not found", c.Param("tokenId"))
	case errors.Is(err, models.ErrValidation):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrUpstreamUnavailable):
		h.logger.Warn("upstream unavailable",
			applogger.String("endpoint", endpoint),
			applogger.Error(err),
		)
		appErr = xhttp.UpstreamUnavailableError("engagement sources unavailable")
	default:
		h.logger.Error(endpoint+" usecase error", applogger.Error(err))
		appErr = xhttp.InternalError("internal error")
	}
	h.metrics.Error(endpoint, appErr.Code)
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

var _ PriceService = (*usecase.Engine)(nil)
