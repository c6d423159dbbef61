// Package http exposes the consistency facade as JSON over HTTP. Callers are
// authenticated upstream; the tenant and actor arrive as headers.
package http

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/availability"
	"github.com/Youmanvi/bookingengine/internal/consistency"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

const (
	TenantHeader = "X-Tenant-ID"
	ActorHeader  = "X-Actor-ID"
)

// Engine is the facade surface served over HTTP
type Engine interface {
	SubmitReservation(ctx context.Context, req consistency.SubmitReservationRequest) (*domain.Reservation, error)
	ApproveReservation(ctx context.Context, req consistency.ApproveReservationRequest) (*domain.Reservation, error)
	RejectReservation(ctx context.Context, req consistency.RejectReservationRequest) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, req consistency.CancelReservationRequest) (*domain.Reservation, error)
	CompleteReservation(ctx context.Context, req consistency.CloseReservationRequest) (*domain.Reservation, error)
	MarkNoShow(ctx context.Context, req consistency.CloseReservationRequest) (*domain.Reservation, error)
	GetReservation(ctx context.Context, tenantID, id string) (*domain.Reservation, error)
	GetAvailability(ctx context.Context, req consistency.AvailabilityRequest) (iter.Seq[availability.Slot], error)

	CreateResource(ctx context.Context, req consistency.CreateResourceRequest) (*domain.Resource, error)
	GetResource(ctx context.Context, tenantID, id string) (*domain.Resource, error)
	PublishResource(ctx context.Context, cmd consistency.ResourceCommand) (*domain.Resource, error)
	UnpublishResource(ctx context.Context, cmd consistency.ResourceCommand) (*domain.Resource, error)
	ArchiveResource(ctx context.Context, cmd consistency.ResourceCommand) (*consistency.ArchiveResult, error)
	RestoreResource(ctx context.Context, cmd consistency.ResourceCommand) (*domain.Resource, error)
	CloneResource(ctx context.Context, req consistency.CloneResourceRequest) (*consistency.CloneResult, error)
	AddPriceRule(ctx context.Context, req consistency.AddPriceRuleRequest) (*domain.PriceRule, error)
	AddAmenity(ctx context.Context, req consistency.AddAmenityRequest) (*domain.Amenity, error)

	CreateBlock(ctx context.Context, req consistency.CreateBlockRequest) (*consistency.BlockResult, error)
	CancelBlock(ctx context.Context, req consistency.CancelBlockRequest) (*domain.Block, error)

	AuditTrail(ctx context.Context, tenantID string, entityType audit.EntityType, entityID string) ([]*audit.Entry, error)
}

type Handler struct {
	engine Engine
	log    *observability.Logger
}

func NewHandler(engine Engine, log *observability.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// NewRouter builds the gin engine with every route registered
func NewRouter(h *Handler, requestTimeout time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger(), withTimeout(requestTimeout))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	v1.Use(requireTenant())
	{
		v1.POST("/reservations", h.SubmitReservation)
		v1.GET("/reservations/:id", h.GetReservation)
		v1.POST("/reservations/:id/approve", h.ApproveReservation)
		v1.POST("/reservations/:id/reject", h.RejectReservation)
		v1.POST("/reservations/:id/cancel", h.CancelReservation)
		v1.POST("/reservations/:id/complete", h.CompleteReservation)
		v1.POST("/reservations/:id/no-show", h.MarkNoShow)

		v1.POST("/resources", h.CreateResource)
		v1.GET("/resources/:id", h.GetResource)
		v1.GET("/resources/:id/availability", h.GetAvailability)
		v1.POST("/resources/:id/publish", h.PublishResource)
		v1.POST("/resources/:id/unpublish", h.UnpublishResource)
		v1.POST("/resources/:id/archive", h.ArchiveResource)
		v1.POST("/resources/:id/restore", h.RestoreResource)
		v1.POST("/resources/:id/clone", h.CloneResource)
		v1.POST("/resources/:id/price-rules", h.AddPriceRule)
		v1.POST("/resources/:id/amenities", h.AddAmenity)
		v1.POST("/resources/:id/blocks", h.CreateBlock)

		v1.POST("/blocks/:id/cancel", h.CancelBlock)

		v1.GET("/audit/:entity_type/:id", h.AuditTrail)
	}
	return r
}

func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(TenantHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": apperrors.CodeValidationFailed, "message": TenantHeader + " header is required"},
			})
			return
		}
		c.Next()
	}
}

func withTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("tenant_id", c.GetHeader(TenantHeader)).
			Msg("http request")
	}
}

var statusByCode = map[string]int{
	apperrors.CodeSlotUnavailable:     http.StatusConflict,
	apperrors.CodeOutsideOpeningHours: http.StatusUnprocessableEntity,
	apperrors.CodeDurationOutOfRange:  http.StatusUnprocessableEntity,
	apperrors.CodeInvalidWindow:       http.StatusBadRequest,
	apperrors.CodeStaleVersion:        http.StatusConflict,
	apperrors.CodeInvalidTransition:   http.StatusConflict,
	apperrors.CodeNotFound:            http.StatusNotFound,
	apperrors.CodeValidationFailed:    http.StatusBadRequest,
	apperrors.CodeResourceNotBookable: http.StatusConflict,
	apperrors.CodeIdempotencyReused:   http.StatusUnprocessableEntity,
	apperrors.CodePrematureCompletion: http.StatusConflict,
	apperrors.CodeCompensationFailed:  http.StatusInternalServerError,
	apperrors.CodeStorageFailure:      http.StatusServiceUnavailable,
	apperrors.CodeCircuitBreakerOpen:  http.StatusServiceUnavailable,
	apperrors.CodeStepTimeout:         http.StatusGatewayTimeout,
}

// HTTPStatus maps an engine error to its HTTP status
func HTTPStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByCode[apperrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := HTTPStatus(err)
	code := apperrors.CodeOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("code", code).Msg("request failed")
		if code == "" {
			message = "internal error"
		}
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.fail(c, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil))
}

func tenant(c *gin.Context) string { return c.GetHeader(TenantHeader) }
func actor(c *gin.Context) string  { return c.GetHeader(ActorHeader) }

// versionBody is the body of every versioned command
type versionBody struct {
	ExpectedVersion int64  `json:"expected_version"`
	Reason          string `json:"reason"`
}
