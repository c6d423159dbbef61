package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/availability"
	"github.com/Youmanvi/bookingengine/internal/consistency"
)

// POST /v1/reservations
func (h *Handler) SubmitReservation(c *gin.Context) {
	var req consistency.SubmitReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.TenantID = tenant(c)
	if req.RequesterID == "" {
		req.RequesterID = actor(c)
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	r, err := h.engine.SubmitReservation(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GET /v1/reservations/:id
func (h *Handler) GetReservation(c *gin.Context) {
	r, err := h.engine.GetReservation(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /v1/reservations/:id/approve
func (h *Handler) ApproveReservation(c *gin.Context) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.engine.ApproveReservation(c.Request.Context(), consistency.ApproveReservationRequest{
		TenantID: tenant(c), ReservationID: c.Param("id"), ApproverID: actor(c), ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /v1/reservations/:id/reject
func (h *Handler) RejectReservation(c *gin.Context) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.engine.RejectReservation(c.Request.Context(), consistency.RejectReservationRequest{
		TenantID: tenant(c), ReservationID: c.Param("id"), ApproverID: actor(c),
		Reason: body.Reason, ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /v1/reservations/:id/cancel
func (h *Handler) CancelReservation(c *gin.Context) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.engine.CancelReservation(c.Request.Context(), consistency.CancelReservationRequest{
		TenantID: tenant(c), ReservationID: c.Param("id"), ActorID: actor(c),
		Reason: body.Reason, ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /v1/reservations/:id/complete
func (h *Handler) CompleteReservation(c *gin.Context) {
	req, ok := h.closeRequest(c)
	if !ok {
		return
	}
	r, err := h.engine.CompleteReservation(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /v1/reservations/:id/no-show
func (h *Handler) MarkNoShow(c *gin.Context) {
	req, ok := h.closeRequest(c)
	if !ok {
		return
	}
	r, err := h.engine.MarkNoShow(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) closeRequest(c *gin.Context) (consistency.CloseReservationRequest, bool) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return consistency.CloseReservationRequest{}, false
	}
	return consistency.CloseReservationRequest{
		TenantID: tenant(c), ReservationID: c.Param("id"), ActorID: actor(c), ExpectedVersion: body.ExpectedVersion,
	}, true
}

// GET /v1/resources/:id/availability?start=RFC3339&end=RFC3339&free=true
func (h *Handler) GetAvailability(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		h.badRequest(c, err)
		return
	}

	slots, err := h.engine.GetAvailability(c.Request.Context(), consistency.AvailabilityRequest{
		TenantID: tenant(c), ResourceID: c.Param("id"), Start: start, End: end,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("free") == "true" {
		slots = availability.Free(slots)
	}
	out := availability.Collect(slots)
	c.JSON(http.StatusOK, gin.H{"data": out, "count": len(out)})
}

// POST /v1/resources
func (h *Handler) CreateResource(c *gin.Context) {
	var req consistency.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.TenantID = tenant(c)
	req.ActorID = actor(c)

	res, err := h.engine.CreateResource(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /v1/resources/:id
func (h *Handler) GetResource(c *gin.Context) {
	res, err := h.engine.GetResource(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) resourceCommand(c *gin.Context) (consistency.ResourceCommand, bool) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return consistency.ResourceCommand{}, false
	}
	return consistency.ResourceCommand{
		TenantID: tenant(c), ResourceID: c.Param("id"), ActorID: actor(c), ExpectedVersion: body.ExpectedVersion,
	}, true
}

// POST /v1/resources/:id/publish
func (h *Handler) PublishResource(c *gin.Context) {
	cmd, ok := h.resourceCommand(c)
	if !ok {
		return
	}
	res, err := h.engine.PublishResource(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/resources/:id/unpublish
func (h *Handler) UnpublishResource(c *gin.Context) {
	cmd, ok := h.resourceCommand(c)
	if !ok {
		return
	}
	res, err := h.engine.UnpublishResource(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/resources/:id/archive
func (h *Handler) ArchiveResource(c *gin.Context) {
	cmd, ok := h.resourceCommand(c)
	if !ok {
		return
	}
	result, err := h.engine.ArchiveResource(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	var warnings []string
	if result.Cascade.HasFailures() || result.Cascade.Incomplete {
		warnings = append(warnings, "cascade did not release every future commitment")
	}
	c.JSON(http.StatusOK, gin.H{"data": result, "warnings": warnings})
}

// POST /v1/resources/:id/restore
func (h *Handler) RestoreResource(c *gin.Context) {
	cmd, ok := h.resourceCommand(c)
	if !ok {
		return
	}
	res, err := h.engine.RestoreResource(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/resources/:id/clone
func (h *Handler) CloneResource(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	result, err := h.engine.CloneResource(c.Request.Context(), consistency.CloneResourceRequest{
		TenantID: tenant(c), SourceID: c.Param("id"), ActorID: actor(c), Name: body.Name,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// POST /v1/resources/:id/price-rules
func (h *Handler) AddPriceRule(c *gin.Context) {
	var req consistency.AddPriceRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.TenantID, req.ResourceID, req.ActorID = tenant(c), c.Param("id"), actor(c)

	rule, err := h.engine.AddPriceRule(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// POST /v1/resources/:id/amenities
func (h *Handler) AddAmenity(c *gin.Context) {
	var req consistency.AddAmenityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.TenantID, req.ResourceID, req.ActorID = tenant(c), c.Param("id"), actor(c)

	amenity, err := h.engine.AddAmenity(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, amenity)
}

// POST /v1/resources/:id/blocks
func (h *Handler) CreateBlock(c *gin.Context) {
	var req consistency.CreateBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.TenantID, req.ResourceID, req.ActorID = tenant(c), c.Param("id"), actor(c)

	result, err := h.engine.CreateBlock(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// POST /v1/blocks/:id/cancel
func (h *Handler) CancelBlock(c *gin.Context) {
	var body versionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	b, err := h.engine.CancelBlock(c.Request.Context(), consistency.CancelBlockRequest{
		TenantID: tenant(c), BlockID: c.Param("id"), ActorID: actor(c), ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /v1/audit/:entity_type/:id
func (h *Handler) AuditTrail(c *gin.Context) {
	entries, err := h.engine.AuditTrail(c.Request.Context(), tenant(c), audit.EntityType(c.Param("entity_type")), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "count": len(entries)})
}
