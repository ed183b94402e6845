package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flash-sale-service/internal/seckill"
)

// SeckillHandler exposes the flash-sale attempt endpoint and the two
// display-only probes.  All concurrency control lives in the engine; this
// layer only translates outcomes into HTTP statuses and never leaks raw
// infrastructure errors to the client.
type SeckillHandler struct {
	Engine *seckill.Engine
}

// NewSeckillHandler constructs a SeckillHandler.
func NewSeckillHandler(engine *seckill.Engine) *SeckillHandler {
	if engine == nil {
		panic("nil engine passed to NewSeckillHandler")
	}
	return &SeckillHandler{Engine: engine}
}

// Attempt handles POST /v1/activities/:id/seckill.  The authenticated user
// races for one unit of stock.  Business rejections come back as structured
// JSON with the outcome name; only a store fault inside the critical
// section returns 503.
func (h *SeckillHandler) Attempt(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	activityID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}

	res, err := h.Engine.Seckill(c.Request().Context(), activityID, userID)
	if err != nil {
		// Fail closed: the store could not prove the attempt was safe.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"outcome": "STORE_UNAVAILABLE",
			"message": "service temporarily unavailable, please retry",
		})
	}

	body := echo.Map{
		"outcome": res.Outcome.String(),
		"message": res.Message,
	}
	switch res.Outcome {
	case seckill.OutcomeSuccess:
		body["order_ref"] = res.OrderRef
		body["remaining_stock"] = res.Remaining
		return c.JSON(http.StatusOK, body)
	case seckill.OutcomeRateLimited:
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusTooManyRequests, body)
	case seckill.OutcomeLockTimeout:
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, body)
	case seckill.OutcomeAlreadyParticipated:
		return c.JSON(http.StatusConflict, body)
	case seckill.OutcomeSoldOut:
		return c.JSON(http.StatusGone, body)
	case seckill.OutcomeNotEligible:
		return c.JSON(http.StatusUnprocessableEntity, body)
	default:
		return c.JSON(http.StatusInternalServerError, body)
	}
}

// RemainingStock handles GET /v1/activities/:id/stock.  Best-effort display
// value; 0 is returned when the store is unreachable.
func (h *SeckillHandler) RemainingStock(c echo.Context) error {
	activityID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"activity_id":     activityID,
		"remaining_stock": h.Engine.RemainingStock(c.Request().Context(), activityID),
	})
}

// Participation handles GET /v1/activities/:id/participation.  Advisory
// probe only; the authoritative duplicate check runs inside the attempt.
func (h *SeckillHandler) Participation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	activityID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"activity_id":  activityID,
		"participated": h.Engine.HasParticipated(c.Request().Context(), activityID, userID),
	})
}
