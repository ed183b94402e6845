package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flash-sale-service/internal/model"
	"github.com/iliyamo/flash-sale-service/internal/repository"
	"github.com/iliyamo/flash-sale-service/internal/seckill"
)

// ActivityHandler exposes admin management of flash-sale activities:
// creating definitions in MySQL and loading their stock into the counter
// store before the sale opens.
type ActivityHandler struct {
	Activities *repository.ActivityRepo
	Engine     *seckill.Engine
}

// NewActivityHandler constructs an ActivityHandler.  Both dependencies must
// be non-nil.
func NewActivityHandler(activities *repository.ActivityRepo, engine *seckill.Engine) *ActivityHandler {
	if activities == nil || engine == nil {
		panic("nil dependency passed to NewActivityHandler")
	}
	return &ActivityHandler{Activities: activities, Engine: engine}
}

type createActivityReq struct {
	ProductID uint64    `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int64     `json:"stock"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

type activityResp struct {
	ID        uint64    `json:"id"`
	ProductID uint64    `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int64     `json:"stock"`
	Sold      int64     `json:"sold"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
}

func toActivityResp(a model.Activity) activityResp {
	return activityResp{
		ID:        a.ID,
		ProductID: a.ProductID,
		Name:      a.Name,
		Stock:     a.Stock,
		Sold:      a.Sold,
		StartsAt:  a.StartsAt,
		EndsAt:    a.EndsAt,
		Status:    a.Status,
	}
}

// Create handles POST /v1/activities (ADMIN).  It validates the time window
// and stock, then inserts the definition.  Stock is not loaded into the
// counter store here; that is a separate, explicit step so operators control
// when the sale becomes winnable.
func (h *ActivityHandler) Create(c echo.Context) error {
	var req createActivityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ProductID == 0 || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "product_id and name are required"})
	}
	if req.Stock <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "stock must be positive"})
	}
	if !req.EndsAt.After(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}

	id, err := h.Activities.Create(c.Request().Context(), model.Activity{
		ProductID: req.ProductID,
		Name:      req.Name,
		Stock:     req.Stock,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Status:    model.ActivityNotStarted,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	act, err := h.Activities.GetByID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, toActivityResp(act))
}

// List handles GET /v1/activities (ADMIN).
func (h *ActivityHandler) List(c echo.Context) error {
	acts, err := h.Activities.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]activityResp, 0, len(acts))
	for _, a := range acts {
		out = append(out, toActivityResp(a))
	}
	return c.JSON(http.StatusOK, out)
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /v1/activities/:id/status (ADMIN).
func (h *ActivityHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	var req updateStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	switch req.Status {
	case model.ActivityNotStarted, model.ActivityActive, model.ActivityEnded, model.ActivityCancelled:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	if err := h.Activities.UpdateStatus(c.Request().Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// InitStock handles POST /v1/activities/:id/stock (ADMIN).  It loads the
// activity's stock into the counter store.  Store unavailability is a hard
// 503 — an activity must never open with unknown stock state.
func (h *ActivityHandler) InitStock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	act, err := h.Activities.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := h.Engine.InitStock(c.Request().Context(), act.ID, act.Stock); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "counter store unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"activity_id": act.ID,
		"stock":       act.Stock,
	})
}
