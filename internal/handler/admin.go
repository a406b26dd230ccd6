package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/queue"
	"github.com/omegabingo/card-reservation/internal/repository"
	"github.com/omegabingo/card-reservation/internal/resolver"
	queue_publisher "github.com/omegabingo/card-reservation/internal/service"
)

// AdminHandler bundles the confirmation workflow and the reporting
// endpoints behind the admin JWT.
type AdminHandler struct {
	Resolver     *resolver.Resolver
	Reservations *repository.ReservationRepo
	Sales        *repository.SaleRepo
	Config       *repository.ConfigRepo
	CardPrice    int
	AMQPURL      string // empty disables sale.confirmed events
}

func NewAdminHandler(rs *resolver.Resolver, res *repository.ReservationRepo, sales *repository.SaleRepo, cfgRepo *repository.ConfigRepo, cardPrice int, amqpURL string) *AdminHandler {
	return &AdminHandler{Resolver: rs, Reservations: res, Sales: sales, Config: cfgRepo, CardPrice: cardPrice, AMQPURL: amqpURL}
}

// Pending lists pending reservations, newest first.
func (h *AdminHandler) Pending(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Reservations.ListPending(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list pending failed"})
	}
	if items == nil {
		items = []repository.PendingItem{}
	}
	return c.JSON(http.StatusOK, echo.Map{"pending": items})
}

// ListSales lists confirmed sales, newest first. ?limit=N caps the
// result (default 100).
func (h *AdminHandler) ListSales(c echo.Context) error {
	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Sales.ListSales(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list sales failed"})
	}
	if items == nil {
		items = []repository.SaleItem{}
	}
	return c.JSON(http.StatusOK, echo.Map{"sales": items})
}

// Stats returns aggregate sale counters for the admin dashboard.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Sales.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stats failed"})
	}
	return c.JSON(http.StatusOK, stats)
}

// Confirm approves a pending reservation. Cards taken elsewhere since
// submission are reported back as conflicts; the rest become one
// confirmed sale. When every card conflicts, the reservation is
// removed without a sale and 409 is returned.
func (h *AdminHandler) Confirm(c echo.Context) error {
	id := c.Param("id")
	adminEmail, _ := c.Get("admin_email").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	item, err := h.Reservations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation no longer exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirm failed"})
	}

	res, err := h.Resolver.Confirm(ctx, id, adminEmail)
	switch {
	case errors.Is(err, resolver.ErrReservationGone):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation no longer exists"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirm failed"})
	}

	if res.SaleID != "" && h.AMQPURL != "" {
		event := queue.SaleConfirmedEvent{
			SaleID:        res.SaleID,
			ReservationID: id,
			Cards:         res.Sold,
			Conflicts:     res.Conflicts,
			Name:          item.Name,
			Phone:         item.Phone,
			TotalAmount:   len(res.Sold) * h.CardPrice,
			ConfirmedBy:   adminEmail,
			ConfirmedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := queue_publisher.PublishSaleConfirmed(ctx, h.AMQPURL, event); err != nil {
			// The sale is committed either way; the event is advisory.
			log.Printf("admin: publish sale.confirmed failed: %v", err)
		}
	}

	if res.SaleID == "" {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "all cards conflicted; reservation removed",
			"conflicts": res.Conflicts,
		})
	}
	if res.Conflicts == nil {
		res.Conflicts = []int{}
	}
	return c.JSON(http.StatusOK, res)
}

// Reject removes a pending reservation, releasing its cards.
func (h *AdminHandler) Reject(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Resolver.Reject(ctx, c.Param("id"))
	switch {
	case errors.Is(err, resolver.ErrReservationGone):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation no longer exists"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reject failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSale removes a confirmed sale, releasing its cards.
func (h *AdminHandler) DeleteSale(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Resolver.DeleteSale(ctx, c.Param("id"))
	switch {
	case errors.Is(err, resolver.ErrReservationGone):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sale no longer exists"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete sale failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

type storeToggleReq struct {
	Open bool `json:"open"`
}

// ToggleStore opens or closes the shop for new selections.
func (h *AdminHandler) ToggleStore(c echo.Context) error {
	var req storeToggleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	adminEmail, _ := c.Get("admin_email").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Config.SetOpen(ctx, req.Open, adminEmail); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store toggle failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"isStoreOpen": req.Open})
}
