package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/livecache"
	"github.com/omegabingo/card-reservation/internal/middleware"
	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/repository"
	"github.com/omegabingo/card-reservation/internal/session"
)

// PublicHandler serves the unauthenticated storefront: the card grid,
// single-card detail and the phone lookup visitors use to check on
// their own orders.
type PublicHandler struct {
	Cache        *livecache.Cache
	Sessions     *session.Manager
	Config       *repository.ConfigRepo
	Reservations *repository.ReservationRepo
	Sales        *repository.SaleRepo

	rev atomic.Uint64
}

func NewPublicHandler(cache *livecache.Cache, sm *session.Manager, cfgRepo *repository.ConfigRepo, res *repository.ReservationRepo, sales *repository.SaleRepo) *PublicHandler {
	h := &PublicHandler{Cache: cache, Sessions: sm, Config: cfgRepo, Reservations: res, Sales: sales}
	// Every applied batch bumps the grid revision, so polling clients
	// can cheaply skip re-rendering an unchanged grid.
	cache.OnUpdate(func() { h.rev.Add(1) })
	return h
}

// Revision returns the current grid revision. It advances whenever the
// live cache applies a change batch.
func (h *PublicHandler) Revision() uint64 { return h.rev.Load() }

type cardView struct {
	Number   int    `json:"number"`
	Status   string `json:"status"`
	Selected bool   `json:"selected,omitempty"`
}

type gridResp struct {
	Cards          []cardView `json:"cards"`
	Total          int        `json:"total"`
	SoldCount      int        `json:"soldCount"`
	AvailableCount int        `json:"availableCount"`
	IsStoreOpen    bool       `json:"isStoreOpen"`
	Revision       uint64     `json:"revision"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

// GetCards returns the full grid with the caller's own selection
// overlaid. Selected cards still read as available to everyone else;
// only a submitted reservation blocks other visitors.
func (h *PublicHandler) GetCards(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	selected := map[int]bool{}
	var deadline *time.Time
	if key := middleware.SessionKey(c); key != "" {
		st, _, err := h.Sessions.Load(ctx, key)
		if err == nil {
			for _, card := range st.Cards {
				selected[card] = true
			}
			if st.StartedAt != nil {
				d := st.Deadline(h.Sessions.Window())
				deadline = &d
			}
		}
	}

	total := h.Cache.Total()
	cards := make([]cardView, 0, total)
	for n := 1; n <= total; n++ {
		cards = append(cards, cardView{
			Number:   n,
			Status:   string(h.Cache.Status(n)),
			Selected: selected[n],
		})
	}
	return c.JSON(http.StatusOK, gridResp{
		Cards:          cards,
		Total:          total,
		SoldCount:      h.Cache.SoldCount(),
		AvailableCount: h.Cache.AvailableCount(),
		IsStoreOpen:    h.Config.IsOpen(),
		Revision:       h.rev.Load(),
		Deadline:       deadline,
	})
}

// GetCard returns the live status of one card.
func (h *PublicHandler) GetCard(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || !model.CardInRange(n, h.Cache.Total()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid card number"})
	}
	return c.JSON(http.StatusOK, cardView{Number: n, Status: string(h.Cache.Status(n))})
}

type lookupResp struct {
	Pending []repository.PendingItem `json:"pending"`
	Sales   []repository.SaleItem    `json:"sales"`
}

// LookupPhone finds a visitor's pending reservations and confirmed
// sales by phone number so they can check the state of an order
// without an account.
func (h *PublicHandler) LookupPhone(c echo.Context) error {
	phone := digitsOnly(c.Param("phone"))
	if len(phone) < 10 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone number must have at least 10 digits"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pending, err := h.Reservations.ByPhone(ctx, phone)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	sales, err := h.Sales.ByPhone(ctx, phone)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if pending == nil {
		pending = []repository.PendingItem{}
	}
	if sales == nil {
		sales = []repository.SaleItem{}
	}
	return c.JSON(http.StatusOK, lookupResp{Pending: pending, Sales: sales})
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
