package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/middleware"
	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/repository"
	"github.com/omegabingo/card-reservation/internal/session"
	"github.com/omegabingo/card-reservation/internal/upload"
)

// SelectionHandler exposes the visitor's selection session: picking
// cards, starting the payment countdown and submitting the reservation
// with a payment proof.
type SelectionHandler struct {
	Sessions *session.Manager
	Config   *repository.ConfigRepo
	Uploader upload.Uploader // nil when no upload endpoint is configured
}

func NewSelectionHandler(sm *session.Manager, cfgRepo *repository.ConfigRepo, up upload.Uploader) *SelectionHandler {
	return &SelectionHandler{Sessions: sm, Config: cfgRepo, Uploader: up}
}

type toggleReq struct {
	Card int `json:"card"`
}

type selectionResp struct {
	Cards       []int      `json:"cards"`
	TotalAmount int        `json:"totalAmount"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Expired     bool       `json:"expired,omitempty"`
}

func (h *SelectionHandler) view(st session.State, expired bool) selectionResp {
	resp := selectionResp{
		Cards:       st.Cards,
		TotalAmount: len(st.Cards) * h.Sessions.CardPrice(),
		Expired:     expired,
	}
	if st.Cards == nil {
		resp.Cards = []int{}
	}
	if st.StartedAt != nil {
		d := st.Deadline(h.Sessions.Window())
		resp.Deadline = &d
	}
	return resp
}

// Get returns the caller's current selection, reporting expiry when the
// payment window has run out since the last request.
func (h *SelectionHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, expired, err := h.Sessions.Load(ctx, middleware.SessionKey(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	return c.JSON(http.StatusOK, h.view(st, expired))
}

// Toggle adds or removes one card from the selection.
func (h *SelectionHandler) Toggle(c echo.Context) error {
	if !h.Config.IsOpen() {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store is closed"})
	}
	var req toggleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, err := h.Sessions.Toggle(ctx, middleware.SessionKey(c), req.Card)
	switch {
	case errors.Is(err, session.ErrCardOutOfRange):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "card number out of range"})
	case errors.Is(err, session.ErrCardUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "card is not available"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "toggle failed"})
	}
	return c.JSON(http.StatusOK, h.view(st, false))
}

// Checkout starts (or resumes) the payment countdown for the current
// selection and returns the deadline.
func (h *SelectionHandler) Checkout(c echo.Context) error {
	if !h.Config.IsOpen() {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store is closed"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, deadline, err := h.Sessions.StartCountdown(ctx, middleware.SessionKey(c))
	switch {
	case errors.Is(err, session.ErrEmptySelection):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no cards selected"})
	case errors.Is(err, session.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "payment window expired"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}
	resp := h.view(st, false)
	resp.Deadline = &deadline
	return c.JSON(http.StatusOK, resp)
}

type revalidateResp struct {
	Kept    []int `json:"kept"`
	Evicted []int `json:"evicted"`
}

// Revalidate re-checks every selected card against the live grid and
// drops the ones meanwhile taken by someone else.
func (h *SelectionHandler) Revalidate(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	kept, evicted, err := h.Sessions.Revalidate(ctx, middleware.SessionKey(c))
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "payment window expired"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revalidate failed"})
	}
	if kept == nil {
		kept = []int{}
	}
	if evicted == nil {
		evicted = []int{}
	}
	return c.JSON(http.StatusOK, revalidateResp{Kept: kept, Evicted: evicted})
}

type submitResp struct {
	ReservationID string `json:"reservationId"`
	Cards         []int  `json:"cards"`
	Evicted       []int  `json:"evicted"`
	TotalAmount   int    `json:"totalAmount"`
}

// Submit accepts a multipart form with the contact fields and the
// payment proof, uploads the proof and writes the pending reservation.
// The form fields are name, phone, reference and either a "proof" file
// or a pre-uploaded "proofUrl".
func (h *SelectionHandler) Submit(c echo.Context) error {
	if !h.Config.IsOpen() {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store is closed"})
	}

	contact := model.Contact{
		Name:      c.FormValue("name"),
		Phone:     c.FormValue("phone"),
		Reference: c.FormValue("reference"),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	proofURL := strings.TrimSpace(c.FormValue("proofUrl"))
	if file, err := c.FormFile("proof"); err == nil {
		// Never silently drop an attached proof.
		if h.Uploader == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "proof uploads are not configured"})
		}
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable proof file"})
		}
		defer src.Close()
		proofURL, err = h.Uploader.Upload(ctx, file.Filename, src)
		if err != nil {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "proof upload failed"})
		}
	}

	res, err := h.Sessions.Submit(ctx, middleware.SessionKey(c), contact, proofURL)
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, session.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "payment window expired"})
	case errors.Is(err, session.ErrEmptySelection):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no cards selected"})
	case errors.Is(err, session.ErrAllConflicted):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   "all selected cards are no longer available",
			"evicted": res.Evicted,
		})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submit failed"})
	}

	if res.Evicted == nil {
		res.Evicted = []int{}
	}
	return c.JSON(http.StatusCreated, submitResp{
		ReservationID: res.ReservationID,
		Cards:         res.Cards,
		Evicted:       res.Evicted,
		TotalAmount:   res.TotalAmount,
	})
}

// Clear drops the caller's selection session.
func (h *SelectionHandler) Clear(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Clear(ctx, middleware.SessionKey(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
