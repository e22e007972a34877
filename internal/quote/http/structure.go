package quotehttp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/quote/session"
)

type toggleResponse struct {
	IsExpanded bool `json:"isExpanded"`
	stateResponse
}

func (h *Handler) toggleSection(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	expanded, err := store.ToggleSection(r.Context(), chi.URLParam(r, "sectionID"))
	if err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toggleResponse{IsExpanded: expanded, stateResponse: state(id, store)})
}

type moveSectionRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

func (h *Handler) moveSection(w http.ResponseWriter, r *http.Request) {
	var req moveSectionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.MoveSection(ctx, sectionID, session.Direction(req.Direction))
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"max=200"`
}

func (h *Handler) renameSection(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.UpdateSectionName(ctx, sectionID, req.Name)
	})
}

type subsectionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (h *Handler) addSubsection(w http.ResponseWriter, r *http.Request) {
	var req subsectionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.AddCustomSubsection(ctx, sectionID, req.Name)
	})
}

type orderRequest struct {
	Order []string `json:"order" validate:"required,min=1"`
}

func (h *Handler) reorderSubsections(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.ReorderSubsections(ctx, sectionID, req.Order)
	})
}

type renameSubsectionRequest struct {
	Original string `json:"original" validate:"required"`
	Name     string `json:"name" validate:"max=200"`
}

func (h *Handler) renameSubsection(w http.ResponseWriter, r *http.Request) {
	var req renameSubsectionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.UpdateSubsectionName(ctx, sectionID, req.Original, req.Name)
	})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent won dead approved"`
	Note   string `json:"note" validate:"max=2000"`
	UserID string `json:"userId"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.UpdateQuoteStatus(ctx, quote.Status(req.Status), req.Note, req.UserID)
	})
}

type followUpRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) setFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetNextFollowUpDate(ctx, req.Date)
	})
}

type lostReasonRequest struct {
	Reason string `json:"reason" validate:"max=200"`
	Notes  string `json:"notes"`
}

func (h *Handler) setLostReason(w http.ResponseWriter, r *http.Request) {
	var req lostReasonRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetLostReason(ctx, req.Reason, req.Notes)
	})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) setNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetInternalNotes(ctx, req.Notes)
	})
}
