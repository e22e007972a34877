package quotehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/quote/session"
	"github.com/tellquote/tellquote/internal/quote/storage"
)

// Library is the saved-quote store behind the library routes.
type Library interface {
	Save(ctx context.Context, q *quote.Quote) (string, error)
	Get(ctx context.Context, id string) (*quote.Quote, error)
	List(ctx context.Context, status quote.Status) ([]storage.Entry, error)
	Delete(ctx context.Context, id string) error
}

// RateSource provides the table used for display-currency totals.
type RateSource interface {
	Current(ctx context.Context) currency.Rates
}

// SaveObserver is told about every persistence failure.
type SaveObserver interface {
	SaveFailed(kind string)
}

// Handler exposes quote editing sessions and the saved-quote library.
type Handler struct {
	logger    *slog.Logger
	sessions  *session.Registry
	library   Library
	rates     RateSource
	observer  SaveObserver
	validator *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, sessions *session.Registry, library Library, rates RateSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		library:   library,
		rates:     rates,
		validator: httpx.NewValidator(),
	}
}

// WithSaveObserver attaches a persistence failure observer.
func (h *Handler) WithSaveObserver(o SaveObserver) *Handler {
	h.observer = o
	return h
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Post("/", h.createSession)
			r.Route("/{sid}", func(r chi.Router) {
				r.Get("/", h.showSession)
				r.Delete("/", h.closeSession)
				r.Post("/reset", h.reset)
				r.Put("/document", h.loadDocument)
				r.Post("/open/{quoteID}", h.openFromLibrary)
				r.Post("/save", h.saveToLibrary)

				r.Post("/items", h.addItem)
				r.Patch("/items/{itemID}", h.updateItem)
				r.Delete("/items/{itemID}", h.deleteItem)
				r.Post("/items/{itemID}/move", h.moveItem)

				r.Put("/region", h.setRegion)
				r.Put("/currency", h.setCurrency)
				r.Patch("/fees", h.setFees)
				r.Patch("/header", h.setHeader)
				r.Patch("/client", h.setClient)
				r.Patch("/project", h.setProject)

				r.Post("/sections/{sectionID}/toggle", h.toggleSection)
				r.Post("/sections/{sectionID}/move", h.moveSection)
				r.Put("/sections/{sectionID}/name", h.renameSection)
				r.Post("/sections/{sectionID}/subsections", h.addSubsection)
				r.Put("/sections/{sectionID}/subsections/order", h.reorderSubsections)
				r.Put("/sections/{sectionID}/subsections/name", h.renameSubsection)

				r.Put("/status", h.setStatus)
				r.Put("/follow-up", h.setFollowUp)
				r.Put("/lost-reason", h.setLostReason)
				r.Put("/notes", h.setNotes)

				r.Get("/totals", h.totals)
				r.Get("/export.xlsx", h.exportSession)
			})
		})
		r.Route("/library", func(r chi.Router) {
			r.Get("/", h.listLibrary)
			r.Get("/{quoteID}", h.showLibrary)
			r.Delete("/{quoteID}", h.deleteLibrary)
			r.Get("/{quoteID}/export.xlsx", h.exportLibrary)
		})
	})
}

type stateResponse struct {
	Session          string          `json:"session"`
	Version          uint64          `json:"version"`
	Quote            *quote.Quote    `json:"quote"`
	NumberWellFormed bool            `json:"numberWellFormed"`
	Summary          session.Summary `json:"summary"`
}

func state(id string, store *session.Store) stateResponse {
	summary := store.Summary()
	q := store.Snapshot()
	return stateResponse{
		Session:          id,
		Version:          summary.Version,
		Quote:            q,
		NumberWellFormed: quote.WellFormedNumber(q.QuoteNumber),
		Summary:          summary,
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string][]string{"sessions": h.sessions.IDs()})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	id, store, err := h.sessions.Create(r.Context())
	if err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, state(id, store))
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, state(id, store))
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sid")); err != nil {
		h.fail(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.Reset(ctx)
	})
}

func (h *Handler) loadDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes))
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.Load(ctx, raw)
	})
}

func (h *Handler) openFromLibrary(w http.ResponseWriter, r *http.Request) {
	q, err := h.library.Get(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		h.fail(w, "open library quote", err)
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		h.fail(w, "encode library quote", err)
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.Load(ctx, raw)
	})
}

func (h *Handler) saveToLibrary(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	libraryID, err := h.library.Save(r.Context(), store.Snapshot())
	if err != nil {
		h.fail(w, "save quote to library", err)
		return
	}
	if err := store.SetID(r.Context(), libraryID); err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusOK, state(id, store))
}

func (h *Handler) listLibrary(w http.ResponseWriter, r *http.Request) {
	status := quote.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httpx.RespondError(w, quote.ErrInvalidStatus)
		return
	}
	entries, err := h.library.List(r.Context(), status)
	if err != nil {
		h.fail(w, "list library", err)
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) showLibrary(w http.ResponseWriter, r *http.Request) {
	q, err := h.library.Get(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		h.fail(w, "get library quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) deleteLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.library.Delete(r.Context(), chi.URLParam(r, "quoteID")); err != nil {
		h.fail(w, "delete library quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// open resolves the {sid} session, writing the error response on failure.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (string, *session.Store, bool) {
	id := chi.URLParam(r, "sid")
	store, err := h.sessions.Open(r.Context(), id)
	if err != nil {
		h.fail(w, "open session", err)
		return id, nil, false
	}
	return id, store, true
}

// apply runs fn against the {sid} session and answers with the new state.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, store *session.Store) error) {
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), store); err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusOK, state(id, store))
}

type saveProblem struct {
	httpx.ProblemDetail
	Kind  quote.SaveKind `json:"kind"`
	State stateResponse  `json:"state"`
}

// failMutation reports err. A persistence failure still carries the
// in-memory result, which the store keeps.
func (h *Handler) failMutation(w http.ResponseWriter, id string, store *session.Store, err error) {
	kind, ok := quote.SaveErrorKind(err)
	if !ok || store == nil {
		h.fail(w, "quote mutation", err)
		return
	}
	if h.observer != nil {
		h.observer.SaveFailed(string(kind))
	}
	status, title := httpx.StatusFor(err)
	h.logger.Warn("quote not persisted", slog.String("session", id), slog.String("kind", string(kind)), slog.Any("error", err))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(saveProblem{
		ProblemDetail: httpx.ProblemDetail{Title: title, Status: status, Detail: "the change was applied but could not be saved"},
		Kind:          kind,
		State:         state(id, store),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
