package rateshttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/rates"
)

// Handler exposes exchange rates and ad-hoc conversion.
type Handler struct {
	logger    *slog.Logger
	service   *rates.Service
	validator *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *rates.Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/rates", func(r chi.Router) {
		r.Get("/", h.current)
		r.Post("/refresh", h.refresh)
		r.Get("/convert", h.convert)
		r.Get("/currencies", h.currencies)
	})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Fetch(r.Context()))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Refresh(r.Context())
	if h.logger != nil {
		h.logger.Info("rates refreshed", slog.String("source", snap.Source))
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) currencies(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, currency.All())
}

type convertQuery struct {
	Amount string `json:"amount" validate:"required,numeric"`
	From   string `json:"from" validate:"required,len=3,alpha"`
	To     string `json:"to" validate:"required,len=3,alpha"`
}

type convertResponse struct {
	Amount    float64    `json:"amount"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Result    float64    `json:"result"`
	Formatted string     `json:"formatted"`
	Rate      float64    `json:"rate"`
	Source    string     `json:"source"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := convertQuery{
		Amount: strings.TrimSpace(q.Get("amount")),
		From:   strings.ToUpper(strings.TrimSpace(q.Get("from"))),
		To:     strings.ToUpper(strings.TrimSpace(q.Get("to"))),
	}
	if !httpx.Validate(w, h.validator, &query) {
		return
	}
	amount, err := strconv.ParseFloat(query.Amount, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: amount %q", httpx.ErrValidation, query.Amount))
		return
	}
	snap := h.service.Fetch(r.Context())
	result := currency.Convert(amount, query.From, query.To, snap.Rates)
	httpx.JSON(w, http.StatusOK, convertResponse{
		Amount:    amount,
		From:      query.From,
		To:        query.To,
		Result:    result,
		Formatted: currency.Format(result, query.To),
		Rate:      currency.Convert(1, query.From, query.To, snap.Rates),
		Source:    snap.Source,
		Timestamp: snap.Timestamp,
	})
}
