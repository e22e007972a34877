package ratecardhttp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/ratecard"
)

const maxImportBytes = 8 << 20

// Handler exposes the rate card JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *ratecard.Service
	validator *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *ratecard.Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ratecard", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/sections", h.sections)
		r.Get("/export", h.export)
		r.Get("/template.csv", h.template)
		r.Post("/import", h.importItems)
		r.Get("/{id}", h.show)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/duplicate", h.duplicate)
		r.Put("/{id}/pricing/{region}", h.updatePricing)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		items []ratecard.Item
		err   error
	)
	switch {
	case r.URL.Query().Get("q") != "":
		items, err = h.service.Search(r.Context(), r.URL.Query().Get("q"))
	case r.URL.Query().Get("section") != "":
		items, err = h.service.BySection(r.Context(), r.URL.Query().Get("section"))
	default:
		items, err = h.service.List(r.Context())
	}
	if err != nil {
		h.fail(w, "list rate card", err)
		return
	}
	if items == nil {
		items = []ratecard.Item{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) sections(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, ratecard.DefaultSections())
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get rate card item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in ratecard.AddInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	item, err := h.service.Add(r.Context(), in)
	if err != nil {
		h.fail(w, "add rate card item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var patch ratecard.ItemPatch
	if !httpx.Bind(w, r, h.validator, &patch) {
		return
	}
	item, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, "update rate card item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updatePricing(w http.ResponseWriter, r *http.Request) {
	var patch ratecard.PricePatch
	if !httpx.Bind(w, r, h.validator, &patch) {
		return
	}
	region := strings.ToUpper(chi.URLParam(r, "region"))
	item, err := h.service.UpdatePricing(r.Context(), chi.URLParam(r, "id"), region, patch)
	if err != nil {
		h.fail(w, "update rate card pricing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete rate card item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "duplicate rate card item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) importItems(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Import Too Large", err.Error())
		return
	}
	importer := h.service.ImportCSV
	if isJSON(r.Header.Get("Content-Type"), body) {
		importer = h.service.ImportJSON
	}
	result, err := importer(r.Context(), bytes.NewReader(body))
	if err != nil {
		h.fail(w, "import rate card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var (
		contentType string
		filename    string
		write       func(context.Context, io.Writer) error
	)
	switch r.URL.Query().Get("format") {
	case "json":
		contentType, filename, write = "application/json", "rate-card.json", h.service.ExportJSON
	case "xlsx":
		contentType, filename, write = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "rate-card.xlsx", h.service.ExportXLSX
	default:
		contentType, filename, write = "text/csv", "rate-card.csv", h.service.ExportCSV
	}
	var buf bytes.Buffer
	if err := write(r.Context(), &buf); err != nil {
		h.fail(w, "export rate card", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) template(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=rate-card-template.csv")
	if err := ratecard.WriteTemplate(w); err != nil && h.logger != nil {
		h.logger.Error("write rate card template", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isJSON(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType == "application/json"
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}
