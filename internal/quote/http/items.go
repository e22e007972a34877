package quotehttp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/quote/session"
)

type location struct {
	Section    string `json:"section" validate:"required"`
	Subsection string `json:"subsection" validate:"required"`
}

type addItemRequest struct {
	location
	Item struct {
		ID             string  `json:"id"`
		Name           string  `json:"name" validate:"required,max=200"`
		Description    string  `json:"description" validate:"max=2000"`
		Quantity       float64 `json:"quantity" validate:"gte=0"`
		Days           float64 `json:"days" validate:"gte=0"`
		Cost           float64 `json:"cost" validate:"gte=0"`
		Charge         float64 `json:"charge" validate:"gte=0"`
		Unit           string  `json:"unit" validate:"max=20"`
		RateCardItemID string  `json:"rateCardItemId"`
		IsPercentage   bool    `json:"isPercentage"`
		PercentValue   float64 `json:"percentValue" validate:"gte=0,lte=100"`
	} `json:"item"`
}

type updateItemRequest struct {
	location
	Changes session.ItemPatch `json:"changes"`
}

type moveItemRequest struct {
	From location `json:"from"`
	To   location `json:"to"`
}

type itemResponse struct {
	Item quote.LineItem `json:"item"`
	stateResponse
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	added, err := store.AddLineItem(r.Context(), req.Section, req.Subsection, quote.LineItem{
		ID:             req.Item.ID,
		Name:           req.Item.Name,
		Description:    req.Item.Description,
		Quantity:       req.Item.Quantity,
		Days:           req.Item.Days,
		Cost:           req.Item.Cost,
		Charge:         req.Item.Charge,
		Unit:           req.Item.Unit,
		RateCardItemID: req.Item.RateCardItemID,
		IsPercentage:   req.Item.IsPercentage,
		PercentValue:   req.Item.PercentValue,
	})
	if err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, itemResponse{Item: added, stateResponse: state(id, store)})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	id, store, ok := h.open(w, r)
	if !ok {
		return
	}
	updated, err := store.UpdateLineItem(r.Context(), req.Section, req.Subsection, chi.URLParam(r, "itemID"), req.Changes)
	if err != nil {
		h.failMutation(w, id, store, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Item: updated, stateResponse: state(id, store)})
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	loc := location{Section: r.URL.Query().Get("section"), Subsection: r.URL.Query().Get("subsection")}
	if !httpx.Validate(w, h.validator, &loc) {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.DeleteLineItem(ctx, loc.Section, loc.Subsection, itemID)
	})
}

func (h *Handler) moveItem(w http.ResponseWriter, r *http.Request) {
	var req moveItemRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.MoveLineItem(ctx, req.From.Section, req.From.Subsection, itemID, req.To.Section, req.To.Subsection)
	})
}

type regionRequest struct {
	Region string `json:"region" validate:"required"`
}

func (h *Handler) setRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetRegion(ctx, req.Region)
	})
}

type currencyRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
}

func (h *Handler) setCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetCurrency(ctx, req.Currency)
	})
}

func (h *Handler) setFees(w http.ResponseWriter, r *http.Request) {
	var req session.FeesPatch
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		_, err := store.SetFees(ctx, req)
		return err
	})
}

type headerRequest struct {
	QuoteNumber  *string `json:"quoteNumber" validate:"omitempty,max=50"`
	QuoteDate    *string `json:"quoteDate" validate:"omitempty,datetime=2006-01-02"`
	ValidityDays *int    `json:"validityDays" validate:"omitempty,gt=0"`
	PreparedBy   *string `json:"preparedBy" validate:"omitempty,max=200"`
}

func (h *Handler) setHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		if req.QuoteNumber != nil {
			if err := store.SetQuoteNumber(ctx, *req.QuoteNumber); err != nil {
				return err
			}
		}
		if req.QuoteDate != nil {
			if err := store.SetQuoteDate(ctx, *req.QuoteDate); err != nil {
				return err
			}
		}
		if req.ValidityDays != nil {
			if err := store.SetValidityDays(ctx, *req.ValidityDays); err != nil {
				return err
			}
		}
		if req.PreparedBy != nil {
			return store.SetPreparedBy(ctx, *req.PreparedBy)
		}
		return nil
	})
}

func (h *Handler) setClient(w http.ResponseWriter, r *http.Request) {
	var req session.ClientPatch
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetClientDetails(ctx, req)
	})
}

func (h *Handler) setProject(w http.ResponseWriter, r *http.Request) {
	var req session.ProjectPatch
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, store *session.Store) error {
		return store.SetProjectDetails(ctx, req)
	})
}
