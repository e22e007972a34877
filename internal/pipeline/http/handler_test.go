package pipelinehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/pipeline"
	"github.com/tellquote/tellquote/internal/quote"
)

type library []*quote.Quote

func (l library) All(context.Context) ([]*quote.Quote, error) { return l, nil }

type fallback struct{}

func (fallback) Current(context.Context) currency.Rates { return currency.FallbackRates() }

func newRouter() http.Handler {
	created := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	q := quote.New(created, quote.Defaults{})
	q.Status = quote.StatusSent
	q.Sections[quote.SectionCreative].Subsections["Services"] = []quote.LineItem{
		{ID: "x", Name: "Design", Quantity: 2, Days: 1, Cost: 50, Charge: 100},
	}
	r := chi.NewRouter()
	NewHandler(nil, pipeline.NewService(library{q}, fallback{}, "USD")).MountRoutes(r)
	return r
}

func TestDashboard(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipeline?year=2025&month=3&currency=gbp", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var board pipeline.Dashboard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	assert.Equal(t, "GBP", board.Currency)
	assert.Equal(t, 3, board.Month)
	assert.Equal(t, 1, board.Pipeline.Count)
	assert.InDelta(t, 158, board.Pipeline.Revenue, 1e-9)
}

func TestDashboardAllMonths(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipeline?year=2025&month=all", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var board pipeline.Dashboard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	assert.Equal(t, 0, board.Month)
	assert.Equal(t, "USD", board.Currency)
	assert.InDelta(t, 200, board.Pipeline.Revenue, 1e-9)
}

func TestDashboardValidation(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipeline?month=13&year=25", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"month"`)
	assert.Contains(t, rr.Body.String(), `"year"`)
}
