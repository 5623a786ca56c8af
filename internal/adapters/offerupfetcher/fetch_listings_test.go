package offerupfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<ul><li>navigation, not a listing</li></ul>
<h2>Current listings</h2>
<div>
  <ul>
    <li>
      <a href="/item/detail/111"><img src="https://images.offerup.com/111.jpg">
      <span class="MuiTypography-subtitle1">Schwinn  cruiser</span>
      <span>$1,200</span></a>
    </li>
    <li><span>sponsored</span></li>
    <li>
      <a href="/item/detail/222"><span class="MuiTypography-subtitle1">Helmet</span><span>Free</span></a>
    </li>
  </ul>
</div>
<ul><li><span class="MuiTypography-subtitle1">Not in current listings</span></li></ul>
</body></html>`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *OfferUpFetcherAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewOfferUpFetcherAdapter(Config{SearchURL: srv.URL + "/search"})
	require.NoError(t, err)
	return a
}

func TestSearch_ParsesCurrentListings(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bike", r.URL.Query().Get("q"))
		fmt.Fprint(w, searchPage)
	})

	listings, err := a.Search(context.Background(), "bike")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "Schwinn cruiser", listings[0].Name)
	require.NotNil(t, listings[0].Price)
	assert.Equal(t, 1200.0, *listings[0].Price)
	require.NotNil(t, listings[0].URL)
	assert.Equal(t, "https://offerup.com/item/detail/111", *listings[0].URL)
	assert.Equal(t, []string{"https://images.offerup.com/111.jpg"}, listings[0].ImageURLs)

	assert.Equal(t, "Helmet", listings[1].Name)
	assert.Nil(t, listings[1].Price)
	assert.Empty(t, listings[1].ImageURLs)
}

func TestSearch_MissingHeadingIsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul><li><span class="MuiTypography-subtitle1">x</span></li></ul></body></html>`)
	})

	listings, err := a.Search(context.Background(), "bike")
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestSearch_StatusBecomesFetchError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := a.Search(context.Background(), "bike")
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, domain.SourceOfferUp, fe.Source)
}
