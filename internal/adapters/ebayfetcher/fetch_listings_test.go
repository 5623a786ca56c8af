package ebayfetcher

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
<ul class="srp-results">
  <li id="item1">
    <a class="s-item__link" href="https://www.ebay.com/itm/1"><span class="s-item__title">Trek  Marlin 5</span></a>
    <span class="s-item__price">$1,250.00</span>
    <img src="https://i.ebayimg.com/1.jpg">
  </li>
  <li id="item2">
    <span class="s-item__title">Bike pump</span>
    <span class="s-item__price">Free shipping</span>
    <img data-src="https://i.ebayimg.com/2.jpg">
  </li>
  <li id="ad"><span class="s-item__price">$5.00</span></li>
  <li>no id, ignored<span class="s-item__title">Nope</span></li>
</ul>
<ul class="srp-results"><li id="other"><span class="s-item__title">Second list</span></li></ul>
</body></html>`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *EbayFetcherAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewEbayFetcherAdapter(Config{SearchURL: srv.URL + "/sch/i.html"})
	require.NoError(t, err)
	return a
}

func TestSearch_ParsesFirstResultList(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trek bike", r.URL.Query().Get("_nkw"))
		fmt.Fprint(w, searchPage)
	})

	listings, err := a.Search(context.Background(), "trek bike")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "Trek Marlin 5", listings[0].Name)
	require.NotNil(t, listings[0].Price)
	assert.Equal(t, 1250.0, *listings[0].Price)
	require.NotNil(t, listings[0].URL)
	assert.Equal(t, "https://www.ebay.com/itm/1", *listings[0].URL)
	assert.Equal(t, []string{"https://i.ebayimg.com/1.jpg"}, listings[0].ImageURLs)

	assert.Equal(t, "Bike pump", listings[1].Name)
	assert.Nil(t, listings[1].Price)
	assert.Nil(t, listings[1].URL)
	assert.Equal(t, []string{"https://i.ebayimg.com/2.jpg"}, listings[1].ImageURLs)
}

func TestSearch_NoResultsIsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>No exact matches</p></body></html>")
	})

	listings, err := a.Search(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestSearch_StatusBecomesFetchError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := a.Search(context.Background(), "bike")
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.Equal(t, "unexpected status code 403", fe.Error())
}
