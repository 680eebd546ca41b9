package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTLatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"43123.45000000"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL+"/", time.Second)
	tick, err := c.LatestPrice(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 43123.45, tick.Price)
	assert.False(t, tick.Timestamp.IsZero())
}

func TestRESTLatestPriceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BADUSDT" {
			_, _ = w.Write([]byte(`{"symbol":"BADUSDT","price":"0"}`))
			return
		}
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, time.Second)
	_, err := c.LatestPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	_, err = c.LatestPrice(context.Background(), "BADUSDT")
	assert.Error(t, err)
}

func TestRESTKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"1.0","2.0","0.5","1.5","100",1700000059999,"150",10,"50","75","0"],
			[1700000060000,"1.5","2.5","1.0","2.0","80",1700000119999,"160",12,"40","60","0"],
			["broken"]
		]`))
	}))
	defer srv.Close()

	bars, err := NewRESTClient(srv.URL, time.Second).Klines(context.Background(), "btcusdt", "1m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, 1.0, bars[0].Open)
	assert.Equal(t, 2.0, bars[0].High)
	assert.Equal(t, 0.5, bars[0].Low)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, 100.0, bars[0].Volume)
	assert.Equal(t, time.UnixMilli(1700000060000).UTC(), bars[1].OpenTime)
	assert.Equal(t, 2.0, bars[1].Close)
}
