package coins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{"btc", "ETH/USDT", " ", "BTCUSDT", "sol"}, "")
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{"btc"}, "USDC")
	got, err := p.List(context.Background())
	if err != nil || len(got) != 1 || got[0] != "BTCUSDC" {
		t.Fatalf("unexpected list %v %v", got, err)
	}
	if _, err := NewStaticProvider(nil, "").List(context.Background()); err == nil {
		t.Fatalf("empty static list should error")
	}
}

func TestHTTPProviderFormatsAndCache(t *testing.T) {
	bodies := []string{
		`["btc","eth"]`,
		`{"symbols":["SOL"]}`,
		`{"success":true,"items":[{"symbol":"doge"},{"symbol":"xrp"}]}`,
	}
	for _, body := range bodies {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = w.Write([]byte(body))
		}))
		p := NewHTTPProvider(HTTPConfig{URL: srv.URL, Refresh: time.Hour})
		first, err := p.List(context.Background())
		if err != nil || len(first) == 0 {
			srv.Close()
			t.Fatalf("list %s: %v %v", body, first, err)
		}
		if _, err := p.List(context.Background()); err != nil {
			srv.Close()
			t.Fatalf("cached list: %v", err)
		}
		if hits.Load() != 1 {
			srv.Close()
			t.Fatalf("expected one fetch while cache is fresh, got %d", hits.Load())
		}
		srv.Close()
	}
}

func TestHTTPProviderKeepsLastGoodList(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`["btc"]`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{URL: srv.URL, Refresh: time.Nanosecond})
	if _, err := p.List(context.Background()); err != nil {
		t.Fatalf("first list: %v", err)
	}
	fail.Store(true)
	got, err := p.List(context.Background())
	if err != nil || len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected cached list after failure, got %v %v", got, err)
	}
	if p.LastError() == nil {
		t.Fatalf("failure should be recorded")
	}

	fresh := NewHTTPProvider(HTTPConfig{URL: srv.URL})
	if _, err := fresh.List(context.Background()); err == nil {
		t.Fatalf("first fetch failure without cache should error")
	}
}

func TestHTTPProviderRejectsUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"items":[]}`))
	}))
	defer srv.Close()
	if _, err := NewHTTPProvider(HTTPConfig{URL: srv.URL}).List(context.Background()); err == nil {
		t.Fatalf("success=false should error")
	}
}
