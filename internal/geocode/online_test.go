package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPOnlineResolver_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "wesense-ingester-test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":{"country":"Australia","state":"New South Wales"}}`))
	}))
	defer srv.Close()

	resolver := NewHTTPOnlineResolver(srv.URL, "wesense-ingester-test", 100)
	country, admin1, err := resolver.Resolve(context.Background(), -33.87, 151.21)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if country != "Australia" || admin1 != "New South Wales" {
		t.Fatalf("got %q, %q", country, admin1)
	}
}

func TestHTTPOnlineResolver_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resolver := NewHTTPOnlineResolver(srv.URL, "wesense-ingester-test", 100)
	if _, _, err := resolver.Resolve(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}
