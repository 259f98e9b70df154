package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// OnlineResolver is the online fallback layer of the reverse geocoder: used
// only when the offline gazetteer returns no answer, which happens only when
// no gazetteer (or an empty one) is loaded, since Gazetteer.Lookup has no
// distance limit.
type OnlineResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (countryName, admin1Name string, err error)
}

// HTTPOnlineResolver calls a public reverse-geocoding HTTP endpoint,
// throttled to at most one request per second globally and identifying
// itself with a politeness User-Agent header, per SPEC_FULL.md §4.G.
type HTTPOnlineResolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

// NewHTTPOnlineResolver builds a resolver against baseURL (expected to
// accept lat/lon query parameters and return JSON), rate-limited to
// ratePerSecond requests per second.
func NewHTTPOnlineResolver(baseURL, userAgent string, ratePerSecond float64) *HTTPOnlineResolver {
	return &HTTPOnlineResolver{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

type reverseGeocodeResponse struct {
	Address struct {
		Country string `json:"country"`
		State   string `json:"state"`
	} `json:"address"`
}

// Resolve blocks until the rate limiter admits the request, then performs
// a single reverse-geocode lookup.
func (r *HTTPOnlineResolver) Resolve(ctx context.Context, lat, lon float64) (string, string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("geocode: rate limiter: %w", err)
	}

	u, err := url.Parse(r.baseURL)
	if err != nil {
		return "", "", fmt.Errorf("geocode: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("geocode: building request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var body reverseGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("geocode: decoding response: %w", err)
	}
	return body.Address.Country, body.Address.State, nil
}
