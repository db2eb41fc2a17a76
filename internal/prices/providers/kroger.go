package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

const (
	defaultKrogerBaseURL = "https://api.kroger.com/v1"
	defaultRadiusMiles   = 15
	defaultLocationLimit = 20
	defaultRatePerSec    = 5
	tokenScope           = "product.compact"
	// tokenLeeway renews the token slightly before the API expires it.
	tokenLeeway = 30 * time.Second
)

// DefaultItemCodes are the egg UPCs tried, in order, at every store.
var DefaultItemCodes = []string{
	"0001111060903", // basic
	"0001111061748", // organic
	"0001111002449", // cage-free
	"0001111061830", // other large
}

// ErrMissingCredentials is returned when the client id or secret is empty.
var ErrMissingCredentials = errors.New("kroger client credentials are not configured")

// KrogerConfig configures the Kroger product API provider.
type KrogerConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	ItemCodes     []string
	RadiusMiles   int
	LocationLimit int
	RatePerSec    float64
}

// KrogerProvider implements the prices.Provider interface for the Kroger API.
type KrogerProvider struct {
	name    string
	cfg     KrogerConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type storeLocation struct {
	ID   string
	Name string
	City string
}

func NewKrogerProvider(client *http.Client, cfg KrogerConfig) *KrogerProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultKrogerBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.ItemCodes) == 0 {
		cfg.ItemCodes = DefaultItemCodes
	}
	if cfg.RadiusMiles <= 0 {
		cfg.RadiusMiles = defaultRadiusMiles
	}
	if cfg.LocationLimit <= 0 {
		cfg.LocationLimit = defaultLocationLimit
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}

	return &KrogerProvider{
		name: "kroger",
		cfg:  cfg,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
			Limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1),
		},
		circuit: newBreaker("kroger"),
		now:     time.Now,
	}
}

func (p *KrogerProvider) Name() string {
	return p.name
}

// Fetch walks the stores near the group's ZIP code and returns the first
// regular price found, trying every item code at each store. When nothing is
// priced the observation carries an absent value.
func (p *KrogerProvider) Fetch(ctx context.Context, group prices.Group) (prices.Observation, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return prices.Observation{}, err
	}

	locations, err := p.locations(ctx, token, group.ZipCode)
	if err != nil {
		p.dropToken(token, err)
		return prices.Observation{}, fmt.Errorf("locations near %s: %w", group.ZipCode, err)
	}

	for _, loc := range locations {
		price, code, found, err := p.firstPrice(ctx, token, loc.ID)
		if err != nil {
			return prices.Observation{}, fmt.Errorf("products at %s: %w", loc.ID, err)
		}
		if !found {
			continue
		}
		log.Debug().
			Str("group", group.Key()).
			Str("store", loc.Name).
			Str("location_id", loc.ID).
			Str("store_city", loc.City).
			Str("item_code", code).
			Float64("price", price).
			Msg("price found")
		return prices.Observation{
			Group:      group.Key(),
			LocationID: loc.ID,
			Store:      loc.Name,
			ItemCode:   code,
			Value:      prices.Some(price),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return prices.Observation{}, err
	}

	return prices.Observation{
		Group:      group.Key(),
		LocationID: prices.NotAvailable,
		Store:      prices.NotAvailable,
		ItemCode:   prices.NotAvailable,
		Value:      prices.Absent(),
	}, nil
}

// accessToken returns a cached client-credentials token, requesting a new one
// when it is missing or about to expire.
func (p *KrogerProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	buildRequest := func() (*http.Request, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("scope", tokenScope)
		req, err := http.NewRequest(http.MethodPost, p.cfg.BaseURL+"/connect/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("kroger token: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("kroger token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("kroger token: empty access token")
	}

	p.token = payload.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenLeeway)
	return p.token, nil
}

// dropToken forgets a token the API no longer accepts, so the next call
// requests a fresh one instead of waiting for it to expire.
func (p *KrogerProvider) dropToken(token string, err error) {
	if !errors.Is(err, errUnauthorized) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == token {
		p.token = ""
		p.tokenExpiry = time.Time{}
	}
}

func (p *KrogerProvider) locations(ctx context.Context, token, zip string) ([]storeLocation, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("filter.zipCode.near", zip)
		values.Set("filter.radiusInMiles", strconv.Itoa(p.cfg.RadiusMiles))
		values.Set("filter.limit", strconv.Itoa(p.cfg.LocationLimit))
		return p.authorizedGet(token, "/locations", values)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data []struct {
			LocationID string `json:"locationId"`
			Name       string `json:"name"`
			Address    struct {
				City string `json:"city"`
			} `json:"address"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]storeLocation, 0, len(payload.Data))
	for _, d := range payload.Data {
		loc := storeLocation{ID: d.LocationID, Name: d.Name, City: d.Address.City}
		if loc.Name == "" {
			loc.Name = "Unknown Store"
		}
		if loc.City == "" {
			loc.City = "Unknown"
		}
		out = append(out, loc)
	}
	return out, nil
}

// firstPrice tries each item code in order at one store. Lookup errors are
// logged and the next code is tried, except when the run is cancelled, the
// breaker is open or the token was rejected: those abort the walk.
func (p *KrogerProvider) firstPrice(ctx context.Context, token, locationID string) (float64, string, bool, error) {
	for _, code := range p.cfg.ItemCodes {
		price, ok, err := p.productPrice(ctx, token, locationID, code)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, "", false, ctxErr
			}
			if errors.Is(err, ErrCircuitOpen) {
				return 0, "", false, err
			}
			if errors.Is(err, errUnauthorized) {
				p.dropToken(token, err)
				return 0, "", false, err
			}
			log.Warn().Err(err).Str("location_id", locationID).Str("item_code", code).Msg("product lookup failed")
			continue
		}
		if ok {
			return price, code, true, nil
		}
	}
	return 0, "", false, nil
}

func (p *KrogerProvider) productPrice(ctx context.Context, token, locationID, code string) (float64, bool, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("filter.term", code)
		values.Set("filter.locationId", locationID)
		return p.authorizedGet(token, "/products", values)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data []struct {
			Items []struct {
				Price *struct {
					Regular *float64 `json:"regular"`
				} `json:"price"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, err
	}

	// The first product and its first item are taken as the match.
	if len(payload.Data) == 0 || len(payload.Data[0].Items) == 0 {
		return 0, false, nil
	}
	item := payload.Data[0].Items[0]
	if item.Price == nil || item.Price.Regular == nil {
		return 0, false, nil
	}
	v := prices.Some(*item.Price.Regular)
	if err := v.Validate(); err != nil {
		return 0, false, err
	}
	return *item.Price.Regular, true, nil
}

func (p *KrogerProvider) authorizedGet(token, path string, values url.Values) (*http.Request, error) {
	u := fmt.Sprintf("%s%s?%s", p.cfg.BaseURL, path, values.Encode())
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}
