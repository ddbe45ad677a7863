// Package countries supplies the country list offered on the settings form.
package countries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL  = "https://restcountries.com"
	defaultCacheTTL = 24 * time.Hour
)

// ErrEmpty is returned when the API answers with no countries.
var ErrEmpty = errors.New("country list is empty")

// Country is one selectable entry.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Service fetches and caches the country list.
type Service struct {
	client  *http.Client
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	cached    []Country
	fetchedAt time.Time
}

// Option configures the Service during construction.
type Option func(*Service)

// WithBaseURL overrides the countries API base URL.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithCacheTTL overrides how long a fetched list is reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(client *http.Client, opts ...Option) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	svc := &Service{
		client:  client,
		baseURL: defaultBaseURL,
		ttl:     defaultCacheTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List returns every country sorted by name. A failed refresh falls back to
// the previously fetched list when there is one.
func (s *Service) List(ctx context.Context) ([]Country, error) {
	s.mu.RLock()
	cached, fetchedAt := s.cached, s.fetchedAt
	s.mu.RUnlock()
	if cached != nil && s.now().Sub(fetchedAt) < s.ttl {
		return cached, nil
	}

	v, err, _ := s.group.Do("all", func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	return v.([]Country), nil
}

type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2 string `json:"cca2"`
}

func (s *Service) fetch(ctx context.Context) ([]Country, error) {
	endpoint, err := url.Parse(s.baseURL + "/v3.1/all")
	if err != nil {
		return nil, fmt.Errorf("build countries url: %w", err)
	}
	endpoint.RawQuery = url.Values{"fields": {"name,cca2"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create countries request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call countries api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("countries api returned status %d", resp.StatusCode)
	}

	var payload []restCountry
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode countries response: %w", err)
	}

	list := make([]Country, 0, len(payload))
	for _, c := range payload {
		name := strings.TrimSpace(c.Name.Common)
		if name == "" {
			continue
		}
		list = append(list, Country{Code: strings.ToUpper(c.CCA2), Name: name})
	}
	if len(list) == 0 {
		return nil, ErrEmpty
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	s.mu.Lock()
	s.cached = list
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return list, nil
}
