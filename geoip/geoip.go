// Package geoip finds the country of a client address.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/pitabwire/util"
)

const (
	DefaultURL = "http://ip-api.com/json/"

	statusSuccess   = "success"
	maxResponseSize = 64 << 10
)

var (
	// ErrUnroutable is returned for addresses a public lookup cannot place.
	ErrUnroutable = errors.New("address is not publicly routable")
	// ErrLookupFailed covers transport failures and refused lookups.
	ErrLookupFailed = errors.New("geoip lookup failed")
)

// CountryLocator maps an address to an ISO 3166 alpha-2 country code.
type CountryLocator interface {
	Country(ctx context.Context, ip string) (string, error)
}

type response struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// Locator queries an ip-api compatible endpoint.
type Locator struct {
	baseURL string
	client  *http.Client
}

var _ CountryLocator = (*Locator)(nil)

type Option func(*Locator)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Locator) {
		if c != nil {
			l.client = c
		}
	}
}

func New(baseURL string, opts ...Option) *Locator {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	l := &Locator{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locator) Country(ctx context.Context, ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnroutable, ip)
	}
	addr = addr.Unmap()
	if !routable(addr) {
		util.Log(ctx).WithField("ip", addr.String()).Warn("skipping geoip lookup for local address")
		return "", ErrUnroutable
	}

	endpoint := l.baseURL + url.PathEscape(addr.String()) + "?fields=status,message,countryCode"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer util.CloseAndLogOnError(ctx, resp.Body, "could not close geoip response")

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var decoded response
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if decoded.Status != statusSuccess || decoded.CountryCode == "" {
		return "", fmt.Errorf("%w: %s", ErrLookupFailed, decoded.Message)
	}

	return strings.ToUpper(decoded.CountryCode), nil
}

func routable(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsMulticast()
}

// Disabled never locates anything.
type Disabled struct{}

func (Disabled) Country(context.Context, string) (string, error) {
	return "", ErrLookupFailed
}
