package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultVendorAPI is the public OUI lookup service
const DefaultVendorAPI = "https://api.macvendors.com"

// VendorLookup resolves the manufacturer of a MAC address from its OUI.
// Results, including misses, are cached per OUI for the lifetime of the value.
type VendorLookup struct {
	baseURL     string
	httpClient  *http.Client
	minInterval time.Duration

	cacheMu sync.RWMutex
	cache   map[string]string

	callMu   sync.Mutex
	lastCall time.Time
}

// NewVendorLookup creates a lookup against baseURL. The free API tier allows
// one request per second, so calls are spaced by minInterval.
func NewVendorLookup(baseURL string, minInterval time.Duration) *VendorLookup {
	if baseURL == "" {
		baseURL = DefaultVendorAPI
	}
	return &VendorLookup{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		minInterval: minInterval,
		cache:       make(map[string]string),
	}
}

// Lookup returns the vendor name for mac, or "" when unknown
func (v *VendorLookup) Lookup(ctx context.Context, mac string) string {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return ""
	}
	oui := MACPrefix(normalized)

	v.cacheMu.RLock()
	vendor, found := v.cache[oui]
	v.cacheMu.RUnlock()
	if found {
		return vendor
	}

	v.wait()
	vendor, err = v.query(ctx, oui)
	if err != nil {
		// transient failures are not cached
		return ""
	}

	v.cacheMu.Lock()
	v.cache[oui] = vendor
	v.cacheMu.Unlock()
	return vendor
}

func (v *VendorLookup) wait() {
	v.callMu.Lock()
	defer v.callMu.Unlock()
	if since := time.Since(v.lastCall); since < v.minInterval {
		time.Sleep(v.minInterval - since)
	}
	v.lastCall = time.Now()
}

func (v *VendorLookup) query(ctx context.Context, oui string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", v.baseURL, oui), nil)
	if err != nil {
		return "", err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("vendor lookup failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
