// Package offline describes the browser cache policy served to the portal's service worker.
package offline

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Strategy is how the service worker answers a request.
type Strategy string

const (
	// StrategyNetworkFirst tries the network and falls back to the offline document.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyStaleWhileRevalidate answers from cache and refreshes in the background.
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	// StrategyBypass leaves the request to the browser without touching any cache.
	StrategyBypass Strategy = "bypass"
	// StrategyNetworkOnly fetches without caching the response.
	StrategyNetworkOnly Strategy = "network-only"
)

const cachePrefix = "naa"

var staticDestinations = map[string]struct{}{
	"script":   {},
	"style":    {},
	"image":    {},
	"font":     {},
	"manifest": {},
}

var staticExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".svg": {},
	".webp": {}, ".ico": {}, ".woff": {}, ".woff2": {}, ".webmanifest": {},
}

// Request is the subset of a fetch event the policy inspects.
type Request struct {
	URL         string `json:"url" validate:"required"`
	Method      string `json:"method"`
	Mode        string `json:"mode"`
	Destination string `json:"destination"`
}

// Route is the routing answer for one request.
type Route struct {
	Strategy Strategy `json:"strategy"`
	Cache    string   `json:"cache,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
}

// Policy holds the cache generation and origin for the current deployment.
type Policy struct {
	Origin          string
	Version         string
	OfflineDocument string
	Precache        []string
}

// Manifest is the document the service worker fetches on install.
type Manifest struct {
	Version         string   `json:"version"`
	Caches          []string `json:"caches"`
	OfflineDocument string   `json:"offline_document"`
	Precache        []string `json:"precache"`
}

// NewPolicy validates and normalises a policy.
func NewPolicy(origin, version, offlineDocument string, precache []string) (Policy, error) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Policy{}, fmt.Errorf("offline origin must be an absolute url: %q", origin)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return Policy{}, fmt.Errorf("offline cache version must not be empty")
	}
	if offlineDocument == "" {
		offlineDocument = "/offline/"
	}

	return Policy{
		Origin:          parsed.Scheme + "://" + parsed.Host,
		Version:         version,
		OfflineDocument: offlineDocument,
		Precache:        append([]string{offlineDocument}, precache...),
	}, nil
}

// StaticCache is the cache holding assets for the current generation.
func (p Policy) StaticCache() string {
	return fmt.Sprintf("%s-static-%s", cachePrefix, p.Version)
}

// PagesCache is the cache holding navigation responses for the current generation.
func (p Policy) PagesCache() string {
	return fmt.Sprintf("%s-pages-%s", cachePrefix, p.Version)
}

// CacheNames lists every cache belonging to the current generation.
func (p Policy) CacheNames() []string {
	return []string{p.StaticCache(), p.PagesCache()}
}

// Manifest returns the install-time manifest.
func (p Policy) Manifest() Manifest {
	return Manifest{
		Version:         p.Version,
		Caches:          p.CacheNames(),
		OfflineDocument: p.OfflineDocument,
		Precache:        append([]string(nil), p.Precache...),
	}
}

// Route decides the strategy for a request.
func (p Policy) Route(req Request) (Route, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return Route{}, fmt.Errorf("invalid request url: %w", err)
	}

	if target.IsAbs() && target.Scheme+"://"+target.Host != p.Origin {
		return Route{Strategy: StrategyBypass}, nil
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != "" && method != http.MethodGet {
		return Route{Strategy: StrategyBypass}, nil
	}

	if strings.EqualFold(req.Mode, "navigate") {
		return Route{Strategy: StrategyNetworkFirst, Cache: p.PagesCache(), Fallback: p.OfflineDocument}, nil
	}

	if isStatic(req.Destination, target.Path) {
		return Route{Strategy: StrategyStaleWhileRevalidate, Cache: p.StaticCache()}, nil
	}

	return Route{Strategy: StrategyNetworkOnly}, nil
}

// Stale returns the caches to evict on activation: every cache not in the current generation.
func (p Policy) Stale(existing []string) []string {
	current := make(map[string]struct{}, 2)
	for _, name := range p.CacheNames() {
		current[name] = struct{}{}
	}

	stale := make([]string, 0, len(existing))
	for _, name := range existing {
		if _, ok := current[name]; !ok {
			stale = append(stale, name)
		}
	}
	return stale
}

func isStatic(destination, requestPath string) bool {
	if _, ok := staticDestinations[strings.ToLower(destination)]; ok {
		return true
	}
	if strings.HasPrefix(requestPath, "/static/") {
		return true
	}
	_, ok := staticExtensions[strings.ToLower(path.Ext(requestPath))]
	return ok
}
