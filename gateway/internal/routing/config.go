package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Route struct {
	Prefix   string `json:"prefix"`
	Upstream string `json:"upstream"`
}

type Config struct {
	// PublicPrefixes are forwarded without an authenticated principal.
	// Everything else requires a valid bearer token.
	PublicPrefixes []string `json:"public_prefixes"`
	Routes         []Route  `json:"routes"`
}

type Resolver struct {
	Config Config
	// routes sorted longest prefix first so /approval-requests wins
	// over /approval.
	ordered []Route
}

func Load(path string) (Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return Resolver{}, errors.New("routes config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Resolver{}, fmt.Errorf("read routes config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Resolver{}, fmt.Errorf("parse routes config: %w", err)
	}
	if len(cfg.Routes) == 0 {
		return Resolver{}, errors.New("routes config must define routes")
	}

	seen := make(map[string]bool, len(cfg.Routes))
	ordered := make([]Route, 0, len(cfg.Routes))
	for i := range cfg.Routes {
		route := cfg.Routes[i]
		route.Prefix = strings.TrimSpace(route.Prefix)
		route.Upstream = strings.TrimRight(strings.TrimSpace(route.Upstream), "/")
		if route.Prefix == "" || !strings.HasPrefix(route.Prefix, "/") {
			return Resolver{}, fmt.Errorf("route prefix %q must start with /", route.Prefix)
		}
		if seen[route.Prefix] {
			return Resolver{}, fmt.Errorf("duplicate route for prefix %q", route.Prefix)
		}
		seen[route.Prefix] = true
		u, err := url.Parse(route.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Resolver{}, fmt.Errorf("route %q has invalid upstream %q", route.Prefix, route.Upstream)
		}
		ordered = append(ordered, route)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})

	for i, prefix := range cfg.PublicPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return Resolver{}, fmt.Errorf("public prefix %q must start with /", prefix)
		}
		cfg.PublicPrefixes[i] = prefix
	}

	return Resolver{Config: cfg, ordered: ordered}, nil
}

// Resolve picks the route whose prefix matches the longest leading segment
// of the request path.
func (r Resolver) Resolve(path string) (Route, bool) {
	for _, route := range r.ordered {
		if matchesPrefix(path, route.Prefix) {
			return route, true
		}
	}
	return Route{}, false
}

// Public reports whether the path may be forwarded without authentication.
func (r Resolver) Public(path string) bool {
	for _, prefix := range r.Config.PublicPrefixes {
		if matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func matchesPrefix(path string, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	// /customers must not match /customers-export
	return strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}

func DefaultRoutesPath(env string) (string, error) {
	root, err := findRepoRoot()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(env) == "" {
		env = "dev"
	}
	return filepath.Join(root, "configs", env+".gateway.routes.json"), nil
}

func findRepoRoot() (string, error) {
	start, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("repo root not found")
}
