package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoutesConfig lists which paths bypass authentication and which must never
// be cached.
type RoutesConfig struct {
	PublicRoutes  []string `yaml:"publicRoutes"`
	DynamicRoutes []string `yaml:"dynamicRoutes"`
}

// LoadRoutesConfigFromPath loads the route policy from a YAML file.
func LoadRoutesConfigFromPath(path string) (*RoutesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes config: %w", err)
	}

	var cfg RoutesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse routes config: %w", err)
	}

	for i, route := range cfg.PublicRoutes {
		if !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("publicRoutes[%d]: %q must start with /", i, route)
		}
	}
	for i, route := range cfg.DynamicRoutes {
		if !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("dynamicRoutes[%d]: %q must start with /", i, route)
		}
	}

	return &cfg, nil
}

// LoadRoutesConfig loads the route policy from path. An empty path or a
// missing file yields the defaults; a file that cannot be read or parsed is
// an error.
func LoadRoutesConfig(path string) (*RoutesConfig, error) {
	if path == "" {
		return DefaultRoutesConfig(), nil
	}
	cfg, err := LoadRoutesConfigFromPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultRoutesConfig(), nil
	}
	return cfg, err
}

// DefaultRoutesConfig returns the built-in route policy.
func DefaultRoutesConfig() *RoutesConfig {
	return &RoutesConfig{
		PublicRoutes: []string{
			"/",
			"/home",
			"/courses",
			"/courses/(.*)",
			"/preview/(.*)",
			"/api/healthcheck",
			"/api/debug",
			"/api/database-check",
			"/api/courses",
			"/api/courses/(.*)",
			"/api/auth/(.*)",
			"/auth/sign-in/(.*)",
			"/auth/sign-up/(.*)",
			"/auth/callback/(.*)",
			"/payment",
			"/db-error",
			"/metrics",
		},
		DynamicRoutes: []string{
			"/courses",
			"/dashboard",
			"/home",
			"/api/courses",
			"/api/enrollments",
			"/api/workspaces",
			"/api/auth",
			"/api/database-check",
		},
	}
}

// IsPublic reports whether path matches a public route. A trailing "(.*)"
// turns the route into a prefix match.
func (c *RoutesConfig) IsPublic(path string) bool {
	for _, route := range c.PublicRoutes {
		if base, ok := strings.CutSuffix(route, "(.*)"); ok {
			if strings.HasPrefix(path, base) {
				return true
			}
			continue
		}
		if route == path {
			return true
		}
	}
	return false
}

// IsDynamic reports whether path starts with a dynamic route.
func (c *RoutesConfig) IsDynamic(path string) bool {
	for _, route := range c.DynamicRoutes {
		if strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}
