package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry indexes providers by code. The first provider is the default
// one used for new checkout sessions.
func NewRegistry(providers ...Provider) *Registry {
	items := make(map[string]Provider, len(providers))
	fallback := ""
	for _, p := range providers {
		code := strings.ToLower(p.Code())
		if fallback == "" {
			fallback = code
		}
		items[code] = p
	}
	return &Registry{providers: items, fallback: fallback}
}

func (r *Registry) Get(code string) (Provider, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

func (r *Registry) Default() (Provider, error) {
	return r.Get(r.fallback)
}
