package discounts

import (
	"strings"

	pkgerrors "github.com/packlane/orderflow/pkg/errors"
)

// Director resolves discount keys to adapters and static codes to keys.
// The registry is built once at startup; resolution happens at the point of
// use.
type Director struct {
	adapters    map[string]Adapter
	staticCodes map[string]string
}

// NewDirector builds an empty registry with the static code→key table from
// configuration. Code lookup is case-insensitive.
func NewDirector(staticCodes map[string]string) *Director {
	normalized := make(map[string]string, len(staticCodes))
	for code, key := range staticCodes {
		normalized[strings.ToUpper(strings.TrimSpace(code))] = key
	}
	return &Director{
		adapters:    make(map[string]Adapter),
		staticCodes: normalized,
	}
}

// Register adds an adapter under its key. Last registration wins.
func (d *Director) Register(adapter Adapter) {
	d.adapters[adapter.Key()] = adapter
}

// Resolve returns the adapter for the key.
func (d *Director) Resolve(key string) (Adapter, error) {
	adapter, ok := d.adapters[key]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no discount adapter registered for key %q", key)
	}
	return adapter, nil
}

// ResolveStaticCode maps a configured static code to its discount key.
func (d *Director) ResolveStaticCode(code string) (string, bool) {
	key, ok := d.staticCodes[strings.ToUpper(strings.TrimSpace(code))]
	return key, ok
}
