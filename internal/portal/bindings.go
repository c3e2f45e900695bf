package portal

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Bindings bundles the concrete browser-backed implementations for one
// operator portal. Binding packages register a factory at init time; the
// engine and its tests only ever see these interfaces.
type Bindings struct {
	Browser  Browser
	Login    LoginPage
	Accounts AccountList
	Listing  Listing
	// Close releases the underlying browser session.
	Close func(ctx context.Context) error
}

// BindingsFactory opens a browser session against the portal and returns
// its capability surfaces. stagingDir is where the session must place its
// downloads.
type BindingsFactory func(ctx context.Context, creds Credentials, stagingDir string) (*Bindings, error)

var (
	bindingsMu sync.RWMutex
	factories  = make(map[string]BindingsFactory)
)

// RegisterBindings installs the factory for an operator (lowercase name).
// Typically called from a binding package's init.
func RegisterBindings(operator string, factory BindingsFactory) {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	factories[operator] = factory
}

// NewBindings opens the registered bindings for an operator.
func NewBindings(ctx context.Context, operator string, creds Credentials, stagingDir string) (*Bindings, error) {
	bindingsMu.RLock()
	factory, ok := factories[operator]
	bindingsMu.RUnlock()
	if !ok {
		return nil, eris.Errorf("portal: no bindings registered for operator %q (build with a binding package)", operator)
	}
	return factory(ctx, creds, stagingDir)
}
