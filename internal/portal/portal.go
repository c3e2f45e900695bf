// Package portal defines the capability interfaces behind which all
// browser-automation bindings live, plus the session-recovery and
// pagination state machines built on top of them. Concrete selector logic
// stays in the bindings; everything here talks only through these
// contracts.
package portal

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrRenderTimeout is reported by Listing.AwaitStable when the expected row
// markers never become present and fully rendered. Callers interpret it as
// "this page is empty or unusable", not as a fatal fault.
var ErrRenderTimeout = eris.New("portal: render timeout")

// Browser is the narrow navigation surface of the portal session.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// Location returns the current navigable location (URL).
	Location(ctx context.Context) (string, error)
}

// LoginPage performs the operator login sequence.
type LoginPage interface {
	// FormVisible probes, bounded by the context deadline, whether the
	// login form marker is currently rendered.
	FormVisible(ctx context.Context) (bool, error)
	PerformLogin(ctx context.Context, username, password string) error
}

// AccountList enumerates and selects the portal's selectable accounts.
// Implementations must re-query the rendered list on every call instead of
// holding element references across navigations: listing UIs are live and
// mutate on reflow.
type AccountList interface {
	Open(ctx context.Context) error
	Accounts(ctx context.Context) ([]string, error)
	// Select searches the currently rendered list by exact text match.
	// A missing account returns (false, nil): this is a normal condition
	// after a reload invalidates the rendered list, not an error.
	Select(ctx context.Context, account string) (bool, error)
	Close(ctx context.Context) error
}

// UnitRef is one schedulable work item discovered on a listing page: a
// contract card or an invoice row, in on-page DOM order.
type UnitRef struct {
	// ID is the natural identifier (contract number or invoice reference).
	ID string
	// Position is the 1-based on-page position.
	Position int
	// CanonicalName is the business-derived target filename
	// (<operator>_<code>_<ddmmyyyy>.pdf) when it can be derived from the
	// rendered row; empty otherwise.
	CanonicalName string
}

// StartResult reports how a download was initiated for a unit.
type StartResult struct {
	// Started is false when the portal showed the "no invoices available"
	// marker for the unit: a terminal business outcome, not a failure.
	Started bool
	// Archive is true when the portal delivers the invoice as a .zip
	// rather than a bare .pdf.
	Archive bool
}

// Listing drives one paginated invoice or contract listing.
type Listing interface {
	// AwaitStable blocks (bounded) until the listing's expected row
	// markers are present and fully rendered. Returns ErrRenderTimeout
	// when the state is never reached.
	AwaitStable(ctx context.Context) error
	// FirstRowMarker returns the identity of the first rendered row, used
	// to detect stale page content after navigation.
	FirstRowMarker(ctx context.Context) (string, error)
	// NextEnabled reports whether the "next page" control is present and
	// enabled. Absent or disabled means end of listing.
	NextEnabled(ctx context.Context) (bool, error)
	ClickNext(ctx context.Context) error
	// Units enumerates the pending units on the current page in DOM order.
	Units(ctx context.Context) ([]UnitRef, error)
	// StartDownload triggers the browser download for the unit. The file
	// lands in the watched staging directory.
	StartDownload(ctx context.Context, unit UnitRef) (StartResult, error)
}
