package portal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WalkerState is the pagination walker's position in its state machine.
type WalkerState int

const (
	StateRendering WalkerState = iota
	StateStable
	StateNoNextPage
)

// WalkerConfig tunes the pagination walker.
type WalkerConfig struct {
	// MarkerTimeout bounds the wait for the first-row marker to change
	// after clicking "next". Default: 15s.
	MarkerTimeout time.Duration
	// PollInterval is the marker re-check interval. Default: 300ms.
	PollInterval time.Duration
	// MaxPages is a runaway guard on total pages walked. Default: 500.
	MaxPages int
}

// Walker drives "next page" traversal of a paginated listing. Page numbers
// are 1-based and monotonically increase within one traversal; Restart
// returns to page 1.
type Walker struct {
	browser Browser
	listing Listing
	cfg     WalkerConfig

	state  WalkerState
	page   int
	marker string
	log    *zap.Logger
}

// NewWalker creates a Walker over the given listing.
func NewWalker(browser Browser, listing Listing, cfg WalkerConfig) *Walker {
	if cfg.MarkerTimeout <= 0 {
		cfg.MarkerTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Millisecond
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 500
	}
	return &Walker{
		browser: browser,
		listing: listing,
		cfg:     cfg,
		state:   StateRendering,
		page:    1,
		log:     zap.L().With(zap.String("component", "pagination")),
	}
}

// Page returns the current 1-based page ordinal.
func (w *Walker) Page() int { return w.page }

// State returns the walker's current state.
func (w *Walker) State() WalkerState { return w.state }

// Reset returns the walker to page 1 without navigating, for use after the
// caller has put the listing back at its first page (e.g. by selecting an
// account).
func (w *Walker) Reset() {
	w.state = StateRendering
	w.page = 1
	w.marker = ""
}

// AwaitStable blocks until the current page's row markers are present and
// fully rendered, then records the first-row identity. ErrRenderTimeout
// propagates unwrapped so callers can classify the page as empty.
func (w *Walker) AwaitStable(ctx context.Context) error {
	if err := w.listing.AwaitStable(ctx); err != nil {
		return err
	}
	marker, err := w.listing.FirstRowMarker(ctx)
	if err != nil {
		return eris.Wrap(err, "pagination: read first-row marker")
	}
	w.marker = marker
	w.state = StateStable
	return nil
}

// Advance clicks the "next" control and blocks until the first-row marker
// identity changes, then re-validates stability. It returns false exactly
// when the control is absent or disabled, which is the walker's only way of
// reporting end of listing.
func (w *Walker) Advance(ctx context.Context) (bool, error) {
	if w.state == StateNoNextPage {
		return false, nil
	}
	if w.page >= w.cfg.MaxPages {
		return false, eris.Errorf("pagination: page limit %d reached, aborting traversal", w.cfg.MaxPages)
	}

	enabled, err := w.listing.NextEnabled(ctx)
	if err != nil {
		return false, eris.Wrap(err, "pagination: probe next control")
	}
	if !enabled {
		w.state = StateNoNextPage
		return false, nil
	}

	if err := w.listing.ClickNext(ctx); err != nil {
		return false, eris.Wrap(err, "pagination: click next")
	}
	w.state = StateRendering

	if err := w.awaitMarkerChange(ctx); err != nil {
		return false, err
	}
	if err := w.AwaitStable(ctx); err != nil {
		return false, err
	}

	w.page++
	w.log.Debug("advanced page", zap.Int("page", w.page))
	return true, nil
}

// Restart returns the walker to page 1 of a known-good listing state. Used
// during failure recovery instead of skipping forward across jumps.
func (w *Walker) Restart(ctx context.Context, url string) error {
	if err := w.browser.Navigate(ctx, url); err != nil {
		return eris.Wrapf(err, "pagination: navigate to %s", url)
	}
	w.Reset()
	return w.AwaitStable(ctx)
}

// awaitMarkerChange polls the first-row marker until it differs from the
// one recorded before the click, bounding against reading stale content.
func (w *Walker) awaitMarkerChange(ctx context.Context) error {
	deadline := time.Now().Add(w.cfg.MarkerTimeout)
	for {
		marker, err := w.listing.FirstRowMarker(ctx)
		if err == nil && marker != w.marker {
			return nil
		}
		if time.Now().After(deadline) {
			return eris.Wrap(ErrRenderTimeout, "pagination: first-row marker never changed after next click")
		}
		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
