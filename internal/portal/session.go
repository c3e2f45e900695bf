package portal

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRecoveryExhausted is returned once the guard has re-authenticated the
// configured maximum number of consecutive times without the session ever
// checking out healthy. The caller abandons the current account, not the
// whole run.
var ErrRecoveryExhausted = eris.New("portal: session recovery budget exhausted")

// Credentials are the opaque login inputs supplied at run start.
type Credentials struct {
	LoginURL string
	Username string
	Password string
}

// SessionGuard detects session expiry mid-run and re-authenticates
// transparently. It is called before essentially every risky portal action
// and is idempotent under repeated calls.
type SessionGuard struct {
	browser Browser
	login   LoginPage
	creds   Credentials

	// probeTimeout bounds the login-form marker probe.
	probeTimeout time.Duration
	// maxRecoveries is the consecutive re-authentication budget.
	maxRecoveries int

	consecutive int
	firstLogin  bool
	log         *zap.Logger
}

// NewSessionGuard creates a guard over the given browser and login page.
func NewSessionGuard(browser Browser, login LoginPage, creds Credentials) *SessionGuard {
	return &SessionGuard{
		browser:       browser,
		login:         login,
		creds:         creds,
		probeTimeout:  2 * time.Second,
		maxRecoveries: 3,
		firstLogin:    true,
		log:           zap.L().With(zap.String("component", "session")),
	}
}

// EnsureLoggedIn returns true iff it had to re-authenticate. A healthy
// session resets the consecutive-recovery counter; once the counter passes
// the budget, ErrRecoveryExhausted is returned instead of another login
// attempt.
func (g *SessionGuard) EnsureLoggedIn(ctx context.Context) (bool, error) {
	expired, err := g.sessionExpired(ctx)
	if err != nil {
		return false, err
	}
	if !expired {
		g.consecutive = 0
		return false, nil
	}

	g.consecutive++
	if g.consecutive > g.maxRecoveries {
		return false, ErrRecoveryExhausted
	}

	if g.firstLogin {
		g.log.Info("performing initial login")
		g.firstLogin = false
	} else {
		g.log.Warn("session expired, re-authenticating",
			zap.Int("consecutive_recoveries", g.consecutive))
	}

	if err := g.login.PerformLogin(ctx, g.creds.Username, g.creds.Password); err != nil {
		return false, eris.Wrap(err, "session: re-authenticate")
	}
	return true, nil
}

// sessionExpired checks the current location for a login marker, then falls
// back to a short-timeout probe for the login-form element.
func (g *SessionGuard) sessionExpired(ctx context.Context) (bool, error) {
	loc, err := g.browser.Location(ctx)
	if err != nil {
		return false, eris.Wrap(err, "session: read location")
	}
	if strings.Contains(loc, "login") || strings.Contains(loc, "auth") {
		return true, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()
	visible, err := g.login.FormVisible(probeCtx)
	if err != nil {
		// The probe races a rendering page; an error here means the form
		// marker was not observable, which counts as "still logged in".
		g.log.Debug("login form probe failed", zap.Error(err))
		return false, nil
	}
	return visible, nil
}
