package portal

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	location  string
	locErr    error
	navigated []string
	navErr    error
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.navigated = append(b.navigated, url)
	return b.navErr
}

func (b *fakeBrowser) Location(ctx context.Context) (string, error) {
	return b.location, b.locErr
}

type fakeLogin struct {
	formVisible bool
	probeErr    error
	logins      int
	loginErr    error
	// onLogin lets tests flip portal state when a login happens.
	onLogin func()
}

func (l *fakeLogin) FormVisible(ctx context.Context) (bool, error) {
	return l.formVisible, l.probeErr
}

func (l *fakeLogin) PerformLogin(ctx context.Context, username, password string) error {
	l.logins++
	if l.onLogin != nil {
		l.onLogin()
	}
	return l.loginErr
}

func testCreds() Credentials {
	return Credentials{LoginURL: "https://portal.example/login", Username: "u", Password: "p"}
}

func TestEnsureLoggedInHealthySession(t *testing.T) {
	browser := &fakeBrowser{location: "https://portal.example/faturas"}
	login := &fakeLogin{formVisible: false}
	guard := NewSessionGuard(browser, login, testCreds())

	relogged, err := guard.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.False(t, relogged)
	assert.Equal(t, 0, login.logins)
}

func TestEnsureLoggedInDetectsLoginURL(t *testing.T) {
	browser := &fakeBrowser{location: "https://portal.example/login?next=faturas"}
	login := &fakeLogin{}
	login.onLogin = func() { browser.location = "https://portal.example/faturas" }
	guard := NewSessionGuard(browser, login, testCreds())

	relogged, err := guard.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.True(t, relogged)
	assert.Equal(t, 1, login.logins)
}

func TestEnsureLoggedInDetectsAuthRedirect(t *testing.T) {
	browser := &fakeBrowser{location: "https://sso.example/auth/realm"}
	login := &fakeLogin{}
	guard := NewSessionGuard(browser, login, testCreds())

	relogged, err := guard.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.True(t, relogged)
}

func TestEnsureLoggedInProbesLoginForm(t *testing.T) {
	// Location looks healthy, but the login form is rendered (soft expiry).
	browser := &fakeBrowser{location: "https://portal.example/faturas"}
	login := &fakeLogin{formVisible: true}
	login.onLogin = func() { login.formVisible = false }
	guard := NewSessionGuard(browser, login, testCreds())

	relogged, err := guard.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.True(t, relogged)
	assert.Equal(t, 1, login.logins)
}

func TestEnsureLoggedInProbeErrorMeansHealthy(t *testing.T) {
	browser := &fakeBrowser{location: "https://portal.example/faturas"}
	login := &fakeLogin{probeErr: eris.New("stale element reference")}
	guard := NewSessionGuard(browser, login, testCreds())

	relogged, err := guard.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	assert.False(t, relogged)
}

func TestEnsureLoggedInRecoveryBudget(t *testing.T) {
	// Session never recovers: every check still shows the login page.
	browser := &fakeBrowser{location: "https://portal.example/login"}
	login := &fakeLogin{}
	guard := NewSessionGuard(browser, login, testCreds())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		relogged, err := guard.EnsureLoggedIn(ctx)
		require.NoError(t, err)
		assert.True(t, relogged)
	}

	_, err := guard.EnsureLoggedIn(ctx)
	assert.ErrorIs(t, err, ErrRecoveryExhausted)
	assert.Equal(t, 3, login.logins)
}

func TestEnsureLoggedInHealthyCheckResetsBudget(t *testing.T) {
	browser := &fakeBrowser{location: "https://portal.example/login"}
	login := &fakeLogin{}
	guard := NewSessionGuard(browser, login, testCreds())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := guard.EnsureLoggedIn(ctx)
		require.NoError(t, err)
	}

	// One healthy check resets the consecutive counter.
	browser.location = "https://portal.example/faturas"
	relogged, err := guard.EnsureLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, relogged)

	browser.location = "https://portal.example/login"
	relogged, err = guard.EnsureLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, relogged)
}

func TestEnsureLoggedInLoginFailure(t *testing.T) {
	browser := &fakeBrowser{location: "https://portal.example/login"}
	login := &fakeLogin{loginErr: eris.New("invalid credentials")}
	guard := NewSessionGuard(browser, login, testCreds())

	_, err := guard.EnsureLoggedIn(context.Background())
	assert.Error(t, err)
}
