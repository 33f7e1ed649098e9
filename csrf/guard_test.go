package csrf_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/webstarter/csrf"
)

const testSessionHeader = "X-Test-Session"

// newGuardHandler wires the guard in front of a trivial handler. The session
// key is taken from a test header so each request can pick its session.
func newGuardHandler(cfg csrf.Config) (*echo.Echo, echo.HandlerFunc) {
	e := echo.New()
	if cfg.SessionKeyFunc == nil {
		cfg.SessionKeyFunc = func(c echo.Context) string {
			return c.Request().Header.Get(testSessionHeader)
		}
	}
	handler := csrf.Guard(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e, handler
}

func doRequest(e *echo.Echo, handler echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, handler(c)
}

func issuedCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == csrf.CookieName {
			return cookie
		}
	}
	t.Fatal("no csrf-token cookie in response")
	return nil
}

// issueToken performs a safe request for the session and returns the token.
func issueToken(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, session string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(testSessionHeader, session)
	rec, err := doRequest(e, handler, req)
	require.NoError(t, err)
	return issuedCookie(t, rec).Value
}

func TestSafeRequestsNeverBlocked(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/", nil)
		req.Header.Set(testSessionHeader, "s1")
		rec, err := doRequest(e, handler, req)

		require.NoError(t, err, method)
		assert.Equal(t, http.StatusOK, rec.Code, method)

		cookie := issuedCookie(t, rec)
		assert.Len(t, cookie.Value, 64, "32 random bytes, hex-encoded")
		assert.False(t, cookie.HttpOnly, "client script must be able to read the token")
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Equal(t, 3600, cookie.MaxAge)
		assert.False(t, cookie.Secure, "Secure is off outside production")
	}
}

func TestSecureCookieInProduction(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store, Secure: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(testSessionHeader, "s1")
	rec, err := doRequest(e, handler, req)

	require.NoError(t, err)
	assert.True(t, issuedCookie(t, rec).Secure)
}

func TestTokenExposedToRenderingLayer(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e := echo.New()

	var seen string
	handler := csrf.Guard(csrf.Config{
		Store:          store,
		SessionKeyFunc: func(echo.Context) string { return "s1" },
	})(func(c echo.Context) error {
		seen = csrf.TokenFromContext(c)
		return c.String(http.StatusOK, "ok")
	})

	rec, err := doRequest(e, handler, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, issuedCookie(t, rec).Value, seen)
}

// A GET issues a token, a POST presenting it in x-csrf-token succeeds, and
// the response carries a different replacement token.
func TestRotationOnSuccessfulValidation(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token1 := issueToken(t, e, handler, "s1")

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(testSessionHeader, "s1")
	req.Header.Set(csrf.HeaderName, token1)
	rec, err := doRequest(e, handler, req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	token2 := issuedCookie(t, rec).Value
	assert.NotEqual(t, token1, token2, "validation must rotate the token")

	// Replaying the first token fails now that it has been consumed.
	replay := httptest.NewRequest(http.MethodPost, "/submit", nil)
	replay.Header.Set(testSessionHeader, "s1")
	replay.Header.Set(csrf.HeaderName, token1)
	_, err = doRequest(e, handler, replay)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindInvalidToken, csrfErr.Kind)
	assert.Contains(t, csrfErr.Error(), csrf.Code)

	// The replacement is the live token and validates.
	again := httptest.NewRequest(http.MethodPost, "/submit", nil)
	again.Header.Set(testSessionHeader, "s1")
	again.Header.Set(csrf.HeaderName, token2)
	_, err = doRequest(e, handler, again)
	assert.NoError(t, err)
}

// A POST for a session that never issued a token fails regardless
// of the token value. This is also the observable consequence of the legacy
// throwaway-key fallback: a sessionless client's token validates against a
// key it can never present again.
func TestUnsafeRequestWithoutStoredRecord(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(testSessionHeader, "s2")
	req.Header.Set(csrf.HeaderName, strings.Repeat("ab", 32))
	_, err := doRequest(e, handler, req)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindInvalidToken, csrfErr.Kind)
}

// The _csrf body field is honored and takes priority over the header.
func TestTokenFromFormField(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s1")

	form := url.Values{csrf.FormField: {token}}
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(testSessionHeader, "s1")
	// A stale header value must lose to the body field.
	req.Header.Set(csrf.HeaderName, "stale-header-value")

	rec, err := doRequest(e, handler, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// The query string is not an acceptance channel: a valid token submitted
// only as ?_csrf= must be rejected, and must not consume the live token.
func TestTokenInQueryStringRejected(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s1")

	req := httptest.NewRequest(http.MethodPost, "/submit?"+csrf.FormField+"="+token, nil)
	req.Header.Set(testSessionHeader, "s1")
	_, err := doRequest(e, handler, req)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindMissingCredentials, csrfErr.Kind)

	// The token is still live and validates through a legitimate channel.
	again := httptest.NewRequest(http.MethodPost, "/submit", nil)
	again.Header.Set(testSessionHeader, "s1")
	again.Header.Set(csrf.HeaderName, token)
	_, err = doRequest(e, handler, again)
	assert.NoError(t, err)
}

func TestTokenFromCookieFallback(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s1")

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(testSessionHeader, "s1")
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})

	rec, err := doRequest(e, handler, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// A token past its TTL validates like an absent record.
func TestExpiredTokenRejected(t *testing.T) {
	clock := newFakeClock()
	store := csrf.NewMemoryStoreWithClock(clock.Now)
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s3")

	clock.Advance(2 * time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(testSessionHeader, "s3")
	req.Header.Set(csrf.HeaderName, token)
	_, err := doRequest(e, handler, req)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindInvalidToken, csrfErr.Kind)
}

// Comparison is exact: a single flipped character or case change fails.
func TestExactMatchOnly(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s1")

	flipped := "0"
	if token[0] == '0' {
		flipped = "1"
	}
	mutations := map[string]string{
		"uppercased":   strings.ToUpper(token),
		"one char off": flipped + token[1:],
		"truncated":    token[:len(token)-1],
		"padded":       token + "0",
	}
	for name, candidate := range mutations {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set(testSessionHeader, "s1")
		req.Header.Set(csrf.HeaderName, candidate)
		_, err := doRequest(e, handler, req)

		var csrfErr *csrf.Error
		require.ErrorAs(t, err, &csrfErr, name)
		assert.Equal(t, csrf.KindInvalidToken, csrfErr.Kind, name)
	}
}

// Without a session key an unsafe request always fails, even with a
// well-formed token, and before any token comparison happens.
func TestMissingSessionKeyRejects(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	token := issueToken(t, e, handler, "s1")

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(csrf.HeaderName, token) // no session header
	_, err := doRequest(e, handler, req)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindMissingCredentials, csrfErr.Kind)
}

func TestMissingTokenRejects(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	issueToken(t, e, handler, "s1")

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set(testSessionHeader, "s1")
	_, err := doRequest(e, handler, req)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindMissingCredentials, csrfErr.Kind)
}

// Every safe request re-issues. The second GET invalidates the first
// token — the known multi-tab weakness: two tabs issuing GETs race to
// overwrite each other's token and the earlier tab's form goes stale.
func TestSafeReissueInvalidatesPreviousToken(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()
	e, handler := newGuardHandler(csrf.Config{Store: store})

	first := issueToken(t, e, handler, "s1")
	second := issueToken(t, e, handler, "s1")
	require.NotEqual(t, first, second)

	stale := httptest.NewRequest(http.MethodPost, "/submit", nil)
	stale.Header.Set(testSessionHeader, "s1")
	stale.Header.Set(csrf.HeaderName, first)
	_, err := doRequest(e, handler, stale)

	var csrfErr *csrf.Error
	require.ErrorAs(t, err, &csrfErr)
	assert.Equal(t, csrf.KindInvalidToken, csrfErr.Kind)

	fresh := httptest.NewRequest(http.MethodPost, "/submit", nil)
	fresh.Header.Set(testSessionHeader, "s1")
	fresh.Header.Set(csrf.HeaderName, second)
	_, err = doRequest(e, handler, fresh)
	assert.NoError(t, err)
}

func TestSessionlessSafeRequestFallback(t *testing.T) {
	t.Run("legacy fallback mints a throwaway key", func(t *testing.T) {
		store := csrf.NewMemoryStore()
		defer store.Stop()
		e, handler := newGuardHandler(csrf.Config{Store: store})

		req := httptest.NewRequest(http.MethodGet, "/", nil) // no session header
		rec, err := doRequest(e, handler, req)

		require.NoError(t, err)
		issuedCookie(t, rec) // a token was still issued...
		assert.Equal(t, 1, store.Len(), "...bound to a key the client never learns")
	})

	t.Run("RequireSession fails closed", func(t *testing.T) {
		store := csrf.NewMemoryStore()
		defer store.Stop()
		e, handler := newGuardHandler(csrf.Config{Store: store, RequireSession: true})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec, err := doRequest(e, handler, req)

		require.NoError(t, err, "safe requests are still never blocked")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, 0, store.Len())
	})
}

func TestObservabilityHooks(t *testing.T) {
	store := csrf.NewMemoryStore()
	defer store.Stop()

	var issued int
	var rejected []csrf.Kind
	e, handler := newGuardHandler(csrf.Config{
		Store:         store,
		ObserveIssue:  func() { issued++ },
		ObserveReject: func(k csrf.Kind) { rejected = append(rejected, k) },
	})

	token := issueToken(t, e, handler, "s1")

	bad := httptest.NewRequest(http.MethodPost, "/submit", nil)
	bad.Header.Set(testSessionHeader, "s1")
	bad.Header.Set(csrf.HeaderName, "wrong")
	_, err := doRequest(e, handler, bad)
	require.Error(t, err)

	good := httptest.NewRequest(http.MethodPost, "/submit", nil)
	good.Header.Set(testSessionHeader, "s1")
	good.Header.Set(csrf.HeaderName, token)
	_, err = doRequest(e, handler, good)
	require.NoError(t, err)

	assert.Equal(t, 2, issued, "one GET issue, one rotation")
	assert.Equal(t, []csrf.Kind{csrf.KindInvalidToken}, rejected)
}

func TestGuardRequiresStore(t *testing.T) {
	assert.Panics(t, func() {
		csrf.Guard(csrf.Config{})
	})
}

func TestErrorsAreTagged(t *testing.T) {
	err := error(&csrf.Error{Kind: csrf.KindMissingCredentials})

	var csrfErr *csrf.Error
	require.True(t, errors.As(err, &csrfErr))
	assert.Equal(t, "EBADCSRFTOKEN: missing credentials", csrfErr.Error())
}
