package auth

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

func newManager(secret string) *Manager {
	return NewManager(config.JWTConfig{Secret: secret, Issuer: "chat-relay"}, time.Hour)
}

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)
	m := newManager("s3cret")

	token, exp, err := m.Issue("alice")
	req.NoError(err)
	req.WithinDuration(time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Verify(token)
	req.NoError(err)
	req.Equal("alice", claims.Subject)
	req.Equal("alice", claims.Identity)
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	req := require.New(t)
	m := newManager("s3cret")

	other, _, err := newManager("different").Issue("alice")
	req.NoError(err)
	_, err = m.Verify(other)
	req.ErrorIs(err, utils.ErrUnauthorized)

	// Given a token issued two hours ago with a one hour lifetime
	old := newManager("s3cret")
	old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := old.Issue("alice")
	req.NoError(err)

	// Then verification fails
	_, err = m.Verify(stale)
	req.ErrorIs(err, utils.ErrUnauthorized)
}

func TestIssueRequiresSecretAndIdentity(t *testing.T) {
	req := require.New(t)

	_, _, err := newManager("").Issue("alice")
	req.ErrorIs(err, utils.ErrServiceUnavailable)

	_, _, err = newManager("s3cret").Issue("")
	req.ErrorIs(err, utils.ErrBadRequest)
}

func TestParseBearerToken(t *testing.T) {
	req := require.New(t)

	tok, err := ParseBearerToken("Bearer abc")
	req.NoError(err)
	req.Equal("abc", tok)

	_, err = ParseBearerToken("")
	req.Error(err)
	_, err = ParseBearerToken("Basic abc")
	req.Error(err)
}

func subjectApp(m *Manager) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(m))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(Subject(c))
	})
	return app
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	m := newManager("s3cret")
	app := subjectApp(m)
	token, _, err := m.Issue("bob")
	req.NoError(err)

	r := httptest.NewRequest("GET", "/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(r)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	req.Equal("bob", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/whoami?token="+token, nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/whoami", nil))
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/whoami?token=garbage", nil))
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	req := require.New(t)
	app := subjectApp(newManager(""))

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	req.Empty(string(body))
}
