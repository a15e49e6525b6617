package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"playroom/internal/config"
	"playroom/internal/store/memstore"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		JWTSecret:            "test-secret",
		StoreBackend:         config.BackendMemory,
		Env:                  "test",
		PresenceGraceSeconds: 30,
		TypingIdleMillis:     50,
	}
}

func newTestApp(t *testing.T) (*fiber.App, *Server) {
	t.Helper()
	s := NewServer(testConfig(), memstore.New())
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return respondError(c, err)
		},
	})
	s.SetupRoutes(app)
	t.Cleanup(func() { s.presence.Stop() })
	return app, s
}

// doJSON performs a request against the app and decodes the JSON response.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.StatusCode != http.StatusNoContent {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

// login signs a user in and returns their bearer token.
func login(t *testing.T, app *fiber.App, uid, username string) string {
	t.Helper()
	status, body := doJSON(t, app, "POST", "/api/auth/login", "", map[string]any{
		"uid":      uid,
		"username": username,
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// befriendViaAPI runs the full request/accept handshake between two users.
func befriendViaAPI(t *testing.T, app *fiber.App, tokenA, tokenB, uidB string) {
	t.Helper()
	status, body := doJSON(t, app, "POST", "/api/friends/requests", tokenA, map[string]any{"to": uidB})
	require.Equal(t, http.StatusCreated, status)
	reqID, _ := body["id"].(string)
	require.NotEmpty(t, reqID)

	status, _ = doJSON(t, app, "POST", "/api/friends/requests/"+reqID+"/accept", tokenB, nil)
	require.Equal(t, http.StatusNoContent, status)
}
