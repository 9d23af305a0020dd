package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/api/internal/model"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func receive(t *testing.T, c *Client) model.WSEventMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg model.WSEventMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return model.WSEventMessage{}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_EmitToUserAddressesOnlyThatUser(t *testing.T) {
	h := newTestHub(t)

	a1 := NewClient("alice", nil)
	a2 := NewClient("alice", nil)
	b := NewClient("bob", nil)
	h.Register(a1)
	h.Register(a2)
	h.Register(b)

	h.EmitToUser("alice", model.EventGenerationCompleted, model.GenerationCompletedPayload{ContentID: "c1"})

	for _, c := range []*Client{a1, a2} {
		msg := receive(t, c)
		assert.Equal(t, model.EventGenerationCompleted, msg.Event)
		data, _ := msg.Data.(map[string]interface{})
		assert.Equal(t, "c1", data["contentId"])
	}
	assertNoMessage(t, b)
}

func TestHub_EmitToUserWithoutConnectionsIsNoop(t *testing.T) {
	h := newTestHub(t)
	assert.NotPanics(t, func() {
		h.EmitToUser("ghost", model.EventGenerationStarted, map[string]string{})
	})
	assert.Equal(t, 0, h.UserConnections("ghost"))
}

func TestHub_UnregisterDropsEmptyGroup(t *testing.T) {
	h := newTestHub(t)

	c1 := NewClient("alice", nil)
	c2 := NewClient("alice", nil)
	h.Register(c1)
	h.Register(c2)
	assert.Equal(t, 2, h.UserConnections("alice"))

	h.Unregister(c1)
	assert.Equal(t, 1, h.UserConnections("alice"))

	h.Unregister(c2)
	assert.Equal(t, 0, h.UserConnections("alice"))

	// A second unregister is harmless
	h.Unregister(c2)

	_, ok := <-c1.Send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h := newTestHub(t)

	c := NewClient("alice", nil)
	h.Register(c)
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.trySend([]byte("x")))
	}

	h.EmitToUser("alice", model.EventGenerationStarted, map[string]string{})

	assert.Eventually(t, func() bool {
		return h.UserConnections("alice") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHub_RunClosesClientsOnShutdown(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient("alice", nil)
	h.Register(c)
	cancel()
	<-done

	assert.Equal(t, 0, h.UserConnections("alice"))
	assert.False(t, c.trySend([]byte("x")))
}

type fakeValidator struct {
	users map[string]string
}

func (f fakeValidator) ValidateToken(token string) (string, error) {
	if id, ok := f.users[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func setupUpgradeApp() *fiber.App {
	app := fiber.New()
	app.Use("/ws", UpgradeMiddleware(fakeValidator{users: map[string]string{"good": "u1"}}))
	app.Get("/ws", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("userId").(string))
	})
	return app
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	return req
}

func TestUpgradeMiddleware(t *testing.T) {
	app := setupUpgradeApp()

	t.Run("not an upgrade", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := app.Test(upgradeRequest("/ws"))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		resp, err := app.Test(upgradeRequest("/ws?token=bad"))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("query token", func(t *testing.T) {
		resp, err := app.Test(upgradeRequest("/ws?token=good"))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "u1", string(body))
	})

	t.Run("bearer header", func(t *testing.T) {
		req := upgradeRequest("/ws")
		req.Header.Set("Authorization", "Bearer good")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
