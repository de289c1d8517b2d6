package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiketi/config"
	"tiketi/internal/auth"
)

func TestHub_BroadcastByKey(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := NewClient("1:default", 1)
	b := NewClient("2:default", 2)
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.ClientCount())

	h.Broadcast("1:default", map[string]string{"state": "succeeded"})
	select {
	case msg := <-a.Send:
		assert.JSONEq(t, `{"state":"succeeded"}`, string(msg))
	default:
		t.Fatal("expected message for key 1:default")
	}
	assert.Len(t, b.Send, 0)

	a.Close()
	a.Close()
	assert.Equal(t, 1, h.ClientCount())
	h.Broadcast("1:default", "ignored")

	h.CloseAll()
	assert.Equal(t, 0, h.ClientCount())
}

func TestUpgradeCheckoutWS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s3cret", Issuer: "tiketi"}
	hub := NewHub(zerolog.Nop())
	r := gin.New()
	r.GET("/ws/checkout", UpgradeCheckoutWS(cfg, nil, hub, func(userID uint, instance string) interface{} {
		return map[string]interface{}{"type": "snapshot", "user": userID, "instance": instance}
	}))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/checkout"

	conn, _, err := websocket.DefaultDialer.Dial(base, nil)
	require.NoError(t, err)
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"token required"}`, string(msg))
	conn.Close()

	tok, err := auth.GenerateAccessToken(cfg, 9, "", "CUSTOMER", time.Minute)
	require.NoError(t, err)
	conn, _, err = websocket.DefaultDialer.Dial(base+"?token="+tok+"&instance=tab-1", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot","user":9,"instance":"tab-1"}`, string(msg))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast("9:tab-1", map[string]string{"type": "checkout"})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"checkout"}`, string(msg))
}
