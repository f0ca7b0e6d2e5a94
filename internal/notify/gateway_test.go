package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/claims-service/internal/models"
)

type tokenTable map[string]*models.User

func (t tokenTable) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

func newGatewayServer(t *testing.T) (*Hub, *Gateway, *httptest.Server) {
	t.Helper()
	hub := NewHub(8, testLogger())
	users := tokenTable{
		"patient-a": {ID: "a", Role: models.RolePatient},
		"insurer":   {ID: "i", Role: models.RoleInsurer},
	}
	gw := NewGateway(hub, users, []string{"http://localhost:5173"}, testLogger())
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return hub, gw, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func waitSubscribed(t *testing.T, hub *Hub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(topic) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayRejectsUnauthenticated(t *testing.T) {
	_, _, srv := newGatewayServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayWelcomeAndForward(t *testing.T) {
	hub, gw, srv := newGatewayServer(t)

	conn := dial(t, srv, "insurer")
	welcome := readEvent(t, conn)
	assert.Equal(t, models.EventWelcome, welcome.Type)
	assert.Equal(t, "i", welcome.UserID)
	waitSubscribed(t, hub, TopicClaims, 1)
	assert.Equal(t, 1, gw.Connections())

	claim := &models.Claim{ID: "c1", PatientID: "a", Status: models.StatusPending}
	require.NoError(t, hub.Publish(context.Background(), TopicClaims, models.Event{
		Type: models.EventClaimCreated, Claim: claim, UserID: "a",
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, models.EventClaimCreated, ev.Type)
	require.NotNil(t, ev.Claim)
	assert.Equal(t, "c1", ev.Claim.ID)
}

func TestGatewayScopesPatients(t *testing.T) {
	hub, _, srv := newGatewayServer(t)

	conn := dial(t, srv, "patient-a")
	readEvent(t, conn)
	waitSubscribed(t, hub, TopicClaims, 1)
	waitSubscribed(t, hub, UserTopic("a"), 1)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, TopicClaims, models.Event{Type: models.EventClaimCreated, ClaimID: "other", UserID: "b"}))
	require.NoError(t, hub.Publish(ctx, UserTopic("a"), models.Event{Type: "reminder"}))
	require.NoError(t, hub.Publish(ctx, TopicClaims, models.Event{Type: models.EventClaimDeleted, ClaimID: "mine", UserID: "a"}))

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	got := []string{first.Type, second.Type}
	assert.ElementsMatch(t, []string{"reminder", models.EventClaimDeleted}, got)
}

func TestGatewayCheckOrigin(t *testing.T) {
	_, _, srv := newGatewayServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=insurer"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestVisibleTo(t *testing.T) {
	patient := &models.User{ID: "a", Role: models.RolePatient}
	insurer := &models.User{ID: "i", Role: models.RoleInsurer}

	assert.True(t, visibleTo(models.Event{UserID: "a"}, patient))
	assert.False(t, visibleTo(models.Event{UserID: "b"}, patient))
	assert.True(t, visibleTo(models.Event{}, patient))
	assert.True(t, visibleTo(models.Event{UserID: "b"}, insurer))
}
