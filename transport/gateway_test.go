package transport

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"whisper/domain/event"
	"whisper/presence"
	"whisper/repositories"
	"whisper/runtime"
	"whisper/typing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordingConn struct {
	id uuid.UUID

	mu     sync.Mutex
	events []event.Outbound
}

func newRecordingConn() *recordingConn { return &recordingConn{id: uuid.New()} }

func (c *recordingConn) ID() uuid.UUID { return c.id }

func (c *recordingConn) Consume(_ context.Context, e event.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConn) byName(name string) []event.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Outbound
	for _, e := range c.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	messages, err := repositories.NewMessageRepository(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = messages.Close() })

	coordinator := runtime.NewCoordinator(
		slog.Default(),
		presence.NewRegistry(slog.Default()),
		messages,
		repositories.NewRosterRepository(db),
		typing.NewTracker(3*time.Second, time.Now),
		100,
		time.Second,
	)
	return NewGateway(slog.Default(), coordinator, GatewayConfig{
		SendBufferSize: 16,
		ReadTimeout:    time.Minute,
	})
}

func TestGateway_DispatchJoinThenSend(t *testing.T) {
	req := require.New(t)
	g := newTestGateway(t)
	ctx := context.Background()

	alice := newRecordingConn()
	aliceSession := g.coordinator.NewSession(alice)
	bob := newRecordingConn()
	bobSession := g.coordinator.NewSession(bob)

	g.dispatch(ctx, aliceSession, []byte(`{"event":"user:join","payload":{"username":"alice"}}`))
	g.dispatch(ctx, bobSession, []byte(`{"event":"user:join","payload":{"username":"bob"}}`))
	req.Equal(runtime.Bound, aliceSession.State())
	req.Equal(runtime.Bound, bobSession.State())

	g.dispatch(ctx, aliceSession, []byte(`{"event":"private:message","payload":{"to":"bob","text":"hi"}}`))

	req.Len(bob.byName("private:message"), 1)
	req.Len(alice.byName("private:message"), 1)
	req.Empty(alice.byName("error"))

	g.dispatch(ctx, aliceSession, []byte(`{"event":"message:history","payload":{"with":"bob"}}`))
	histories := alice.byName("message:history")
	req.Len(histories, 1)
	req.Len(histories[0].(event.History).Messages, 1)
}

func TestGateway_DispatchRejectsMalformedFrames(t *testing.T) {
	req := require.New(t)
	g := newTestGateway(t)
	ctx := context.Background()

	conn := newRecordingConn()
	session := g.coordinator.NewSession(conn)

	g.dispatch(ctx, session, []byte(`{not json`))
	g.dispatch(ctx, session, []byte(`{"event":"no:such:event","payload":{}}`))
	// A numeric recipient is not a string and must be rejected
	g.dispatch(ctx, session, []byte(`{"event":"user:join","payload":{"username":"alice"}}`))
	g.dispatch(ctx, session, []byte(`{"event":"private:message","payload":{"to":42,"text":"hi"}}`))

	rejections := conn.byName("error")
	req.Len(rejections, 3)
	req.Equal(runtime.Bound, session.State())
}

func TestGateway_HealthEndpoint(t *testing.T) {
	req := require.New(t)
	g := newTestGateway(t)

	server := httptest.NewServer(g.Handler())
	defer server.Close()

	res, err := server.Client().Get(server.URL + "/health")
	req.NoError(err)
	defer res.Body.Close()

	req.Equal(200, res.StatusCode)
	buf := make([]byte, 256)
	n, _ := res.Body.Read(buf)
	body := gjson.ParseBytes(buf[:n])
	req.Equal("ok", body.Get("status").String())
	req.NotEmpty(body.Get("timestamp").String())
}
