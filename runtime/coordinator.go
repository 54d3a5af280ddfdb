// Package runtime orchestrates sessions: it validates inbound events,
// drives the presence registry, message store and typing tracker, and
// fans the resulting events out to the right connection sets. It
// contains no transport or storage logic of its own.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	apperrors "whisper/errors"

	"github.com/samber/lo"
)

// Coordinator is constructed once at process start; there is exactly
// one roster per process. It is safe for concurrent use by any number
// of sessions.
type Coordinator struct {
	log            *slog.Logger
	presence       contract.IPresenceRegistry
	messages       contract.IMessageRepository
	roster         contract.IRosterRepository
	typing         contract.ITypingTracker
	historyLimit   int
	persistTimeout time.Duration
}

func NewCoordinator(
	log *slog.Logger,
	presence contract.IPresenceRegistry,
	messages contract.IMessageRepository,
	roster contract.IRosterRepository,
	typing contract.ITypingTracker,
	historyLimit int,
	persistTimeout time.Duration,
) *Coordinator {
	return &Coordinator{
		log:            log.With(slog.String("component", "coordinator")),
		presence:       presence,
		messages:       messages,
		roster:         roster,
		typing:         typing,
		historyLimit:   historyLimit,
		persistTimeout: persistTimeout,
	}
}

// NewSession starts the per-connection state machine in Unauthenticated.
func (c *Coordinator) NewSession(conn contract.Connection) *Session {
	return NewSession(conn)
}

// Join validates the proposed username, binds the connection in the
// presence registry, sends the roster to the joining connection and
// broadcasts the updated roster to everyone. Validation failures reach
// the offending connection only and leave it Unauthenticated.
func (c *Coordinator) Join(ctx context.Context, s *Session, rawName string) {
	c.guard(ctx, s, "join", func() error {
		identity, err := domain.ParseIdentity(rawName)
		if err != nil {
			return err
		}
		if !s.bind(identity) {
			return apperrors.ErrAlreadyJoined
		}
		c.presence.Bind(identity, s.conn)
		c.log.Info("user joined", slog.String("identity", string(identity)))

		c.emit(ctx, s.conn, event.Roster{Users: c.presence.Roster()})
		c.broadcastRoster(ctx)
		return nil
	})
}

// Send persists the message and delivers it to every connection of the
// recipient, plus an echo to the sending connection. The echo is the
// sender's only acknowledgment, so a persistence failure must surface
// as a rejection instead of a silent drop.
func (c *Coordinator) Send(ctx context.Context, s *Session, to, text string) {
	c.guard(ctx, s, "send", func() error {
		from, err := c.boundIdentity(s)
		if err != nil {
			return err
		}
		recipient := strings.TrimSpace(to)
		if recipient == "" {
			return apperrors.ErrRecipientRequired
		}
		sanitized := sanitizeText(text)
		if sanitized == "" {
			return apperrors.ErrEmptyMessage
		}

		sctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
		defer cancel()
		msg, err := c.messages.Save(sctx, from, domain.Identity(recipient), sanitized)
		if err != nil {
			return err
		}

		ev := event.Message{ID: msg.ID, From: msg.From, To: msg.To, Text: msg.Text, At: msg.At}
		c.fanOut(ctx, c.presence.ConnectionsFor(msg.To), ev)
		c.emit(ctx, s.conn, ev)
		c.log.Info("message delivered",
			slog.String("from", string(msg.From)),
			slog.String("to", string(msg.To)))
		return nil
	})
}

// History replays the conversation with the other identity to the
// requesting connection only.
func (c *Coordinator) History(ctx context.Context, s *Session, other string) {
	c.guard(ctx, s, "history", func() error {
		identity, err := c.boundIdentity(s)
		if err != nil {
			return err
		}
		with := strings.TrimSpace(other)
		if with == "" {
			return apperrors.ErrRecipientRequired
		}

		sctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
		defer cancel()
		messages, err := c.messages.History(sctx, identity, domain.Identity(with), c.historyLimit)
		if err != nil {
			return err
		}
		c.emit(ctx, s.conn, event.History{With: with, Messages: toMessageEvents(messages)})
		return nil
	})
}

// Unread reports per-sender counts of messages newer than since to the
// requesting connection only.
func (c *Coordinator) Unread(ctx context.Context, s *Session, since time.Time) {
	c.guard(ctx, s, "unread", func() error {
		identity, err := c.boundIdentity(s)
		if err != nil {
			return err
		}
		sctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
		defer cancel()
		counts, err := c.messages.UnreadCounts(sctx, identity, since)
		if err != nil {
			return err
		}
		c.emit(ctx, s.conn, event.Unread{Counts: counts})
		return nil
	})
}

// Typing refreshes the sender's flag and signals the recipient's
// connections only: never the sender, never a broadcast. Unauthenticated
// or empty-recipient typing events are dropped silently, matching the
// advisory nature of the signal.
func (c *Coordinator) Typing(ctx context.Context, s *Session, to string) {
	c.signalTyping(ctx, s, to, true)
}

// StopTyping clears the flag and signals the recipient's connections.
func (c *Coordinator) StopTyping(ctx context.Context, s *Session, to string) {
	c.signalTyping(ctx, s, to, false)
}

func (c *Coordinator) signalTyping(ctx context.Context, s *Session, to string, start bool) {
	defer c.recoverPanic(ctx, s, "typing")

	identity := s.Identity()
	recipient := strings.TrimSpace(to)
	if s.State() != Bound || recipient == "" {
		return
	}
	target := domain.Identity(recipient)

	var ev event.Outbound
	if start {
		c.typing.Set(identity, target)
		ev = event.Typing{From: identity}
	} else {
		c.typing.Clear(identity, target)
		ev = event.StopTyping{From: identity}
	}
	c.fanOut(ctx, c.presence.ConnectionsFor(target), ev)
}

// Disconnect tears one connection down. It is idempotent and safe to
// call for a connection that never completed a join. When the identity
// went offline its last-seen timestamp is persisted and its outgoing
// typing flags dropped; every remaining connection gets a fresh roster.
func (c *Coordinator) Disconnect(ctx context.Context, s *Session) {
	defer c.recoverPanic(ctx, nil, "disconnect")

	if !s.close() {
		return
	}
	identity, ok := c.presence.Unbind(s.conn.ID())
	if !ok {
		return
	}
	c.typing.ClearFrom(identity)

	if rec, found := c.presence.Record(identity); found && !rec.Online && rec.LastSeen != nil {
		if err := c.roster.Touch(ctx, identity, *rec.LastSeen); err != nil {
			c.log.Warn("failed to persist last seen",
				slog.String("identity", string(identity)),
				slog.Any("error", err))
		}
	}
	c.log.Info("user disconnected", slog.String("identity", string(identity)))
	c.broadcastRoster(ctx)
}

// Shutdown notifies every remaining connection that the process is
// going away. The registry itself lives and dies with the process.
func (c *Coordinator) Shutdown(ctx context.Context) {
	conns := c.presence.Connections()
	c.log.Info("shutting down", slog.Int("connections", len(conns)))
	for _, conn := range conns {
		c.emit(ctx, conn, event.Rejection{Reason: "server shutting down"})
	}
}

// Reject reports a transport-level problem (malformed or unknown frame)
// to the offending connection only.
func (c *Coordinator) Reject(ctx context.Context, s *Session, reason string) {
	c.emit(ctx, s.conn, event.Rejection{Reason: reason})
}

// fanOut delivers one event to every sink in the set. Delivery is
// best-effort per connection: one dead or saturated sink must not keep
// the others from receiving the event.
func (c *Coordinator) fanOut(ctx context.Context, sinks []contract.Connection, ev event.Outbound) {
	for _, sink := range sinks {
		c.emit(ctx, sink, ev)
	}
}

func (c *Coordinator) emit(ctx context.Context, sink contract.EventSink, ev event.Outbound) {
	if err := sink.Consume(ctx, ev); err != nil {
		c.log.Debug("event delivery failed",
			slog.String("event", ev.Name()),
			slog.Any("error", err))
	}
}

func (c *Coordinator) broadcastRoster(ctx context.Context) {
	c.fanOut(ctx, c.presence.Connections(), event.Roster{Users: c.presence.Roster()})
}

func (c *Coordinator) boundIdentity(s *Session) (domain.Identity, error) {
	if s.State() != Bound {
		return "", apperrors.ErrAuthRequired
	}
	return s.Identity(), nil
}

// guard is the connection boundary: handler errors become a rejection
// event on the offending connection and panics are contained there too.
// Nothing that happens inside a handler may terminate other sessions or
// the process.
func (c *Coordinator) guard(ctx context.Context, s *Session, name string, fn func() error) {
	defer c.recoverPanic(ctx, s, name)
	if err := fn(); err != nil {
		c.reject(ctx, s, name, err)
	}
}

func (c *Coordinator) recoverPanic(ctx context.Context, s *Session, name string) {
	if r := recover(); r != nil {
		c.log.Error("handler panic",
			slog.String("event", name),
			slog.Any("panic", r))
		if s != nil {
			c.emit(ctx, s.conn, event.Rejection{Reason: "internal error"})
		}
	}
}

func (c *Coordinator) reject(ctx context.Context, s *Session, name string, err error) {
	c.log.Warn("event rejected",
		slog.String("event", name),
		slog.Any("error", err))
	c.emit(ctx, s.conn, event.Rejection{Reason: reasonFor(err)})
}

// reasonFor maps an error to the user-facing rejection reason. Internal
// details of persistence failures stay out of the payload.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrPersistence):
		return "failed to reach the message store"
	case errors.Is(err, apperrors.ErrIdentityLength),
		errors.Is(err, apperrors.ErrIdentityCharset),
		errors.Is(err, apperrors.ErrAuthRequired),
		errors.Is(err, apperrors.ErrAlreadyJoined),
		errors.Is(err, apperrors.ErrRecipientRequired),
		errors.Is(err, apperrors.ErrEmptyMessage):
		return err.Error()
	default:
		return fmt.Sprintf("request failed: %v", err)
	}
}

// sanitizeText trims the inbound text and neutralizes characters that
// are unsafe to render, before anything is persisted or echoed back.
// Escaping happens at this boundary, never inside the store.
func sanitizeText(text string) string {
	return html.EscapeString(strings.TrimSpace(text))
}

func toMessageEvents(messages []domain.Message) []event.Message {
	return lo.Map(messages, func(m domain.Message, _ int) event.Message {
		return event.Message{ID: m.ID, From: m.From, To: m.To, Text: m.Text, At: m.At}
	})
}
