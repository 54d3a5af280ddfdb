package transport

import (
	"encoding/json"
	"fmt"
	"time"
	"whisper/domain"
	"whisper/domain/event"

	"github.com/samber/lo"
)

// Wire format: {"event": <name>, "payload": {...}}. Event names follow
// the protocol the web client already speaks (user:join,
// private:message, ...); payload field names are the client's too.

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type wireRosterEntry struct {
	Username string  `json:"username"`
	Online   bool    `json:"online"`
	LastSeen *string `json:"lastSeen"`
}

type wireRoster struct {
	Users []wireRosterEntry `json:"users"`
}

type wireMessage struct {
	ID        uint64 `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type wireHistory struct {
	With     string        `json:"with"`
	Messages []wireMessage `json:"messages"`
}

type wireTyping struct {
	From string `json:"from"`
}

type wireUnread struct {
	Counts map[string]int `json:"counts"`
}

type wireError struct {
	Message string `json:"message"`
}

func encodeFrame(e event.Outbound) ([]byte, error) {
	var payload any
	switch ev := e.(type) {
	case event.Roster:
		payload = wireRoster{Users: toWireRoster(ev.Users)}
	case event.Message:
		payload = toWireMessage(ev)
	case event.History:
		payload = wireHistory{
			With:     ev.With,
			Messages: lo.Map(ev.Messages, func(m event.Message, _ int) wireMessage { return toWireMessage(m) }),
		}
	case event.Typing:
		payload = wireTyping{From: string(ev.From)}
	case event.StopTyping:
		payload = wireTyping{From: string(ev.From)}
	case event.Unread:
		payload = wireUnread{Counts: ev.Counts}
	case event.Rejection:
		payload = wireError{Message: ev.Reason}
	default:
		return nil, fmt.Errorf("unknown outbound event %T", e)
	}
	return json.Marshal(envelope{Event: e.Name(), Payload: payload})
}

func toWireMessage(m event.Message) wireMessage {
	return wireMessage{
		ID:        m.ID,
		From:      string(m.From),
		To:        string(m.To),
		Text:      m.Text,
		Timestamp: m.At.UTC().Format(time.RFC3339Nano),
	}
}

func toWireRoster(entries []domain.RosterEntry) []wireRosterEntry {
	return lo.Map(entries, func(e domain.RosterEntry, _ int) wireRosterEntry {
		var lastSeen *string
		if e.LastSeen != nil {
			lastSeen = lo.ToPtr(e.LastSeen.UTC().Format(time.RFC3339Nano))
		}
		return wireRosterEntry{
			Username: string(e.Username),
			Online:   e.Online,
			LastSeen: lastSeen,
		}
	})
}
