package domain

import (
	"errors"
	"strings"
	"testing"
	apperrors "whisper/errors"

	"github.com/stretchr/testify/require"
)

func TestParseIdentity_Valid(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{"alice", "Bob-42", "under_score", "ab", strings.Repeat("x", 32)} {
		identity, err := ParseIdentity(raw)
		req.NoError(err, raw)
		req.Equal(Identity(raw), identity)
	}
}

func TestParseIdentity_TrimsWhitespace(t *testing.T) {
	req := require.New(t)

	identity, err := ParseIdentity("  alice \n")
	req.NoError(err)
	req.Equal(Identity("alice"), identity)
}

func TestParseIdentity_LengthErrors(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{"", "   ", "a", strings.Repeat("x", 33)} {
		_, err := ParseIdentity(raw)
		req.ErrorIs(err, apperrors.ErrIdentityLength, "%q", raw)
	}
}

func TestParseIdentity_CharsetErrors(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{"al ice", "bob!", "café", "a#b", "semi;colon"} {
		_, err := ParseIdentity(raw)
		req.ErrorIs(err, apperrors.ErrIdentityCharset, "%q", raw)
	}
}

func TestParseIdentity_ErrorsAreDistinguishable(t *testing.T) {
	req := require.New(t)

	_, lengthErr := ParseIdentity("a")
	_, charsetErr := ParseIdentity("a b")
	req.False(errors.Is(lengthErr, apperrors.ErrIdentityCharset))
	req.False(errors.Is(charsetErr, apperrors.ErrIdentityLength))
}
