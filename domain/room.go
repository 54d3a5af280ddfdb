package domain

// roomSeparator joins the two identities of a private conversation.
// It is not a legal identity character, so ("ab","c") and ("a","bc")
// can never derive the same key.
const roomSeparator = "#"

// RoomKey returns the canonical conversation key for an unordered pair
// of identities: RoomKey(a, b) == RoomKey(b, a). Pure and deterministic,
// so keys are stable across process restarts.
func RoomKey(a, b Identity) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + roomSeparator + string(b)
}
