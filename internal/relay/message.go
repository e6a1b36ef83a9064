package relay

import (
	"encoding/json"

	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/abdelrahman-a99/nucpa-front/internal/urlutil"
)

// Payload carries the freshly issued tokens from the OAuth callback
type Payload struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	User    json.RawMessage `json:"user,omitempty"`
}

// Pair returns the payload's credential pair
func (p Payload) Pair() cookie.Pair {
	return cookie.Pair{Access: p.Access, Refresh: p.Refresh}
}

// Message is the envelope posted from the callback window to its opener
type Message struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// ParseMessage decodes raw as a relay message of the given type. ok is false
// for anything else, including well-formed messages of other types and
// messages missing either token. Those are not errors: unrelated messages
// share the same channel.
func ParseMessage(raw []byte, messageType string) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}
	if msg.Type != messageType || !msg.Payload.Pair().Complete() {
		return Message{}, false
	}
	return msg, true
}

// OriginPolicy decides which window origins may deliver tokens
type OriginPolicy struct {
	// Backend lists the backend origins (dev and prod)
	Backend []string
	// App is the portal's own origin
	App string
}

// Allows reports whether a message from origin may be acted on
func (p OriginPolicy) Allows(origin string) bool {
	allowed := append([]string{p.App}, p.Backend...)
	return urlutil.MatchesOrigin(origin, allowed...)
}
