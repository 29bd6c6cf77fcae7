package core

import "strings"

// DefaultServer is the messaging domain assumed when a raw identifier
// carries no server part.
const DefaultServer = "s.whatsapp.net"

// NormalizeJID canonicalizes a raw participant identifier to
// "user@server": the ":device" suffix is stripped and a missing server
// defaults to DefaultServer. Every linked device of the same account maps
// to the same key. Ingest-adjacent reads and scoring must both use this.
func NormalizeJID(raw string) string {
	if raw == "" {
		return ""
	}
	user := raw
	server := DefaultServer
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		user = raw[:at]
		if at+1 < len(raw) {
			server = raw[at+1:]
		}
	}
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}
	return user + "@" + server
}

// LocalPart returns the user portion of a JID, device suffix stripped.
func LocalPart(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	if colon := strings.IndexByte(raw, ':'); colon >= 0 {
		raw = raw[:colon]
	}
	return raw
}
