// Package jid normalizes messaging-network identities (JIDs).
//
// A JID has the form user@server; the user part of a personal JID may carry
// a device suffix ("1234:17@s.whatsapp.net") that must be stripped before the
// identity is compared, stored, or used as a map key.
package jid

import "strings"

const (
	// ServerUser is the server part of personal JIDs.
	ServerUser = "s.whatsapp.net"
	// ServerGroup is the server part of group JIDs.
	ServerGroup = "g.us"
)

// Normalize returns the canonical form of a JID: device suffix removed from
// the user part, server part lowercased. An empty or server-less input
// normalizes to "".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return ""
	}
	user := s[:at]
	server := strings.ToLower(s[at+1:])
	if server == "" {
		return ""
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	if user == "" {
		return ""
	}
	return user + "@" + server
}

// FromNumber converts a phone number in any textual form to a personal JID.
// Non-digit characters are ignored. Returns "" when no digits remain.
func FromNumber(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "@" + ServerUser
}

// IsGroup reports whether the JID addresses a group.
func IsGroup(j string) bool {
	return strings.HasSuffix(j, "@"+ServerGroup)
}

// Number returns the display form ("+digits") of a personal JID's user part.
// Falls back to the input when the user part holds no digits.
func Number(j string) string {
	user := j
	if at := strings.IndexByte(j, '@'); at >= 0 {
		user = j[:at]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	var b strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return j
	}
	return "+" + b.String()
}
