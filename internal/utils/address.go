package utils

import (
	"net/mail"
	"strings"
)

// SenderAddress extracts the bare address from a From header value such as
// `"Jane" <jane@example.com>`. Unparseable values are returned trimmed.
func SenderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.Trim(from, "<>")
	}
	return addr.Address
}

// SenderDomain returns the lowercased domain of an address, or "" if it has none
func SenderDomain(sender string) string {
	addr := SenderAddress(sender)
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}
