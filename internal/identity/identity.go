// Package identity models the stable name of a node in the peer network.
package identity

import (
	"fmt"
	"strings"
)

// ID is the domain name identifying a node (and the person behind it).
// IDs compare case-insensitively; the canonical form is lower case.
type ID string

// Parse normalizes and validates a raw identity string.
func Parse(raw string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty identity")
	}
	if strings.ContainsAny(s, " \t\n/\\") {
		return "", fmt.Errorf("invalid identity %q", raw)
	}
	if !strings.Contains(s, ".") {
		return "", fmt.Errorf("identity %q is not a domain name", raw)
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

// Equal compares two identities case-insensitively.
func (id ID) Equal(other ID) bool {
	return strings.EqualFold(string(id), string(other))
}
