package accesslist

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type distinguishes the two lists.
type Type string

const (
	// TypeAllow bypasses rate limits for matching identities.
	TypeAllow Type = "allow"

	// TypeDeny rejects matching identities outright.
	TypeDeny Type = "deny"
)

// Valid reports whether t is a known list type.
func (t Type) Valid() bool {
	return t == TypeAllow || t == TypeDeny
}

// ErrInvalidType is returned for a list type other than allow or deny.
var ErrInvalidType = fmt.Errorf("invalid access list type")

// Entry is one allow or deny rule.
type Entry struct {
	// ID uniquely identifies the entry.
	ID uuid.UUID `json:"id"`

	// List is which list the entry belongs to.
	List Type `json:"list"`

	// Pattern is the identity to match. A trailing "*" makes it a prefix
	// pattern; anything else matches exactly.
	Pattern string `json:"pattern"`

	// Reason records why the entry was added.
	Reason string `json:"reason,omitempty"`

	// AddedBy records who added the entry ("janitor", an operator name,
	// or "penalty" for automatic ban promotion).
	AddedBy string `json:"addedBy,omitempty"`

	// AddedAt is when the entry was created.
	AddedAt time.Time `json:"addedAt"`
}

// Matches reports whether the entry's pattern covers identity.
func (e Entry) Matches(identity string) bool {
	if prefix, ok := strings.CutSuffix(e.Pattern, "*"); ok {
		return strings.HasPrefix(identity, prefix)
	}
	return e.Pattern == identity
}
