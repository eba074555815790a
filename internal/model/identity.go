package model

import (
	"github.com/google/uuid"
)

// ConsoleName is the sender/recipient name reserved for the operator console
const ConsoleName = "Console"

// Identity is the stable 128-bit identifier of a player or the console
type Identity uuid.UUID

// ConsoleIdentity is the all-zero identity of the operator console
var ConsoleIdentity = Identity(uuid.Nil)

// NewIdentity returns a random identity
func NewIdentity() Identity {
	return Identity(uuid.New())
}

// ParseIdentity parses the canonical string form of an identity
func ParseIdentity(s string) (Identity, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Identity{}, err
	}
	return Identity(u), nil
}

// MustParseIdentity is like ParseIdentity but panics on malformed input
func MustParseIdentity(s string) Identity {
	return Identity(uuid.MustParse(s))
}

// IsConsole reports whether the identity is the console sentinel
func (id Identity) IsConsole() bool {
	return id == ConsoleIdentity
}

// String returns the canonical hyphenated form
func (id Identity) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler
func (id Identity) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *Identity) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = Identity(u)
	return nil
}
