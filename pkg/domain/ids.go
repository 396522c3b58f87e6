// Package domain defines the typed identifiers and closed enumerations shared
// across the engine. IDs wrap uuid.UUID so a grant ID can never be passed
// where an escalation event ID is expected.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

type (
	// GrantID identifies a Smart POA grant.
	GrantID uuid.UUID
	// EventID identifies a break-glass escalation event.
	EventID uuid.UUID
	// EntryID identifies an audit ledger entry.
	EntryID uuid.UUID
)

// NewGrantID returns a fresh random GrantID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

// NewEventID returns a fresh random EventID.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewEntryID returns a fresh random EntryID.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

func (id GrantID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string { return uuid.UUID(id).String() }

func (id GrantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler so IDs serialize as canonical
// UUID strings in JSON payloads.
func (id GrantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *GrantID) UnmarshalText(b []byte) error {
	parsed, err := ParseGrantID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EntryID) UnmarshalText(b []byte) error {
	parsed, err := ParseEntryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer. The named UUID types do not inherit the
// underlying type's driver methods, so without these every SQL parameter
// would be rejected by the default converter.
func (id GrantID) Value() (driver.Value, error) { return id.String(), nil }
func (id EventID) Value() (driver.Value, error) { return id.String(), nil }
func (id EntryID) Value() (driver.Value, error) { return id.String(), nil }

func (id *GrantID) Scan(src any) error {
	u, err := scanUUID(src, "grant id")
	if err != nil {
		return err
	}
	*id = GrantID(u)
	return nil
}

func (id *EventID) Scan(src any) error {
	u, err := scanUUID(src, "event id")
	if err != nil {
		return err
	}
	*id = EventID(u)
	return nil
}

func (id *EntryID) Scan(src any) error {
	u, err := scanUUID(src, "entry id")
	if err != nil {
		return err
	}
	*id = EntryID(u)
	return nil
}

func scanUUID(src any, kind string) (uuid.UUID, error) {
	switch v := src.(type) {
	case string:
		return parse(v, kind)
	case []byte:
		return parse(string(v), kind)
	case nil:
		return uuid.Nil, nil
	default:
		return uuid.Nil, fmt.Errorf("cannot scan %T into %s", src, kind)
	}
}

// ParseGrantID parses a canonical UUID string into a GrantID.
func ParseGrantID(s string) (GrantID, error) {
	u, err := parse(s, "grant id")
	return GrantID(u), err
}

// ParseEventID parses a canonical UUID string into an EventID.
func ParseEventID(s string) (EventID, error) {
	u, err := parse(s, "event id")
	return EventID(u), err
}

// ParseEntryID parses a canonical UUID string into an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parse(s, "entry id")
	return EntryID(u), err
}

func parse(s, kind string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", kind, s, err)
	}
	return u, nil
}
