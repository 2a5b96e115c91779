package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidCursor is returned when a continuation token cannot be decoded
	ErrInvalidCursor = errors.New("invalid continuation token")

	// ErrCursorMismatch is returned when a cursor is replayed with a different ordering
	ErrCursorMismatch = fmt.Errorf("%w: issued for a different sort or order", ErrInvalidCursor)
)

// Cursor is the position after the last job of a page
type Cursor struct {
	Sort  SortKey
	Order Order
	Value time.Time
	ID    string
}

// After reports whether (value, id) lies strictly after the cursor position
// in the cursor's ordering
func (c *Cursor) After(value time.Time, id string) bool {
	cmp := value.Compare(c.Value)
	if cmp == 0 {
		cmp = strings.Compare(id, c.ID)
	}
	if c.Order == OrderAsc {
		return cmp > 0
	}
	return cmp < 0
}

// EncodeCursor turns a cursor into an opaque continuation token
func EncodeCursor(cursor *Cursor) string {
	if cursor == nil {
		return ""
	}
	cs := fmt.Sprintf("%s|%s|%s|%s", cursor.Sort, cursor.Order, cursor.Value.UTC().Format(time.RFC3339Nano), cursor.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}

// DecodeCursor parses a continuation token. An empty token means "first page".
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	// id is last so it may itself contain separators
	parts := strings.SplitN(string(decoded), "|", 4)
	if len(parts) != 4 || parts[3] == "" {
		return nil, fmt.Errorf("%w: malformed token", ErrInvalidCursor)
	}

	sort := SortKey(parts[0])
	order := Order(parts[1])
	if !sort.Valid() || !order.Valid() {
		return nil, fmt.Errorf("%w: unknown ordering", ErrInvalidCursor)
	}

	value, err := time.Parse(time.RFC3339Nano, parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad position: %v", ErrInvalidCursor, err)
	}

	return &Cursor{
		Sort:  sort,
		Order: order,
		Value: value.UTC(),
		ID:    parts[3],
	}, nil
}
