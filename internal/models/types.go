package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the media category of a watchlist item
type Kind string

// Media kinds
const (
	KindMovie Kind = "movie"
	KindShow  Kind = "show"
)

// Kinds lists every supported media kind
var Kinds = []Kind{KindMovie, KindShow}

// ParseKind converts a client supplied kind into a Kind.
// "tv" is accepted as an alias for show, matching TMDB's media_type.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie":
		return KindMovie, nil
	case "show", "tv":
		return KindShow, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

// Valid reports whether k is a supported kind
func (k Kind) Valid() bool {
	return k == KindMovie || k == KindShow
}

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// StringList is an ordered set of strings persisted as a JSON array
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for string list", src)
	}

	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*l = out
	return nil
}

// Contains reports whether s is in the list
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// With returns a copy of the list with s appended unless already present
func (l StringList) With(s string) StringList {
	if l.Contains(s) {
		return append(StringList{}, l...)
	}
	out := make(StringList, 0, len(l)+1)
	out = append(out, l...)
	return append(out, s)
}

// Without returns a copy of the list with every occurrence of s removed
func (l StringList) Without(s string) StringList {
	out := make(StringList, 0, len(l))
	for _, v := range l {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
