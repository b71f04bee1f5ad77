// Package scope identifies the closed expense set over which netting runs:
// one group, or one exact personal pair of members.
package scope

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind distinguishes personal-pair scopes from group scopes.
type Kind string

const (
	KindPersonal Kind = "personal"
	KindGroup    Kind = "group"
)

// ErrUnknown is returned by a Directory that has no roster for a scope.
var ErrUnknown = errors.New("scope: unknown scope")

// Scope identifies a closed expense set.
//
// A personal scope has no group and exactly two members. A group scope is
// identified by its group id alone.
type Scope struct {
	Kind    Kind     `json:"kind"`
	GroupID string   `json:"group_id,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Personal returns the personal scope of a and b.
func Personal(a, b string) Scope {
	m := []string{a, b}
	slices.Sort(m)
	return Scope{Kind: KindPersonal, Members: m}
}

// Group returns the scope of one group.
func Group(groupID string) Scope {
	return Scope{Kind: KindGroup, GroupID: groupID}
}

// Validate checks the shape of the scope.
func (s Scope) Validate() error {
	switch s.Kind {
	case KindPersonal:
		if len(s.Members) != 2 || s.Members[0] == "" || s.Members[1] == "" {
			return fmt.Errorf("scope: personal scope needs exactly two members")
		}
		if s.Members[0] == s.Members[1] {
			return fmt.Errorf("scope: personal scope members must differ")
		}
	case KindGroup:
		if s.GroupID == "" {
			return fmt.Errorf("scope: group scope needs a group id")
		}
	default:
		return fmt.Errorf("scope: unknown kind %q", s.Kind)
	}
	return nil
}

// PairKey returns the personal pair key for a personal scope and "" otherwise.
func (s Scope) PairKey() string {
	if s.Kind != KindPersonal || len(s.Members) != 2 {
		return ""
	}
	return PairKey(s.Members[0], s.Members[1])
}

// Key returns a stable string key for the scope, e.g. "group:g1" or
// "personal:alice:bob".
func (s Scope) Key() string {
	if s.Kind == KindGroup {
		return "group:" + s.GroupID
	}
	return "personal:" + s.PairKey()
}

func (s Scope) String() string { return s.Key() }

// PairKey returns the order-independent key of two members.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// ParseKey parses the output of Scope.Key.
func ParseKey(key string) (Scope, error) {
	kind, rest, ok := strings.Cut(key, ":")
	if !ok || rest == "" {
		return Scope{}, fmt.Errorf("scope: malformed key %q", key)
	}
	var s Scope
	switch Kind(kind) {
	case KindGroup:
		s = Group(rest)
	case KindPersonal:
		a, b, ok := strings.Cut(rest, ":")
		if !ok {
			return Scope{}, fmt.Errorf("scope: malformed pair key %q", rest)
		}
		s = Personal(a, b)
	default:
		return Scope{}, fmt.Errorf("scope: unknown kind %q", kind)
	}
	return s, s.Validate()
}

// Roster is the member list of a scope, plus its declared currency if any.
type Roster struct {
	Scope    Scope    `json:"scope"`
	Members  []string `json:"members"`
	Currency string   `json:"currency,omitempty"`
}

// Has reports whether member belongs to the roster.
func (r *Roster) Has(member string) bool {
	return slices.Contains(r.Members, member)
}

// Directory is the read-only view of the group/friend directory.
type Directory interface {
	// Roster returns the members of a scope. Personal scopes may be answered
	// without a lookup.
	Roster(ctx context.Context, s Scope) (*Roster, error)

	// SharedGroups lists the ids of groups both a and b belong to.
	SharedGroups(ctx context.Context, a, b string) ([]string, error)
}
