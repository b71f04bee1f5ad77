package scope

import (
	"context"
	"slices"
	"sync"
)

// StaticDirectory is an in-memory Directory. It is used by tests, the CLI and
// applications that keep group membership elsewhere and push it in.
type StaticDirectory struct {
	mu         sync.RWMutex
	groups     map[string][]string
	currencies map[string]string
}

// NewStaticDirectory creates an empty StaticDirectory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		groups:     make(map[string][]string),
		currencies: make(map[string]string),
	}
}

// SetGroup replaces the members of a group. A non-empty currency pins the
// group to that currency for settlements.
func (d *StaticDirectory) SetGroup(groupID, currency string, members ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := slices.Clone(members)
	slices.Sort(m)
	d.groups[groupID] = slices.Compact(m)
	if currency != "" {
		d.currencies[groupID] = currency
	} else {
		delete(d.currencies, groupID)
	}
}

// RemoveGroup forgets a group.
func (d *StaticDirectory) RemoveGroup(groupID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, groupID)
	delete(d.currencies, groupID)
}

// Roster implements Directory.
func (d *StaticDirectory) Roster(_ context.Context, s Scope) (*Roster, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Kind == KindPersonal {
		return &Roster{Scope: s, Members: slices.Clone(s.Members)}, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	members, ok := d.groups[s.GroupID]
	if !ok {
		return nil, ErrUnknown
	}
	return &Roster{
		Scope:    s,
		Members:  slices.Clone(members),
		Currency: d.currencies[s.GroupID],
	}, nil
}

// SharedGroups implements Directory. Results are sorted by group id.
func (d *StaticDirectory) SharedGroups(_ context.Context, a, b string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for gid, members := range d.groups {
		if slices.Contains(members, a) && slices.Contains(members, b) {
			out = append(out, gid)
		}
	}
	slices.Sort(out)
	return out, nil
}
