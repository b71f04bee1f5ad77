package scope

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestPersonalIsOrderIndependent(t *testing.T) {
	a := Personal("bob", "alice")
	b := Personal("alice", "bob")

	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.PairKey() != "alice:bob" {
		t.Errorf("PairKey = %q", a.PairKey())
	}
	if Group("g1").PairKey() != "" {
		t.Error("group scope should have no pair key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"personal ok", Personal("a", "b"), false},
		{"personal same member", Personal("a", "a"), true},
		{"personal one member", Scope{Kind: KindPersonal, Members: []string{"a"}}, true},
		{"group ok", Group("g1"), false},
		{"group missing id", Group(""), true},
		{"unknown kind", Scope{Kind: "team"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	for _, s := range []Scope{Personal("x", "y"), Group("trip")} {
		got, err := ParseKey(s.Key())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", s.Key(), err)
		}
		if got.Key() != s.Key() {
			t.Errorf("round trip: %q != %q", got.Key(), s.Key())
		}
	}

	for _, bad := range []string{"", "group", "personal:solo", "team:x"} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q) expected error", bad)
		}
	}
}

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewStaticDirectory()
	d.SetGroup("g1", "INR", "c", "a", "b", "a")
	d.SetGroup("g2", "", "a", "b")
	d.SetGroup("g3", "", "a", "c")

	r, err := d.Roster(ctx, Group("g1"))
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if !slices.Equal(r.Members, []string{"a", "b", "c"}) {
		t.Errorf("members = %v", r.Members)
	}
	if r.Currency != "INR" || !r.Has("b") || r.Has("z") {
		t.Errorf("unexpected roster %+v", r)
	}

	if _, err := d.Roster(ctx, Group("missing")); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}

	p, err := d.Roster(ctx, Personal("b", "a"))
	if err != nil {
		t.Fatalf("personal Roster: %v", err)
	}
	if !slices.Equal(p.Members, []string{"a", "b"}) {
		t.Errorf("personal members = %v", p.Members)
	}

	shared, _ := d.SharedGroups(ctx, "a", "b")
	if !slices.Equal(shared, []string{"g1", "g2"}) {
		t.Errorf("SharedGroups = %v", shared)
	}
}
