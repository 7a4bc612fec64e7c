package calendar

import "testing"

func TestCheckPerm(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	cal.DenyUser("event.create", "u-blocked")
	cal.DenyRole("event.delete", "r-muted")

	tests := []struct {
		name    string
		node    string
		userID  string
		roles   []string
		isOwner bool
		want    bool
	}{
		{"owner bypasses user denial", "event.create", "u-blocked", nil, true, true},
		{"owner bypasses role denial", "event.delete", "u1", []string{"r-muted"}, true, true},
		{"denied user", "event.create", "u-blocked", nil, false, false},
		{"other user allowed", "event.create", "u-other", nil, false, true},
		{"denied role", "event.delete", "u1", []string{"r-muted"}, false, false},
		{"denied role among several", "event.delete", "u1", []string{"r-a", "r-muted", "r-b"}, false, false},
		{"unlisted role allowed", "event.delete", "u1", []string{"r-other"}, false, true},
		{"node without entry allows everyone", "event.list", "u-blocked", []string{"r-muted"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.CheckPerm(tt.node, tt.userID, tt.roles, tt.isOwner); got != tt.want {
				t.Fatalf("CheckPerm(%q, %q, %v, owner=%v) = %v, want %v",
					tt.node, tt.userID, tt.roles, tt.isOwner, got, tt.want)
			}
		})
	}
}

func TestDenyIsIdempotent(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	cal.DenyUser("event.create", "u1")
	cal.DenyUser("event.create", "u1")
	cal.DenyRole("event.create", "r1")
	cal.DenyRole("event.create", "r1")

	if len(cal.Permissions) != 1 {
		t.Fatalf("expected one entry, got %d", len(cal.Permissions))
	}
	entry := cal.Permissions[0]
	if len(entry.DeniedUsers) != 1 || len(entry.DeniedRoles) != 1 {
		t.Fatalf("denial lists grew on repeat: %+v", entry)
	}
}

func TestAllowRemovesDenial(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	cal.DenyUser("perms.show", "u1")
	cal.DenyRole("perms.show", "r1")

	cal.AllowUser("perms.show", "u1")
	cal.AllowRole("perms.show", "r1")

	if !cal.CheckPerm("perms.show", "u1", []string{"r1"}, false) {
		t.Fatal("user still denied after allow")
	}

	// Allowing on a node that was never denied is a no-op.
	cal.AllowUser("never.denied", "u1")
	if len(cal.Permissions) != 1 {
		t.Fatalf("allow created a phantom entry: %+v", cal.Permissions)
	}
}
