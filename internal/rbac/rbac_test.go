package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleOwner, ActionView, true},
		{RoleOwner, ActionComment, true},
		{RoleOwner, ActionEdit, true},
		{RoleOwner, ActionEnd, true},
		{RoleEditor, ActionView, true},
		{RoleEditor, ActionComment, true},
		{RoleEditor, ActionEdit, true},
		{RoleEditor, ActionEnd, false},
		{RoleCommenter, ActionView, true},
		{RoleCommenter, ActionComment, true},
		{RoleCommenter, ActionEdit, false},
		{RoleViewer, ActionView, true},
		{RoleViewer, ActionComment, false},
		{RoleViewer, ActionEdit, false},
		{Role("unknown"), ActionView, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Errorf("expected editor to normalize to editor")
	}
	if Normalize("") != RoleViewer {
		t.Errorf("expected empty role to normalize to viewer")
	}
	if Normalize("superuser") != RoleViewer {
		t.Errorf("expected unknown role to normalize to viewer")
	}
}
