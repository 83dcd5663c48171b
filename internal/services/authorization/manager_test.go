package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/asakaida/yakuwari/internal/entities"
)

func TestManager_AddItem(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddItem(ctx, entities.NewRole("admin")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	// Duplicate names are rejected regardless of type
	if err := m.AddItem(ctx, entities.NewPermission("admin")); err == nil {
		t.Error("expected error for duplicate item name")
	}

	role, err := m.GetRole(ctx, "admin")
	if err != nil {
		t.Fatalf("GetRole failed: %v", err)
	}
	if role == nil || role.Type != entities.TypeRole {
		t.Errorf("expected role admin, got %+v", role)
	}

	// Type-filtered lookups return nil on a type mismatch
	if perm, _ := m.GetPermission(ctx, "admin"); perm != nil {
		t.Errorf("GetPermission(admin) = %+v, want nil", perm)
	}
	if role, _ := m.GetRole(ctx, "editPost"); role != nil {
		t.Errorf("GetRole(editPost) = %+v, want nil", role)
	}
	if role, _ := m.GetRole(ctx, "nonexistent"); role != nil {
		t.Errorf("GetRole(nonexistent) = %+v, want nil", role)
	}
}

func TestManager_GetRolesAndPermissions(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	for _, item := range []*entities.Item{
		entities.NewRole("admin"),
		entities.NewRole("author"),
		entities.NewPermission("editPost"),
	} {
		if err := m.AddItem(ctx, item); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}

	roles, err := m.GetRoles(ctx)
	if err != nil {
		t.Fatalf("GetRoles failed: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("expected 2 roles, got %d", len(roles))
	}

	permissions, err := m.GetPermissions(ctx)
	if err != nil {
		t.Fatalf("GetPermissions failed: %v", err)
	}
	if len(permissions) != 1 {
		t.Errorf("expected 1 permission, got %d", len(permissions))
	}
	if _, ok := permissions["editPost"]; !ok {
		t.Error("expected editPost in permissions")
	}
}

func TestManager_UpdateItem_Rename(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddItem(ctx, entities.NewRole("author")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddChild(ctx, "author", "editPost"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if _, err := m.Assign(ctx, "author", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	renamed := entities.NewRole("writer")
	renamed.Description = "renamed from author"
	if err := m.UpdateItem(ctx, "author", renamed); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	if old, _ := m.GetRole(ctx, "author"); old != nil {
		t.Error("old name still resolves after rename")
	}

	// Edges and assignments follow the rename
	hasChild, err := m.HasChild(ctx, "writer", "editPost")
	if err != nil {
		t.Fatalf("HasChild failed: %v", err)
	}
	if !hasChild {
		t.Error("edge did not follow the rename")
	}

	assignment, err := m.GetAssignment(ctx, "writer", "alice")
	if err != nil {
		t.Fatalf("GetAssignment failed: %v", err)
	}
	if assignment == nil {
		t.Error("assignment did not follow the rename")
	}

	allowed, err := m.CheckAccess(ctx, "alice", "editPost", nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("access lost after rename")
	}
}

func TestManager_RemoveItem_Cascades(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddItem(ctx, entities.NewRole("author")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddChild(ctx, "author", "editPost"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if _, err := m.Assign(ctx, "author", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := m.RemoveItem(ctx, "author"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	if assignment, _ := m.GetAssignment(ctx, "author", "alice"); assignment != nil {
		t.Error("assignment survived item removal")
	}
	if hasChild, _ := m.HasChild(ctx, "author", "editPost"); hasChild {
		t.Error("edge survived item removal")
	}

	// The former child is untouched
	if perm, _ := m.GetPermission(ctx, "editPost"); perm == nil {
		t.Error("child item was removed along with the parent")
	}

	if err := m.RemoveItem(ctx, "author"); err == nil {
		t.Error("expected error removing a missing item")
	}
}

func TestManager_AddChild_TypeOrdering(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	for _, item := range []*entities.Item{
		entities.NewRole("admin"),
		entities.NewRole("author"),
		entities.NewPermission("editPost"),
		entities.NewPermission("updatePost"),
	} {
		if err := m.AddItem(ctx, item); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		parent  string
		child   string
		wantErr error
	}{
		{"role under role", "admin", "author", nil},
		{"permission under role", "author", "editPost", nil},
		{"permission under permission", "editPost", "updatePost", nil},
		{"role under permission", "updatePost", "admin", ErrPermissionAsParent},
		{"unknown parent", "ghost", "author", ErrItemNotFound},
		{"unknown child", "admin", "ghost", ErrItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddChild(ctx, tt.parent, tt.child)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("AddChild(%s, %s) failed: %v", tt.parent, tt.child, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddChild(%s, %s) = %v, want %v", tt.parent, tt.child, err, tt.wantErr)
			}
		})
	}
}

func TestManager_AddChild_SelfAndCycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	for _, name := range []string{"a", "b", "c"} {
		if err := m.AddItem(ctx, entities.NewRole(name)); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	if err := m.AddChild(ctx, "a", "b"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if err := m.AddChild(ctx, "b", "c"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}

	if err := m.AddChild(ctx, "a", "a"); !errors.Is(err, ErrSelfReference) {
		t.Errorf("self loop: got %v, want ErrSelfReference", err)
	}
	// c -> a would close a -> b -> c -> a
	if err := m.AddChild(ctx, "c", "a"); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("transitive cycle: got %v, want ErrCycleDetected", err)
	}
	if err := m.AddChild(ctx, "b", "a"); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("direct cycle: got %v, want ErrCycleDetected", err)
	}

	// A diamond is not a cycle: a -> b -> c plus a -> c
	if err := m.AddChild(ctx, "a", "c"); err != nil {
		t.Errorf("diamond edge rejected: %v", err)
	}
}

func TestManager_CanAddChild(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	for _, name := range []string{"a", "b"} {
		if err := m.AddItem(ctx, entities.NewRole(name)); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	if err := m.AddChild(ctx, "a", "b"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}

	tests := []struct {
		parent string
		child  string
		want   bool
	}{
		{"b", "a", false}, // would close a cycle
		{"a", "a", false}, // self loop
		{"a", "b", true},  // duplicate edge is an insert problem, not a cycle
	}
	for _, tt := range tests {
		ok, err := m.CanAddChild(ctx, tt.parent, tt.child)
		if err != nil {
			t.Fatalf("CanAddChild(%s, %s) failed: %v", tt.parent, tt.child, err)
		}
		if ok != tt.want {
			t.Errorf("CanAddChild(%s, %s) = %v, want %v", tt.parent, tt.child, ok, tt.want)
		}
	}
}

func TestManager_RemoveChild(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	for _, name := range []string{"a", "b", "c"} {
		if err := m.AddItem(ctx, entities.NewRole(name)); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	if err := m.AddChild(ctx, "a", "b"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if err := m.AddChild(ctx, "a", "c"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}

	removed, err := m.RemoveChild(ctx, "a", "b")
	if err != nil {
		t.Fatalf("RemoveChild failed: %v", err)
	}
	if !removed {
		t.Error("expected RemoveChild to report removal")
	}
	if removed, _ := m.RemoveChild(ctx, "a", "b"); removed {
		t.Error("second RemoveChild should report nothing removed")
	}

	// Items survive edge removal
	if role, _ := m.GetRole(ctx, "b"); role == nil {
		t.Error("item removed along with the edge")
	}

	removed, err = m.RemoveChildren(ctx, "a")
	if err != nil {
		t.Fatalf("RemoveChildren failed: %v", err)
	}
	if !removed {
		t.Error("expected RemoveChildren to report removal")
	}
	children, err := m.GetChildren(ctx, "a")
	if err != nil {
		t.Fatalf("GetChildren failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("expected no children, got %d", len(children))
	}
}

func TestManager_AssignAndRevoke(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddItem(ctx, entities.NewRole("author")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewRole("reviewer")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if _, err := m.Assign(ctx, "ghost", "alice"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("assigning unknown role: got %v, want ErrItemNotFound", err)
	}

	assignment, err := m.Assign(ctx, "author", "alice")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if assignment.UserID != "alice" || assignment.RoleName != "author" {
		t.Errorf("unexpected assignment: %+v", assignment)
	}
	if _, err := m.Assign(ctx, "author", "alice"); err == nil {
		t.Error("expected error on duplicate assignment")
	}
	if _, err := m.Assign(ctx, "reviewer", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if _, err := m.Assign(ctx, "author", "bob"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	assignments, err := m.GetAssignments(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAssignments failed: %v", err)
	}
	if len(assignments) != 2 {
		t.Errorf("expected 2 assignments, got %d", len(assignments))
	}

	userIDs, err := m.GetUserIDsByRole(ctx, "author")
	if err != nil {
		t.Fatalf("GetUserIDsByRole failed: %v", err)
	}
	if len(userIDs) != 2 || userIDs[0] != "alice" || userIDs[1] != "bob" {
		t.Errorf("GetUserIDsByRole = %v, want [alice bob]", userIDs)
	}

	revoked, err := m.Revoke(ctx, "author", "alice")
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !revoked {
		t.Error("expected Revoke to report removal")
	}
	if revoked, _ := m.Revoke(ctx, "author", "alice"); revoked {
		t.Error("second Revoke should report nothing removed")
	}

	revoked, err = m.RevokeAll(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if !revoked {
		t.Error("expected RevokeAll to report removal")
	}
	assignments, _ = m.GetAssignments(ctx, "alice")
	if len(assignments) != 0 {
		t.Errorf("expected no assignments after RevokeAll, got %d", len(assignments))
	}

	// bob is unaffected
	if assignment, _ := m.GetAssignment(ctx, "author", "bob"); assignment == nil {
		t.Error("RevokeAll leaked into another user")
	}
}

func TestManager_RuleLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	rule := entities.NewRule("isAuthor", "authorOf", nil)
	if err := m.AddRule(ctx, rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	perm := entities.NewPermission("updatePost")
	perm.RuleName = "isAuthor"
	if err := m.AddItem(ctx, perm); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	got, err := m.GetRule(ctx, "isAuthor")
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got == nil || got.Spec.Kind != "authorOf" {
		t.Errorf("unexpected rule: %+v", got)
	}

	rules, err := m.GetRules(ctx)
	if err != nil {
		t.Fatalf("GetRules failed: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(rules))
	}

	if err := m.RemoveRule(ctx, "isAuthor"); err != nil {
		t.Fatalf("RemoveRule failed: %v", err)
	}

	// The item survives with its rule reference cleared
	perm, err = m.GetPermission(ctx, "updatePost")
	if err != nil {
		t.Fatalf("GetPermission failed: %v", err)
	}
	if perm == nil {
		t.Fatal("item deleted along with its rule")
	}
	if perm.RuleName != "" {
		t.Errorf("rule reference not cleared: %q", perm.RuleName)
	}

	if err := m.RemoveRule(ctx, "isAuthor"); err == nil {
		t.Error("expected error removing a missing rule")
	}
}

func TestManager_RemoveAll(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddRule(ctx, entities.NewRule("isAuthor", "authorOf", nil)); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewRole("author")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddChild(ctx, "author", "editPost"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if _, err := m.Assign(ctx, "author", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := m.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	roles, _ := m.GetRoles(ctx)
	permissions, _ := m.GetPermissions(ctx)
	rules, _ := m.GetRules(ctx)
	assignments, _ := m.GetAssignments(ctx, "alice")
	if len(roles)+len(permissions)+len(rules)+len(assignments) != 0 {
		t.Errorf("RemoveAll left data behind: %d roles, %d permissions, %d rules, %d assignments",
			len(roles), len(permissions), len(rules), len(assignments))
	}
}

func TestManager_RemoveAllByType(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	if err := m.AddItem(ctx, entities.NewRole("author")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddChild(ctx, "author", "editPost"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if _, err := m.Assign(ctx, "author", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := m.RemoveAllPermissions(ctx); err != nil {
		t.Fatalf("RemoveAllPermissions failed: %v", err)
	}
	if permissions, _ := m.GetPermissions(ctx); len(permissions) != 0 {
		t.Error("permissions survived RemoveAllPermissions")
	}
	if roles, _ := m.GetRoles(ctx); len(roles) != 1 {
		t.Error("roles affected by RemoveAllPermissions")
	}
	if hasChild, _ := m.HasChild(ctx, "author", "editPost"); hasChild {
		t.Error("edge survived permission removal")
	}

	if err := m.RemoveAllRoles(ctx); err != nil {
		t.Fatalf("RemoveAllRoles failed: %v", err)
	}
	if roles, _ := m.GetRoles(ctx); len(roles) != 0 {
		t.Error("roles survived RemoveAllRoles")
	}
	if assignments, _ := m.GetAssignments(ctx, "alice"); len(assignments) != 0 {
		t.Error("assignments survived role removal")
	}
}
