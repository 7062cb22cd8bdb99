package storetest

import (
	"testing"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

func runUserTests(t *testing.T, factory Factory) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGetUser(t, factory) })
	t.Run("AddRejects", func(t *testing.T) { testAddUserRejects(t, factory) })
	t.Run("ChangeUsername", func(t *testing.T) { testChangeUsername(t, factory) })
	t.Run("ChangePasswordAndScopes", func(t *testing.T) { testChangePasswordAndScopes(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDeleteUser(t, factory) })
	t.Run("Bootstrap", func(t *testing.T) { testBootstrap(t, factory) })
}

func mustAddUser(t *testing.T, r store.UserRepository, username string, scopes ...string) *models.User {
	t.Helper()
	u, err := r.AddUser(t.Context(), username, "hash-of-"+username, models.Scopes(scopes))
	if err != nil {
		t.Fatalf("AddUser(%q) failed: %v", username, err)
	}
	return u
}

func testAddAndGetUser(t *testing.T, factory Factory) {
	r := factory(t).Users
	ctx := t.Context()

	u := mustAddUser(t, r, "alice", models.ScopeExport, models.ScopeEditor)
	if u.ID == "" || u.Username != "alice" || u.HashedPassword != "hash-of-alice" {
		t.Fatalf("unexpected user %+v", u)
	}
	if !u.Scopes.Has(models.ScopeEditor) || !u.Scopes.Has(models.ScopeExport) || u.IsAdmin() {
		t.Fatalf("unexpected scopes %v", u.Scopes)
	}

	byID, err := r.GetUser(ctx, u.ID)
	expectNoError(t, "GetUser", err)
	byName, err := r.GetUserByUsername(ctx, "alice")
	expectNoError(t, "GetUserByUsername", err)
	if byID.ID != byName.ID {
		t.Fatalf("lookups disagree: %q vs %q", byID.ID, byName.ID)
	}

	_, err = r.GetUser(ctx, "missing")
	expectKind(t, "GetUser(missing)", err, models.ErrNotFound)
	_, err = r.GetUserByUsername(ctx, "bob")
	expectKind(t, "GetUserByUsername(missing)", err, models.ErrNotFound)

	none := mustAddUser(t, r, "carol")
	if none.Scopes == nil || len(none.Scopes) != 0 {
		t.Fatalf("expected empty scopes, got %v", none.Scopes)
	}
}

func testAddUserRejects(t *testing.T, factory Factory) {
	r := factory(t).Users
	ctx := t.Context()
	mustAddUser(t, r, "alice")

	_, err := r.AddUser(ctx, "alice", "x", nil)
	expectKind(t, "AddUser(duplicate)", err, models.ErrAlreadyExists)

	_, err = r.AddUser(ctx, "bob", "x", models.Scopes{"root"})
	expectKind(t, "AddUser(unknown scope)", err, models.ErrInvalid)

	_, err = r.AddUser(ctx, "", "x", nil)
	expectKind(t, "AddUser(empty username)", err, models.ErrInvalid)

	users, err := r.ListUsers(ctx)
	expectNoError(t, "ListUsers", err)
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}

func testChangeUsername(t *testing.T, factory Factory) {
	r := factory(t).Users
	ctx := t.Context()
	alice := mustAddUser(t, r, "alice")
	mustAddUser(t, r, "bob")

	_, err := r.ChangeUsername(ctx, alice.ID, "bob")
	expectKind(t, "ChangeUsername(collision)", err, models.ErrAlreadyExists)

	u, err := r.ChangeUsername(ctx, alice.ID, "alicia")
	expectNoError(t, "ChangeUsername", err)
	if u.Username != "alicia" || u.ID != alice.ID {
		t.Fatalf("unexpected renamed user %+v", u)
	}
	_, err = r.GetUserByUsername(ctx, "alice")
	expectKind(t, "GetUserByUsername(old name)", err, models.ErrNotFound)

	// the old name is free again
	mustAddUser(t, r, "alice")

	_, err = r.ChangeUsername(ctx, "missing", "dave")
	expectKind(t, "ChangeUsername(missing)", err, models.ErrNotFound)
}

func testChangePasswordAndScopes(t *testing.T, factory Factory) {
	r := factory(t).Users
	ctx := t.Context()
	u := mustAddUser(t, r, "alice", models.ScopeEditor)

	got, err := r.ChangePassword(ctx, u.ID, "new-hash")
	expectNoError(t, "ChangePassword", err)
	if got.HashedPassword != "new-hash" {
		t.Fatalf("password not changed: %q", got.HashedPassword)
	}

	got, err = r.ChangeScopes(ctx, u.ID, models.Scopes{models.ScopeAdmin})
	expectNoError(t, "ChangeScopes", err)
	if !got.IsAdmin() || got.Scopes.Has(models.ScopeEditor) {
		t.Fatalf("scopes not replaced: %v", got.Scopes)
	}

	_, err = r.ChangeScopes(ctx, u.ID, models.Scopes{"root"})
	expectKind(t, "ChangeScopes(unknown)", err, models.ErrInvalid)
	stored, err := r.GetUser(ctx, u.ID)
	expectNoError(t, "GetUser", err)
	if !stored.IsAdmin() {
		t.Fatalf("rejected scope change altered scopes: %v", stored.Scopes)
	}

	_, err = r.ChangePassword(ctx, "missing", "x")
	expectKind(t, "ChangePassword(missing)", err, models.ErrNotFound)
	_, err = r.ChangeScopes(ctx, "missing", nil)
	expectKind(t, "ChangeScopes(missing)", err, models.ErrNotFound)
}

func testDeleteUser(t *testing.T, factory Factory) {
	r := factory(t).Users
	ctx := t.Context()
	u := mustAddUser(t, r, "alice")

	expectNoError(t, "DeleteUser", r.DeleteUser(ctx, u.ID))
	expectKind(t, "DeleteUser(again)", r.DeleteUser(ctx, u.ID), models.ErrNotFound)
	_, err := r.GetUserByUsername(ctx, "alice")
	expectKind(t, "GetUserByUsername(deleted)", err, models.ErrNotFound)
}

func testBootstrap(t *testing.T, factory Factory) {
	t.Run("EmptyCreatesAdmin", func(t *testing.T) {
		r := factory(t).Users
		res, err := store.Bootstrap(t.Context(), r, "hunter22")
		expectNoError(t, "Bootstrap", err)
		if res.Action != store.BootstrapCreated || res.Password != "" {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.User.Username != models.DefaultAdminUsername || !res.User.IsAdmin() {
			t.Fatalf("unexpected admin %+v", res.User)
		}
		if !models.VerifyPassword("hunter22", res.User.HashedPassword) {
			t.Fatal("admin password does not verify")
		}
	})

	t.Run("EmptyGeneratesPassword", func(t *testing.T) {
		r := factory(t).Users
		res, err := store.Bootstrap(t.Context(), r, "")
		expectNoError(t, "Bootstrap", err)
		if res.Action != store.BootstrapCreated || res.Password == "" {
			t.Fatalf("expected generated password, got %+v", res)
		}
		if !models.VerifyPassword(res.Password, res.User.HashedPassword) {
			t.Fatal("generated password does not verify")
		}
	})

	t.Run("SingleUserPromoted", func(t *testing.T) {
		r := factory(t).Users
		u := mustAddUser(t, r, "alice", models.ScopeEditor)
		res, err := store.Bootstrap(t.Context(), r, "")
		expectNoError(t, "Bootstrap", err)
		if res.Action != store.BootstrapPromoted || res.User.ID != u.ID {
			t.Fatalf("unexpected result %+v", res)
		}
		if !res.User.IsAdmin() || !res.User.Scopes.Has(models.ScopeEditor) {
			t.Fatalf("unexpected scopes %v", res.User.Scopes)
		}

		again, err := store.Bootstrap(t.Context(), r, "")
		expectNoError(t, "Bootstrap(again)", err)
		if again.Action != store.BootstrapNone {
			t.Fatalf("second bootstrap changed something: %+v", again)
		}
	})

	t.Run("SeveralUsersUntouched", func(t *testing.T) {
		r := factory(t).Users
		mustAddUser(t, r, "alice")
		mustAddUser(t, r, "bob")
		res, err := store.Bootstrap(t.Context(), r, "")
		expectNoError(t, "Bootstrap", err)
		if res.Action != store.BootstrapNone {
			t.Fatalf("unexpected result %+v", res)
		}
		users, err := r.ListUsers(t.Context())
		expectNoError(t, "ListUsers", err)
		for _, u := range users {
			if u.IsAdmin() {
				t.Fatalf("user %q was promoted", u.Username)
			}
		}
	})
}
