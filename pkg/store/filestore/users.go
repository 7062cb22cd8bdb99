package filestore

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// UserSnapshotName is the file name of the user snapshot.
const UserSnapshotName = "user_repository.json"

type userSnapshot struct {
	Users []*models.User `json:"users"`
}

// UserRepository keeps users in insertion order.
type UserRepository struct {
	users      []*models.User
	byID       map[string]*models.User
	byUsername map[string]*models.User
	dirty      bool
}

var _ store.UserRepository = (*UserRepository)(nil)

// NewUserRepository returns an empty repository.
func NewUserRepository() *UserRepository {
	r := &UserRepository{}
	r.Reset()
	return r
}

// Reset empties the repository.
func (r *UserRepository) Reset() {
	r.users = []*models.User{}
	r.byID = make(map[string]*models.User)
	r.byUsername = make(map[string]*models.User)
	r.dirty = false
}

// Encode renders the snapshot document.
func (r *UserRepository) Encode() ([]byte, error) {
	return encodeJSON(userSnapshot{Users: r.users})
}

// Decode replaces the state with the snapshot in data.
func (r *UserRepository) Decode(data []byte) error {
	var snap userSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	r.Reset()
	for _, u := range snap.Users {
		if u == nil {
			continue
		}
		if u.Scopes == nil {
			u.Scopes = models.Scopes{}
		}
		r.users = append(r.users, u)
		r.byID[u.ID] = u
		r.byUsername[u.Username] = u
	}
	return nil
}

// Dirty reports unsaved changes.
func (r *UserRepository) Dirty() bool { return r.dirty }

// MarkClean clears the dirty flag after a save.
func (r *UserRepository) MarkClean() { r.dirty = false }

func normalizeScopes(id string, scopes models.Scopes) (models.Scopes, error) {
	out, err := scopes.Normalize()
	if err != nil {
		return nil, models.Invalid(models.ResourceUser, id, err.Error())
	}
	return out, nil
}

// AddUser implements store.UserRepository.
func (r *UserRepository) AddUser(_ context.Context, username, hashedPassword string, scopes models.Scopes) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, models.Invalid(models.ResourceUser, "", "username is required")
	}
	if _, ok := r.byUsername[username]; ok {
		return nil, models.AlreadyExists(models.ResourceUser, username, "username taken")
	}
	scopes, err := normalizeScopes(username, scopes)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:             uuid.New().String(),
		Username:       username,
		HashedPassword: hashedPassword,
		Scopes:         scopes,
	}
	r.users = append(r.users, u)
	r.byID[u.ID] = u
	r.byUsername[u.Username] = u
	r.dirty = true
	return u.Clone(), nil
}

// GetUser implements store.UserRepository.
func (r *UserRepository) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceUser, id)
	}
	return u.Clone(), nil
}

// GetUserByUsername implements store.UserRepository.
func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := r.byUsername[username]
	if !ok {
		return nil, models.NotFound(models.ResourceUser, username)
	}
	return u.Clone(), nil
}

// ListUsers implements store.UserRepository.
func (r *UserRepository) ListUsers(_ context.Context) ([]*models.User, error) {
	out := make([]*models.User, len(r.users))
	for i, u := range r.users {
		out[i] = u.Clone()
	}
	return out, nil
}

// ChangeUsername implements store.UserRepository.
func (r *UserRepository) ChangeUsername(_ context.Context, id, username string) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceUser, id)
	}
	if strings.TrimSpace(username) == "" {
		return nil, models.Invalid(models.ResourceUser, id, "username is required")
	}
	if username == u.Username {
		return u.Clone(), nil
	}
	if _, taken := r.byUsername[username]; taken {
		return nil, models.AlreadyExists(models.ResourceUser, username, "username taken")
	}

	delete(r.byUsername, u.Username)
	u.Username = username
	r.byUsername[username] = u
	r.dirty = true
	return u.Clone(), nil
}

// ChangePassword implements store.UserRepository.
func (r *UserRepository) ChangePassword(_ context.Context, id, hashedPassword string) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceUser, id)
	}
	u.HashedPassword = hashedPassword
	r.dirty = true
	return u.Clone(), nil
}

// ChangeScopes implements store.UserRepository.
func (r *UserRepository) ChangeScopes(_ context.Context, id string, scopes models.Scopes) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, models.NotFound(models.ResourceUser, id)
	}
	scopes, err := normalizeScopes(id, scopes)
	if err != nil {
		return nil, err
	}
	u.Scopes = scopes
	r.dirty = true
	return u.Clone(), nil
}

// DeleteUser implements store.UserRepository.
func (r *UserRepository) DeleteUser(_ context.Context, id string) error {
	u, ok := r.byID[id]
	if !ok {
		return models.NotFound(models.ResourceUser, id)
	}
	r.users = slices.DeleteFunc(r.users, func(x *models.User) bool { return x == u })
	delete(r.byID, id)
	delete(r.byUsername, u.Username)
	r.dirty = true
	return nil
}
