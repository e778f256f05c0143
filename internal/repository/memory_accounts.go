package repository

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/utils"
)

// MemoryUserRepo is the in-process counterpart of UserRepo.  Misses are
// reported as sql.ErrNoRows, like the SQL repository does.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[uint64]model.User
	nextID uint64
}

// NewMemoryUserRepo returns an empty MemoryUserRepo.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: map[uint64]model.User{}}
}

func (r *MemoryUserRepo) Create(_ context.Context, nu NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return 0, ErrEmailExists
		}
	}
	r.nextID++
	profile, _ := model.ProfileTypeForRole(nu.Role)
	now := time.Now().UTC()
	r.users[r.nextID] = model.User{
		ID: r.nextID, Email: email, PasswordHash: hash, FullName: nu.FullName, Phone: nu.Phone,
		Role: nu.Role, ProfileType: profile, OrganizationID: nu.OrganizationID, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	return r.nextID, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

// MemoryTokenRepo is the in-process counterpart of TokenRepo.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
}

// NewMemoryTokenRepo returns an empty MemoryTokenRepo.
func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: map[string]model.RefreshToken{}}
}

func (r *MemoryTokenRepo) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenHash] = model.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC()}
	return nil
}

func (r *MemoryTokenRepo) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, ErrNotFound
	}
	return t.UserID, nil
}

func (r *MemoryTokenRepo) ConsumeRefresh(_ context.Context, tokenHash string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	now := time.Now().UTC()
	if !ok || t.RevokedAt != nil || now.After(t.ExpiresAt) {
		return 0, ErrNotFound
	}
	t.RevokedAt = &now
	r.tokens[tokenHash] = t
	return t.UserID, nil
}

func (r *MemoryTokenRepo) RevokeByHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
		r.tokens[tokenHash] = t
	}
	return nil
}

func (r *MemoryTokenRepo) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for h, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.tokens[h] = t
		}
	}
	return nil
}
