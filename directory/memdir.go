package directory

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemDirectory is an in-memory Directory with password authentication.
// Safe for concurrent use.
type MemDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*Account
	byName map[string]string // name -> id
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		byID:   make(map[string]*Account),
		byName: make(map[string]string),
	}
}

// Add inserts or replaces an account. Later writes win.
func (d *MemDirectory) Add(a *Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[a.ID] = a
	if a.Name != "" {
		d.byName[a.Name] = a.ID
	}
}

func (d *MemDirectory) AccountByID(ctx context.Context, id string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (d *MemDirectory) AccountByName(ctx context.Context, name string) (*Account, error) {
	d.mu.RLock()
	id, ok := d.byName[name]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return d.AccountByID(ctx, id)
}

// Authenticate verifies a name/password pair against the stored bcrypt hash.
// The error does not distinguish a missing account from a bad password.
func (d *MemDirectory) Authenticate(ctx context.Context, name, password string) (*Account, error) {
	a, err := d.AccountByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("directory: authentication failed for %q", name)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("directory: authentication failed for %q", name)
	}
	return a, nil
}

// HashPassword hashes a password for storage in Account.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
