package directory

import (
	"context"
	"errors"
	"testing"
)

func TestMemDirectoryLookup(t *testing.T) {
	d := NewMemDirectory()
	d.Add(&Account{ID: "acct-1", Name: "alice", Status: StatusActive})

	acct, err := d.AccountByID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if acct.Name != "alice" {
		t.Errorf("name = %q, want alice", acct.Name)
	}

	acct, err = d.AccountByName(context.Background(), "alice")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if acct.ID != "acct-1" {
		t.Errorf("id = %q, want acct-1", acct.ID)
	}

	if _, err := d.AccountByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
	if _, err := d.AccountByName(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing name: got %v, want ErrNotFound", err)
	}
}

func TestMemDirectoryAuthenticate(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	d := NewMemDirectory()
	d.Add(&Account{ID: "acct-1", Name: "alice", Status: StatusActive, PasswordHash: hash})

	acct, err := d.Authenticate(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if acct.ID != "acct-1" {
		t.Errorf("id = %q, want acct-1", acct.ID)
	}

	if _, err := d.Authenticate(context.Background(), "alice", "wrong"); err == nil {
		t.Error("wrong password must fail")
	}
	// a missing account must not be distinguishable from a bad password
	if _, err := d.Authenticate(context.Background(), "nobody", "correct horse"); errors.Is(err, ErrNotFound) {
		t.Error("authentication failure must not leak account existence")
	} else if err == nil {
		t.Error("unknown account must fail")
	}
}

func TestCheckTokenValidity(t *testing.T) {
	acct := &Account{ID: "acct-1", TokenValidity: 7}

	if !acct.CheckTokenValidity(7) {
		t.Error("matching generation should pass")
	}
	if !acct.CheckTokenValidity(-1) {
		t.Error("unknown generation should always pass")
	}
	if acct.CheckTokenValidity(6) {
		t.Error("stale generation should fail")
	}
}

func TestIsAdequateAdmin(t *testing.T) {
	if (&Account{}).IsAdequateAdmin() {
		t.Error("plain account is not an adequate admin")
	}
	if !(&Account{IsAdmin: true}).IsAdequateAdmin() {
		t.Error("global admin is adequate")
	}
	if !(&Account{IsDelegatedAdmin: true}).IsAdequateAdmin() {
		t.Error("delegated admin is adequate")
	}
}
