// Package apikey mints API keys. The raw key is returned once; only its
// bcrypt hash and lookup prefix are persisted.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLen is the number of leading characters stored in clear for lookup.
const PrefixLen = 8

const rawPrefix = "sp_"

var ErrInvalidScope = errors.New("invalid api key scope")

var validScopes = map[string]bool{
	models.ScopeRead:   true,
	models.ScopeWrite:  true,
	models.ScopeAdmin:  true,
	models.ScopeWorker: true,
}

// NormalizeScopes lower-cases and dedupes scopes, rejecting unknown ones.
// An empty list defaults to read.
func NormalizeScopes(scopes []string) ([]string, error) {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		if !validScopes[s] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, s)
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		out = append(out, models.ScopeRead)
	}
	return out, nil
}

// Generate creates a new key named name. The returned string is the raw
// Bearer token; the model holds its hash.
func Generate(name string, scopes []string) (string, *models.APIKey, error) {
	scopes, err := NormalizeScopes(scopes)
	if err != nil {
		return "", nil, err
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("reading random bytes: %w", err)
	}
	raw := rawPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing api key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
