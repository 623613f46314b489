package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyIDKey        contextKey = "api_key_id"
	keyNameKey      contextKey = "api_key_name"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

// Caller identifies the API key that authenticated a request.
type Caller struct {
	KeyID  uuid.UUID
	Name   string
	Prefix string
	Scopes []string
}

// WithCaller stores the authenticated key's identity on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	noteCaller(ctx, c.Name)
	ctx = context.WithValue(ctx, keyIDKey, c.KeyID)
	ctx = context.WithValue(ctx, keyNameKey, c.Name)
	ctx = setKeyPrefix(ctx, c.Prefix)
	return setScopes(ctx, c.Scopes)
}

// GetCallerName returns the name of the API key behind r, if any.
func GetCallerName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(keyNameKey).(string)
	return name, ok
}

// GetKeyID returns the id of the API key behind r, if any.
func GetKeyID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(keyIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
