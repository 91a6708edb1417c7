package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey indicates that the Authorization header was not provided.
	ErrMissingKey = errors.New("missing API key")
	// ErrInvalidPrefix indicates the header did not use the required Key prefix.
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
	// ErrInvalidKey indicates the key does not match the configured one.
	ErrInvalidKey = errors.New("invalid API key")
)

const prefix = "Key "

// ExtractKey parses an "Authorization: Key <token>" header.
func ExtractKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingKey
	}

	token, ok := strings.CutPrefix(header, prefix)
	if !ok {
		return "", ErrInvalidPrefix
	}
	if token == "" {
		return "", ErrMissingKey
	}
	return token, nil
}

// Require rejects requests whose key does not equal apiKey. An empty apiKey
// disables the check.
func Require(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractKey(r)
			if err == nil && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				err = ErrInvalidKey
			}
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetKey adds the Authorization header for apiKey. It does nothing when
// apiKey is empty.
func SetKey(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", prefix+apiKey)
	}
}
