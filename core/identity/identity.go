// Package identity derives display names from soft identity tokens and
// manages the token a client keeps in local storage.
package identity

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var adjectives = []string{
	"Groovy", "Funky", "Smooth", "Jazzy", "Rockin",
	"Epic", "Wild", "Cool", "Rad", "Chill",
	"Sick", "Dope", "Fresh", "Lit", "Fire",
	"Beast", "Legend", "Boss", "Ninja", "Wizard",
}

var nouns = []string{
	"Penguin", "Dolphin", "Tiger", "Eagle", "Wolf",
	"Fox", "Bear", "Lion", "Shark", "Dragon",
	"Phoenix", "Unicorn", "Panda", "Koala", "Sloth",
	"Owl", "Raven", "Falcon", "Jaguar", "Panther",
}

// ResolveDisplayName maps an identity to "<Adjective> <Noun>". The same
// identity always yields the same name.
func ResolveDisplayName(identity string) string {
	seed := 0
	for _, r := range identity {
		seed += int(r)
	}
	adj := adjectives[seed%len(adjectives)]
	noun := nouns[(seed/len(adjectives))%len(nouns)]
	return adj + " " + noun
}

// RandomDisplayName picks a name for contexts without a stable identity.
// It is never persisted.
func RandomDisplayName() string {
	return adjectives[rand.Intn(len(adjectives))] + " " + nouns[rand.Intn(len(nouns))]
}

// NewToken returns a fresh identity token.
func NewToken() string {
	return "user_" + uuid.NewString()
}

// LoadOrCreateToken reads the token stored at path, creating the file with a
// fresh token the first time.
func LoadOrCreateToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}

	token := NewToken()
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write identity file: %w", err)
	}
	return token, nil
}
