// Package clientstate persists the two values that survive between form
// sessions: the auth token and the UI language. The core engine never reads
// them; callers hand a Store to the transport explicitly.
package clientstate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Supported lists the UI languages, preferred first.
var Supported = []language.Tag{language.Albanian, language.English, language.Serbian}

var matcher = language.NewMatcher(Supported)

// State is the persisted client state.
type State struct {
	AuthToken string       `json:"authToken,omitempty"`
	Language  language.Tag `json:"language"`
}

// Authenticated reports whether an auth token is present.
func (s State) Authenticated() bool {
	return strings.TrimSpace(s.AuthToken) != ""
}

// Default returns the state of a fresh install.
func Default() State {
	return State{Language: Supported[0]}
}

// Store loads and saves State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// ParseLanguage parses a BCP 47 tag or Accept-Language style list and returns
// the closest supported language.
func ParseLanguage(raw string) (language.Tag, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Supported[0], nil
	}
	var tags []language.Tag
	if strings.ContainsAny(trimmed, ",;") {
		parsed, _, err := language.ParseAcceptLanguage(trimmed)
		if err != nil {
			return language.Und, fmt.Errorf("clientstate: parse language %q: %w", raw, err)
		}
		tags = parsed
	} else {
		tag, err := language.Parse(trimmed)
		if err != nil {
			return language.Und, fmt.Errorf("clientstate: parse language %q: %w", raw, err)
		}
		tags = []language.Tag{tag}
	}
	if len(tags) == 0 {
		return Supported[0], nil
	}
	_, idx, _ := matcher.Match(tags...)
	return Supported[idx], nil
}

// SetAuthToken updates the token and saves the state.
func SetAuthToken(ctx context.Context, store Store, token string) error {
	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	state.AuthToken = strings.TrimSpace(token)
	return store.Save(ctx, state)
}

// SetLanguage parses raw, updates the language and saves the state.
func SetLanguage(ctx context.Context, store Store, raw string) (language.Tag, error) {
	tag, err := ParseLanguage(raw)
	if err != nil {
		return language.Und, err
	}
	state, err := store.Load(ctx)
	if err != nil {
		return language.Und, err
	}
	state.Language = tag
	return tag, store.Save(ctx, state)
}

// MemoryStore keeps state in memory. Useful for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore returns a store seeded with state.
func NewMemoryStore(state State) *MemoryStore {
	return &MemoryStore{state: state}
}

func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

func (m *MemoryStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}
