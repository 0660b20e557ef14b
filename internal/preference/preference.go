// Package preference resolves and stores the one setting persisted per
// client: the display language.
package preference

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/language"
)

// DefaultLanguage is used when neither a saved preference nor the
// Accept-Language header selects a supported language.
const DefaultLanguage = "en"

// Supported lists the language codes the presentation layer ships, default first.
var Supported = []string{"en", "zh", "es"}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Chinese,
	language.Spanish,
})

// ErrNotFound is returned by a Store when no preference is saved for a client.
var ErrNotFound = errors.New("preference not found")

// Store persists language preferences by client id.
type Store interface {
	Get(ctx context.Context, clientID string) (string, error)
	Set(ctx context.Context, clientID, lang string) error
}

// IsSupported reports whether code is one of the supported languages.
func IsSupported(code string) bool {
	code = normalize(code)
	for _, s := range Supported {
		if s == code {
			return true
		}
	}
	return false
}

// Resolve picks the language to present: a supported saved preference wins,
// then the best Accept-Language match, then DefaultLanguage.
func Resolve(saved, acceptLanguage string) string {
	if IsSupported(saved) {
		return normalize(saved)
	}
	if strings.TrimSpace(acceptLanguage) == "" {
		return DefaultLanguage
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	return Supported[idx]
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// MemoryStore is an in-process Store whose entries expire after a TTL.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

type memoryEntry struct {
	lang    string
	expires time.Time
}

// NewMemoryStore creates a MemoryStore. A nil clock selects real time.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[clientID]
	if !ok {
		return "", ErrNotFound
	}
	if !s.clock.Now().Before(e.expires) {
		delete(s.entries, clientID)
		return "", ErrNotFound
	}
	return e.lang, nil
}

func (s *MemoryStore) Set(_ context.Context, clientID, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[clientID] = memoryEntry{lang: normalize(lang), expires: s.clock.Now().Add(s.ttl)}
	return nil
}
