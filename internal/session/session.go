// Package session carries the caller's auth context explicitly instead of
// reading it from ambient storage on every request.
package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoRefreshToken = errors.New("session has no refresh token")

// Credentials is the persisted form. The three keys mirror the browser
// storage the web client used.
type Credentials struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	HouseholdID  string `json:"householdId"`
}

// Store persists credentials between runs.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

type Session struct {
	mu    sync.RWMutex
	creds Credentials
	store Store
}

// New returns a session seeded with creds. store may be nil for in-memory use.
func New(creds Credentials, store Store) *Session {
	return &Session{creds: trim(creds), store: store}
}

// Open loads the credentials from store. A missing file yields an empty session.
func Open(store Store) (*Session, error) {
	creds, err := store.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return New(creds, store), nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Token
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

func (s *Session) HouseholdID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.HouseholdID
}

func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// SetAccess replaces the access token after a refresh.
func (s *Session) SetAccess(token string) error {
	s.mu.Lock()
	s.creds.Token = strings.TrimSpace(token)
	c := s.creds
	s.mu.Unlock()
	return s.persist(c)
}

// Login stores a freshly issued token pair.
func (s *Session) Login(access, refresh string) error {
	s.mu.Lock()
	s.creds.Token = strings.TrimSpace(access)
	s.creds.RefreshToken = strings.TrimSpace(refresh)
	c := s.creds
	s.mu.Unlock()
	return s.persist(c)
}

func (s *Session) SetHousehold(id string) error {
	s.mu.Lock()
	s.creds.HouseholdID = strings.TrimSpace(id)
	c := s.creds
	s.mu.Unlock()
	return s.persist(c)
}

func (s *Session) Clear() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()
	return s.persist(Credentials{})
}

// Presence reports which credentials exist without exposing their values.
type Presence struct {
	HasToken        bool
	HasRefreshToken bool
	HasHouseholdID  bool
}

func (s *Session) Presence() Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Presence{
		HasToken:        s.creds.Token != "",
		HasRefreshToken: s.creds.RefreshToken != "",
		HasHouseholdID:  s.creds.HouseholdID != "",
	}
}

// AccessExpiry reads the exp claim of the access token. The signature is not
// verified; the value is informational only.
func (s *Session) AccessExpiry() (time.Time, bool) {
	tok := s.Token()
	if tok == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Session) persist(c Credentials) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(c)
}

func trim(c Credentials) Credentials {
	return Credentials{
		Token:        strings.TrimSpace(c.Token),
		RefreshToken: strings.TrimSpace(c.RefreshToken),
		HouseholdID:  strings.TrimSpace(c.HouseholdID),
	}
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	Path string
}

func (f FileStore) Load() (Credentials, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

func (f FileStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}
