package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// session is what is persisted under the auth key.
type session struct {
	Master   string `json:"master"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token"`
}

// Session is a saved login.
type Session struct {
	Master    string
	Username  string
	Token     string
	ExpiresIn time.Duration
}

// TokenStore persists session tokens, one per master.
type TokenStore struct {
	store *FileStore
}

// NewTokenStore wraps store.
func NewTokenStore(store *FileStore) *TokenStore {
	return &TokenStore{store: store}
}

// Session returns the saved session for master. A missing or expired session
// yields ErrNotFound.
func (t *TokenStore) Session(master string) (Session, error) {
	entry, err := t.store.Get(tokenKey(master))
	if errors.Is(err, ErrExpired) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	var s session
	if err := entry.Decode(&s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return Session{
		Master:    s.Master,
		Username:  s.Username,
		Token:     s.Token,
		ExpiresIn: entry.TimeUntilExpiration(),
	}, nil
}

// Token returns the saved token for master, "" when there is none.
func (t *TokenStore) Token(master string) (string, error) {
	s, err := t.Session(master)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDisabled) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// SaveToken stores token for master.
func (t *TokenStore) SaveToken(master, username, token string) error {
	data, err := json.Marshal(session{Master: master, Username: username, Token: token})
	if err != nil {
		return err
	}
	return t.store.SetWithTTL(tokenKey(master), data, TokenTTLSeconds)
}

// ClearToken forgets the token for master.
func (t *TokenStore) ClearToken(master string) error {
	return t.store.Delete(tokenKey(master))
}

// SettingsKey scopes persisted user settings to a master and, when known,
// the user signed in to it.
func SettingsKey(master, username string) string {
	key := scopedKey(KeyUserSettings, master)
	if username != "" {
		key += "@" + username
	}
	return key
}

func tokenKey(master string) string {
	return scopedKey(KeyAuth, master)
}

// scopedKey suffixes base with the master host.
func scopedKey(base, master string) string {
	u, err := url.Parse(master)
	if err != nil || u.Host == "" {
		return base
	}
	return base + "@" + u.Host
}
