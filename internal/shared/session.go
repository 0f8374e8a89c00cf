package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "worksite:session:"

// SessionManager issues cookie sessions whose state lives in Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	userID    string
	companyID string
	previous  string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	UserID    string            `json:"user_id"`
	CompanyID string            `json:"company_id,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load returns the session referenced by the request cookie, or a fresh one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Unknown or expired id: never adopt a client chosen id.
			return newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	if stored.Values == nil {
		stored.Values = make(map[string]string)
	}
	return &Session{
		ID:        cookie.Value,
		values:    stored.Values,
		userID:    stored.UserID,
		companyID: stored.CompanyID,
	}, nil
}

// Commit persists the session and writes the cookie. Dropping a rotated id
// and storing the current one run in one MULTI/EXEC so a failed commit never
// leaves both ids valid.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	var data []byte
	if !sess.destroyed && (sess.dirty || sess.isNew) {
		var err error
		data, err = json.Marshal(sessionPayload{Values: sess.values, UserID: sess.userID, CompanyID: sess.companyID})
		if err != nil {
			return err
		}
	}

	if sess.previous != "" || sess.destroyed || data != nil {
		_, err := sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if sess.previous != "" {
				pipe.Del(ctx, sm.redisKey(sess.previous))
			}
			if sess.destroyed {
				pipe.Del(ctx, sm.redisKey(sess.ID))
			} else if data != nil {
				pipe.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	sess.previous = ""

	if sess.destroyed {
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}
	sess.dirty = false
	sess.isNew = false
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl/time.Second)))
	return nil
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Renew rotates the session id, keeping its contents. Call it whenever the
// privilege level changes (login) so a pre-login id can not be reused.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.previous = sess.ID
	}
	sess.ID = generateSessionID()
	sess.dirty = true
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	return s.userID
}

// SetCompany records the active company for the session.
func (s *Session) SetCompany(id string) {
	s.companyID = id
	s.dirty = true
}

// Company returns the active company ID, empty when none was chosen.
func (s *Session) Company() string {
	return s.companyID
}

// Destroyed reports whether the session was marked for deletion.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

func newSession() *Session {
	return &Session{
		ID:     generateSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return sessionKeyPrefix + id
}

func generateSessionID() string {
	return uuid.NewString()
}
