package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/igz0/resonite-online-checker-cli/internal/cache"
)

var ErrAuthFailed = errors.New("authentication failed")
var ErrFetchFailed = errors.New("session fetch failed")

const ownerIDPrefix = "U-"

// Credential is the result of a successful login. Zero value means logged out.
type Credential struct {
	UserID string
	Token  string
}

// Client talks to the Resonite REST API. The device fingerprint and instance
// id are generated once at construction and identify this running client, not
// the logged-in user.
type Client struct {
	baseURL    string
	http       *http.Client
	log        *zap.Logger
	uid        string
	instanceID string

	mu   sync.RWMutex
	cred Credential
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	material := make([]byte, 32)
	_, _ = rand.Read(material)
	digest := sha256.Sum256([]byte(base64.RawURLEncoding.EncodeToString(material)))

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       http.DefaultClient,
		log:        log,
		uid:        hex.EncodeToString(digest[:]),
		instanceID: uuid.NewString(),
	}
}

// UID is the hashed device fingerprint sent on every request.
func (c *Client) UID() string { return c.uid }

// AuthorizationHeader returns "res {userId}:{token}", or "" before login.
func (c *Client) AuthorizationHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred.Token == "" {
		return ""
	}
	return "res " + c.cred.UserID + ":" + c.cred.Token
}

// Credential returns a copy of the current credential.
func (c *Client) Credential() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

type loginRequest struct {
	OwnerID         *string      `json:"ownerId"`
	Email           *string      `json:"email"`
	Username        *string      `json:"username"`
	Authentication  passwordAuth `json:"authentication"`
	SecretMachineID string       `json:"secretMachineId"`
	RememberMe      bool         `json:"rememberMe"`
}

type passwordAuth struct {
	Type     string `json:"$type"`
	Password string `json:"password"`
}

type loginResponse struct {
	Entity struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	} `json:"entity"`
}

// Login classifies identity by shape and submits exactly one of the three
// identity fields. Which field carries the identity matters server-side, so
// the classification mirrors the platform's rules exactly: an owner-id prefix
// wins, then an "@" past the first character means email, anything else is a
// username.
func (c *Client) Login(ctx context.Context, identity, password string) (Credential, error) {
	body := loginRequest{
		Authentication:  passwordAuth{Type: "password", Password: password},
		SecretMachineID: c.instanceID,
	}

	switch {
	case strings.HasPrefix(identity, ownerIDPrefix):
		body.OwnerID = &identity
	case strings.Index(identity, "@") > 0:
		body.Email = &identity
	default:
		body.Username = &identity
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/userSessions", payload)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Credential{}, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	cred := Credential{UserID: parsed.Entity.UserID, Token: parsed.Entity.Token}
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
	return cred, nil
}

// Logout invalidates the current session token. Best effort: failures are
// logged and swallowed, and logging out without a token is a no-op.
func (c *Client) Logout(ctx context.Context) {
	cred := c.Credential()
	if cred.Token == "" {
		return
	}

	resp, err := c.do(ctx, http.MethodDelete, "/userSessions/"+cred.UserID+"/"+cred.Token, nil)
	if err != nil {
		c.log.Warn("logout request failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn("logout rejected", zap.Int("status", resp.StatusCode))
	}

	c.mu.Lock()
	c.cred = Credential{}
	c.mu.Unlock()
}

// Sessions fetches the current public session list, server-side filtered to
// non-empty sessions with at least one active user.
func (c *Client) Sessions(ctx context.Context) ([]cache.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sessions?includeEmptyHeadless=false&minActiveUsers=1", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var sessions []cache.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return sessions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("UID", c.uid)
	if auth := c.AuthorizationHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}
