package push

// Service keeps per-task push notification configs and delivers task events
// to the registered callback URLs.  Every request carries an RS256-signed
// JWT whose public key is served from the JWKS endpoint, so receivers can
// verify the sender without a shared secret.

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/theapemachine/supabase-a2a/pkg/errors"
)

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwkKey `json:"keys"`
}

type Service struct {
	mu      sync.RWMutex
	configs map[string]*a2a.TaskPushNotificationConfig

	key      *rsa.PrivateKey
	kid      string
	jwksJSON []byte

	client *http.Client
	retry  *errors.RetryConfig
}

// NewService generates a fresh 2048-bit RSA keypair for signing
// notifications.
func NewService() (*Service, error) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	kid := uuid.New().String()

	pub := pk.PublicKey
	set := jwkSet{Keys: []jwkKey{{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}

	jwksJSON, _ := json.Marshal(set)

	return &Service{
		configs:  make(map[string]*a2a.TaskPushNotificationConfig),
		key:      pk,
		kid:      kid,
		jwksJSON: jwksJSON,
		client:   &http.Client{Timeout: 10 * time.Second},
		retry:    errors.DefaultRetryConfig(),
	}, nil
}

// SetConfig sets or updates the push notification configuration for a task.
func (s *Service) SetConfig(config *a2a.TaskPushNotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[config.ID] = config
}

// GetConfig retrieves the push notification configuration for a task.
func (s *Service) GetConfig(taskID string) (*a2a.TaskPushNotificationConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	return config, exists
}

// JWKSHandler serves the public key set at /.well-known/jwks.json.
func (s *Service) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.jwksJSON)
	}
}

// Notify delivers a task event to the task's callback URL, if one is
// registered.  Delivery retries with backoff; a task without a config is
// not an error.
func (s *Service) Notify(taskID string, event any) {
	config, exists := s.GetConfig(taskID)
	if !exists {
		return
	}

	go func() {
		err := errors.RetryWithBackoff(s.retry, func() error {
			return s.send(config, event)
		})
		if err != nil {
			log.Error("push notification delivery failed",
				"taskID", taskID, "url", config.PushNotificationConfig.URL, "error", err,
			)
		}
	}()
}

func (s *Service) send(config *a2a.TaskPushNotificationConfig, event any) error {
	token, err := s.signJWT()
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, config.PushNotificationConfig.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if config.PushNotificationConfig.Token != nil {
		req.Header.Set("X-Task-Token", *config.PushNotificationConfig.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// VerifyURL performs a simple HEAD request to check callback reachability
// before accepting a config.
func (s *Service) VerifyURL(url string) bool {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (s *Service) signJWT() (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "supabase-a2a",
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	token.Header["kid"] = s.kid

	return token.SignedString(s.key)
}
