package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/tj/assert"
)

func TestConfigRoundTrip(t *testing.T) {
	svc, err := NewService()
	assert.NoError(t, err)

	_, exists := svc.GetConfig("task-1")
	assert.False(t, exists)

	token := "secret"
	svc.SetConfig(&a2a.TaskPushNotificationConfig{
		ID: "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{
			URL:   "http://example.com/webhook",
			Token: &token,
		},
	})

	config, exists := svc.GetConfig("task-1")
	assert.True(t, exists)
	assert.Equal(t, "http://example.com/webhook", config.PushNotificationConfig.URL)
	assert.Equal(t, "secret", *config.PushNotificationConfig.Token)
}

func TestJWKSHandler(t *testing.T) {
	svc, err := NewService()
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	svc.JWKSHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var set jwkSet
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&set))
	assert.Len(t, set.Keys, 1)

	key := set.Keys[0]
	assert.Equal(t, "RSA", key.Kty)
	assert.Equal(t, "RS256", key.Alg)
	assert.Equal(t, "sig", key.Use)
	assert.Equal(t, svc.kid, key.Kid)
	assert.NotEmpty(t, key.N)
	assert.NotEmpty(t, key.E)
}

func TestSignJWT(t *testing.T) {
	svc, err := NewService()
	assert.NoError(t, err)

	signed, err := svc.signJWT()
	assert.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return &svc.key.PublicKey, nil
	})
	assert.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, svc.kid, parsed.Header["kid"])

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "supabase-a2a", claims["iss"])
}

func TestNotifyDeliversSignedEvent(t *testing.T) {
	svc, err := NewService()
	assert.NoError(t, err)

	var (
		mu       sync.Mutex
		received *http.Request
		body     a2a.TaskStatusUpdateEvent
		done     = make(chan struct{})
	)

	ts, errTS := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		received = r.Clone(r.Context())
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	if errTS != nil {
		t.Skip("network disabled; skipping push delivery test")
	}
	defer ts.Close()

	token := "secret"
	svc.SetConfig(&a2a.TaskPushNotificationConfig{
		ID: "task-1",
		PushNotificationConfig: a2a.PushNotificationConfig{
			URL:   ts.URL,
			Token: &token,
		},
	})

	svc.Notify("task-1", a2a.TaskStatusUpdateEvent{
		ID:    "task-1",
		Final: true,
		Status: a2a.TaskStatus{
			State: a2a.TaskStateCompleted,
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for push delivery")
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "task-1", body.ID)
	assert.True(t, body.Final)
	assert.Equal(t, "secret", received.Header.Get("X-Task-Token"))

	auth := received.Header.Get("Authorization")
	assert.NotEmpty(t, auth)
	assert.Contains(t, auth, "Bearer ")
}

func TestNotifyWithoutConfigIsNoop(t *testing.T) {
	svc, err := NewService()
	assert.NoError(t, err)

	// Must not panic or block.
	svc.Notify("unconfigured-task", a2a.TaskStatusUpdateEvent{ID: "unconfigured-task"})
}

// newTestServer wraps httptest.NewServer but converts the panic thrown when
// the environment forbids listening on sockets into a regular error so the
// caller can gracefully skip the test.
func newTestServer(h http.Handler) (*httptest.Server, error) {
	var srv *httptest.Server
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener not permitted: %v", r)
			}
		}()
		srv = httptest.NewServer(h)
	}()
	return srv, err
}
