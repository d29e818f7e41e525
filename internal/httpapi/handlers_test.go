package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telehealth-signaling/internal/auth"
	"telehealth-signaling/internal/config"
	"telehealth-signaling/internal/directory"
	"telehealth-signaling/internal/events"
	"telehealth-signaling/internal/media"
	"telehealth-signaling/internal/rbac"
	"telehealth-signaling/internal/signaling"

	"github.com/gin-gonic/gin"
)

const testAppID = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	router *gin.Engine
	auth   *auth.Manager
	dir    *directory.MemoryDirectory
	store  *events.MemoryStore
	svc    *signaling.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	dir := directory.NewMemoryDirectory(
		directory.User{ID: "alice", DisplayName: "Alice", Role: rbac.RolePatient},
		directory.User{ID: "bob", DisplayName: "Dr. Bob", Role: rbac.RoleDoctor},
		directory.User{ID: "root", DisplayName: "Root", Role: rbac.RoleAdmin},
	)

	store := events.NewMemoryStore()
	svc := signaling.NewService(signaling.NewMemoryRegistry(), store, dir)

	provider, err := media.NewAgoraProvider(config.AgoraConfig{
		AppID:          testAppID,
		AppCertificate: "cert",
		TokenTTL:       time.Hour,
	}, false)
	if err != nil {
		t.Fatalf("media provider: %v", err)
	}

	h := Handlers{Auth: mgr, Directory: dir, Signaling: svc, Events: store, Media: provider}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(mgr))
	anyCaller := rbac.RequireAnyRole(rbac.RolePatient, rbac.RoleDoctor, rbac.RoleAdmin)
	v1.POST("/events/emit", anyCaller, h.EmitEvent)
	v1.GET("/events/poll", anyCaller, h.PollEvents)
	v1.POST("/events/ack", anyCaller, h.AckEvents)
	v1.POST("/calls/initiate", anyCaller, h.InitiateCall)
	v1.POST("/calls/:call_id/accept", anyCaller, h.AcceptCall)
	v1.POST("/calls/:call_id/reject", anyCaller, h.RejectCall)
	v1.POST("/calls/:call_id/end", anyCaller, h.EndCall)
	v1.POST("/calls/:call_id/connected", anyCaller, h.MarkConnected)
	v1.POST("/agora/token", anyCaller, h.RequestToken)
	v1.GET("/agora/notify-incoming-call", anyCaller, h.PendingCalls)
	v1.DELETE("/agora/notify-incoming-call", anyCaller, h.AckPendingCall)

	return &testEnv{router: r, auth: mgr, dir: dir, store: store, svc: svc}
}

func (e *testEnv) token(t *testing.T, userID, displayName, role string) string {
	t.Helper()
	pair, err := e.auth.IssuePair(time.Now(), userID, displayName, role)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func TestLoginResolvesDirectoryUser(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"user_id": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	if out["access_token"] == "" || out["refresh_token"] == "" {
		t.Fatal("expected token pair in response")
	}

	w, _ = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"user_id": "nobody"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user login status = %d, want 401", w.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/v1/events/poll", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	w, _ = env.do(t, http.MethodGet, "/v1/events/poll", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", w.Code)
	}
}

func TestEmitPollAckRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)
	bob := env.token(t, "bob", "Dr. Bob", rbac.RoleDoctor)

	w, out := env.do(t, http.MethodPost, "/v1/events/emit", alice, map[string]any{
		"user_id":    "bob",
		"event_type": "chat-message",
		"data":       map[string]string{"text": "hello"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("emit status = %d, body %s", w.Code, w.Body.String())
	}
	if out["sequence"].(float64) != 1 {
		t.Fatalf("sequence = %v, want 1", out["sequence"])
	}

	w, out = env.do(t, http.MethodGet, "/v1/events/poll?since=0", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll status = %d", w.Code)
	}
	evs := out["events"].([]any)
	if len(evs) != 1 {
		t.Fatalf("polled %d events, want 1", len(evs))
	}
	if out["cursor"].(float64) != 1 {
		t.Fatalf("cursor = %v, want 1", out["cursor"])
	}

	w, _ = env.do(t, http.MethodPost, "/v1/events/ack", bob, map[string]any{"up_to": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("ack status = %d", w.Code)
	}

	_, out = env.do(t, http.MethodGet, "/v1/events/poll?since=0", bob, nil)
	if len(out["events"].([]any)) != 0 {
		t.Fatal("expected empty stream after ack")
	}
}

func TestEmitRejectsReservedAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)

	w, _ := env.do(t, http.MethodPost, "/v1/events/emit", alice, map[string]any{
		"user_id":    "bob",
		"event_type": "initiate-call",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reserved type status = %d, want 400", w.Code)
	}

	w, _ = env.do(t, http.MethodPost, "/v1/events/emit", alice, map[string]any{
		"user_id":    "nobody",
		"event_type": "chat-message",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown recipient status = %d, want 400", w.Code)
	}
}

func TestPollOtherStreamNeedsStaffRole(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)
	admin := env.token(t, "root", "Root", rbac.RoleAdmin)

	w, _ := env.do(t, http.MethodGet, "/v1/events/poll?userId=bob", alice, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("patient polling another stream status = %d, want 403", w.Code)
	}

	w, _ = env.do(t, http.MethodGet, "/v1/events/poll?userId=bob", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin polling status = %d, want 200", w.Code)
	}
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)
	bob := env.token(t, "bob", "Dr. Bob", rbac.RoleDoctor)

	w, out := env.do(t, http.MethodPost, "/v1/calls/initiate", alice, map[string]string{
		"callee_id":    "bob",
		"channel_name": "ch1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate status = %d, body %s", w.Code, w.Body.String())
	}
	call := out["call"].(map[string]any)
	callID := call["call_id"].(string)
	if call["status"] != "ringing" {
		t.Fatalf("status = %v, want ringing", call["status"])
	}

	// The pending-call projection shows it until acknowledged.
	w, out = env.do(t, http.MethodGet, "/v1/agora/notify-incoming-call", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("notify status = %d", w.Code)
	}
	if n := len(out["calls"].([]any)); n != 1 {
		t.Fatalf("pending calls = %d, want 1", n)
	}

	w, _ = env.do(t, http.MethodDelete, "/v1/agora/notify-incoming-call?callId="+callID, bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("notify ack status = %d", w.Code)
	}
	_, out = env.do(t, http.MethodGet, "/v1/agora/notify-incoming-call", bob, nil)
	if n := len(out["calls"].([]any)); n != 0 {
		t.Fatalf("pending calls after ack = %d, want 0", n)
	}

	// Acknowledging the notification never blocks the accept.
	w, out = env.do(t, http.MethodPost, "/v1/calls/"+callID+"/accept", bob, nil)
	if w.Code != http.StatusOK || out["applied"] != true {
		t.Fatalf("accept status = %d applied = %v", w.Code, out["applied"])
	}

	w, out = env.do(t, http.MethodPost, "/v1/calls/"+callID+"/connected", bob, nil)
	if w.Code != http.StatusOK || out["applied"] != true {
		t.Fatalf("connected status = %d applied = %v", w.Code, out["applied"])
	}

	w, out = env.do(t, http.MethodPost, "/v1/calls/"+callID+"/end", alice, nil)
	if w.Code != http.StatusOK || out["applied"] != true {
		t.Fatalf("end status = %d applied = %v", w.Code, out["applied"])
	}

	// A late reject against the ended call is reported, not errored.
	w, out = env.do(t, http.MethodPost, "/v1/calls/"+callID+"/reject", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("late reject status = %d, want 200", w.Code)
	}
	if out["applied"] != false {
		t.Fatalf("late reject applied = %v, want false", out["applied"])
	}
}

func TestInitiateValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)

	w, _ := env.do(t, http.MethodPost, "/v1/calls/initiate", alice, map[string]string{"callee_id": "nobody"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown callee status = %d, want 400", w.Code)
	}

	w, _ = env.do(t, http.MethodPost, "/v1/calls/initiate", alice, map[string]string{"callee_id": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self-call status = %d, want 400", w.Code)
	}
}

func TestRequestTokenForOwnUID(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", "Alice", rbac.RolePatient)

	w, out := env.do(t, http.MethodPost, "/v1/agora/token", alice, map[string]string{"channel_name": "ch1"})
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d, body %s", w.Code, w.Body.String())
	}
	if out["app_id"] != testAppID {
		t.Fatalf("app_id = %v", out["app_id"])
	}
	if out["uid"] != "alice" {
		t.Fatalf("uid = %v, want alice", out["uid"])
	}
	if out["token"] == "" {
		t.Fatal("expected non-empty token")
	}

	// Requesting for another uid without a staff role is refused.
	w, _ = env.do(t, http.MethodPost, "/v1/agora/token", alice, map[string]string{"channel_name": "ch1", "uid": "bob"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-uid token status = %d, want 403", w.Code)
	}
}
