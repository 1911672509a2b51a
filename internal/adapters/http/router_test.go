package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicepanel/internal/adapters/directory"
	"github.com/dkeye/voicepanel/internal/adapters/identity"
	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/app/orch"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:             "test",
		Port:             8080,
		Secret:           "test-secret",
		ReadLimit:        32768,
		SendBuffer:       32,
		PingPeriod:       30 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        5 * time.Second,
		ResolveTimeout:   2 * time.Second,
		DirectoryTimeout: 2 * time.Second,
		ShutdownTimeout:  2 * time.Second,
		Takeover:         true,
		RateLimit:        config.RateLimit{Messages: 1000, Interval: time.Second},
		Identity: config.Identity{
			Mode: config.IdentityStatic,
			Users: []config.StaticUser{
				{Token: "tok-a", ID: 1, Username: "A"},
				{Token: "tok-b", ID: 2, Username: "B"},
				{Token: "tok-c", ID: 3, Username: "C"},
			},
		},
		Directory: config.Directory{
			Panels:  []config.PanelSeed{{ID: "p1", Title: "Panel", HostID: 1, Active: true}},
			Members: []config.MemberSeed{{Panel: "p1", UserID: 2, Role: "speaker"}},
		},
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
}

type harness struct {
	srv     *httptest.Server
	orch    *orch.Orchestrator
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, testConfig())
}

func newHarnessWith(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	m := metrics.New()
	dir, err := directory.FromConfig(cfg.Directory)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	resolver, err := identity.New(cfg.Identity)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	o := &orch.Orchestrator{
		Registry:         app.NewRegistry(),
		Rooms:            app.NewRoomManager(),
		Policy:           app.SimplePolicy{Takeover: cfg.Takeover},
		Directory:        dir,
		Metrics:          m,
		DirectoryTimeout: cfg.DirectoryTimeout,
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, resolver, m))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{srv: srv, orch: o, metrics: m}
}

func (h *harness) wsURL(panel, token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/voice/panel/" + panel + "/"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) dial(t *testing.T, panel, token string, header http.Header) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(h.wsURL(panel, token), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// join dials and consumes the room_state greeting.
func (h *harness) join(t *testing.T, token string) (*websocket.Conn, map[string]any) {
	t.Helper()
	c := h.dial(t, "p1", token, nil)
	msg := readJSON(t, c)
	if msg["type"] != string(protocol.TypeRoomState) {
		t.Fatalf("first message=%v, want room_state", msg)
	}
	return c, msg
}

func readRaw(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := json.Unmarshal([]byte(readRaw(t, c)), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func send(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expectPong proves the connection is alive and nothing else was queued before the pong.
func expectPong(t *testing.T, c *websocket.Conn) {
	t.Helper()
	send(t, c, `{"type":"ping"}`)
	if got := readRaw(t, c); got != `{"type":"pong"}` {
		t.Fatalf("got %s, want pong", got)
	}
}

func expectClose(t *testing.T, c *websocket.Conn, code int) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("read err=%v, want close %d", err, code)
		}
		if ce.Code != code {
			t.Fatalf("close code=%d, want %d", ce.Code, code)
		}
		return
	}
}

func TestSignal_PresenceAndAddressedDelivery(t *testing.T) {
	h := newHarness(t)

	a, state := h.join(t, "tok-a")
	if members := state["members"].([]any); len(members) != 0 {
		t.Fatalf("first member should see an empty roster: %v", members)
	}

	b, state := h.join(t, "tok-b")
	members := state["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["username"] != "A" {
		t.Fatalf("B roster=%v", members)
	}
	if got := readRaw(t, a); got != `{"type":"user_joined","user_id":2,"username":"B"}` {
		t.Fatalf("A got %s", got)
	}

	c, _ := h.join(t, "tok-c")
	readRaw(t, a) // user_joined C
	readRaw(t, b)

	send(t, a, `{"type":"offer","offer":"X","to_user":2}`)
	if got := readRaw(t, b); got != `{"type":"offer","offer":"X","from_user":1,"from_username":"A"}` {
		t.Fatalf("B got %s", got)
	}
	send(t, b, `{"type":"answer","answer":{"type":"answer","sdp":"v=0"},"to_user":"1"}`)
	if got := readRaw(t, a); got != `{"type":"answer","answer":{"type":"answer","sdp":"v=0"},"from_user":2}` {
		t.Fatalf("A got %s", got)
	}
	send(t, a, `{"type":"ice_candidate","candidate":{"candidate":"c1"},"to_user":2}`)
	if got := readRaw(t, b); got != `{"type":"ice_candidate","candidate":{"candidate":"c1"},"from_user":1}` {
		t.Fatalf("B got %s", got)
	}
	// C saw none of the addressed traffic
	expectPong(t, c)

	_ = b.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if got := readRaw(t, a); got != `{"type":"user_left","user_id":2,"username":"B"}` {
		t.Fatalf("A got %s", got)
	}
	if got := readRaw(t, c); got != `{"type":"user_left","user_id":2,"username":"B"}` {
		t.Fatalf("C got %s", got)
	}
	expectPong(t, a)
}

func TestSignal_AnonymousAndInvalidTokensRejected(t *testing.T) {
	h := newHarness(t)
	expectClose(t, h.dial(t, "p1", "", nil), protocol.CloseAuthRejected)
	expectClose(t, h.dial(t, "p1", "forged", nil), protocol.CloseAuthRejected)

	if h.metrics.Get(metrics.SessionsRejected) != 2 {
		t.Fatalf("rejected=%d", h.metrics.Get(metrics.SessionsRejected))
	}
	if len(h.orch.Rooms.List()) != 0 {
		t.Fatalf("rejected connections must not create rooms")
	}
}

func TestSignal_BadInputKeepsConnectionOpen(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join(t, "tok-a")

	send(t, a, `{not json`)
	send(t, a, `{"type":"offer","offer":"X"}`)
	send(t, a, `{"type":"raise_hand"}`)
	send(t, a, `{"type":"offer","offer":"X","to_user":99}`)
	expectPong(t, a)

	send(t, a, `{"type":"whoami"}`)
	if got := readRaw(t, a); got != `{"type":"whoami","user_id":1,"username":"A","panel_id":"p1","role":"host"}` {
		t.Fatalf("whoami=%s", got)
	}

	for name, want := range map[string]uint64{
		metrics.DroppedMalformed: 2,
		metrics.DroppedUnknown:   1,
		metrics.DroppedAbsent:    1,
	} {
		if got := h.metrics.Get(name); got != want {
			t.Fatalf("%s=%d, want %d", name, got, want)
		}
	}
}

func TestSignal_ReconnectSupersedesOldSession(t *testing.T) {
	h := newHarness(t)
	a1, _ := h.join(t, "tok-a")
	b, _ := h.join(t, "tok-b")
	readRaw(t, a1) // user_joined B

	a2, state := h.join(t, "tok-a")
	if members := state["members"].([]any); len(members) != 1 {
		t.Fatalf("A2 roster=%v, want only B", members)
	}
	expectClose(t, a1, protocol.CloseSuperseded)

	if got := readRaw(t, b); got != `{"type":"user_joined","user_id":1,"username":"A"}` {
		t.Fatalf("B got %s", got)
	}
	// no user_left for the superseded session
	expectPong(t, b)

	send(t, b, `{"type":"offer","offer":"again","to_user":1}`)
	if got := readRaw(t, a2); got != `{"type":"offer","offer":"again","from_user":2,"from_username":"B"}` {
		t.Fatalf("A2 got %s", got)
	}
}

func TestSignal_ShutdownClosesWithGoingAway(t *testing.T) {
	cfg := testConfig()
	reg := app.NewRegistry()
	o := &orch.Orchestrator{Registry: reg, Rooms: app.NewRoomManager(), Policy: app.SimplePolicy{Takeover: true}}
	resolver, _ := identity.New(cfg.Identity)
	srv := httptest.NewServer(SetupRouter(context.Background(), cfg, o, resolver, nil))
	defer srv.Close()
	h := &harness{srv: srv, orch: o}

	a, _ := h.join(t, "tok-a")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := reg.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	expectClose(t, a, websocket.CloseGoingAway)
}

func TestAPI_IntrospectionAndSession(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/panels/p1/members")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("members of idle panel status=%d, want 404", resp.StatusCode)
	}

	resp, err = http.Post(h.srv.URL+"/api/session", "application/json", bytes.NewBufferString(`{"token":"tok-a"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", resp.StatusCode)
	}
	var cookie string
	for _, ck := range resp.Cookies() {
		if ck.Name == "VoiceSessions" {
			cookie = fmt.Sprintf("%s=%s", ck.Name, ck.Value)
		}
	}
	if cookie == "" {
		t.Fatalf("no session cookie set")
	}

	// the cookie alone authenticates the websocket
	a := h.dial(t, "p1", "", http.Header{"Cookie": {cookie}})
	if msg := readJSON(t, a); msg["type"] != "room_state" {
		t.Fatalf("cookie session not accepted: %v", msg)
	}
	h.join(t, "tok-b")

	resp, err = http.Get(h.srv.URL + "/api/panels/p1/members")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	want := `[{"user_id":1,"username":"A","role":"host"},{"user_id":2,"username":"B","role":"speaker"}]`
	if string(body) != want {
		t.Fatalf("members=%s, want %s", body, want)
	}

	resp, err = http.Get(h.srv.URL + "/api/panels")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `[{"panel_id":"p1","member_count":2}]` {
		t.Fatalf("panels=%s", body)
	}

	resp, err = http.Post(h.srv.URL+"/api/session", "application/json", bytes.NewBufferString(`{"token":"forged"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged login status=%d, want 401", resp.StatusCode)
	}
}

func TestAPI_HealthMetricsAndICE(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(h.srv.URL + "/api/ice-servers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var ice struct {
		Servers []struct {
			URLs []string `json:"urls"`
		} `json:"ice_servers"`
	}
	err = json.NewDecoder(resp.Body).Decode(&ice)
	resp.Body.Close()
	if err != nil || len(ice.Servers) != 1 || ice.Servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ice=%+v err=%v", ice, err)
	}

	h.join(t, "tok-a")
	resp, err = http.Get(h.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `voicepanel_relay_events_total{event="sessions_admitted"} 1`) {
		t.Fatalf("metrics=%s", body)
	}
}

func login(t *testing.T, h *harness, token string) string {
	t.Helper()
	resp, err := http.Post(h.srv.URL+"/api/session", "application/json", bytes.NewBufferString(`{"token":"`+token+`"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	for _, ck := range resp.Cookies() {
		if ck.Name == "VoiceSessions" {
			return fmt.Sprintf("%s=%s", ck.Name, ck.Value)
		}
	}
	t.Fatalf("no session cookie set")
	return ""
}

func TestSignal_ForeignOriginRefused(t *testing.T) {
	h := newHarness(t)
	cookie := login(t, h, "tok-a")

	header := http.Header{"Cookie": {cookie}, "Origin": {"https://evil.example"}}
	c, resp, err := websocket.DefaultDialer.Dial(h.wsURL("p1", ""), header)
	if err == nil {
		c.Close()
		t.Fatalf("cross-site dial with the session cookie was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v err=%v, want 403", resp, err)
	}
	if h.orch.Registry.Len() != 0 {
		t.Fatalf("a session was bound for a refused origin")
	}

	// the relay's own pages still work
	own := http.Header{"Cookie": {cookie}, "Origin": {h.srv.URL}}
	a := h.dial(t, "p1", "", own)
	if msg := readJSON(t, a); msg["type"] != "room_state" {
		t.Fatalf("same-origin dial not admitted: %v", msg)
	}
}

func TestSignal_AllowedOriginsList(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://panel.example.org"}
	h := newHarnessWith(t, cfg)

	a := h.dial(t, "p1", "tok-a", http.Header{"Origin": {"https://panel.example.org:443"}})
	if msg := readJSON(t, a); msg["type"] != "room_state" {
		t.Fatalf("listed origin not admitted: %v", msg)
	}

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("p1", "tok-b"), http.Header{"Origin": {h.srv.URL}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unlisted origin: resp=%v err=%v, want 403", resp, err)
	}
}
