package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicenet/internal/adapters/sim"
	"github.com/dkeye/voicenet/internal/adapters/store"
	"github.com/dkeye/voicenet/internal/adapters/token"
	"github.com/dkeye/voicenet/internal/app"
	"github.com/dkeye/voicenet/internal/app/orch"
	"github.com/dkeye/voicenet/internal/config"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type sessionResp struct {
	State          domain.ConnectionState `json:"state"`
	ActiveNetID    domain.NetID           `json:"active_net_id"`
	Participants   []domain.Participant   `json:"participants"`
	TransmitActive bool                   `json:"transmit_active"`
	MicEnabled     bool                   `json:"mic_enabled"`
	Backend        domain.Backend         `json:"backend"`
	ErrorCode      domain.Code            `json:"error_code"`
}

type fixture struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	reg    *orch.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := require.New(t)

	nets, err := app.NewNetCatalog(
		domain.VoiceNet{ID: "lobby", Code: "LOBBY", Discipline: domain.DisciplineCasual},
		domain.VoiceNet{ID: "command", Code: "CMD", Discipline: domain.DisciplineFocused},
	)
	req.NoError(err)
	alice, err := domain.NewUser("alice", "Alice", domain.TierCommander)
	req.NoError(err)
	carol, err := domain.NewUser("carol", "Carol", domain.TierAffiliate)
	req.NoError(err)
	members := app.NewMemberDirectory(alice, carol)

	presence, err := store.Open(store.Config{TTL: time.Minute})
	req.NoError(err)
	t.Cleanup(func() { _ = presence.Close() })

	ocfg := orch.DefaultConfig()
	ocfg.PreferredBackend = domain.BackendSimulated
	ocfg.HeartbeatInterval = 50 * time.Millisecond
	reg := orch.NewRegistry(ocfg, orch.Deps{
		Nets:        nets,
		Policy:      app.DefaultPolicy(),
		Credentials: token.NewJWTIssuer(token.Config{}),
		Store:       presence,
		Transports: orch.Backends{
			domain.BackendSimulated: func() core.Transport {
				return sim.New(sim.Config{ConnectDelay: time.Millisecond})
			},
		},
	})
	t.Cleanup(func() { _ = reg.CloseAll(context.Background()) })

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		PingPeriod: time.Second,
		ReadLimit:  4096,
		Join:       config.JoinLimit{Limit: 3, Interval: time.Minute},
	}
	r := SetupRouter(cfg, Deps{Registry: reg, Nets: nets, Identities: members, Presence: presence})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	req.NoError(err)
	return &fixture{t: t, srv: srv, client: &http.Client{Jar: jar}, reg: reg}
}

func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) identify(user string) {
	f.t.Helper()
	require.Equal(f.t, http.StatusOK, f.do(http.MethodPost, "/api/identity", gin.H{"user_id": user}, nil))
}

func Test_ListNets(t *testing.T) {
	f := newFixture(t)
	var out struct {
		Nets []domain.VoiceNet `json:"nets"`
	}
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/nets", nil, &out))
	require.Len(t, out.Nets, 2)
	require.Equal(t, "CMD", out.Nets[0].Code)
}

func Test_Join_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/identity", gin.H{}, nil))
}

func Test_Join_Leave(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("alice")

	var s sessionResp
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, &s))
	req.Equal(domain.StateConnected, s.State)
	req.Equal(domain.NetID("lobby"), s.ActiveNetID)
	req.Equal(domain.BackendSimulated, s.Backend, "realtime is not configured")

	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/leave", nil, &s))
	req.Equal(domain.StateIdle, s.State)
	req.Empty(s.Participants)
}

func Test_Join_ErrorStatuses(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("carol")

	var e errorBody
	req.Equal(http.StatusForbidden, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "command"}, &e))
	req.Equal(domain.CodeAccessDenied, e.Code)

	req.Equal(http.StatusNotFound, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "nowhere"}, &e))
	req.Equal(domain.CodeNetNotFound, e.Code)

	var s sessionResp
	req.Equal(http.StatusOK, f.do(http.MethodGet, "/api/session", nil, &s))
	req.Equal(domain.StateIdle, s.State)
	req.Equal(domain.CodeNetNotFound, s.ErrorCode)
}

func Test_Join_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.identify("alice")
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))
	}
	require.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))
}

func Test_Controls(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("alice")

	var e errorBody
	req.Equal(http.StatusConflict, f.do(http.MethodPost, "/api/session/mic", gin.H{"enabled": true}, &e))
	req.Equal(domain.CodeNotConnected, e.Code)

	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))

	var s sessionResp
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/mic", gin.H{"enabled": true}, &s))
	req.True(s.MicEnabled)
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/ptt", nil, &s))
	req.True(s.TransmitActive)
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/ptt", gin.H{"active": false}, &s))
	req.False(s.TransmitActive)
	req.Equal(http.StatusBadRequest, f.do(http.MethodPost, "/api/session/mic", gin.H{}, nil))

	var ds struct {
		Devices []domain.AudioDevice `json:"devices"`
	}
	req.Equal(http.StatusOK, f.do(http.MethodGet, "/api/session/devices", nil, &ds))
	req.Len(ds.Devices, len(sim.DefaultDevices))
	req.Equal(http.StatusNoContent, f.do(http.MethodPost, "/api/session/device", gin.H{"device_id": "headset"}, nil))
	req.Equal(http.StatusBadGateway, f.do(http.MethodPost, "/api/session/device", gin.H{"device_id": "kazoo"}, &e))
	req.Equal(domain.CodeDevice, e.Code)
}

func Test_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("alice")
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))

	var out struct {
		Sessions []domain.SessionRecord `json:"sessions"`
	}
	req.Eventually(func() bool {
		return f.do(http.MethodGet, "/api/nets/lobby/presence", nil, &out) == http.StatusOK && len(out.Sessions) == 1
	}, 2*time.Second, 20*time.Millisecond)
	req.Equal(domain.UserID("alice"), out.Sessions[0].UserID)

	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/nets/nowhere/presence", nil, nil))
}

func Test_Identity_SurvivesDispose(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("alice")
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))
	req.Equal(1, f.reg.Len())

	req.Equal(http.StatusNoContent, f.do(http.MethodDelete, "/api/session", nil, nil))
	req.Equal(0, f.reg.Len())

	// The user id comes back from the session cookie.
	var s sessionResp
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, &s))
	req.Equal(domain.StateConnected, s.State)
}

func Test_Feed_StreamsSnapshots(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identify("alice")

	d := websocket.Dialer{Jar: f.client.Jar, HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/api/session/ws", nil)
	req.NoError(err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var s sessionResp
	req.NoError(conn.ReadJSON(&s))
	req.Equal(domain.StateIdle, s.State)

	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/session/join", gin.H{"net_id": "lobby"}, nil))
	for s.State != domain.StateConnected {
		req.NoError(conn.ReadJSON(&s))
	}
	req.Equal(domain.NetID("lobby"), s.ActiveNetID)

	req.Equal(http.StatusNoContent, f.do(http.MethodDelete, "/api/session", nil, nil))
	for {
		if err := conn.ReadJSON(&s); err != nil {
			req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			break
		}
	}
}
