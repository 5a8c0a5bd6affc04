package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/voicenet/internal/app/orch"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionUserKey = "user_id"

type handlers struct {
	deps       Deps
	limiter    *JoinRateLimiter
	pingPeriod time.Duration
	readLimit  int64
}

// sessionView is the wire form of a session snapshot.
type sessionView struct {
	domain.Session
	ErrorCode domain.Code `json:"error_code,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func viewOf(s domain.Session) sessionView {
	v := sessionView{Session: s, ErrorCode: s.ErrorCode()}
	if s.LastError != nil {
		v.Error = s.LastError.Error()
	}
	if v.Participants == nil {
		v.Participants = []domain.Participant{}
	}
	return v
}

func (h *handlers) orchestrator(c *gin.Context) (*orch.Orchestrator, bool) {
	o, err := h.deps.Registry.GetOrCreate(clientOf(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
		return nil, false
	}
	return o, true
}

// user resolves the identity of the caller: the registry binding first, then
// the user id remembered in the session cookie.
func (h *handlers) user(c *gin.Context) (domain.User, bool) {
	id := clientOf(c)
	if u, ok := h.deps.Registry.UserOf(id); ok {
		return u, true
	}
	uid, _ := sessions.Default(c).Get(sessionUserKey).(string)
	if uid == "" {
		return domain.User{}, false
	}
	u, err := h.deps.Identities.Lookup(c.Request.Context(), domain.UserID(uid))
	if err != nil {
		log.Warn().Str("module", "adapters.http").Str("user", uid).Err(err).Msg("identity lookup failed")
		return domain.User{}, false
	}
	h.deps.Registry.BindUser(id, u)
	return u, true
}

func (h *handlers) listNets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nets": h.deps.Nets.List(c.Request.Context())})
}

func (h *handlers) presence(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.deps.Nets.Get(ctx, domain.NetID(c.Param("id")))
	if err != nil {
		abortWith(c, err)
		return
	}
	if h.deps.Presence == nil {
		abortWith(c, domain.WrapError(domain.CodeUnsupported, "presence", errors.New("no roster store configured")))
		return
	}
	recs, err := h.deps.Presence.List(ctx, n.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if recs == nil {
		recs = []domain.SessionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"net": n.ID, "sessions": recs})
}

type identityRequest struct {
	UserID      string `json:"user_id" binding:"required,max=64"`
	DisplayName string `json:"display_name" binding:"max=36"`
}

func (h *handlers) setIdentity(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.deps.Identities.Lookup(c.Request.Context(), domain.UserID(req.UserID))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.DisplayName != "" {
		if err := u.SetDisplayName(req.DisplayName); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	s := sessions.Default(c)
	s.Set(sessionUserKey, string(u.ID))
	if err := s.Save(); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	h.deps.Registry.BindUser(clientOf(c), u)
	c.JSON(http.StatusOK, gin.H{"user": u, "tier": u.Tier.String()})
}

func (h *handlers) session(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(o.Session()))
}

// dispose leaves the net and forgets the client's orchestrator.
func (h *handlers) dispose(c *gin.Context) {
	id := clientOf(c)
	h.limiter.Forget(id)
	if err := h.deps.Registry.Remove(c.Request.Context(), id); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type joinRequest struct {
	NetID string `json:"net_id" binding:"required"`
}

func (h *handlers) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, ok := h.user(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "identity required"})
		return
	}
	if !h.limiter.Allow(clientOf(c)) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "too many join attempts"})
		return
	}
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := o.JoinNet(c.Request.Context(), domain.NetID(req.NetID), u); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o.Session()))
}

func (h *handlers) leave(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	_ = o.LeaveNet(c.Request.Context())
	c.JSON(http.StatusOK, viewOf(o.Session()))
}

// ptt sets the transmit gate, or flips it when the body is empty.
func (h *handlers) ptt(c *gin.Context) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	var err error
	if req.Active == nil {
		err = o.TogglePTT(c.Request.Context())
	} else {
		err = o.SetTransmitActive(c.Request.Context(), *req.Active)
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o.Session()))
}

func (h *handlers) mic(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := o.SetMicEnabled(c.Request.Context(), *req.Enabled); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(o.Session()))
}

func (h *handlers) devices(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	ds, err := o.AudioDevices(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": ds})
}

func (h *handlers) device(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	if err := o.SetAudioDevice(c.Request.Context(), req.DeviceID); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
