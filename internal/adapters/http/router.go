package http

import (
	"net/http"
	"time"

	"github.com/dkeye/voicenet/internal/app/orch"
	"github.com/dkeye/voicenet/internal/config"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientCookie = "ct"
	clientKey    = "client_token"

	defaultPingPeriod = 54 * time.Second
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable client token. One
// orchestrator exists per token.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set(clientKey, token)
		c.Next()
	}
}

func clientOf(c *gin.Context) orch.ClientID {
	return orch.ClientID(c.GetString(clientKey))
}

// Deps are the services behind the control API. Presence may be nil.
type Deps struct {
	Registry   *orch.Registry
	Nets       core.NetDirectory
	Identities core.IdentityLookup
	Presence   core.RosterStore
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	ping := cfg.PingPeriod
	if ping <= 0 {
		ping = defaultPingPeriod
	}
	h := &handlers{
		deps:       deps,
		limiter:    NewJoinRateLimiter(cfg.Join.Limit, cfg.Join.Interval),
		pingPeriod: ping,
		readLimit:  cfg.ReadLimit,
	}

	api := r.Group("/api")
	api.GET("/nets", h.listNets)
	api.GET("/nets/:id/presence", h.presence)
	api.POST("/identity", h.setIdentity)

	s := api.Group("/session")
	s.GET("", h.session)
	s.DELETE("", h.dispose)
	s.POST("/join", h.join)
	s.POST("/leave", h.leave)
	s.POST("/ptt", h.ptt)
	s.POST("/mic", h.mic)
	s.GET("/devices", h.devices)
	s.POST("/device", h.device)
	s.GET("/ws", h.feed)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Dur("ping_period", ping).Msg("router setup")
	return r
}
