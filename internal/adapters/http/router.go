package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CallGuard/internal/app"
	"github.com/dkeye/CallGuard/internal/app/orch"
	"github.com/dkeye/CallGuard/internal/config"
	"github.com/dkeye/CallGuard/internal/domain"
)

// SessionService is the slice of the orchestrator the HTTP surface needs.
type SessionService interface {
	Sessions(ctx context.Context) ([]app.SessionInfo, error)
	SubmitCall(ctx context.Context, n domain.CallNotice) error
}

type SignalHandler interface {
	HandleSignal(ctx context.Context, c *gin.Context)
}

// ClientTokenMiddleware gives every browser a stable anonymous identity kept in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("client_token").(string)
		if token == "" {
			token = string(domain.NewAnonymousUserID())
			s.Set("client_token", token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the HTTP surface. ws may be nil when the relay runs over Postgres.
func SetupRouter(ctx context.Context, cfg *config.Config, svc SessionService, ws SignalHandler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallGuardSessions", store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/sessions", func(c *gin.Context) {
		list, err := svc.Sessions(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
	})
	api.DELETE("/sessions/:id", func(c *gin.Context) {
		n := domain.CallNotice{CallID: domain.CallID(c.Param("id")), Status: domain.StatusEnded}
		if err := svc.SubmitCall(c.Request.Context(), n); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("module", "adapters.http").Str("call_id", string(n.CallID)).Msg("session end requested")
		c.JSON(http.StatusAccepted, gin.H{"callId": n.CallID, "status": n.Status})
	})

	if ws != nil {
		api.GET("/ws/signal", ClientTokenMiddleware(), func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
			ws.HandleSignal(ctx, c)
		})
	}

	log.Info().Str("module", "adapters.http").Str("transport", cfg.Transport.Kind).Msg("router setup")
	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedNotice):
		return http.StatusBadRequest
	case errors.Is(err, orch.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
