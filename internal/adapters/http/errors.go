package http

import (
	"net/http"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func statusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeAccessDenied:
		return http.StatusForbidden
	case domain.CodeNetNotFound:
		return http.StatusNotFound
	case domain.CodeNotConnected:
		return http.StatusConflict
	case domain.CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

type errorBody struct {
	Error string      `json:"error"`
	Code  domain.Code `json:"code,omitempty"`
}

func abortWith(c *gin.Context, err error) {
	status := statusOf(err)
	log.Warn().Str("module", "adapters.http").Str("client", string(clientOf(c))).Int("status", status).Err(err).Msg(c.FullPath())
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error(), Code: domain.CodeOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg})
}
