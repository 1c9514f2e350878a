package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// writeError maps a service error onto the response envelope. Caller
// errors are echoed; anything else is logged and replaced by fallback.
func writeError(c *gin.Context, err error, fallback string) {
	code := domain.ErrorCode(err)
	if domain.IsClientError(err) {
		response.Fail(c, code, err.Error())
		return
	}

	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg(fallback)
	response.Fail(c, code, fallback)
}

// pathID parses a positive integer path parameter, answering 400 when it
// is not one.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
