package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tasknotes/internal/api/middleware"
	"tasknotes/internal/apperr"
	"tasknotes/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// checkbox decodes an HTML checkbox sent as JSON: a bool, a number, or a
// string such as "on" / "true" / "1".
type checkbox bool

func (b *checkbox) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = checkbox(t)
	case float64:
		*b = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "off", "no":
			*b = false
		default:
			*b = true
		}
	default:
		*b = false
	}
	return nil
}

// ownerID returns the caller's account id set by the auth middleware.
func ownerID(c *gin.Context) (uint, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok || id.UserID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required", "redirect": "/login"})
		return 0, false
	}
	return id.UserID, true
}

// pathID parses the :id route parameter. Non-numeric ids are a 404, the same
// as an unknown record.
func pathID(c *gin.Context, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return 0, false
	}
	return uint(id), true
}

func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}

// fail 将账本错误映射为 HTTP 状态码并写出 {"error", "redirect"}。
func (s *Server) fail(c *gin.Context, op string, err error, redirect string) {
	resp := gin.H{"error": messageFor(err)}
	if redirect != "" {
		resp["redirect"] = redirect
	}
	c.JSON(s.statusFor(op, err), resp)
}

// failJSON 用于 fetch 调用的接口，返回 {"success": false, "message"}。
func (s *Server) failJSON(c *gin.Context, op string, err error) {
	c.JSON(s.statusFor(op, err), gin.H{"success": false, "message": messageFor(err)})
}

// statusFor 未识别的错误记录日志并返回 500。
func (s *Server) statusFor(op string, err error) int {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	return status
}

func messageFor(err error) string {
	return apperr.Message(err, "internal error")
}

func recordMutation(entity, op string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			result = "error"
		}
	}
	metrics.LedgerMutationsTotal.WithLabelValues(entity, op, result).Inc()
}
