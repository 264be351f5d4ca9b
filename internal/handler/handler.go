package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/exchange"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/models"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/service"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUser 取出 AuthMiddleware 放进 context 的用户；没有则写 401 并返回 nil。
func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get("currentUser")
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return nil
	}
	user, ok := v.(*models.User)
	if !ok || user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return nil
	}
	return user
}

// mapServiceError 把 service 层错误映射为统一的 HTTP 响应。
func mapServiceError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "记录不存在")
	case errors.Is(err, service.ErrUserNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "用户不存在")
	case errors.Is(err, service.ErrInvalidInput):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
	case errors.Is(err, exchange.ErrUnavailable):
		util.Error(c, http.StatusInternalServerError, util.CodeExternalErr, "汇率服务暂不可用，请稍后再试")
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, fallbackMsg)
	}
}

// parseDate 解析交易日期，默认为今天；不能晚于今天。
func parseDate(s string) (time.Time, error) {
	occurredAt := time.Now()
	if s != "" {
		layouts := []string{
			time.RFC3339,          // 2025-12-03T00:00:00+08:00
			"2006-01-02T15:04:05", // 2025-12-03T00:00:00
			"2006-01-02",          // 2025-12-03
		}
		parsed := false
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				occurredAt = t
				parsed = true
				break
			}
		}
		if !parsed {
			return time.Time{}, errors.New("unrecognized date format")
		}
	}
	// 日期晚于今天 -> 报错
	if occurredAt.Format("2006-01-02") > time.Now().Format("2006-01-02") {
		return time.Time{}, errors.New("date is in the future")
	}
	return occurredAt, nil
}
