package util

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var currencyRe = regexp.MustCompile(`^[A-Za-z]{3}$`)

// IsCurrencyCode reports whether s looks like an ISO 4217 code (three
// letters). Whether the code is actually quotable is up to the rate provider.
func IsCurrencyCode(s string) bool {
	return currencyRe.MatchString(s)
}

// RegisterValidators 在 gin 的 binding 校验器上注册自定义规则。
// 启动时调用一次。
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("currencycode", func(fl validator.FieldLevel) bool {
			return IsCurrencyCode(fl.Field().String())
		})
	}
}

// ValidateDate 验证日期格式（必须为 YYYY-MM-DD）
func ValidateDate(dateStr string) error {
	if dateStr == "" {
		return fmt.Errorf("date is empty")
	}
	_, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	return nil
}

// ValidateCategory 验证分类（不能为空且长度合理）
func ValidateCategory(category string) error {
	if category == "" {
		return fmt.Errorf("category is empty")
	}
	if len(category) > 32 {
		return fmt.Errorf("category too long, max 32 characters")
	}
	return nil
}
