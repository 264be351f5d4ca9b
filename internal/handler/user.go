package handler

import (
	"net/http"
	"strings"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/money"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/service"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserHandler 负责余额、币种和用户信息接口
type UserHandler struct {
	Ledger *service.Ledger
}

func NewUserHandler(ledger *service.Ledger) *UserHandler {
	return &UserHandler{Ledger: ledger}
}

// GetMe 返回当前登录用户信息（需要经过 AuthMiddleware）
func (h *UserHandler) GetMe(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	util.Success(c, util.Response{
		"user": gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"name":         user.Name,
			"balance_cent": user.BalanceCent,
			"balance":      money.FormatCents(user.BalanceCent),
			"currency":     user.Currency,
			"created_at":   user.CreatedAt,
		},
	})
}

// GetUserDetails 返回用户信息和全部交易
func (h *UserHandler) GetUserDetails(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	u, entries, err := h.Ledger.UserDetails(c.Request.Context(), user.ID)
	if err != nil {
		mapServiceError(c, err, "查询失败")
		return
	}

	items := make([]transactionResp, 0, len(entries))
	for i := range entries {
		items = append(items, toTransactionResp(&entries[i]))
	}

	util.Success(c, util.Response{
		"name":         u.Name,
		"email":        u.Email,
		"balance_cent": u.BalanceCent,
		"balance":      money.FormatCents(u.BalanceCent),
		"currency":     u.Currency,
		"transactions": items,
	})
}

// ---------- 余额直接覆盖 ----------

type updateBalanceReq struct {
	Balance *float64 `json:"balance" binding:"required"`
}

// UpdateBalance 管理性覆盖余额，不重算交易。与交易历史是否一致由调用方负责。
func (h *UserHandler) UpdateBalance(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	var req updateBalanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	balanceCent, err := money.ToCentsSigned(*req.Balance)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请输入有效金额")
		return
	}

	if err := h.Ledger.UpdateBalance(c.Request.Context(), user.ID, balanceCent); err != nil {
		mapServiceError(c, err, "更新失败")
		return
	}

	util.Success(c, util.Response{
		"message":      "余额更新成功",
		"balance_cent": balanceCent,
		"balance":      money.FormatCents(balanceCent),
	})
}

// ---------- 币种切换 ----------

type updateCurrencyReq struct {
	NewCurrency string `json:"new_currency" binding:"required,currencycode"`
}

// UpdateCurrency 把整本账切换到新币种：余额和每笔交易都按同一汇率换算
func (h *UserHandler) UpdateCurrency(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	var req updateCurrencyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "币种代码不合法")
		return
	}

	rate, err := h.Ledger.UpdateCurrency(c.Request.Context(), user.ID, req.NewCurrency)
	if err != nil {
		mapServiceError(c, err, "币种更新失败")
		return
	}

	util.Success(c, util.Response{
		"message":  "币种更新成功",
		"currency": strings.ToUpper(req.NewCurrency),
		"rate":     rate.String(),
	})
}

// ---------- 资料 ----------

// UpdateProfileReq 更新基本资料请求
type UpdateProfileReq struct {
	Name string `json:"name" binding:"required,max=64"`
}

// ChangePasswordReq 修改密码请求
type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=32"`
}

// UpdateProfile 更新当前用户的姓名
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			return
		}

		var req UpdateProfileReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请填写姓名")
			return
		}

		if err := db.Model(user).Update("name", req.Name).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "更新失败")
			return
		}

		user.Name = req.Name

		util.Success(c, util.Response{
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
			},
		})
	}
}

// ChangePassword 修改当前用户密码
func ChangePassword(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			return
		}

		var req ChangePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
			return
		}

		// 校验旧密码
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "原密码错误")
			return
		}

		if !isStrongPassword(req.NewPassword) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "密码需8-32位，且包含大写、小写字母和数字")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "密码加密失败")
			return
		}

		if err := db.Model(user).Update("password_hash", string(hash)).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "更新密码失败")
			return
		}

		util.Success(c, util.Response{
			"message": "密码修改成功，请使用新密码重新登录",
		})
	}
}
