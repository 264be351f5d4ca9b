package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/models"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/money"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/service"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TransactionHandler 负责交易相关接口
type TransactionHandler struct {
	Ledger *service.Ledger
}

func NewTransactionHandler(ledger *service.Ledger) *TransactionHandler {
	return &TransactionHandler{Ledger: ledger}
}

// ---------- 请求/响应结构 ----------

type transactionReq struct {
	Type     string  `json:"type" binding:"required,oneof=income expense"`
	Date     string  `json:"date" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Category string  `json:"category" binding:"required,max=32"`
	Notes    string  `json:"notes" binding:"max=255"`
}

// updateTransactionReq 允许只传要改的字段，没传的保持原值
type updateTransactionReq struct {
	Type     *string  `json:"type" binding:"omitempty,oneof=income expense"`
	Date     *string  `json:"date"`
	Amount   *float64 `json:"amount"`
	Category *string  `json:"category" binding:"omitempty,max=32"`
	Notes    *string  `json:"notes" binding:"omitempty,max=255"`
}

type transactionResp struct {
	ID         uint      `json:"id"`
	Type       string    `json:"type"`
	AmountCent int64     `json:"amount_cent"`
	Amount     string    `json:"amount"` // 字符串，方便前端直接显示
	Category   string    `json:"category"`
	Notes      string    `json:"notes"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTransactionResp(e *models.Transaction) transactionResp {
	return transactionResp{
		ID:         e.ID,
		Type:       e.Type,
		AmountCent: e.AmountCent,
		Amount:     money.FormatCents(e.AmountCent),
		Category:   e.Category,
		Notes:      e.Notes,
		Date:       e.OccurredAt,
		CreatedAt:  e.CreatedAt,
	}
}

// toInput 校验请求并转换为 service 输入
func (r *transactionReq) toInput() (service.TransactionInput, error) {
	occurredAt, err := parseDate(r.Date)
	if err != nil {
		return service.TransactionInput{}, err
	}
	amountCent, err := money.ToCents(r.Amount)
	if err != nil {
		return service.TransactionInput{}, err
	}
	return service.TransactionInput{
		Type:       r.Type,
		AmountCent: amountCent,
		Category:   r.Category,
		Notes:      r.Notes,
		OccurredAt: occurredAt,
	}, nil
}

// toUpdate 把非空字段转换为 service 的部分更新
func (r *updateTransactionReq) toUpdate() (service.TransactionUpdate, error) {
	var upd service.TransactionUpdate
	upd.Type = r.Type
	upd.Category = r.Category
	upd.Notes = r.Notes
	if r.Date != nil {
		occurredAt, err := parseDate(*r.Date)
		if err != nil {
			return service.TransactionUpdate{}, err
		}
		upd.OccurredAt = &occurredAt
	}
	if r.Amount != nil {
		amountCent, err := money.ToCents(*r.Amount)
		if err != nil {
			return service.TransactionUpdate{}, err
		}
		upd.AmountCent = &amountCent
	}
	return upd, nil
}

// ---------- 记一笔 ----------

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	var req transactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	in, err := req.toInput()
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请输入有效的金额和日期")
		return
	}

	entry, err := h.Ledger.AddTransaction(c.Request.Context(), user.ID, in)
	if err != nil {
		mapServiceError(c, err, "保存失败，请重试")
		return
	}

	util.Created(c, util.Response{
		"transaction": toTransactionResp(entry),
	})
}

// ListTransactions 返回当前用户全部交易和汇总（收入、支出、余额）。
// 余额取用户记录上的存量值：每次变更都和交易在同一事务里更新，两者不会漂移。
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	entries, sum, err := h.Ledger.ListTransactions(c.Request.Context(), user.ID)
	if err != nil {
		mapServiceError(c, err, "查询失败")
		return
	}

	items := make([]transactionResp, 0, len(entries))
	for i := range entries {
		items = append(items, toTransactionResp(&entries[i]))
	}

	util.Success(c, util.Response{
		"transactions": items,
		"summary": gin.H{
			"income_cent":   sum.IncomeCent,
			"income":        money.FormatCents(sum.IncomeCent),
			"expenses_cent": sum.ExpenseCent,
			"expenses":      money.FormatCents(sum.ExpenseCent),
			"balance_cent":  sum.BalanceCent,
			"balance":       money.FormatCents(sum.BalanceCent),
			"currency":      sum.Currency,
		},
	})
}

// UpdateTransaction 修改一条已有交易（只能修改自己的）
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ID 不合法")
		return
	}

	var req updateTransactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	upd, err := req.toUpdate()
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请输入有效的金额和日期")
		return
	}

	entry, err := h.Ledger.UpdateTransaction(c.Request.Context(), user.ID, uint(id), upd)
	if err != nil {
		mapServiceError(c, err, "保存失败，请重试")
		return
	}

	util.Success(c, util.Response{
		"transaction": toTransactionResp(entry),
	})
}

// DeleteTransaction 删除一条交易并返回其最后状态
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ID 不合法")
		return
	}

	entry, err := h.Ledger.DeleteTransaction(c.Request.Context(), user.ID, uint(id))
	if err != nil {
		mapServiceError(c, err, "删除失败")
		return
	}

	util.Success(c, util.Response{
		"transaction": toTransactionResp(entry),
	})
}
