package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/models"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/money"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportHandler 负责导出接口
type ExportHandler struct {
	DB *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{DB: db}
}

func (h *ExportHandler) userTransactions(c *gin.Context) (*models.User, []models.Transaction, bool) {
	user := currentUser(c)
	if user == nil {
		return nil, nil, false
	}

	var entries []models.Transaction
	if err := h.DB.Where("user_id = ?", user.ID).
		Order("occurred_at DESC, id DESC").
		Find(&entries).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return nil, nil, false
	}
	return user, entries, true
}

// 每次导出生成唯一文件名
func exportFilename(ext string) string {
	return fmt.Sprintf("transactions_%s_%s.%s",
		time.Now().Format("20060102"), uuid.NewString()[:8], ext)
}

// ExportCSV 导出交易为 CSV
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	user, entries, ok := h.userTransactions(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename("csv")))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// UTF-8 BOM（让 Excel 正确识别）
	_, _ = c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	_ = writer.Write([]string{"Type", "Category", "Amount (" + user.Currency + ")", "Notes", "Date"})

	for i := range entries {
		e := &entries[i]
		_ = writer.Write([]string{
			e.Type,
			e.Category,
			money.FormatCents(e.AmountCent),
			e.Notes,
			e.OccurredAt.Format("2006-01-02"),
		})
	}
}

// ExportXLSX 导出交易为 XLSX
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	user, entries, ok := h.userTransactions(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	sheetName := "Transactions"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "创建工作表失败")
		return
	}
	f.SetActiveSheet(index)

	headers := []string{"Type", "Category", "Amount (" + user.Currency + ")", "Notes", "Date"}
	for i, hd := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		_ = f.SetCellValue(sheetName, cell, hd)
	}

	for idx := range entries {
		e := &entries[idx]
		row := idx + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), e.Type)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.Category)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), money.FormatCents(e.AmountCent))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.Notes)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.OccurredAt.Format("2006-01-02"))
	}

	// 设置列宽
	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 15)
	_ = f.SetColWidth(sheetName, "C", "C", 14)
	_ = f.SetColWidth(sheetName, "D", "D", 30)
	_ = f.SetColWidth(sheetName, "E", "E", 12)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename("xlsx")))

	if err := f.Write(c.Writer); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "导出失败")
	}
}
