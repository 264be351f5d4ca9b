package models

import "time"

// Transaction type values.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Transaction represents a single income or expense record.
// 金额存正数（分），收支方向由 Type 决定，不单独存币种：
// 金额隐含使用所属用户当前的 Currency。
type Transaction struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"index;not null"`
	Type       string    `gorm:"size:16;index;not null"` // income / expense
	AmountCent int64     `gorm:"not null"`               // store in cents to avoid float
	Category   string    `gorm:"size:32;not null"`
	Notes      string    `gorm:"size:255"`
	OccurredAt time.Time `gorm:"index;not null"` // when the transaction happened
	CreatedAt  time.Time
	UpdatedAt  time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

// SignedCent returns the transaction's contribution to the owner's balance:
// +AmountCent for income, -AmountCent for expense.
func (t *Transaction) SignedCent() int64 {
	if t.Type == TypeExpense {
		return -t.AmountCent
	}
	return t.AmountCent
}
