// Package service holds the ledger core: every operation that touches a
// transaction and its owner's balance runs inside a single store
// transaction, so the stored balance always equals the sum of signed
// transaction amounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/exchange"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/models"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means the transaction does not exist or belongs to
	// someone else; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("transaction not found")

	// ErrUserNotFound means the owning user record is missing.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidInput means the transaction fields fail validation.
	ErrInvalidInput = errors.New("invalid transaction input")
)

// errStaleQuote aborts a re-denomination whose base currency changed between
// the rate quote and the store transaction.
var errStaleQuote = errors.New("base currency changed since rate quote")

// TransactionInput carries the caller-editable fields of a transaction.
type TransactionInput struct {
	Type       string
	AmountCent int64
	Category   string
	Notes      string
	OccurredAt time.Time
}

func (in *TransactionInput) validate() error {
	if in.Type != models.TypeIncome && in.Type != models.TypeExpense {
		return fmt.Errorf("%w: type must be income or expense", ErrInvalidInput)
	}
	if in.AmountCent <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if in.OccurredAt.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	return nil
}

// TransactionUpdate carries a partial edit: nil fields keep the stored
// value. The merged record is validated before anything is written.
type TransactionUpdate struct {
	Type       *string
	AmountCent *int64
	Category   *string
	Notes      *string
	OccurredAt *time.Time
}

// Summary aggregates a user's ledger. BalanceCent is the stored balance,
// which every mutation keeps in sync with the transaction set.
type Summary struct {
	IncomeCent  int64
	ExpenseCent int64
	BalanceCent int64
	Currency    string
}

// Ledger implements transaction CRUD plus balance and currency maintenance
// for one user at a time.
type Ledger struct {
	db    *gorm.DB
	rates exchange.Provider
}

func NewLedger(db *gorm.DB, rates exchange.Provider) *Ledger {
	return &Ledger{
		db:    db,
		rates: rates,
	}
}

// adjustBalance shifts the stored balance by deltaCent inside the given
// store transaction.
func adjustBalance(tx *gorm.DB, userID uint, deltaCent int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance_cent", gorm.Expr("balance_cent + ?", deltaCent))
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddTransaction persists a new transaction and applies its signed amount
// to the owner's balance in one unit.
func (l *Ledger) AddTransaction(ctx context.Context, userID uint, in TransactionInput) (*models.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	entry := models.Transaction{
		UserID:     userID,
		Type:       in.Type,
		AmountCent: in.AmountCent,
		Category:   strings.TrimSpace(in.Category),
		Notes:      in.Notes,
		OccurredAt: in.OccurredAt,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return adjustBalance(tx, userID, entry.SignedCent())
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTransactions returns the user's transactions in insertion order plus
// income/expense totals computed from them and the stored balance.
func (l *Ledger) ListTransactions(ctx context.Context, userID uint) ([]models.Transaction, Summary, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Summary{}, ErrUserNotFound
		}
		return nil, Summary{}, fmt.Errorf("load user: %w", err)
	}

	var entries []models.Transaction
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, Summary{}, fmt.Errorf("load transactions: %w", err)
	}

	sum := Summary{
		BalanceCent: user.BalanceCent,
		Currency:    user.Currency,
	}
	for i := range entries {
		if entries[i].Type == models.TypeIncome {
			sum.IncomeCent += entries[i].AmountCent
		} else {
			sum.ExpenseCent += entries[i].AmountCent
		}
	}
	return entries, sum, nil
}

// UpdateTransaction merges the given fields onto an owned transaction and
// shifts the balance by the delta between the old and new signed amounts.
// Fields left nil keep their stored value.
func (l *Ledger) UpdateTransaction(ctx context.Context, userID, id uint, upd TransactionUpdate) (*models.Transaction, error) {
	var entry models.Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the full prior record is needed both as the merge base and to
		// compute the old signed amount
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}

		oldSigned := entry.SignedCent()

		if upd.Type != nil {
			entry.Type = *upd.Type
		}
		if upd.AmountCent != nil {
			entry.AmountCent = *upd.AmountCent
		}
		if upd.Category != nil {
			entry.Category = strings.TrimSpace(*upd.Category)
		}
		if upd.Notes != nil {
			entry.Notes = *upd.Notes
		}
		if upd.OccurredAt != nil {
			entry.OccurredAt = *upd.OccurredAt
		}

		merged := TransactionInput{
			Type:       entry.Type,
			AmountCent: entry.AmountCent,
			Category:   entry.Category,
			Notes:      entry.Notes,
			OccurredAt: entry.OccurredAt,
		}
		if err := merged.validate(); err != nil {
			return err
		}

		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		return adjustBalance(tx, userID, entry.SignedCent()-oldSigned)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteTransaction removes an owned transaction and reverses its signed
// contribution from the balance. Returns the deleted record's last state.
func (l *Ledger) DeleteTransaction(ctx context.Context, userID, id uint) (*models.Transaction, error) {
	var entry models.Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if err := tx.Delete(&entry).Error; err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return adjustBalance(tx, userID, -entry.SignedCent())
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateBalance overrides the stored balance directly, bypassing
// recomputation from transactions. Escape hatch: using it inconsistently
// with the transaction history is the caller's responsibility.
func (l *Ledger) UpdateBalance(ctx context.Context, userID uint, balanceCent int64) error {
	res := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance_cent", balanceCent)
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateCurrency re-denominates the whole ledger: one rate is resolved for
// (old currency -> new currency), then balance, currency and every
// transaction amount change together or not at all. The provider is called
// before the store transaction opens so no lock is held during network I/O;
// a quote is only valid for the base it was requested for, so if a
// concurrent re-denomination changes the currency while the quote is in
// flight the attempt is rolled back and a fresh rate is fetched.
func (l *Ledger) UpdateCurrency(ctx context.Context, userID uint, newCurrency string) (decimal.Decimal, error) {
	newCurrency = strings.ToUpper(strings.TrimSpace(newCurrency))

	for attempt := 0; attempt < 3; attempt++ {
		var user models.User
		if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return decimal.Zero, ErrUserNotFound
			}
			return decimal.Zero, fmt.Errorf("load user: %w", err)
		}

		if user.Currency == newCurrency {
			// nothing to rescale
			return decimal.NewFromInt(1), nil
		}
		baseCurrency := user.Currency

		rate, err := l.rates.Rate(ctx, baseCurrency, newCurrency)
		if err != nil {
			return decimal.Zero, err
		}

		err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var u models.User
			if err := tx.First(&u, userID).Error; err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			if u.Currency != baseCurrency {
				return errStaleQuote
			}

			if err := tx.Model(&u).UpdateColumns(map[string]interface{}{
				"balance_cent": money.ApplyRate(u.BalanceCent, rate),
				"currency":     newCurrency,
			}).Error; err != nil {
				return fmt.Errorf("update user: %w", err)
			}

			var entries []models.Transaction
			if err := tx.Where("user_id = ?", userID).Find(&entries).Error; err != nil {
				return fmt.Errorf("load transactions: %w", err)
			}
			for i := range entries {
				rescaled := money.ApplyRate(entries[i].AmountCent, rate)
				if err := tx.Model(&entries[i]).UpdateColumn("amount_cent", rescaled).Error; err != nil {
					return fmt.Errorf("rescale transaction %d: %w", entries[i].ID, err)
				}
			}
			return nil
		})
		if errors.Is(err, errStaleQuote) {
			continue
		}
		if err != nil {
			return decimal.Zero, err
		}
		return rate, nil
	}
	return decimal.Zero, errStaleQuote
}

// UserDetails returns the user record together with the full transaction list.
func (l *Ledger) UserDetails(ctx context.Context, userID uint) (*models.User, []models.Transaction, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	var entries []models.Transaction
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, nil, fmt.Errorf("load transactions: %w", err)
	}
	return &user, entries, nil
}
