package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubRates is an in-memory exchange.Provider.
type stubRates struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *stubRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open test db")

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Transaction{}), "migrate")
	return db
}

func createUser(t *testing.T, db *gorm.DB, balanceCent int64, currency string) *models.User {
	t.Helper()

	user := models.User{
		Email:        "test@example.com",
		PasswordHash: "x",
		Name:         "Test User",
		BalanceCent:  balanceCent,
		Currency:     currency,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, id).Error)
	return &user
}

// signedSum recomputes the balance from the stored transactions.
func signedSum(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()

	var entries []models.Transaction
	require.NoError(t, db.Where("user_id = ?", userID).Find(&entries).Error)
	var sum int64
	for i := range entries {
		sum += entries[i].SignedCent()
	}
	return sum
}

func input(txType string, amountCent int64, category string) TransactionInput {
	return TransactionInput{
		Type:       txType,
		AmountCent: amountCent,
		Category:   category,
		OccurredAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// fullUpdate turns an input into an update touching every field.
func fullUpdate(in TransactionInput) TransactionUpdate {
	return TransactionUpdate{
		Type:       &in.Type,
		AmountCent: &in.AmountCent,
		Category:   &in.Category,
		Notes:      &in.Notes,
		OccurredAt: &in.OccurredAt,
	}
}

func TestAddTransaction_AdjustsBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 5000, "Salary"))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), reloadUser(t, db, user.ID).BalanceCent)

	_, err = ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 2000, "Groceries"))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), reloadUser(t, db, user.ID).BalanceCent)
}

func TestAddTransaction_UserMissing(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})

	_, err := ledger.AddTransaction(context.Background(), 999, input(models.TypeIncome, 100, "Salary"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	// the rollback must also have discarded the transaction row
	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAddTransaction_Validation(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	cases := []TransactionInput{
		input("transfer", 100, "Salary"),
		input(models.TypeIncome, 0, "Salary"),
		input(models.TypeIncome, -100, "Salary"),
		input(models.TypeIncome, 100, "  "),
		{Type: models.TypeIncome, AmountCent: 100, Category: "Salary"}, // zero date
	}
	for _, in := range cases {
		_, err := ledger.AddTransaction(ctx, user.ID, in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
	assert.Equal(t, int64(0), reloadUser(t, db, user.ID).BalanceCent)
}

// add then delete the same transaction restores the pre-add balance.
func TestAddThenDelete_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 12345, "USD")
	ctx := context.Background()

	entry, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 3000, "Rent"))
	require.NoError(t, err)
	assert.Equal(t, int64(9345), reloadUser(t, db, user.ID).BalanceCent)

	deleted, err := ledger.DeleteTransaction(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, deleted.ID)
	assert.Equal(t, int64(3000), deleted.AmountCent)
	assert.Equal(t, int64(12345), reloadUser(t, db, user.ID).BalanceCent)
}

// Worked example: balance 100, addTransaction(expense, 30) -> 70,
// update to (income, 30) -> 130, delete -> 100.
func TestUpdateTransaction_TypeFlip(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 10000, "USD")
	ctx := context.Background()

	entry, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 3000, "Misc"))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), reloadUser(t, db, user.ID).BalanceCent)

	updated, err := ledger.UpdateTransaction(ctx, user.ID, entry.ID, fullUpdate(input(models.TypeIncome, 3000, "Misc")))
	require.NoError(t, err)
	assert.Equal(t, models.TypeIncome, updated.Type)
	assert.Equal(t, int64(13000), reloadUser(t, db, user.ID).BalanceCent)

	_, err = ledger.DeleteTransaction(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), reloadUser(t, db, user.ID).BalanceCent)
}

func TestUpdateTransaction_CategoryOnlyKeepsBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	in := input(models.TypeExpense, 4200, "Groceries")
	in.Notes = "weekly run"
	entry, err := ledger.AddTransaction(ctx, user.ID, in)
	require.NoError(t, err)
	before := reloadUser(t, db, user.ID).BalanceCent

	// only the category is sent; everything else keeps its stored value
	category := "Dining out"
	updated, err := ledger.UpdateTransaction(ctx, user.ID, entry.ID, TransactionUpdate{Category: &category})
	require.NoError(t, err)

	assert.Equal(t, "Dining out", updated.Category)
	assert.Equal(t, models.TypeExpense, updated.Type)
	assert.Equal(t, int64(4200), updated.AmountCent)
	assert.Equal(t, "weekly run", updated.Notes)
	assert.Equal(t, entry.OccurredAt, updated.OccurredAt)
	assert.Equal(t, before, reloadUser(t, db, user.ID).BalanceCent)
}

func TestUpdateTransaction_PartialAmountShiftsBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	entry, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 4200, "Groceries"))
	require.NoError(t, err)
	require.Equal(t, int64(-4200), reloadUser(t, db, user.ID).BalanceCent)

	amount := int64(5000)
	updated, err := ledger.UpdateTransaction(ctx, user.ID, entry.ID, TransactionUpdate{AmountCent: &amount})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), updated.AmountCent)
	assert.Equal(t, "Groceries", updated.Category)
	assert.Equal(t, int64(-5000), reloadUser(t, db, user.ID).BalanceCent)
}

func TestUpdateTransaction_PartialInvalidMergeRejected(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	entry, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 1000, "Salary"))
	require.NoError(t, err)

	// a merge producing an invalid record must not be stored
	bad := ""
	_, err = ledger.UpdateTransaction(ctx, user.ID, entry.ID, TransactionUpdate{Type: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	var reloaded models.Transaction
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.TypeIncome, reloaded.Type)
	assert.Equal(t, int64(1000), reloadUser(t, db, user.ID).BalanceCent)
}

func TestUpdateTransaction_NotFound(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 500, "USD")

	_, err := ledger.UpdateTransaction(context.Background(), user.ID, 999, fullUpdate(input(models.TypeIncome, 100, "Salary")))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(500), reloadUser(t, db, user.ID).BalanceCent)
}

func TestDeleteTransaction_NotOwned(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	ctx := context.Background()

	owner := createUser(t, db, 0, "USD")
	entry, err := ledger.AddTransaction(ctx, owner.ID, input(models.TypeIncome, 1000, "Salary"))
	require.NoError(t, err)

	other := models.User{Email: "other@example.com", PasswordHash: "x", Name: "Other", Currency: "USD"}
	require.NoError(t, db.Create(&other).Error)

	_, err = ledger.DeleteTransaction(ctx, other.ID, entry.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// record and both balances untouched
	assert.Equal(t, int64(1000), reloadUser(t, db, owner.ID).BalanceCent)
	assert.Equal(t, int64(0), reloadUser(t, db, other.ID).BalanceCent)
	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// After every operation in a mixed sequence the stored balance equals the
// sum of signed amounts of the currently-owned transactions.
func TestBalanceInvariant_MixedSequence(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	check := func() {
		t.Helper()
		assert.Equal(t, signedSum(t, db, user.ID), reloadUser(t, db, user.ID).BalanceCent)
	}

	a, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 50000, "Salary"))
	require.NoError(t, err)
	check()

	b, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 12050, "Rent"))
	require.NoError(t, err)
	check()

	_, err = ledger.UpdateTransaction(ctx, user.ID, b.ID, fullUpdate(input(models.TypeExpense, 13000, "Rent")))
	require.NoError(t, err)
	check()

	_, err = ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 999, "Coffee"))
	require.NoError(t, err)
	check()

	_, err = ledger.DeleteTransaction(ctx, user.ID, a.ID)
	require.NoError(t, err)
	check()

	_, err = ledger.UpdateTransaction(ctx, user.ID, b.ID, fullUpdate(input(models.TypeIncome, 13000, "Refund")))
	require.NoError(t, err)
	check()
}

func TestListTransactions_Summary(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 5000, "Salary"))
	require.NoError(t, err)
	_, err = ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 2000, "Groceries"))
	require.NoError(t, err)

	entries, sum, err := ledger.ListTransactions(ctx, user.ID)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	// insertion order
	assert.Equal(t, "Salary", entries[0].Category)
	assert.Equal(t, "Groceries", entries[1].Category)

	assert.Equal(t, int64(5000), sum.IncomeCent)
	assert.Equal(t, int64(2000), sum.ExpenseCent)
	assert.Equal(t, int64(3000), sum.BalanceCent)
	assert.Equal(t, "USD", sum.Currency)
}

func TestListTransactions_UserMissing(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})

	_, _, err := ledger.ListTransactions(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateBalance_Override(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 100, "USD")

	require.NoError(t, ledger.UpdateBalance(context.Background(), user.ID, 777777))
	assert.Equal(t, int64(777777), reloadUser(t, db, user.ID).BalanceCent)

	assert.ErrorIs(t, ledger.UpdateBalance(context.Background(), 999, 1), ErrUserNotFound)
}

// Worked example: transactions 50 income and 20 expense, balance 30; a rate
// of 2 turns that into balance 60 and amounts 100 and 40.
func TestUpdateCurrency_RescalesEverything(t *testing.T) {
	db := setupTestDB(t)
	rates := &stubRates{rate: decimal.NewFromInt(2)}
	ledger := NewLedger(db, rates)
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 5000, "Salary"))
	require.NoError(t, err)
	_, err = ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 2000, "Groceries"))
	require.NoError(t, err)
	require.Equal(t, int64(3000), reloadUser(t, db, user.ID).BalanceCent)

	rate, err := ledger.UpdateCurrency(ctx, user.ID, "ron")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(2)))

	after := reloadUser(t, db, user.ID)
	assert.Equal(t, "RON", after.Currency)
	assert.Equal(t, int64(6000), after.BalanceCent)

	entries, _, err := ledger.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), entries[0].AmountCent)
	assert.Equal(t, int64(4000), entries[1].AmountCent)

	// invariant survives the re-denomination
	assert.Equal(t, signedSum(t, db, user.ID), after.BalanceCent)
}

// USD -> EUR -> USD with exact inverse rates restores balance and every
// amount within one cent.
func TestUpdateCurrency_InverseRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	rates := &stubRates{rate: decimal.RequireFromString("0.8")}
	ledger := NewLedger(db, rates)
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 12345, "Salary"))
	require.NoError(t, err)
	_, err = ledger.AddTransaction(ctx, user.ID, input(models.TypeExpense, 678, "Coffee"))
	require.NoError(t, err)
	before := reloadUser(t, db, user.ID).BalanceCent

	_, err = ledger.UpdateCurrency(ctx, user.ID, "EUR")
	require.NoError(t, err)

	rates.rate = decimal.RequireFromString("1.25")
	_, err = ledger.UpdateCurrency(ctx, user.ID, "USD")
	require.NoError(t, err)

	after := reloadUser(t, db, user.ID)
	assert.Equal(t, "USD", after.Currency)
	assert.InDelta(t, before, after.BalanceCent, 1)

	entries, _, err := ledger.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 12345, entries[0].AmountCent, 1)
	assert.InDelta(t, 678, entries[1].AmountCent, 1)
}

func TestUpdateCurrency_ProviderFailureLeavesLedgerUntouched(t *testing.T) {
	db := setupTestDB(t)
	rates := &stubRates{err: context.DeadlineExceeded}
	ledger := NewLedger(db, rates)
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	entry, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 5000, "Salary"))
	require.NoError(t, err)

	_, err = ledger.UpdateCurrency(ctx, user.ID, "EUR")
	require.Error(t, err)

	after := reloadUser(t, db, user.ID)
	assert.Equal(t, "USD", after.Currency)
	assert.Equal(t, int64(5000), after.BalanceCent)

	var reloaded models.Transaction
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, int64(5000), reloaded.AmountCent)
}

func TestUpdateCurrency_SameCurrencySkipsProvider(t *testing.T) {
	db := setupTestDB(t)
	rates := &stubRates{rate: decimal.NewFromInt(2)}
	ledger := NewLedger(db, rates)
	user := createUser(t, db, 1000, "USD")

	rate, err := ledger.UpdateCurrency(context.Background(), user.ID, "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, rates.calls)
	assert.Equal(t, int64(1000), reloadUser(t, db, user.ID).BalanceCent)
}

// racingRates commits a USD -> EUR re-denomination of the same user while
// the first USD -> GBP quote is still in flight, simulating two interleaved
// currency changes.
type racingRates struct {
	ledger *Ledger
	userID uint
	raced  bool
}

func (r *racingRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	switch {
	case from == "USD" && to == "EUR":
		return decimal.RequireFromString("0.5"), nil
	case from == "EUR" && to == "GBP":
		return decimal.NewFromInt(4), nil
	case from == "USD" && to == "GBP":
		if !r.raced {
			r.raced = true
			if _, err := r.ledger.UpdateCurrency(ctx, r.userID, "EUR"); err != nil {
				return decimal.Zero, err
			}
		}
		return decimal.NewFromInt(2), nil
	}
	return decimal.Zero, fmt.Errorf("no rate %s -> %s", from, to)
}

// A quote whose base currency changed before the rescale must not be
// applied: the stale USD -> GBP rate 2 against the already-EUR amounts would
// leave balance 10000, the correct GBP balance is 20000.
func TestUpdateCurrency_BaseChangedMidQuote(t *testing.T) {
	db := setupTestDB(t)
	rates := &racingRates{}
	ledger := NewLedger(db, rates)
	rates.ledger = ledger

	user := createUser(t, db, 0, "USD")
	rates.userID = user.ID
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 10000, "Salary"))
	require.NoError(t, err)

	rate, err := ledger.UpdateCurrency(ctx, user.ID, "GBP")
	require.NoError(t, err)
	// the retry re-quotes against the new EUR base
	assert.True(t, rate.Equal(decimal.NewFromInt(4)), "rate %s", rate)

	after := reloadUser(t, db, user.ID)
	assert.Equal(t, "GBP", after.Currency)
	assert.Equal(t, int64(20000), after.BalanceCent)

	entries, _, err := ledger.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(20000), entries[0].AmountCent)
	assert.Equal(t, signedSum(t, db, user.ID), after.BalanceCent)
}

func TestUserDetails(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db, &stubRates{})
	user := createUser(t, db, 0, "USD")
	ctx := context.Background()

	_, err := ledger.AddTransaction(ctx, user.ID, input(models.TypeIncome, 2500, "Salary"))
	require.NoError(t, err)

	got, entries, err := ledger.UserDetails(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", got.Name)
	assert.Equal(t, "test@example.com", got.Email)
	assert.Equal(t, int64(2500), got.BalanceCent)
	require.Len(t, entries, 1)

	_, _, err = ledger.UserDetails(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
