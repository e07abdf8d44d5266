package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heldTxn(id, amount string) *PaymentTransaction {
	return &PaymentTransaction{
		ID:           id,
		ExternalID:   "ext-" + id,
		Amount:       decimal.RequireFromString(amount),
		Status:       TransactionStatusCompleted,
		EscrowStatus: EscrowStatusHeld,
	}
}

func TestPaymentTransaction_ReleaseEscrow(t *testing.T) {
	now := time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC)
	txn := heldTxn("1", "100")

	require.NoError(t, txn.ReleaseEscrow(now))
	assert.Equal(t, EscrowStatusReleased, txn.EscrowStatus)
	require.NotNil(t, txn.EscrowReleaseDate)
	assert.Equal(t, now, *txn.EscrowReleaseDate)

	// released never goes back
	assert.ErrorIs(t, txn.ReleaseEscrow(now), ErrInvariant)
	assert.ErrorIs(t, txn.RefundEscrow(decimal.NewFromInt(1), "x", now), ErrInvariant)
}

func TestPaymentTransaction_RefundEscrow(t *testing.T) {
	now := time.Now()

	t.Run("partial refund", func(t *testing.T) {
		txn := heldTxn("1", "150")
		require.NoError(t, txn.RefundEscrow(decimal.NewFromInt(75), "guest cancelled", now))
		assert.Equal(t, TransactionStatusRefunded, txn.Status)
		assert.Equal(t, EscrowStatusRefunded, txn.EscrowStatus)
		assert.True(t, decimal.NewFromInt(75).Equal(txn.RefundAmount))
	})

	t.Run("exceeds amount", func(t *testing.T) {
		txn := heldTxn("1", "150")
		err := txn.RefundEscrow(decimal.RequireFromString("150.01"), "guest cancelled", now)
		assert.ErrorIs(t, err, ErrInvariant)
		assert.Equal(t, EscrowStatusHeld, txn.EscrowStatus)
	})

	t.Run("missing reason", func(t *testing.T) {
		txn := heldTxn("1", "150")
		assert.ErrorIs(t, txn.RefundEscrow(decimal.NewFromInt(10), "", now), ErrInvariant)
	})
}

func TestDeriveEscrowStatus(t *testing.T) {
	now := time.Now()
	a, b := heldTxn("a", "50"), heldTxn("b", "50")
	failed := &PaymentTransaction{Status: TransactionStatusFailed, EscrowStatus: EscrowStatusNone}

	assert.Equal(t, EscrowStatusNone, DeriveEscrowStatus(nil))
	assert.Equal(t, EscrowStatusNone, DeriveEscrowStatus([]*PaymentTransaction{failed}))
	assert.Equal(t, EscrowStatusHeld, DeriveEscrowStatus([]*PaymentTransaction{a, b, failed}))

	require.NoError(t, a.ReleaseEscrow(now))
	assert.Equal(t, EscrowStatusHeld, DeriveEscrowStatus([]*PaymentTransaction{a, b}), "one capture still held")

	require.NoError(t, b.ReleaseEscrow(now))
	assert.Equal(t, EscrowStatusReleased, DeriveEscrowStatus([]*PaymentTransaction{a, b}))

	c := heldTxn("c", "20")
	require.NoError(t, c.RefundEscrow(decimal.NewFromInt(20), "cancelled", now))
	assert.Equal(t, EscrowStatusRefunded, DeriveEscrowStatus([]*PaymentTransaction{c}))
}

func TestSummarizeAndTotals(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := heldTxn("1", "150")
	first.PaymentType = PaymentTypeDeposit
	first.CreatedAt = t0
	second := heldTxn("2", "150")
	second.PaymentType = PaymentTypeBalance
	second.CreatedAt = t0.Add(time.Hour)
	failed := &PaymentTransaction{ID: "3", Status: TransactionStatusFailed, Amount: decimal.NewFromInt(99), CreatedAt: t0.Add(-time.Hour)}

	summaries := Summarize([]*PaymentTransaction{second, first, failed})
	require.Len(t, summaries, 3)
	assert.Equal(t, "3", summaries[0].ID)
	assert.Equal(t, "1", summaries[1].ID)
	assert.Equal(t, "2", summaries[2].ID)

	all := []*PaymentTransaction{first, second, failed}
	assert.True(t, decimal.NewFromInt(300).Equal(CapturedTotal(all)))
	assert.True(t, HasCompleted(all, PaymentTypeDeposit))
	assert.False(t, HasCompleted(all, PaymentTypeFull))
}
