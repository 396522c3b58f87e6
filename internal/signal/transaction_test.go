package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txnAt(hour int) time.Time {
	return time.Date(2026, time.March, 14, hour, 0, 0, 0, time.UTC)
}

func TestTransactionScorer_CriticalCombination(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	sig, err := scorer.Score(Transaction{
		Amount:   1299.99,
		Time:     txnAt(2),
		Category: "Electronics",
		Merchant: "Best Buy Online",
	})
	require.NoError(t, err)

	assert.Equal(t, LevelCritical, sig.Level)
	assert.Equal(t, ActionPendingApproval, sig.Action)
	assert.True(t, sig.IsCritical())

	flags := make([]string, 0, len(sig.Indicators))
	for _, ind := range sig.Indicators {
		flags = append(flags, ind.Category)
	}
	assert.Contains(t, flags, FlagHighAmount)
	assert.Contains(t, flags, FlagOddHours)
	assert.Contains(t, flags, FlagHighRiskCategory)
	assert.Contains(t, flags, FlagVeryHighAmount)
}

func TestTransactionScorer_HighScoreWithoutCombinationIsNotCritical(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	// HIGH_AMOUNT 30 + ODD_HOURS 25 + MEDIUM_RISK_CATEGORY 15 + VERY_HIGH_AMOUNT 20 = 90,
	// but no high-risk category, so the conjunctive gate does not fire.
	sig, err := scorer.Score(Transaction{
		Amount:   1500,
		Time:     txnAt(2),
		Category: "Travel",
		Merchant: "Globetrotter",
	})
	require.NoError(t, err)

	assert.Equal(t, 90, sig.Score)
	assert.Equal(t, LevelHigh, sig.Level)
	assert.Equal(t, ActionPendingApproval, sig.Action)
}

func TestTransactionScorer_LowRiskApproved(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	sig, err := scorer.Score(Transaction{
		Amount:   42.50,
		Time:     txnAt(14),
		Category: "groceries",
		Merchant: "Corner Market",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, sig.Score)
	assert.Equal(t, LevelLow, sig.Level)
	assert.Equal(t, ActionApproved, sig.Action)
	assert.Empty(t, sig.Indicators)
}

func TestTransactionScorer_MediumRisk(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	// HIGH_AMOUNT 30 + MEDIUM_RISK_CATEGORY 15 = 45.
	sig, err := scorer.Score(Transaction{
		Amount:   350,
		Time:     txnAt(12),
		Category: "Luxury Goods",
		Merchant: "Boutique",
	})
	require.NoError(t, err)

	assert.Equal(t, 45, sig.Score)
	assert.Equal(t, LevelMedium, sig.Level)
	assert.Equal(t, ActionPendingApproval, sig.Action)
}

func TestTransactionScorer_OddHoursWindowWrapsMidnight(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	for hour, want := range map[int]bool{23: true, 0: true, 3: true, 5: true, 6: false, 12: false, 22: false} {
		assert.Equal(t, want, scorer.isOddHours(txnAt(hour)), "hour %d", hour)
	}
}

func TestTransactionScorer_OddHoursATMFlag(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	sig, err := scorer.Score(Transaction{
		Amount:   100,
		Time:     txnAt(1),
		Category: "cash_withdrawal",
		Merchant: "Chase ATM #42",
	})
	require.NoError(t, err)

	// ODD_HOURS 25 + ODD_HOURS_ATM 15 = 40.
	assert.Equal(t, 40, sig.Score)
	assert.Equal(t, LevelMedium, sig.Level)

	flags := make([]string, 0, len(sig.Indicators))
	for _, ind := range sig.Indicators {
		flags = append(flags, ind.Category)
	}
	assert.Contains(t, flags, FlagOddHoursATM)
}

func TestTransactionScorer_CategoryNormalization(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	// "Wire Transfer" normalizes to wire_transfer, a high-risk category.
	sig, err := scorer.Score(Transaction{
		Amount:   50,
		Time:     txnAt(10),
		Category: "Wire Transfer",
		Merchant: "Bank",
	})
	require.NoError(t, err)

	assert.Equal(t, 35, sig.Score)
	require.Len(t, sig.Indicators, 1)
	assert.Equal(t, FlagHighRiskCategory, sig.Indicators[0].Category)
}

func TestTransactionScorer_WrongInputKind(t *testing.T) {
	scorer := NewTransactionScorer(DefaultTransactionThresholds())

	_, err := scorer.Score(CallTranscript{Transcript: "hello"})
	assert.Error(t, err)
}
