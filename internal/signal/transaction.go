package signal

import (
	"fmt"
	"strings"
	"time"
)

// Transaction is the scoreable content of a proposed card transaction.
type Transaction struct {
	Amount   float64
	Time     time.Time
	Category string
	Merchant string
}

func (Transaction) SignalKind() Kind { return KindTransaction }

// TransactionThresholds is the data-driven configuration for the transaction
// scorer: amount cut-offs, the odd-hours window, category sets, and the
// weight each flag contributes.
type TransactionThresholds struct {
	HighAmount     float64
	VeryHighAmount float64
	OddHoursStart  int // hour of day, inclusive
	OddHoursEnd    int // hour of day, inclusive

	HighRiskCategories   map[string]struct{}
	MediumRiskCategories map[string]struct{}

	WeightHighAmount     int
	WeightOddHours       int
	WeightHighRiskCat    int
	WeightMediumRiskCat  int
	WeightVeryHighAmount int
	WeightOddHoursATM    int
}

// Flag names recorded on transaction signals.
const (
	FlagHighAmount       = "HIGH_AMOUNT"
	FlagOddHours         = "ODD_HOURS"
	FlagHighRiskCategory = "HIGH_RISK_CATEGORY"
	FlagMediumRiskCat    = "MEDIUM_RISK_CATEGORY"
	FlagVeryHighAmount   = "VERY_HIGH_AMOUNT"
	FlagOddHoursATM      = "ODD_HOURS_ATM"
)

// DefaultTransactionThresholds mirrors the production tuning: $200/$1000
// amount cut-offs and a 23:00-05:00 odd-hours window.
func DefaultTransactionThresholds() TransactionThresholds {
	return TransactionThresholds{
		HighAmount:     200,
		VeryHighAmount: 1000,
		OddHoursStart:  23,
		OddHoursEnd:    5,
		HighRiskCategories: categorySet(
			"electronics", "wire_transfer", "cryptocurrency", "gift_cards",
			"cash_advance", "gambling", "international_transfer",
		),
		MediumRiskCategories: categorySet(
			"jewelry", "luxury_goods", "travel", "online_shopping",
		),
		WeightHighAmount:     30,
		WeightOddHours:       25,
		WeightHighRiskCat:    35,
		WeightMediumRiskCat:  15,
		WeightVeryHighAmount: 20,
		WeightOddHoursATM:    15,
	}
}

func categorySet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// TransactionScorer flags risky spend patterns. CRITICAL is a conjunctive
// gate: high amount AND odd hours AND high-risk category must all hold; a
// summed score crossing 90 is not sufficient on its own.
type TransactionScorer struct {
	thresholds TransactionThresholds
}

// NewTransactionScorer builds a scorer over the given threshold table.
func NewTransactionScorer(thresholds TransactionThresholds) *TransactionScorer {
	return &TransactionScorer{thresholds: thresholds}
}

func (s *TransactionScorer) Kind() Kind { return KindTransaction }

// Score evaluates a transaction description.
func (s *TransactionScorer) Score(in Input) (Signal, error) {
	txn, ok := in.(Transaction)
	if !ok {
		return Signal{}, fmt.Errorf("transaction scorer: unsupported input kind %s", in.SignalKind())
	}

	t := s.thresholds
	sig := Signal{Kind: KindTransaction, Indicators: []Indicator{}}
	total := 0

	flag := func(name string, weight int) {
		sig.Indicators = append(sig.Indicators, Indicator{Category: name, Weight: weight})
		total += weight
	}

	highAmount := txn.Amount > t.HighAmount
	if highAmount {
		flag(FlagHighAmount, t.WeightHighAmount)
	}

	oddHours := s.isOddHours(txn.Time)
	if oddHours {
		flag(FlagOddHours, t.WeightOddHours)
	}

	category := strings.ToLower(strings.ReplaceAll(txn.Category, " ", "_"))
	_, highRiskCat := t.HighRiskCategories[category]
	_, mediumRiskCat := t.MediumRiskCategories[category]
	switch {
	case highRiskCat:
		flag(FlagHighRiskCategory, t.WeightHighRiskCat)
	case mediumRiskCat:
		flag(FlagMediumRiskCat, t.WeightMediumRiskCat)
	}

	if txn.Amount > t.VeryHighAmount {
		flag(FlagVeryHighAmount, t.WeightVeryHighAmount)
	}

	if oddHours && strings.Contains(strings.ToLower(txn.Merchant), "atm") {
		flag(FlagOddHoursATM, t.WeightOddHoursATM)
	}

	sig.Score = capScore(total)

	// The critical combination outranks the additive breakpoints.
	if highAmount && oddHours && highRiskCat {
		sig.Level = LevelCritical
		sig.Action = ActionPendingApproval
		sig.Reasoning = fmt.Sprintf(
			"critical risk: $%.2f %s purchase at %s combines high amount, odd hours, and a high-risk category; advocate approval required",
			txn.Amount, txn.Category, txn.Time.Format("03:04 PM"))
		return sig, nil
	}

	sig.Level = levelForScoreTransaction(sig.Score)
	switch sig.Level {
	case LevelLow:
		sig.Action = ActionApproved
		sig.Reasoning = fmt.Sprintf("low risk (score %d/100): $%.2f %s purchase appears normal", sig.Score, txn.Amount, txn.Category)
	default:
		sig.Action = ActionPendingApproval
		sig.Reasoning = fmt.Sprintf("%s risk (score %d/100): $%.2f %s purchase; flags: %s",
			strings.ToLower(string(sig.Level)), sig.Score, txn.Amount, txn.Category, flagList(sig.Indicators))
	}
	return sig, nil
}

// isOddHours checks the hour against the configured window, handling the
// wrap across midnight.
func (s *TransactionScorer) isOddHours(at time.Time) bool {
	hour := at.Hour()
	start, end := s.thresholds.OddHoursStart, s.thresholds.OddHoursEnd
	if start > end {
		return hour >= start || hour <= end
	}
	return hour >= start && hour <= end
}

// levelForScoreTransaction applies the transaction breakpoints: >=70 HIGH,
// >=40 MEDIUM, else LOW. CRITICAL is only reachable through the conjunctive
// rule, never by summed weights alone.
func levelForScoreTransaction(score int) Level {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

func flagList(indicators []Indicator) string {
	names := make([]string, len(indicators))
	for i, ind := range indicators {
		names[i] = ind.Category
	}
	return strings.Join(names, ", ")
}
