package ledger

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

const maxIDLength = 128

// maxIntegerDigits matches the ledger_events.amount column, NUMERIC(38, 18).
const maxIntegerDigits = 20

var maxAmount = decimal.New(1, maxIntegerDigits)

// DefaultScale is the number of fractional digits for currencies not listed
// in CurrencyScales.
const DefaultScale int32 = 2

var currencyPattern = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// CurrencyScales maps a currency code to the fractional digits it allows.
type CurrencyScales map[string]int32

// Scale returns the fractional digits allowed for currency.
func (s CurrencyScales) Scale(currency string) int32 {
	if scale, ok := s[currency]; ok {
		return scale
	}
	return DefaultScale
}

func validateID(field, id string) error {
	switch {
	case id == "":
		return invalid(field, "is required")
	case len(id) > maxIDLength:
		return invalid(field, "must be at most %d characters", maxIDLength)
	case strings.TrimSpace(id) != id || strings.ContainsAny(id, " \t\r\n"):
		return invalid(field, "must not contain whitespace")
	}
	return nil
}

func validateAccount(a models.Account) error {
	if err := validateID("account_id", a.ID); err != nil {
		return err
	}
	if !currencyPattern.MatchString(a.Currency) {
		return invalid("currency", "%q is not an upper-case currency code", a.Currency)
	}
	return nil
}

// validateShape checks everything that does not need the accounts.
// Each kind has its own sign and counterparty rules.
func validateShape(p models.Posting) error {
	if err := validateID("event_id", p.EventID); err != nil {
		return err
	}
	if strings.HasSuffix(p.EventID, models.CounterLegSuffix) {
		return invalid("event_id", "must not end with %q", models.CounterLegSuffix)
	}
	if err := validateID("account_id", p.AccountID); err != nil {
		return err
	}
	if p.ExpectedSequence != nil && *p.ExpectedSequence < 1 {
		return invalid("expected_sequence", "must be positive")
	}
	if p.Amount.IsZero() {
		return invalid("amount", "must not be zero")
	}

	if !p.Kind.Valid() {
		return invalid("kind", "%q is not one of deposit, withdrawal, transfer, fee", p.Kind)
	}
	switch p.Kind {
	case models.KindDeposit:
		return validateDeposit(p)
	case models.KindWithdrawal:
		return validateWithdrawal(p)
	case models.KindFee:
		return validateFee(p)
	default:
		return validateTransfer(p)
	}
}

func validateDeposit(p models.Posting) error {
	if !p.Amount.IsPositive() {
		return invalid("amount", "deposit must be positive")
	}
	return noCounterparty(p)
}

func validateWithdrawal(p models.Posting) error {
	if !p.Amount.IsNegative() {
		return invalid("amount", "withdrawal must be negative")
	}
	return noCounterparty(p)
}

func validateFee(p models.Posting) error {
	if !p.Amount.IsNegative() {
		return invalid("amount", "fee must be negative")
	}
	return noCounterparty(p)
}

func validateTransfer(p models.Posting) error {
	if !p.Amount.IsNegative() {
		return invalid("amount", "transfer is posted on the source account and must be negative")
	}
	if err := validateID("counterparty_account_id", p.CounterpartyAccountID); err != nil {
		return err
	}
	if p.CounterpartyAccountID == p.AccountID {
		return invalid("counterparty_account_id", "must differ from account_id")
	}
	return nil
}

func noCounterparty(p models.Posting) error {
	if p.CounterpartyAccountID != "" {
		return invalid("counterparty_account_id", "only allowed for transfers")
	}
	return nil
}

// validateAccounts checks the posting against the accounts it touches.
// counter is nil unless the posting is a transfer.
func validateAccounts(p models.Posting, source models.Account, counter *models.Account, scales CurrencyScales) error {
	if p.Amount.Abs().GreaterThanOrEqual(maxAmount) {
		return invalid("amount", "must have at most %d integer digits", maxIntegerDigits)
	}
	scale := scales.Scale(source.Currency)
	if !p.Amount.Equal(p.Amount.Truncate(scale)) {
		return invalid("amount", "%s allows at most %d fractional digits", source.Currency, scale)
	}
	if counter != nil && counter.Currency != source.Currency {
		return invalid("counterparty_account_id", "currency %s does not match %s", counter.Currency, source.Currency)
	}
	return nil
}

// samePosting reports whether a committed event was produced by p.
func samePosting(e models.LedgerEvent, p models.Posting) bool {
	return e.AccountID == p.AccountID &&
		e.Kind == p.Kind &&
		e.Amount.Equal(p.Amount) &&
		e.CounterpartyAccountID == p.CounterpartyAccountID
}
