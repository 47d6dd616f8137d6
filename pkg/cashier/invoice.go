package cashier

import (
	"iter"
	"math"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Invoice is a read-side projection of a billed document, fetched on demand
// from the processor and never cached beyond the request lifetime.
type Invoice struct {
	ID       string
	ChargeID string // settled charge reference, usable for refunds
	Amount   int64  // signed sum of line items, minor currency units
	Currency string
	Date     time.Time
	Lines    []LineItem
}

// LineItem is a single billed position with its covered period. The period
// is significant after billing-cycle anchoring (short first period) and
// after plan swaps (proration lines).
type LineItem struct {
	Description string
	Amount      int64
	Currency    string
	Period      Period
	Proration   bool
}

// Period is the [Start, End) window a line item covers.
type Period struct {
	Start time.Time
	End   time.Time
}

// Total formats the signed invoice amount as a currency string, e.g. "$10.00".
func (i *Invoice) Total() string {
	return FormatAmount(i.Amount, i.Currency)
}

// Items returns the invoice's line items as a restartable sequence; ranging
// over it multiple times replays the items in invoice order.
func (i *Invoice) Items() iter.Seq[LineItem] {
	return func(yield func(LineItem) bool) {
		for _, line := range i.Lines {
			if !yield(line) {
				return
			}
		}
	}
}

// FormatAmount renders an amount in minor currency units using the currency's
// narrow symbol, e.g. FormatAmount(1000, "USD") == "$10.00". Unknown currency
// codes fall back to USD. Negative amounts (credit notes, proration credits)
// carry a leading minus.
func FormatAmount(amount int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	p := message.NewPrinter(language.AmericanEnglish)
	sym := p.Sprint(currency.NarrowSymbol(unit))
	value := p.Sprintf("%.2f", math.Abs(float64(amount))/100)
	if amount < 0 {
		return "-" + sym + value
	}
	return sym + value
}
