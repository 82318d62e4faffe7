package services

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var indianEnglish = language.MustParse("en-IN")

// FormatINR renders whole rupees with Indian digit grouping, e.g. ₹1,25,000.
func FormatINR(amount int64) string {
	p := message.NewPrinter(indianEnglish)
	if amount < 0 {
		return p.Sprintf("-₹%v", number.Decimal(-amount))
	}
	return p.Sprintf("₹%v", number.Decimal(amount))
}
