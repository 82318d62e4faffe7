package services

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

var orderIDPattern = regexp.MustCompile(`^ORD-\d{8}-\d{6}-\d{5}$`)

// NewOrderID formats ORD-YYYYMMDD-HHMMSS-RRRRR in UTC with a random suffix.
// Uniqueness is best effort; the order document is created with a
// precondition so a collision fails instead of overwriting.
func NewOrderID(now time.Time) string {
	return formatOrderID(now, rand.IntN(100000))
}

func formatOrderID(now time.Time, suffix int) string {
	return fmt.Sprintf("ORD-%s-%05d", now.UTC().Format("20060102-150405"), suffix)
}

// IsOrderID reports whether id has the order ID shape.
func IsOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

var transactionIDPattern = regexp.MustCompile(`^(ORD-\d{8}-\d{6}-\d{5})(?:-[0-9A-Za-z]{1,12})?$`)

// TransactionID derives a gateway transaction ID from an order ID. Each
// payment attempt gets its own suffix because gateways reject reused IDs.
func TransactionID(orderID, suffix string) string {
	if suffix == "" {
		return orderID
	}
	return orderID + "-" + suffix
}

// OrderIDFromTransaction recovers the order ID a transaction ID was built from.
func OrderIDFromTransaction(txnID string) (string, bool) {
	m := transactionIDPattern.FindStringSubmatch(strings.TrimSpace(txnID))
	if m == nil {
		return "", false
	}
	return m[1], true
}
