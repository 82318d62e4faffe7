package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	domain "github.com/exambook-store/api/internal/domain"
)

const (
	// FlatShippingCharge applies on the cart page below the free threshold.
	FlatShippingCharge int64 = 50
	// FreeShippingThreshold is the subtotal above which flat shipping is waived.
	FreeShippingThreshold int64 = 500
	// DefaultBookWeightGrams is assumed for books without a recorded weight.
	DefaultBookWeightGrams = 500

	minChargeableGrams = 100
)

type zoneRates struct {
	tiers    [5]int64
	extraPer int64
}

// Tier upper bounds in kilograms, inclusive.
var weightTiers = [5]decimal.Decimal{
	decimal.RequireFromString("0.5"),
	decimal.NewFromInt(1),
	decimal.NewFromInt(2),
	decimal.NewFromInt(3),
	decimal.NewFromInt(5),
}

var zoneRateTable = map[domain.ShippingZone]zoneRates{
	domain.ZoneA: {tiers: [5]int64{45, 60, 90, 120, 170}, extraPer: 30},
	domain.ZoneB: {tiers: [5]int64{50, 70, 100, 135, 190}, extraPer: 35},
	domain.ZoneC: {tiers: [5]int64{55, 80, 115, 155, 215}, extraPer: 45},
	domain.ZoneD: {tiers: [5]int64{60, 90, 130, 175, 240}, extraPer: 50},
	domain.ZoneE: {tiers: [5]int64{65, 100, 145, 190, 260}, extraPer: 60},
}

var stateZones = buildStateZones(map[domain.ShippingZone][]string{
	domain.ZoneA: {"Delhi", "NCT of Delhi", "New Delhi"},
	domain.ZoneB: {
		"Haryana", "Punjab", "Uttar Pradesh", "Rajasthan", "Chandigarh",
		"Himachal Pradesh", "Uttarakhand", "Uttaranchal",
	},
	domain.ZoneC: {
		"Maharashtra", "Gujarat", "Madhya Pradesh", "Chhattisgarh", "Bihar",
		"Jharkhand", "West Bengal", "Odisha", "Orissa", "Goa",
		"Dadra and Nagar Haveli and Daman and Diu",
	},
	domain.ZoneD: {
		"Karnataka", "Kerala", "Tamil Nadu", "Andhra Pradesh", "Telangana",
		"Puducherry", "Pondicherry", "Jammu & Kashmir", "Jammu and Kashmir", "Ladakh",
	},
	domain.ZoneE: {
		"Assam", "Arunachal Pradesh", "Manipur", "Meghalaya", "Mizoram",
		"Nagaland", "Tripura", "Sikkim", "Andaman and Nicobar Islands",
		"Andaman & Nicobar", "Lakshadweep",
	},
})

func buildStateZones(groups map[domain.ShippingZone][]string) map[string]domain.ShippingZone {
	out := make(map[string]domain.ShippingZone)
	for zone, states := range groups {
		for _, state := range states {
			out[normaliseState(state)] = zone
		}
	}
	return out
}

// normaliseState folds case and drops everything but letters and digits, with
// "&" read as "and". Casers hold state, so each call gets its own.
func normaliseState(state string) string {
	folded := cases.Fold().String(strings.ReplaceAll(state, "&", " and "))
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ZoneForState maps an Indian state or union territory to its delivery zone.
// Unknown states fall back to zone D.
func ZoneForState(state string) domain.ShippingZone {
	if zone, ok := stateZones[normaliseState(state)]; ok {
		return zone
	}
	return domain.ZoneD
}

// ZoneWeightRate prices a parcel of weightGrams to zone. Weights under 100g
// are charged as 100g; beyond 5kg every started kilogram adds the zone's
// extra rate.
func ZoneWeightRate(zone domain.ShippingZone, weightGrams int) int64 {
	rates, ok := zoneRateTable[zone]
	if !ok {
		rates = zoneRateTable[domain.ZoneD]
	}
	if weightGrams < minChargeableGrams {
		weightGrams = minChargeableGrams
	}
	kg := decimal.NewFromInt(int64(weightGrams)).Div(decimal.NewFromInt(1000))
	for i, bound := range weightTiers {
		if kg.LessThanOrEqual(bound) {
			return rates.tiers[i]
		}
	}
	extraKg := kg.Sub(weightTiers[len(weightTiers)-1]).Ceil().IntPart()
	return rates.tiers[len(rates.tiers)-1] + extraKg*rates.extraPer
}

// ShippingInput is what a shipping policy needs to price a cart.
type ShippingInput struct {
	Subtotal    int64
	State       string
	WeightGrams int
	// DigitalOnly is set when no item in the cart is physical.
	DigitalOnly bool
}

// ShippingPolicy prices shipping for a cart.
type ShippingPolicy interface {
	Name() domain.ShippingPolicyName
	Quote(in ShippingInput) int64
}

type flatShippingPolicy struct{}

func (flatShippingPolicy) Name() domain.ShippingPolicyName { return domain.ShippingPolicyFlat }

func (flatShippingPolicy) Quote(in ShippingInput) int64 {
	if in.DigitalOnly || in.Subtotal > FreeShippingThreshold {
		return 0
	}
	return FlatShippingCharge
}

type zoneWeightShippingPolicy struct{}

func (zoneWeightShippingPolicy) Name() domain.ShippingPolicyName {
	return domain.ShippingPolicyZoneWeight
}

func (zoneWeightShippingPolicy) Quote(in ShippingInput) int64 {
	if in.DigitalOnly {
		return 0
	}
	return ZoneWeightRate(ZoneForState(in.State), in.WeightGrams)
}

// ShippingPolicyFor resolves a policy by name.
func ShippingPolicyFor(name domain.ShippingPolicyName) (ShippingPolicy, error) {
	switch name {
	case domain.ShippingPolicyFlat:
		return flatShippingPolicy{}, nil
	case domain.ShippingPolicyZoneWeight, "":
		return zoneWeightShippingPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown shipping policy %q", name)
}

// ParcelWeightGrams sums the weight of physical items, substituting the
// default weight for books without one.
func ParcelWeightGrams(items []domain.CartItem) int {
	total := 0
	for _, item := range items {
		if item.Kind.IsDigital() {
			continue
		}
		weight := item.WeightGrams
		if weight <= 0 {
			weight = DefaultBookWeightGrams
		}
		total += weight * item.Quantity
	}
	return total
}
