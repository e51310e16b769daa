package services

import (
	"math"
	"time"

	"github.com/milestonepay/backend/internal/models"
)

// NormalizeUSD converts an amount in minor units to a USD snapshot using the
// supplied rate. Pure function, no state: the snapshot is the
// audit-of-record even if the rate has since moved.
func NormalizeUSD(amount int64, currency string, rate float64, at time.Time) (models.USDSnapshot, error) {
	if amount < 0 {
		return models.USDSnapshot{}, validationErr("amount", "must not be negative")
	}
	if len(currency) != 3 {
		return models.USDSnapshot{}, validationErr("currency", "must be a 3-letter ISO code")
	}
	if rate <= 0 {
		return models.USDSnapshot{}, validationErr("rate", "must be positive")
	}
	usd := int64(math.Round(float64(amount) * rate))
	return models.USDSnapshot{Amount: usd, Rate: rate, RateAt: at}, nil
}
