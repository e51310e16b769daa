package services

// Default fee rates in basis points, overridable per project and via env.
const (
	DefaultPlatformFeeBps   = 1000 // 10%
	DefaultProcessingFeeBps = 290  // 2.9%
)

// FeePolicy computes platform and processing fees. It is the single fee
// formula in the system: release, dispute settlement, and payout estimates
// all go through it, so a quote and the eventual real movement cannot diverge
// for identical inputs.
type FeePolicy struct {
	PlatformFeeBps   int64
	ProcessingFeeBps int64
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{PlatformFeeBps: DefaultPlatformFeeBps, ProcessingFeeBps: DefaultProcessingFeeBps}
}

type Fees struct {
	Platform   int64 `json:"platform_fee"`
	Processing int64 `json:"processing_fee"`
	Net        int64 `json:"net_amount"`
}

// Compute derives fees from the gross amount alone, never from prior
// transactions. Integer basis-point arithmetic, truncating toward zero.
func (p FeePolicy) Compute(amount int64) Fees {
	platform := amount * p.PlatformFeeBps / 10000
	processing := amount * p.ProcessingFeeBps / 10000
	return Fees{
		Platform:   platform,
		Processing: processing,
		Net:        amount - platform - processing,
	}
}
