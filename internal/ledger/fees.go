package ledger

import "time"

// FeeSchedule is the static cost table applied by the TokenService. It is
// injected at construction so fee changes are a config edit, not a redeploy.
type FeeSchedule struct {
	UploadDocumentCost uint64
	ChatQueryCost      uint64
	QuizGenerationCost uint64
	ShareDocumentCost  uint64
	MinimumStakeAmount uint64
	TokenExchangeRate  uint64 // Credits minted per unit of external currency
	StakeCooldown      time.Duration
}

// DefaultFeeSchedule returns the standard fee schedule.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		UploadDocumentCost: 10,
		ChatQueryCost:      1,
		QuizGenerationCost: 5,
		ShareDocumentCost:  2,
		MinimumStakeAmount: 100,
		TokenExchangeRate:  1000,
		StakeCooldown:      7 * 24 * time.Hour,
	}
}
