package payment

import (
	"fmt"

	"socratic-go/internal/config"
	"socratic-go/internal/ledger"
)

// NewRailFromConfig creates a PaymentRail based on the payment config type.
// Production rails (an on-chain transfer, a card processor) implement
// ledger.PaymentRail and register here.
func NewRailFromConfig(cfg config.PaymentConfig) (ledger.PaymentRail, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryRail(), nil
	default:
		return nil, fmt.Errorf("unknown payment rail type: %s", cfg.Type)
	}
}
