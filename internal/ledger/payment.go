package ledger

import "context"

// PaymentRail moves external currency from a payer to the treasury during a
// token purchase. The ledger treats Transfer as an atomic external call: if it
// returns nil the payment is irrevocable and minting is safe to apply; if it
// returns an error no balance mutation occurs. Durability and retry semantics
// are the rail's own concern.
type PaymentRail interface {
	Transfer(ctx context.Context, payer string, treasury string, amount uint64) error
}
