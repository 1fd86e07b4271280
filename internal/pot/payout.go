package pot

import (
	"math/big"

	"github.com/0gfoundation/0g-rosca/internal/types"
)

// Payout is the split of one rotation's gross pot.
type Payout struct {
	Gross   *big.Int // participants × contribution
	Fee     *big.Int // Gross / 100, to the revenue treasury
	Net     *big.Int // Gross − Fee
	RiskCut *big.Int // Net × num / den, becomes the new risk-pool balance
	Winner  *big.Int // Net − RiskCut + pending risk-pool use
}

// computePayout applies the fee and risk-pool cut. All divisions floor.
func computePayout(contribution *big.Int, participants int, num, den uint64, pendingUse *big.Int) Payout {
	gross := new(big.Int).Mul(contribution, big.NewInt(int64(participants)))
	fee := new(big.Int).Quo(gross, big.NewInt(types.FeeDivisor))
	net := new(big.Int).Sub(gross, fee)

	riskCut := new(big.Int).Mul(net, new(big.Int).SetUint64(num))
	riskCut.Quo(riskCut, new(big.Int).SetUint64(den))

	winner := new(big.Int).Sub(net, riskCut)
	if pendingUse != nil {
		winner.Add(winner, pendingUse)
	}
	return Payout{Gross: gross, Fee: fee, Net: net, RiskCut: riskCut, Winner: winner}
}
