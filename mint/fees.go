package mint

import "github.com/satmint/mintcore/cashu"

// feeReserveBaseSat and feeReserveRate implement the fee_reserve formula:
// max(1, base_fee + ceil(amount * fee_rate)).
const (
	feeReserveBaseSat = 1
	feeReserveRate    = 0.01
)

// feeReserve estimates the Lightning routing fee a mint should hold back
// before attempting a melt payment of amountSat.
func feeReserve(amountSat uint64) uint64 {
	reserve := feeReserveBaseSat + uint64(float64(amountSat)*feeReserveRate+0.999999)
	return cashu.Max(1, reserve)
}

// TransactionFees is the ppk input fee, summed across proofs and divided by
// 1000 with ceiling rounding: ceil(sum(input_fee_ppk) / 1000).
func (m *Mint) TransactionFees(inputs cashu.Proofs) uint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ppkSum uint
	for _, proof := range inputs {
		// proof.Id is assumed valid; verifyProofs rejects unknown keysets
		// before fees are ever computed on untrusted input.
		if keyset, ok := m.keysets[proof.Id]; ok {
			ppkSum += keyset.InputFeePpk
		}
	}
	return (ppkSum + 999) / 1000
}

// blankOutputsCount returns how many blank (NUT-08) change outputs a melt
// quote with the given fee reserve should request room for:
// max(ceil(log2(fee_reserve+1)), 1).
func blankOutputsCount(feeReserveSat uint64) uint {
	if feeReserveSat == 0 {
		return 0
	}

	count := uint(1)
	for (uint64(1) << count) < feeReserveSat+1 {
		count++
	}
	if count < 1 {
		count = 1
	}
	return count
}
