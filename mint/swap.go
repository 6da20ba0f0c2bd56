package mint

import (
	"fmt"

	"github.com/satmint/mintcore/cashu"
)

// Swap implements NUT-03: spend proofs and receive newly blind-signed
// proofs of the caller's chosen denominations in return, preserving
// unlinkability between the old and new tokens.
func (m *Mint) Swap(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	if len(proofs) == 0 {
		return nil, cashu.NoProofsProvided
	}
	if len(blindedMessages) == 0 {
		return nil, cashu.EmptyBodyErr
	}
	if cashu.CheckDuplicateBlindedMessages(blindedMessages) {
		return nil, cashu.DuplicateOutputs
	}

	if err := m.validateUnits(proofs, blindedMessages, ""); err != nil {
		return nil, err
	}

	Ys, err := proofYs(proofs)
	if err != nil {
		return nil, err
	}

	if err := m.verifyProofs(proofs, Ys, blindedMessages); err != nil {
		return nil, err
	}

	var inputAmount, outputAmount uint64
	for _, proof := range proofs {
		inputAmount += proof.Amount
	}
	for _, bm := range blindedMessages {
		outputAmount += bm.Amount
	}
	fee := m.TransactionFees(proofs)
	if inputAmount != outputAmount+uint64(fee) {
		return nil, cashu.AmountMismatchErr
	}

	if err := m.db.SaveProofs(proofs); err != nil {
		errmsg := fmt.Sprintf("error saving spent proofs: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	signatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		// the inputs are already marked spent: per NUT-09 the client
		// recovers by requesting signature restoration, not by retrying
		// the swap with the same inputs.
		return nil, err
	}

	return signatures, nil
}
