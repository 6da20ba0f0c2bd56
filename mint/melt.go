package mint

import (
	"context"
	"fmt"
	"time"

	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/mint/lightning"
	"github.com/satmint/mintcore/mint/storage"
)

// MeltTokens is the melt orchestrator: it locks the supplied proofs pending,
// pays the quote's invoice through the Lightning backend, and on success
// promotes the proofs to spent and signs change for any overpaid amount.
// blankOutputs are amount-less blinded messages the wallet supplies in case
// the melt overpays; the mint only signs as many of them as it needs.
func (m *Mint) MeltTokens(ctx context.Context, method, quoteId string, proofs cashu.Proofs, blankOutputs cashu.BlindedMessages) (storage.MeltQuote, cashu.BlindedSignatures, error) {
	if method != BOLT11Method {
		return storage.MeltQuote{}, nil, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, nil, cashu.QuoteNotExistErr
	}
	switch meltQuote.State {
	case nut05.Paid:
		return storage.MeltQuote{}, nil, cashu.MeltQuoteAlreadyPaid
	case nut05.Pending:
		return storage.MeltQuote{}, nil, cashu.QuotePending
	}
	if uint64(time.Now().Unix()) > meltQuote.Expiry {
		return storage.MeltQuote{}, nil, cashu.QuoteExpiredErr
	}

	if err := m.validateUnits(proofs, blankOutputs, ""); err != nil {
		return storage.MeltQuote{}, nil, err
	}

	Ys, err := proofYs(proofs)
	if err != nil {
		return storage.MeltQuote{}, nil, err
	}
	if err := m.verifyProofs(proofs, Ys, blankOutputs); err != nil {
		return storage.MeltQuote{}, nil, err
	}

	var inputAmount uint64
	for _, proof := range proofs {
		inputAmount += proof.Amount
	}
	inputFees := m.TransactionFees(proofs)
	required := meltQuote.Amount + meltQuote.FeeReserve + uint64(inputFees)
	if inputAmount < required {
		return storage.MeltQuote{}, nil, cashu.InsufficientProofsAmount
	}

	expiresAt := time.Now().Add(m.pendingTTL).Unix()
	if err := m.db.MarkMeltQuotePending(meltQuote.Id, proofs, expiresAt); err != nil {
		errmsg := fmt.Sprintf("error marking melt quote and proofs pending: %v", err)
		return storage.MeltQuote{}, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	// if a mint quote exists on the same invoice, settle without ever
	// touching the Lightning backend: no routing fee was reserved for this
	// path, so the whole fee reserve counts toward the wallet's change.
	if mintQuote, err := m.db.GetMintQuoteByPaymentHash(meltQuote.PaymentHash); err == nil {
		m.logInfof("settling melt quote '%v' internally against mint quote '%v'", meltQuote.Id, mintQuote.Id)
		result := lightning.PaymentResult{Preimage: "internal", FeeSat: 0, State: lightning.Succeeded}
		settled, change, err := m.finalizeSuccessfulMelt(meltQuote, Ys, proofs, inputAmount, inputFees, result, blankOutputs)
		if err != nil {
			return settled, change, err
		}
		if mintQuote.State == nut04.Unpaid {
			if err := m.db.UpdateMintQuoteState(mintQuote.Id, nut04.Paid); err != nil {
				m.logErrorf("error marking mint quote '%v' paid after internal settlement: %v", mintQuote.Id, err)
			}
		}
		return settled, change, nil
	}

	m.logInfof("attempting lightning payment for melt quote '%v'", meltQuote.Id)
	result, payErr := m.lightningClient.PayInvoice(ctx, meltQuote.InvoiceRequest, meltQuote.FeeReserve, 60)

	switch {
	case payErr == nil && result.State == lightning.Succeeded:
		return m.finalizeSuccessfulMelt(meltQuote, Ys, proofs, inputAmount, inputFees, result, blankOutputs)
	case payErr == nil && result.State == lightning.Pending:
		m.logInfof("melt quote '%v' payment still in flight", meltQuote.Id)
		return meltQuote, nil, cashu.QuotePending
	case payErr != nil && ctx.Err() != nil:
		m.logInfof("melt quote '%v' payment timed out without a final result; leaving it pending", meltQuote.Id)
		return meltQuote, nil, cashu.QuotePending
	default:
		m.logErrorf("lightning payment failed for melt quote '%v': %v", meltQuote.Id, payErr)
		if err := m.db.RemovePendingProofs(Ys); err != nil {
			m.logErrorf("error removing pending proofs after failed payment: %v", err)
		}
		if err := m.db.UpdateMeltQuote(meltQuote.Id, "", 0, nut05.Unpaid); err != nil {
			m.logErrorf("error reverting melt quote state after failed payment: %v", err)
		}
		return storage.MeltQuote{}, nil, cashu.LightningPaymentFailedErr
	}
}

// finalizeSuccessfulMelt promotes the pending proofs to spent, transitions
// the quote to PAID, and signs change for any amount the wallet overpaid.
func (m *Mint) finalizeSuccessfulMelt(meltQuote storage.MeltQuote, Ys []string, proofs cashu.Proofs, inputAmount uint64, inputFees uint, result lightning.PaymentResult, blankOutputs cashu.BlindedMessages) (storage.MeltQuote, cashu.BlindedSignatures, error) {
	if err := m.db.PromotePendingToSpent(Ys, proofs); err != nil {
		errmsg := fmt.Sprintf("error promoting pending proofs to spent: %v", err)
		return storage.MeltQuote{}, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if err := m.db.UpdateMeltQuote(meltQuote.Id, result.Preimage, result.FeeSat, nut05.Paid); err != nil {
		errmsg := fmt.Sprintf("error updating melt quote in db: %v", err)
		return storage.MeltQuote{}, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	meltQuote.State = nut05.Paid
	meltQuote.Preimage = result.Preimage
	meltQuote.FeePaid = result.FeeSat

	actualCost := meltQuote.Amount + result.FeeSat + uint64(inputFees)
	var overpaid uint64
	if inputAmount > actualCost {
		overpaid = inputAmount - actualCost
	}

	change, err := m.signChange(overpaid, blankOutputs)
	if err != nil {
		m.logErrorf("error signing change for melt quote '%v': %v", meltQuote.Id, err)
		return meltQuote, nil, nil
	}
	return meltQuote, change, nil
}

// signChange decomposes overpaid into its binary denominations and signs as
// many of the wallet-supplied blank outputs as are needed, re-labelling each
// to the currently active keyset.
func (m *Mint) signChange(overpaid uint64, blankOutputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	if overpaid == 0 || len(blankOutputs) == 0 {
		return nil, nil
	}

	amounts := cashu.AmountSplit(overpaid)
	if len(amounts) > len(blankOutputs) {
		amounts = amounts[:len(blankOutputs)]
	}

	m.mu.RLock()
	activeId := m.activeKeyset.Id
	m.mu.RUnlock()

	relabelled := make(cashu.BlindedMessages, len(amounts))
	for i, amount := range amounts {
		relabelled[i] = cashu.BlindedMessage{
			Amount:  amount,
			Id:      activeId,
			B_:      blankOutputs[i].B_,
			Witness: blankOutputs[i].Witness,
		}
	}

	return m.signBlindedMessages(relabelled)
}

// removePendingProofsForQuote releases the pending lock on every proof tied
// to quoteId. Used by reconcileMeltQuote when the backend reports the
// payment failed; MeltTokens' own failure path releases its Ys directly.
func (m *Mint) removePendingProofsForQuote(quoteId string) error {
	pending, err := m.db.GetPendingProofsByQuote(quoteId)
	if err != nil {
		return err
	}
	Ys := make([]string, len(pending))
	for i, p := range pending {
		Ys[i] = p.Y
	}
	return m.db.RemovePendingProofs(Ys)
}

// reconcileMeltQuote resolves a PENDING melt quote by asking the Lightning
// backend for the outgoing payment's current status, applying the same
// success/failure dispatch MeltTokens itself uses. Used both by an active
// state-check request and the background reconciler.
func (m *Mint) reconcileMeltQuote(ctx context.Context, meltQuote storage.MeltQuote) (storage.MeltQuote, error) {
	result, err := m.lightningClient.GetPaymentStatus(ctx, meltQuote.PaymentHash)
	if err != nil {
		errmsg := fmt.Sprintf("error getting payment status: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	switch result.State {
	case lightning.Succeeded:
		pending, err := m.db.GetPendingProofsByQuote(meltQuote.Id)
		if err != nil {
			return storage.MeltQuote{}, cashu.BuildCashuError(err.Error(), cashu.DBErrCode)
		}
		proofs := make(cashu.Proofs, len(pending))
		Ys := make([]string, len(pending))
		for i, p := range pending {
			Ys[i] = p.Y
			proofs[i] = cashu.Proof{Amount: p.Amount, Id: p.Id, Secret: p.Secret, C: p.C, Witness: p.Witness}
		}
		if err := m.db.PromotePendingToSpent(Ys, proofs); err != nil {
			return storage.MeltQuote{}, cashu.BuildCashuError(err.Error(), cashu.DBErrCode)
		}
		if err := m.db.UpdateMeltQuote(meltQuote.Id, result.Preimage, result.FeeSat, nut05.Paid); err != nil {
			return storage.MeltQuote{}, cashu.BuildCashuError(err.Error(), cashu.DBErrCode)
		}
		meltQuote.State = nut05.Paid
		meltQuote.Preimage = result.Preimage
		meltQuote.FeePaid = result.FeeSat
		return meltQuote, nil

	case lightning.Failed:
		if err := m.removePendingProofsForQuote(meltQuote.Id); err != nil {
			return storage.MeltQuote{}, cashu.BuildCashuError(err.Error(), cashu.DBErrCode)
		}
		if err := m.db.UpdateMeltQuote(meltQuote.Id, "", 0, nut05.Unpaid); err != nil {
			return storage.MeltQuote{}, cashu.BuildCashuError(err.Error(), cashu.DBErrCode)
		}
		meltQuote.State = nut05.Unpaid
		return meltQuote, nil

	default:
		return meltQuote, nil
	}
}
