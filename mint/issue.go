package mint

import (
	"context"
	"fmt"

	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
)

// MintTokens implements NUT-04 step 2: once a mint quote has been paid, the
// wallet exchanges it for blind-signed proofs summing to the quote amount.
func (m *Mint) MintTokens(ctx context.Context, method, quoteId string, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	if method != BOLT11Method {
		return nil, cashu.PaymentMethodNotSupportedErr
	}
	if len(blindedMessages) == 0 {
		return nil, cashu.EmptyBodyErr
	}

	mintQuote, err := m.GetMintQuoteState(ctx, method, quoteId)
	if err != nil {
		return nil, err
	}

	switch mintQuote.State {
	case nut04.Unpaid:
		return nil, cashu.MintQuoteRequestNotPaid
	case nut04.Issued:
		return nil, cashu.MintQuoteAlreadyIssued
	}

	if cashu.CheckDuplicateBlindedMessages(blindedMessages) {
		return nil, cashu.DuplicateOutputs
	}

	if err := m.validateUnits(nil, blindedMessages, SatUnit); err != nil {
		return nil, err
	}

	var outputAmount uint64
	for _, bm := range blindedMessages {
		outputAmount += bm.Amount
	}
	if outputAmount != mintQuote.Amount {
		return nil, cashu.OutputsOverQuoteAmountErr
	}

	signatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		// signing failed: leave the quote PAID so the client can retry
		// with the same or different outputs.
		return nil, err
	}

	if err := m.db.UpdateMintQuoteState(mintQuote.Id, nut04.Issued); err != nil {
		errmsg := fmt.Sprintf("error updating mint quote state: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return signatures, nil
}
