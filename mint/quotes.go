package mint

import (
	"context"
	"fmt"
	"time"

	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/cashu/nuts/nut15"
	"github.com/satmint/mintcore/mint/lightning"
	"github.com/satmint/mintcore/mint/storage"
)

// RequestMintQuote processes a NUT-04 request: ask the Lightning backend
// for an invoice of amount, and persist it in the UNPAID state.
func (m *Mint) RequestMintQuote(ctx context.Context, method string, amount uint64, unit string) (storage.MintQuote, error) {
	if method != BOLT11Method {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if unit != SatUnit {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}

	if m.limits.MintingSettings.MaxAmount > 0 && amount > m.limits.MintingSettings.MaxAmount {
		return storage.MintQuote{}, cashu.MintAmountExceededErr
	}
	disabled, err := m.mintingDisabled()
	if err != nil {
		return storage.MintQuote{}, err
	}
	if disabled {
		return storage.MintQuote{}, cashu.MintingDisabled
	}

	expirySecs := uint64(QuoteExpiryMins * 60)
	m.logInfof("requesting invoice from lightning backend for %v sats", amount)
	invoice, err := m.lightningClient.CreateInvoice(ctx, amount, "mint quote", expirySecs)
	if err != nil {
		errmsg := fmt.Sprintf("could not generate invoice: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MintQuote{}, cashu.StandardErr
	}

	mintQuote := storage.MintQuote{
		Id:             quoteId,
		Amount:         amount,
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
		State:          nut04.Unpaid,
		Expiry:         uint64(time.Now().Add(QuoteExpiryMins * time.Minute).Unix()),
	}

	if err := m.db.SaveMintQuote(mintQuote); err != nil {
		errmsg := fmt.Sprintf("error saving mint quote to db: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return mintQuote, nil
}

// GetMintQuoteState returns a mint quote's state, polling the backend for a
// still-UNPAID quote in case the invoice was paid since it was created.
func (m *Mint) GetMintQuoteState(ctx context.Context, method, quoteId string) (storage.MintQuote, error) {
	if method != BOLT11Method {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(quoteId)
	if err != nil {
		return storage.MintQuote{}, cashu.QuoteNotExistErr
	}

	if mintQuote.State == nut04.Unpaid {
		m.logDebugf("checking status of invoice with hash '%v'", mintQuote.PaymentHash)
		status, err := m.lightningClient.GetInvoiceStatus(ctx, mintQuote.PaymentHash)
		if err != nil {
			errmsg := fmt.Sprintf("error getting invoice status: %v", err)
			return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
		}

		if status == lightning.Succeeded {
			m.logInfof("mint quote '%v' with invoice payment hash '%v' was paid", mintQuote.Id, mintQuote.PaymentHash)
			mintQuote.State = nut04.Paid
			if err := m.db.UpdateMintQuoteState(mintQuote.Id, mintQuote.State); err != nil {
				errmsg := fmt.Sprintf("error updating mint quote in db: %v", err)
				return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
			}
		}
	}

	return mintQuote, nil
}

// RequestMeltQuote processes a NUT-05 request: decode the invoice, compute
// the fee reserve the mint requires to cover routing fees, and persist a
// melt quote in the UNPAID state. If a mint quote already exists for the
// same invoice, the pair can later be settled internally so the fee
// reserve is set to 0. A non-nil mpp requests a NUT-15 partial payment of
// the invoice for only mpp.Amount msat.
func (m *Mint) RequestMeltQuote(ctx context.Context, method, request, unit string, mpp *nut15.MppOption) (storage.MeltQuote, error) {
	if method != BOLT11Method {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if unit != SatUnit {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}

	decoded, err := m.lightningClient.DecodeInvoice(request)
	if err != nil {
		errmsg := fmt.Sprintf("invalid invoice: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.MeltQuoteErrCode)
	}
	if decoded.AmountMsat == 0 && mpp == nil {
		return storage.MeltQuote{}, cashu.BuildCashuError("invoice has no amount", cashu.MeltQuoteErrCode)
	}

	amountMsat := decoded.AmountMsat
	isMpp := false
	if mpp != nil {
		if mpp.Amount == 0 {
			return storage.MeltQuote{}, cashu.BuildCashuError("mpp amount cannot be 0", cashu.MeltQuoteErrCode)
		}
		amountMsat = mpp.Amount
		isMpp = true
	}
	satAmount := amountMsat / 1000

	if m.limits.MeltingSettings.MaxAmount > 0 && satAmount > m.limits.MeltingSettings.MaxAmount {
		return storage.MeltQuote{}, cashu.MeltAmountExceededErr
	}

	if !isMpp {
		if existing, err := m.db.GetMeltQuoteByPaymentRequest(request); err == nil && existing != nil {
			return storage.MeltQuote{}, cashu.MeltQuoteForRequestExists
		}
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MeltQuote{}, cashu.StandardErr
	}

	fee := feeReserve(satAmount)
	m.logInfof("got melt quote request for invoice of amount '%v'. Setting fee reserve to %v", satAmount, fee)

	meltQuote := storage.MeltQuote{
		Id:             quoteId,
		InvoiceRequest: request,
		PaymentHash:    decoded.PaymentHash,
		Amount:         satAmount,
		FeeReserve:     fee,
		State:          nut05.Unpaid,
		Expiry:         uint64(time.Now().Add(QuoteExpiryMins * time.Minute).Unix()),
		IsMpp:          isMpp,
		AmountMsat:     amountMsat,
	}

	// if a mint quote exists for this same invoice, the melt can be
	// settled internally without ever touching the Lightning backend, so
	// no routing fee needs to be reserved.
	if !isMpp {
		if mintQuote, err := m.db.GetMintQuoteByPaymentHash(decoded.PaymentHash); err == nil {
			m.logDebugf("melt quote '%v' matches mint quote '%v' on the same invoice; settling internally, fee reserve 0",
				quoteId, mintQuote.Id)
			meltQuote.FeeReserve = 0
		}
	}

	if err := m.db.SaveMeltQuote(meltQuote); err != nil {
		errmsg := fmt.Sprintf("error saving melt quote to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

// GetMeltQuoteState returns a melt quote's state. A PENDING quote is
// reconciled against the backend's outgoing payment status before it is
// returned, mirroring the background reconciler's own logic for the
// common case of a caller actively polling.
func (m *Mint) GetMeltQuoteState(ctx context.Context, method, quoteId string) (storage.MeltQuote, error) {
	if method != BOLT11Method {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}

	if meltQuote.State == nut05.Pending {
		return m.reconcileMeltQuote(ctx, meltQuote)
	}

	return meltQuote, nil
}
