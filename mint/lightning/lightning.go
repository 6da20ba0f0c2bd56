// Package lightning defines the abstract Lightning payment backend the mint
// depends on. The mint never talks to a node directly; every payment and
// invoice operation goes through this interface so the real backend (LND,
// CLN, ...) and the test double (FakeBackend) are interchangeable.
package lightning

import "context"

// InvoiceState mirrors the lifecycle a Lightning invoice or outgoing payment
// moves through from the mint's point of view.
type InvoiceState int

const (
	Pending InvoiceState = iota
	Succeeded
	Failed
)

func (s InvoiceState) String() string {
	switch s {
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	default:
		return "PENDING"
	}
}

// Invoice is an invoice the mint asked the backend to create, to be paid by
// a wallet minting ecash.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	Preimage       string
	Amount         uint64
	Expiry         uint64
	State          InvoiceState
}

// PaymentResult is the outcome of an outgoing payment the mint made on
// behalf of a wallet melting ecash.
type PaymentResult struct {
	Preimage string
	FeeSat   uint64
	State    InvoiceState
}

// DecodedInvoice is what the backend extracts from a bolt11 string without
// paying it, used when creating a melt quote.
type DecodedInvoice struct {
	PaymentHash string
	AmountMsat  uint64
	Description string
	Expiry      uint64
	Destination string
}

// Client is the capability the mint requires of a Lightning backend.
type Client interface {
	CreateInvoice(ctx context.Context, amountSat uint64, memo string, expirySecs uint64) (Invoice, error)
	GetInvoiceStatus(ctx context.Context, paymentHash string) (InvoiceState, error)
	DecodeInvoice(request string) (DecodedInvoice, error)
	PayInvoice(ctx context.Context, request string, maxFeeSat uint64, timeoutSecs uint64) (PaymentResult, error)
	GetPaymentStatus(ctx context.Context, paymentHash string) (PaymentResult, error)
	GetNodePubkey() (string, error)
	IsReady() bool
	GetBalance() (uint64, error)
}
