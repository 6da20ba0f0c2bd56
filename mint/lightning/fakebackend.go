package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	FakePreimage           = "0000000000000000000000000000000000000000000000000000000000000000"
	FailPaymentDescription = "fail the payment"
)

// FakeBackend is a Lightning.Client test double. It fabricates real bolt11
// strings with zpay32 but never touches a network; payments against an
// invoice whose description is FailPaymentDescription always fail, which
// tests use to exercise the melt failure path.
type FakeBackend struct {
	mu           sync.Mutex
	invoices     []fakeInvoice
	payments     []fakePayment
	PaymentDelay int64
	nodePubkey   *secp256k1.PrivateKey
}

type fakeInvoice struct {
	PaymentRequest string
	PaymentHash    string
	Preimage       string
	Amount         uint64
	Expiry         uint64
	State          InvoiceState
}

type fakePayment struct {
	PaymentHash string
	Preimage    string
	FeeSat      uint64
	State       InvoiceState
	createdAt   int64
}

func NewFakeBackend() (*FakeBackend, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &FakeBackend{nodePubkey: key}, nil
}

func (fb *FakeBackend) IsReady() bool { return true }

func (fb *FakeBackend) GetNodePubkey() (string, error) {
	return hex.EncodeToString(fb.nodePubkey.PubKey().SerializeCompressed()), nil
}

func (fb *FakeBackend) GetBalance() (uint64, error) {
	return 1_000_000, nil
}

func (fb *FakeBackend) CreateInvoice(ctx context.Context, amountSat uint64, memo string, expirySecs uint64) (Invoice, error) {
	request, preimage, paymentHash, err := CreateFakeInvoice(amountSat, memo == FailPaymentDescription)
	if err != nil {
		return Invoice{}, err
	}

	invoice := fakeInvoice{
		PaymentRequest: request,
		PaymentHash:    paymentHash,
		Preimage:       preimage,
		Amount:         amountSat,
		Expiry:         expirySecs,
		State:          Pending,
	}

	fb.mu.Lock()
	fb.invoices = append(fb.invoices, invoice)
	fb.mu.Unlock()

	return Invoice{
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
		Amount:         invoice.Amount,
		Expiry:         invoice.Expiry,
		State:          invoice.State,
	}, nil
}

func (fb *FakeBackend) GetInvoiceStatus(ctx context.Context, paymentHash string) (InvoiceState, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool { return i.PaymentHash == paymentHash })
	if idx == -1 {
		return Failed, errors.New("invoice does not exist")
	}
	return fb.invoices[idx].State, nil
}

// SettleInvoice marks a fabricated invoice as paid, used by tests that
// simulate a wallet paying the mint quote's invoice.
func (fb *FakeBackend) SettleInvoice(paymentHash string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool { return i.PaymentHash == paymentHash })
	if idx == -1 {
		return
	}
	fb.invoices[idx].State = Succeeded
}

func (fb *FakeBackend) DecodeInvoice(request string) (DecodedInvoice, error) {
	invoice, err := decodepay.Decodepay(request)
	if err != nil {
		return DecodedInvoice{}, fmt.Errorf("error decoding invoice: %w", err)
	}

	return DecodedInvoice{
		PaymentHash: invoice.PaymentHash,
		AmountMsat:  uint64(invoice.MSatoshi),
		Description: invoice.Description,
		Expiry:      uint64(invoice.Expiry),
	}, nil
}

func (fb *FakeBackend) PayInvoice(ctx context.Context, request string, maxFeeSat uint64, timeoutSecs uint64) (PaymentResult, error) {
	invoice, err := decodepay.Decodepay(request)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error decoding invoice: %w", err)
	}

	state := Succeeded
	if invoice.Description == FailPaymentDescription {
		state = Failed
	} else if fb.PaymentDelay > 0 && time.Now().Unix() < int64(invoice.CreatedAt)+fb.PaymentDelay {
		state = Pending
	}

	payment := fakePayment{
		PaymentHash: invoice.PaymentHash,
		Preimage:    FakePreimage,
		State:       state,
		createdAt:   int64(invoice.CreatedAt),
	}

	fb.mu.Lock()
	fb.payments = append(fb.payments, payment)
	fb.mu.Unlock()

	if state == Failed {
		return PaymentResult{State: Failed}, nil
	}

	return PaymentResult{Preimage: FakePreimage, State: state}, nil
}

func (fb *FakeBackend) GetPaymentStatus(ctx context.Context, paymentHash string) (PaymentResult, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	idx := slices.IndexFunc(fb.payments, func(p fakePayment) bool { return p.PaymentHash == paymentHash })
	if idx == -1 {
		return PaymentResult{}, errors.New("payment does not exist")
	}

	payment := fb.payments[idx]
	result := PaymentResult{State: payment.State}
	if payment.State == Succeeded {
		result.Preimage = payment.Preimage
	}
	return result, nil
}

func CreateFakeInvoice(amount uint64, failPayment bool) (string, string, string, error) {
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		return "", "", "", err
	}
	preimage := hex.EncodeToString(random[:])
	paymentHash := sha256.Sum256(random[:])
	hash := hex.EncodeToString(paymentHash[:])

	description := "mint invoice"
	if failPayment {
		description = FailPaymentDescription
	}

	invoice, err := zpay32.NewInvoice(
		&chaincfg.SigNetParams,
		paymentHash,
		time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(amount*1000)),
		zpay32.Description(description),
	)
	if err != nil {
		return "", "", "", err
	}

	invoiceStr, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			key, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return []byte{}, err
			}
			return ecdsa.SignCompact(key, msg, true), nil
		},
	})
	if err != nil {
		return "", "", "", err
	}

	return invoiceStr, preimage, hash, nil
}
