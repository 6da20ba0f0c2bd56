// Package storage defines the persistence contract the mint's orchestrators
// depend on: keysets, spent/pending proofs, quotes and issued blind
// signatures. See mint/storage/sqlite for the concrete implementation.
package storage

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
)

type MintDB interface {
	SaveKeyset(DBKeyset) error
	GetKeysets() ([]DBKeyset, error)
	UpdateKeysetActive(keysetId string, active bool) error

	// SaveSeed and GetSeed persist the master seed behind the mint's NUT-06
	// identity keypair. This is unrelated to keyset signing keys, which are
	// CSPRNG-sampled per denomination and stored in full; the identity
	// keypair is the one thing in the mint still derived, HD-wallet style,
	// from a single seed.
	SaveSeed(seed []byte) error
	GetSeed() ([]byte, error)

	SaveProofs(cashu.Proofs) error
	GetProofsUsed(Ys []string) ([]DBProof, error)

	AddPendingProofs(proofs cashu.Proofs, meltQuoteId string, expiresAt int64) error
	GetPendingProofs(Ys []string) ([]DBProof, error)
	GetPendingProofsByQuote(quoteId string) ([]DBProof, error)
	RemovePendingProofs(Ys []string) error
	// SweepExpiredPending removes pending proof rows whose expiresAt has
	// passed, returning the number of rows removed. Used by the melt
	// reconciler to recover from a mint process that crashed mid-payment.
	SweepExpiredPending(now int64) (int, error)
	// PromotePendingToSpent moves proofs from the pending table to the
	// spent table as a single transaction: the Ys are deleted from
	// pending_proofs and proofs inserted into proofs atomically, so a
	// crash between the two never leaves a settled payment's inputs
	// untracked by either table.
	PromotePendingToSpent(Ys []string, proofs cashu.Proofs) error

	SaveMintQuote(MintQuote) error
	GetMintQuote(string) (MintQuote, error)
	GetMintQuoteByPaymentHash(string) (MintQuote, error)
	UpdateMintQuoteState(quoteId string, state nut04.State) error

	SaveMeltQuote(MeltQuote) error
	GetMeltQuote(string) (MeltQuote, error)
	// GetMeltQuoteByPaymentRequest is used to check whether a melt quote
	// already exists for the given invoice.
	GetMeltQuoteByPaymentRequest(string) (*MeltQuote, error)
	// GetPendingMeltQuotes lists every quote currently in the PENDING
	// state, used by the background reconciler to recover from a mint
	// process that crashed mid-payment.
	GetPendingMeltQuotes() ([]MeltQuote, error)
	UpdateMeltQuote(quoteId string, preimage string, feePaid uint64, state nut05.State) error
	// MarkMeltQuotePending transitions a melt quote to PENDING and locks
	// its input proofs in the pending table as a single transaction, so a
	// failure partway through never leaves a PENDING quote with no
	// pending proofs recorded (which the reconciler could never resolve).
	MarkMeltQuotePending(quoteId string, proofs cashu.Proofs, expiresAt int64) error

	SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error
	GetBlindSignature(B_ string) (cashu.BlindedSignature, error)
	GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error)

	// GetIssuedEcash and GetRedeemedEcash return per-keyset totals, used to
	// compute the mint's outstanding balance.
	GetIssuedEcash() (map[string]uint64, error)
	GetRedeemedEcash() (map[string]uint64, error)

	Close() error
}

// DBKeyset persists a keyset's metadata and its per-denomination private
// scalars. Keys are CSPRNG-sampled independently per denomination, so unlike
// a BIP-32 derivation scheme they cannot be recovered from a seed: the
// private keys themselves must round-trip through the store.
type DBKeyset struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
	CreatedAt   int64
	Keys        map[uint64]*secp256k1.PrivateKey
}

type DBProof struct {
	Amount  uint64
	Id      string
	Secret  string
	Y       string
	C       string
	Witness string
	// MeltQuoteId and ExpiresAt are only populated for rows in the pending
	// table.
	MeltQuoteId string
	ExpiresAt   int64
}

type MintQuote struct {
	Id             string
	Amount         uint64
	PaymentRequest string
	PaymentHash    string
	State          nut04.State
	Expiry         uint64
	IssuedAt       int64
}

type MeltQuote struct {
	Id             string
	InvoiceRequest string
	PaymentHash    string
	Amount         uint64
	FeeReserve     uint64
	FeePaid        uint64
	State          nut05.State
	Expiry         uint64
	Preimage       string
	IsMpp          bool
	AmountMsat     uint64
}
