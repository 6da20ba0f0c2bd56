package mint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/crypto"
	"github.com/satmint/mintcore/mint/lightning"
)

// testLoadMint spins up a fresh mint backed by a throwaway sqlite db under
// t.TempDir() and a FakeBackend, so orchestration logic can be exercised
// without a real Lightning node.
func testLoadMint(t *testing.T) (*Mint, *lightning.FakeBackend) {
	t.Helper()

	backend, err := lightning.NewFakeBackend()
	if err != nil {
		t.Fatalf("error creating fake lightning backend: %v", err)
	}

	m, err := LoadMint(Config{MintPath: t.TempDir(), LogLevel: LogDisable}, backend)
	if err != nil {
		t.Fatalf("error loading mint: %v", err)
	}
	t.Cleanup(func() { m.Shutdown() })

	return m, backend
}

// blindOutput fabricates a fresh secret and blinds it for amount under
// keysetId, returning the blinded message to submit plus the secret and
// blinding factor needed to unblind the mint's signature afterwards.
func blindOutput(t *testing.T, amount uint64, keysetId string) (cashu.BlindedMessage, string, *secp256k1.PrivateKey) {
	t.Helper()

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		t.Fatalf("error generating secret: %v", err)
	}
	secret := hex.EncodeToString(secretBytes)

	B_, r, _, err := crypto.BlindMessage([]byte(secret), nil)
	if err != nil {
		t.Fatalf("error blinding message: %v", err)
	}

	return cashu.BlindedMessage{
		Amount: amount,
		Id:     keysetId,
		B_:     hex.EncodeToString(B_.SerializeCompressed()),
	}, secret, r
}

// unblindToProof unblinds a mint signature into a spendable proof, the same
// way a wallet would after a successful mint/swap/melt-change response.
func unblindToProof(t *testing.T, secret string, r *secp256k1.PrivateKey, sig cashu.BlindedSignature, keyset crypto.MintKeyset) cashu.Proof {
	t.Helper()

	C_bytes, err := hex.DecodeString(sig.C_)
	if err != nil {
		t.Fatalf("error decoding C_: %v", err)
	}
	C_, err := secp256k1.ParsePubKey(C_bytes)
	if err != nil {
		t.Fatalf("error parsing C_: %v", err)
	}

	K, ok := keyset.PrivateKeyFor(sig.Amount)
	if !ok {
		t.Fatalf("keyset does not cover amount %v", sig.Amount)
	}
	C := crypto.UnblindSignature(C_, r, K.PubKey())

	return cashu.Proof{
		Amount: sig.Amount,
		Id:     sig.Id,
		Secret: secret,
		C:      hex.EncodeToString(C.SerializeCompressed()),
	}
}

// mintProofs runs a full NUT-04 mint flow for amount and returns the
// resulting spendable proofs, for use as inputs to swap/melt tests.
func mintProofs(t *testing.T, m *Mint, backend *lightning.FakeBackend, amount uint64) cashu.Proofs {
	t.Helper()
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11Method, amount, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	backend.SettleInvoice(quote.PaymentHash)

	state, err := m.GetMintQuoteState(ctx, BOLT11Method, quote.Id)
	if err != nil {
		t.Fatalf("error getting mint quote state: %v", err)
	}
	if state.State != nut04.Paid {
		t.Fatalf("expected mint quote to be PAID but got '%v'", state.State)
	}

	keyset := m.GetActiveKeyset()
	amounts := cashu.AmountSplit(amount)
	outputs := make(cashu.BlindedMessages, len(amounts))
	secrets := make([]string, len(amounts))
	factors := make([]*secp256k1.PrivateKey, len(amounts))
	for i, a := range amounts {
		outputs[i], secrets[i], factors[i] = blindOutput(t, a, keyset.Id)
	}

	signatures, err := m.MintTokens(ctx, BOLT11Method, quote.Id, outputs)
	if err != nil {
		t.Fatalf("error minting tokens: %v", err)
	}

	proofs := make(cashu.Proofs, len(signatures))
	for i, sig := range signatures {
		proofs[i] = unblindToProof(t, secrets[i], factors[i], sig, keyset)
	}
	return proofs
}

func TestRequestMintQuoteRejectsUnsupportedUnit(t *testing.T) {
	m, _ := testLoadMint(t)
	_, err := m.RequestMintQuote(context.Background(), BOLT11Method, 100, "usd")
	if err == nil {
		t.Fatal("expected error for unsupported unit but got nil")
	}
}

func TestMintTokensFullFlow(t *testing.T) {
	m, backend := testLoadMint(t)
	proofs := mintProofs(t, m, backend, 15)

	var total uint64
	for _, p := range proofs {
		total += p.Amount
	}
	if total != 15 {
		t.Fatalf("expected proofs summing to 15 but got %v", total)
	}

	keyset := m.GetActiveKeyset()
	for _, p := range proofs {
		k, _ := keyset.PrivateKeyFor(p.Amount)
		Cbytes, _ := hex.DecodeString(p.C)
		C, _ := secp256k1.ParsePubKey(Cbytes)
		if !crypto.Verify([]byte(p.Secret), k, C) {
			t.Fatal("minted proof does not verify under the active keyset")
		}
	}
}

func TestMintTokensRejectsAlreadyIssuedQuote(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11Method, 8, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	backend.SettleInvoice(quote.PaymentHash)

	keyset := m.GetActiveKeyset()
	output, _, _ := blindOutput(t, 8, keyset.Id)
	if _, err := m.MintTokens(ctx, BOLT11Method, quote.Id, cashu.BlindedMessages{output}); err != nil {
		t.Fatalf("error minting tokens: %v", err)
	}

	output2, _, _ := blindOutput(t, 8, keyset.Id)
	_, err = m.MintTokens(ctx, BOLT11Method, quote.Id, cashu.BlindedMessages{output2})
	if err != cashu.MintQuoteAlreadyIssued {
		t.Fatalf("expected MintQuoteAlreadyIssued but got '%v'", err)
	}
}

func TestSwapFlow(t *testing.T) {
	m, backend := testLoadMint(t)
	proofs := mintProofs(t, m, backend, 16)

	keyset := m.GetActiveKeyset()
	outputs := cashu.BlindedMessages{}
	for _, a := range []uint64{4, 4, 8} {
		bm, _, _ := blindOutput(t, a, keyset.Id)
		outputs = append(outputs, bm)
	}

	signatures, err := m.Swap(proofs, outputs)
	if err != nil {
		t.Fatalf("error swapping proofs: %v", err)
	}
	if len(signatures) != len(outputs) {
		t.Fatalf("expected %v signatures but got %v", len(outputs), len(signatures))
	}

	// the spent inputs cannot be swapped again.
	_, err = m.Swap(proofs, outputs)
	if err != cashu.ProofAlreadyUsedErr {
		t.Fatalf("expected ProofAlreadyUsedErr on reuse but got '%v'", err)
	}
}

func TestSwapRejectsAmountMismatch(t *testing.T) {
	m, backend := testLoadMint(t)
	proofs := mintProofs(t, m, backend, 8)

	keyset := m.GetActiveKeyset()
	output, _, _ := blindOutput(t, 4, keyset.Id)

	_, err := m.Swap(proofs, cashu.BlindedMessages{output})
	if err != cashu.AmountMismatchErr {
		t.Fatalf("expected AmountMismatchErr but got '%v'", err)
	}
}

func TestMeltInternalSettlement(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	mintQuote, err := m.RequestMintQuote(ctx, BOLT11Method, 21, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}

	meltQuote, err := m.RequestMeltQuote(ctx, BOLT11Method, mintQuote.PaymentRequest, SatUnit, nil)
	if err != nil {
		t.Fatalf("error requesting melt quote: %v", err)
	}
	if meltQuote.FeeReserve != 0 {
		t.Fatalf("expected fee reserve 0 for an internally-settleable melt but got %v", meltQuote.FeeReserve)
	}

	proofs := mintProofs(t, m, backend, 21)

	settled, change, err := m.MeltTokens(ctx, BOLT11Method, meltQuote.Id, proofs, nil)
	if err != nil {
		t.Fatalf("error melting tokens: %v", err)
	}
	if settled.State != nut05.Paid {
		t.Fatalf("expected melt quote PAID but got '%v'", settled.State)
	}
	if settled.Preimage != "internal" {
		t.Fatalf("expected internal settlement preimage but got '%v'", settled.Preimage)
	}
	if len(change) != 0 {
		t.Fatalf("expected no change but got %v signatures", len(change))
	}
}

func TestMeltRejectsInsufficientAmount(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	mintQuote, err := m.RequestMintQuote(ctx, BOLT11Method, 30, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	meltQuote, err := m.RequestMeltQuote(ctx, BOLT11Method, mintQuote.PaymentRequest, SatUnit, nil)
	if err != nil {
		t.Fatalf("error requesting melt quote: %v", err)
	}

	proofs := mintProofs(t, m, backend, 10)
	_, _, err = m.MeltTokens(ctx, BOLT11Method, meltQuote.Id, proofs, nil)
	if err != cashu.InsufficientProofsAmount {
		t.Fatalf("expected InsufficientProofsAmount but got '%v'", err)
	}
}

func TestMeltWithChange(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	payeeQuote, err := m.RequestMintQuote(ctx, BOLT11Method, 10, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	meltQuote, err := m.RequestMeltQuote(ctx, BOLT11Method, payeeQuote.PaymentRequest, SatUnit, nil)
	if err != nil {
		t.Fatalf("error requesting melt quote: %v", err)
	}

	// overpay the melt quote so the mint has to return change.
	proofs := mintProofs(t, m, backend, 16)

	keyset := m.GetActiveKeyset()
	blanks := cashu.BlindedMessages{}
	for i := 0; i < 4; i++ {
		bm, _, _ := blindOutput(t, 0, keyset.Id)
		blanks = append(blanks, bm)
	}

	settled, change, err := m.MeltTokens(ctx, BOLT11Method, meltQuote.Id, proofs, blanks)
	if err != nil {
		t.Fatalf("error melting tokens: %v", err)
	}
	if settled.State != nut05.Paid {
		t.Fatalf("expected melt quote PAID but got '%v'", settled.State)
	}
	if len(change) == 0 {
		t.Fatal("expected change to be signed back for the overpaid amount")
	}

	var changeTotal uint64
	for _, sig := range change {
		changeTotal += sig.Amount
	}
	if changeTotal != 6 {
		t.Fatalf("expected 6 sats of change but got %v", changeTotal)
	}
}

func TestProofsStateCheck(t *testing.T) {
	m, backend := testLoadMint(t)
	proofs := mintProofs(t, m, backend, 4)

	Ys, err := proofYs(proofs)
	if err != nil {
		t.Fatalf("error computing Ys: %v", err)
	}

	states, err := m.ProofsStateCheck(Ys)
	if err != nil {
		t.Fatalf("error checking proof states: %v", err)
	}
	for _, state := range states {
		if state.State.String() != "UNSPENT" {
			t.Fatalf("expected freshly minted proof to be UNSPENT but got '%v'", state.State)
		}
	}

	keyset := m.GetActiveKeyset()
	output, _, _ := blindOutput(t, 4, keyset.Id)
	if _, err := m.Swap(proofs, cashu.BlindedMessages{output}); err != nil {
		t.Fatalf("error swapping proofs: %v", err)
	}

	states, err = m.ProofsStateCheck(Ys)
	if err != nil {
		t.Fatalf("error checking proof states: %v", err)
	}
	for _, state := range states {
		if state.State.String() != "SPENT" {
			t.Fatalf("expected spent proof to be SPENT but got '%v'", state.State)
		}
	}
}

func TestRestoreSignatures(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	quote, err := m.RequestMintQuote(ctx, BOLT11Method, 4, SatUnit)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	backend.SettleInvoice(quote.PaymentHash)

	keyset := m.GetActiveKeyset()
	output, _, _ := blindOutput(t, 4, keyset.Id)
	knownOutputs := cashu.BlindedMessages{output}

	signatures, err := m.MintTokens(ctx, BOLT11Method, quote.Id, knownOutputs)
	if err != nil {
		t.Fatalf("error minting tokens: %v", err)
	}

	// mix in a B_ the mint never signed.
	unknown, _, _ := blindOutput(t, 4, keyset.Id)
	outputs, restored, err := m.RestoreSignatures(cashu.BlindedMessages{knownOutputs[0], unknown})
	if err != nil {
		t.Fatalf("error restoring signatures: %v", err)
	}
	if len(outputs) != 1 || len(restored) != 1 {
		t.Fatalf("expected exactly 1 restored signature but got %v", len(restored))
	}
	if restored[0].C_ != signatures[0].C_ {
		t.Fatal("restored signature does not match the one originally issued")
	}
}

func TestGetMeltQuoteStateAfterLightningMelt(t *testing.T) {
	m, backend := testLoadMint(t)
	ctx := context.Background()

	// use a separate invoice so the melt goes through the Lightning
	// backend rather than being settled internally.
	invoiceReq, _, _, err := lightning.CreateFakeInvoice(5, false)
	if err != nil {
		t.Fatalf("error creating fake invoice: %v", err)
	}

	meltQuote, err := m.RequestMeltQuote(ctx, BOLT11Method, invoiceReq, SatUnit, nil)
	if err != nil {
		t.Fatalf("error requesting melt quote: %v", err)
	}

	proofs := mintProofs(t, m, backend, meltQuote.Amount+meltQuote.FeeReserve)
	settled, _, err := m.MeltTokens(ctx, BOLT11Method, meltQuote.Id, proofs, nil)
	if err != nil {
		t.Fatalf("error melting tokens: %v", err)
	}
	if settled.State != nut05.Paid {
		t.Fatalf("expected melt quote PAID but got '%v'", settled.State)
	}

	state, err := m.GetMeltQuoteState(ctx, BOLT11Method, meltQuote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote state: %v", err)
	}
	if state.State != nut05.Paid {
		t.Fatalf("expected melt quote state PAID but got '%v'", state.State)
	}
}

func TestReconcileOnceSettlesPendingQuotes(t *testing.T) {
	m, backend := testLoadMint(t)

	invoiceReq, _, _, err := lightning.CreateFakeInvoice(3, false)
	if err != nil {
		t.Fatalf("error creating fake invoice: %v", err)
	}
	meltQuote, err := m.RequestMeltQuote(context.Background(), BOLT11Method, invoiceReq, SatUnit, nil)
	if err != nil {
		t.Fatalf("error requesting melt quote: %v", err)
	}

	proofs := mintProofs(t, m, backend, meltQuote.Amount+meltQuote.FeeReserve)
	if err := m.db.AddPendingProofs(proofs, meltQuote.Id, time.Now().Add(time.Minute).Unix()); err != nil {
		t.Fatalf("error adding pending proofs: %v", err)
	}
	if err := m.db.UpdateMeltQuote(meltQuote.Id, "", 0, nut05.Pending); err != nil {
		t.Fatalf("error marking melt quote pending: %v", err)
	}

	// simulate the payment having gone out while the mint was unreachable.
	if _, err := backend.PayInvoice(context.Background(), invoiceReq, meltQuote.FeeReserve, 5); err != nil {
		t.Fatalf("error paying invoice: %v", err)
	}

	m.reconcileOnce()

	state, err := m.db.GetMeltQuote(meltQuote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote: %v", err)
	}
	if state.State != nut05.Paid {
		t.Fatalf("expected reconciler to settle the quote as PAID but got '%v'", state.State)
	}
}
