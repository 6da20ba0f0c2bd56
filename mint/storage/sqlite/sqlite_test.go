package sqlite

import (
	crand "crypto/rand"
	"encoding/hex"
	"log"
	"math/rand/v2"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut04"
	"github.com/satmint/mintcore/cashu/nuts/nut05"
	"github.com/satmint/mintcore/crypto"
	"github.com/satmint/mintcore/mint/storage"
)

var (
	db *SQLiteDB
)

func TestMain(m *testing.M) {
	code, err := testMain(m)
	if err != nil {
		log.Println(err)
	}
	os.Exit(code)
}

func testMain(m *testing.M) (int, error) {
	dbpath := "./testsqlite"
	err := os.MkdirAll(dbpath, 0750)
	if err != nil {
		return 1, err
	}

	db, err = InitSQLite(dbpath)
	if err != nil {
		return 1, err
	}
	defer os.RemoveAll(dbpath)

	return m.Run(), nil
}

func TestKeysets(t *testing.T) {
	keyset := generateRandomKeyset(t)

	if err := db.SaveKeyset(keyset); err != nil {
		t.Fatalf("error saving keyset: %v", err)
	}

	keysets, err := db.GetKeysets()
	if err != nil {
		t.Fatalf("error getting keysets: %v", err)
	}

	var found *storage.DBKeyset
	for i := range keysets {
		if keysets[i].Id == keyset.Id {
			found = &keysets[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("could not find saved keyset '%v'", keyset.Id)
	}

	if found.Unit != keyset.Unit || found.Active != keyset.Active ||
		found.InputFeePpk != keyset.InputFeePpk || found.CreatedAt != keyset.CreatedAt {
		t.Fatal("keyset metadata from db does not match generated one")
	}
	if len(found.Keys) != len(keyset.Keys) {
		t.Fatalf("expected %v keys but got %v", len(keyset.Keys), len(found.Keys))
	}
	for amount, key := range keyset.Keys {
		dbKey, ok := found.Keys[amount]
		if !ok {
			t.Fatalf("missing key for amount %v", amount)
		}
		if key.Key != dbKey.Key {
			t.Fatalf("private key for amount %v does not match", amount)
		}
	}

	if err := db.UpdateKeysetActive(keyset.Id, false); err != nil {
		t.Fatalf("error updating keyset: %v", err)
	}
	keysets, err = db.GetKeysets()
	if err != nil {
		t.Fatalf("error getting keysets: %v", err)
	}
	for _, k := range keysets {
		if k.Id == keyset.Id && k.Active {
			t.Fatal("expected keyset to be inactive after update")
		}
	}
}

func TestSeed(t *testing.T) {
	if _, err := db.GetSeed(); err == nil {
		t.Fatal("expected error getting seed before one was saved")
	}

	seed := make([]byte, 32)
	if _, err := crand.Read(seed); err != nil {
		t.Fatalf("error generating seed: %v", err)
	}

	if err := db.SaveSeed(seed); err != nil {
		t.Fatalf("error saving seed: %v", err)
	}

	got, err := db.GetSeed()
	if err != nil {
		t.Fatalf("error getting seed: %v", err)
	}
	if !slices.Equal(seed, got) {
		t.Fatal("seed read back does not match seed saved")
	}
}

func TestProofs(t *testing.T) {
	proofs := generateRandomProofs(50)

	if err := db.SaveProofs(proofs); err != nil {
		t.Fatalf("error saving proofs: %v", err)
	}

	Ys := make([]string, 20)
	expectedProofs := make([]storage.DBProof, 20)
	for i := 0; i < 20; i++ {
		Y, _ := crypto.HashToCurve([]byte(proofs[i].Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		Ys[i] = Yhex
		expectedProofs[i] = toDBProof(proofs[i], Yhex, "", 0)
	}

	dbProofs, err := db.GetProofsUsed(Ys)
	if err != nil {
		t.Fatalf("error getting used proofs: %v", err)
	}

	if len(dbProofs) != 20 {
		t.Fatalf("got incorrect number of proofs from db. Expected %v but got %v", 20, len(dbProofs))
	}

	sortDBProofs(expectedProofs)
	sortDBProofs(dbProofs)

	if !reflect.DeepEqual(dbProofs, expectedProofs) {
		t.Fatal("proofs from db do not match generated ones saved to db")
	}
}

func TestPendingProofs(t *testing.T) {
	quoteId := "quoteid12345"
	proofs := generateRandomProofs(50)
	expiresAt := time.Now().Add(time.Hour).Unix()

	if err := db.AddPendingProofs(proofs, quoteId, expiresAt); err != nil {
		t.Fatalf("error saving pending proofs: %v", err)
	}

	Ys := make([]string, 20)
	expectedProofs := make([]storage.DBProof, 20)
	for i := 0; i < 20; i++ {
		Y, _ := crypto.HashToCurve([]byte(proofs[i].Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		Ys[i] = Yhex
		expectedProofs[i] = toDBProof(proofs[i], Yhex, quoteId, expiresAt)
	}

	pendingProofs, err := db.GetPendingProofs(Ys)
	if err != nil {
		t.Fatalf("error getting pending proofs: %v", err)
	}

	if len(pendingProofs) != 20 {
		t.Fatalf("got incorrect number of pending proofs from db. Expected %v but got %v",
			20, len(pendingProofs))
	}

	sortDBProofs(expectedProofs)
	sortDBProofs(pendingProofs)

	if !reflect.DeepEqual(pendingProofs, expectedProofs) {
		t.Fatal("pending proofs from db do not match generated ones saved to db")
	}

	proofs2 := generateRandomProofs(100)
	if err := db.AddPendingProofs(proofs2, "anotherquoteid", expiresAt); err != nil {
		t.Fatalf("error saving pending proofs: %v", err)
	}

	expectedProofs = make([]storage.DBProof, 50)
	for i, proof := range proofs {
		Y, _ := crypto.HashToCurve([]byte(proof.Secret))
		Yhex := hex.EncodeToString(Y.SerializeCompressed())
		expectedProofs[i] = toDBProof(proof, Yhex, quoteId, expiresAt)
	}

	pendingProofsByQuote, err := db.GetPendingProofsByQuote(quoteId)
	if err != nil {
		t.Fatalf("error getting pending proofs for quote id '%v': %v", quoteId, err)
	}

	if len(pendingProofsByQuote) != 50 {
		t.Fatalf("got incorrect number of pending proofs from db. Expected %v but got %v",
			50, len(pendingProofsByQuote))
	}

	sortDBProofs(expectedProofs)
	sortDBProofs(pendingProofsByQuote)

	if !reflect.DeepEqual(pendingProofsByQuote, expectedProofs) {
		t.Fatal("pending proofs from db do not match generated ones saved to db")
	}

	if err := db.RemovePendingProofs(Ys); err != nil {
		t.Fatalf("error deleting pending proofs: %v", err)
	}

	pendingProofs, err = db.GetPendingProofs(Ys)
	if err != nil {
		t.Fatalf("error getting pending proofs: %v", err)
	}

	if len(pendingProofs) != 0 {
		t.Fatalf("expected no pending proofs but got %v", len(pendingProofs))
	}
}

func TestSweepExpiredPending(t *testing.T) {
	proofs := generateRandomProofs(10)
	past := time.Now().Add(-time.Hour).Unix()

	if err := db.AddPendingProofs(proofs, "expiredquote", past); err != nil {
		t.Fatalf("error saving pending proofs: %v", err)
	}

	swept, err := db.SweepExpiredPending(time.Now().Unix())
	if err != nil {
		t.Fatalf("error sweeping expired pending proofs: %v", err)
	}
	if swept < 10 {
		t.Fatalf("expected at least 10 rows swept, got %v", swept)
	}

	remaining, err := db.GetPendingProofsByQuote("expiredquote")
	if err != nil {
		t.Fatalf("error getting pending proofs by quote: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected swept pending proofs to be gone, got %v remaining", len(remaining))
	}
}

func TestMarkMeltQuotePendingAndPromoteToSpent(t *testing.T) {
	quote := generateRandomMeltQuotes(1)[0]
	if err := db.SaveMeltQuote(quote); err != nil {
		t.Fatalf("error saving melt quote: %v", err)
	}

	proofs := generateRandomProofs(5)
	expiresAt := time.Now().Add(time.Hour).Unix()
	if err := db.MarkMeltQuotePending(quote.Id, proofs, expiresAt); err != nil {
		t.Fatalf("error marking melt quote pending: %v", err)
	}

	got, err := db.GetMeltQuote(quote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote: %v", err)
	}
	if got.State != nut05.Pending {
		t.Fatalf("expected melt quote state PENDING but got %v", got.State)
	}

	pending, err := db.GetPendingProofsByQuote(quote.Id)
	if err != nil {
		t.Fatalf("error getting pending proofs by quote: %v", err)
	}
	if len(pending) != len(proofs) {
		t.Fatalf("expected %v pending proofs but got %v", len(proofs), len(pending))
	}

	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y, _ := crypto.HashToCurve([]byte(proof.Secret))
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	if err := db.PromotePendingToSpent(Ys, proofs); err != nil {
		t.Fatalf("error promoting pending proofs to spent: %v", err)
	}

	stillPending, err := db.GetPendingProofs(Ys)
	if err != nil {
		t.Fatalf("error getting pending proofs: %v", err)
	}
	if len(stillPending) != 0 {
		t.Fatalf("expected no pending proofs after promotion, got %v", len(stillPending))
	}

	spent, err := db.GetProofsUsed(Ys)
	if err != nil {
		t.Fatalf("error getting used proofs: %v", err)
	}
	if len(spent) != len(proofs) {
		t.Fatalf("expected %v spent proofs but got %v", len(proofs), len(spent))
	}
}

func TestMarkMeltQuotePendingFailsForUnknownQuote(t *testing.T) {
	proofs := generateRandomProofs(2)
	expiresAt := time.Now().Add(time.Hour).Unix()

	if err := db.MarkMeltQuotePending("no-such-quote-id", proofs, expiresAt); err == nil {
		t.Fatal("expected error marking unknown melt quote pending")
	}

	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y, _ := crypto.HashToCurve([]byte(proof.Secret))
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}
	pending, err := db.GetPendingProofs(Ys)
	if err != nil {
		t.Fatalf("error getting pending proofs: %v", err)
	}
	if len(pending) != 0 {
		t.Fatal("expected no pending proofs left behind by a failed MarkMeltQuotePending call")
	}
}

func TestMintQuotes(t *testing.T) {
	mintQuotes := generateRandomMintQuotes(150)

	var wg sync.WaitGroup
	var mu sync.RWMutex
	errs := make([]error, 0)
	for _, quote := range mintQuotes {
		wg.Add(1)
		go func(quote storage.MintQuote) {
			if err := db.SaveMintQuote(quote); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			wg.Done()
		}(quote)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("error saving mint quote: %v", errs[0])
	}

	expectedQuote := mintQuotes[21]
	quote, err := db.GetMintQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting mint quote by id: %v", err)
	}
	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}

	quote, err = db.GetMintQuoteByPaymentHash(expectedQuote.PaymentHash)
	if err != nil {
		t.Fatalf("error getting mint quote by payment hash: %v", err)
	}
	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}

	if err := db.UpdateMintQuoteState(quote.Id, nut04.Paid); err != nil {
		t.Fatalf("error updating mint quote: %v", err)
	}

	expectedQuote.State = nut04.Paid
	quote, err = db.GetMintQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting mint quote by id: %v", err)
	}
	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}

	if err := db.UpdateMintQuoteState(quote.Id, nut04.Issued); err != nil {
		t.Fatalf("error updating mint quote: %v", err)
	}

	quote, err = db.GetMintQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting mint quote by id: %v", err)
	}
	if quote.State != nut04.Issued {
		t.Fatalf("expected state ISSUED but got %v", quote.State)
	}
	if quote.IssuedAt == 0 {
		t.Fatal("expected issued_at to be set once quote becomes ISSUED")
	}
}

func TestMeltQuote(t *testing.T) {
	meltQuotes := generateRandomMeltQuotes(150)

	var wg sync.WaitGroup
	var mu sync.RWMutex
	errs := make([]error, 0)
	for _, quote := range meltQuotes {
		wg.Add(1)
		go func(quote storage.MeltQuote) {
			if err := db.SaveMeltQuote(quote); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			wg.Done()
		}(quote)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("error saving melt quote: %v", errs[0])
	}

	expectedQuote := meltQuotes[21]
	quote, err := db.GetMeltQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote by id: %v", err)
	}

	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}

	meltQuote, err := db.GetMeltQuoteByPaymentRequest(expectedQuote.InvoiceRequest)
	if err != nil {
		t.Fatalf("error getting melt quote by payment request: %v", err)
	}

	if !reflect.DeepEqual(expectedQuote, *meltQuote) {
		t.Fatal("quote from db does not match generated one")
	}

	if err := db.UpdateMeltQuote(quote.Id, "", 0, nut05.Pending); err != nil {
		t.Fatalf("error updating melt quote: %v", err)
	}

	expectedQuote.State = nut05.Pending
	quote, err = db.GetMeltQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote by id: %v", err)
	}
	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}

	if err := db.UpdateMeltQuote(quote.Id, "fakepreimage", 2, nut05.Paid); err != nil {
		t.Fatalf("error updating melt quote: %v", err)
	}

	expectedQuote.State = nut05.Paid
	expectedQuote.Preimage = "fakepreimage"
	expectedQuote.FeePaid = 2
	quote, err = db.GetMeltQuote(expectedQuote.Id)
	if err != nil {
		t.Fatalf("error getting melt quote by id: %v", err)
	}
	if !reflect.DeepEqual(expectedQuote, quote) {
		t.Fatal("quote from db does not match generated one")
	}
}

func TestBlindSignatures(t *testing.T) {
	count := 50
	blindedMessages := generateRandomB_s(count)
	blindSignatures := generateBlindSignatures(count)

	if err := db.SaveBlindSignatures(blindedMessages, blindSignatures); err != nil {
		t.Fatalf("unexpected error saving blind signatures: %v", err)
	}

	expectedBlindSig := blindSignatures[21]
	blindSig, err := db.GetBlindSignature(blindedMessages[21])
	if err != nil {
		t.Fatalf("error getting blind signature: %v", err)
	}

	if !reflect.DeepEqual(blindSig, expectedBlindSig) {
		t.Fatal("blind signature from db does match generated one")
	}

	blindSigs, err := db.GetBlindSignatures(blindedMessages[:20])
	if err != nil {
		t.Fatalf("error getting blind signatures: %v", err)
	}

	if len(blindSigs) != 20 {
		t.Fatalf("got incorrect number of blind signatures from db. Expected %v but got %v",
			20, len(blindSigs))
	}
}

func generateRandomString(length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

func generateRandomKeyset(t *testing.T) storage.DBKeyset {
	keys := make(map[uint64]*secp256k1.PrivateKey)
	for _, amount := range []uint64{1, 2, 4, 8, 16} {
		key, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("error generating key: %v", err)
		}
		keys[amount] = key
	}

	return storage.DBKeyset{
		Id:          "00" + generateRandomString(14),
		Unit:        "sat",
		Active:      true,
		InputFeePpk: 100,
		CreatedAt:   time.Now().Unix(),
		Keys:        keys,
	}
}

func generateRandomProofs(num int) cashu.Proofs {
	proofs := make(cashu.Proofs, num)

	for i := 0; i < num; i++ {
		proof := cashu.Proof{
			Amount: 21,
			Id:     generateRandomString(32),
			Secret: generateRandomString(64),
			C:      generateRandomString(64),
		}
		proofs[i] = proof
	}

	return proofs
}

func toDBProof(proof cashu.Proof, Y string, quoteId string, expiresAt int64) storage.DBProof {
	return storage.DBProof{
		Y:           Y,
		Amount:      proof.Amount,
		Id:          proof.Id,
		Secret:      proof.Secret,
		C:           proof.C,
		MeltQuoteId: quoteId,
		ExpiresAt:   expiresAt,
	}
}

func sortDBProofs(proofs []storage.DBProof) {
	slices.SortFunc(proofs, func(a, b storage.DBProof) int {
		return strings.Compare(a.Secret, b.Secret)
	})
}

func generateRandomMintQuotes(num int) []storage.MintQuote {
	quotes := make([]storage.MintQuote, num)
	for i := 0; i < num; i++ {
		quote := storage.MintQuote{
			Id:             generateRandomString(32),
			Amount:         21,
			PaymentRequest: generateRandomString(100),
			PaymentHash:    generateRandomString(50),
			State:          nut04.Unpaid,
			Expiry:         uint64(time.Now().Add(time.Hour).Unix()),
		}
		quotes[i] = quote
	}
	return quotes
}

func generateRandomMeltQuotes(num int) []storage.MeltQuote {
	quotes := make([]storage.MeltQuote, num)
	for i := 0; i < num; i++ {
		quote := storage.MeltQuote{
			Id:             generateRandomString(32),
			InvoiceRequest: generateRandomString(100),
			PaymentHash:    generateRandomString(50),
			Amount:         21,
			FeeReserve:     1,
			State:          nut05.Unpaid,
			Expiry:         uint64(time.Now().Add(time.Hour).Unix()),
		}
		quotes[i] = quote
	}
	return quotes
}

func generateRandomB_s(num int) []string {
	B_s := make([]string, num)
	for i := 0; i < num; i++ {
		B_s[i] = generateRandomString(33)
	}
	return B_s
}

func generateBlindSignatures(num int) cashu.BlindedSignatures {
	blindSigs := make(cashu.BlindedSignatures, num)
	for i := 0; i < num; i++ {
		sig := cashu.BlindedSignature{
			C_:     generateRandomString(33),
			Id:     generateRandomString(32),
			Amount: 21,
			DLEQ: &cashu.DLEQProof{
				E: generateRandomString(33),
				S: generateRandomString(33),
			},
		}
		blindSigs[i] = sig
	}
	return blindSigs
}
