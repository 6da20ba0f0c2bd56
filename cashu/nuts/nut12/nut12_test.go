package nut12

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/crypto"
)

func TestVerifyBlindSignatureDLEQ(t *testing.T) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("error generating mint key: %v", err)
	}
	A := k.PubKey()

	secret := []byte("nut12 blind signature test secret")
	B_, _, _, err := crypto.BlindMessage(secret, nil)
	if err != nil {
		t.Fatalf("BlindMessage returned error: %v", err)
	}
	C_ := crypto.SignBlindedMessage(B_, k)

	proof, err := crypto.GenerateDLEQ(k, A, B_, C_)
	if err != nil {
		t.Fatalf("GenerateDLEQ returned error: %v", err)
	}

	dleq := cashu.DLEQProof{
		E: hex.EncodeToString(proof.E.Serialize()),
		S: hex.EncodeToString(proof.S.Serialize()),
	}

	if !VerifyBlindSignatureDLEQ(dleq, A, hex.EncodeToString(B_.SerializeCompressed()), hex.EncodeToString(C_.SerializeCompressed())) {
		t.Error("DLEQ verification on blind signature failed")
	}
}

func TestVerifyProofDLEQ(t *testing.T) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("error generating mint key: %v", err)
	}
	A := k.PubKey()

	secret := "nut12 proof dleq test secret"
	r, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("error generating blinding factor: %v", err)
	}

	B_, _, _, err := crypto.BlindMessage([]byte(secret), r)
	if err != nil {
		t.Fatalf("BlindMessage returned error: %v", err)
	}
	C_ := crypto.SignBlindedMessage(B_, k)
	C := crypto.UnblindSignature(C_, r, A)

	dleqProof, err := crypto.GenerateDLEQ(k, A, B_, C_)
	if err != nil {
		t.Fatalf("GenerateDLEQ returned error: %v", err)
	}

	proof := cashu.Proof{
		Amount: 1,
		Id:     "00882760bfa2eb41",
		Secret: secret,
		C:      hex.EncodeToString(C.SerializeCompressed()),
		DLEQ: &cashu.DLEQProof{
			E: hex.EncodeToString(dleqProof.E.Serialize()),
			S: hex.EncodeToString(dleqProof.S.Serialize()),
			R: hex.EncodeToString(r.Serialize()),
		},
	}

	if !VerifyProofDLEQ(proof, A) {
		t.Error("DLEQ verification on proof failed")
	}
}

func TestVerifyProofsDLEQSkipsProofsWithoutDLEQ(t *testing.T) {
	proofs := cashu.Proofs{
		{Amount: 1, Secret: "no dleq here"},
	}
	if !VerifyProofsDLEQ(proofs, crypto.PublicKeys{}) {
		t.Error("expected proofs without a DLEQ proof to verify vacuously")
	}
}
