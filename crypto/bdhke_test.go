package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{message: "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "024cce997d3b518f739663b757deaec95bcd9473c30a14ac2fd04023a739d1a725"},
		{message: "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "022e7158e11c9506f1aa4248bf531298daa7febd6194f003edcd9b93ade6253acf"},
		{message: "0000000000000000000000000000000000000000000000000000000000000002",
			expected: "026cdbe15362df59cd1dd3c9c11de8aedac2106eca69236ecd9fbe117af897be4f"},
	}

	for _, test := range tests {
		msgBytes, err := hex.DecodeString(test.message)
		if err != nil {
			t.Fatalf("error decoding msg: %v", err)
		}

		pk, err := HashToCurve(msgBytes)
		if err != nil {
			t.Fatalf("HashToCurve returned error: %v", err)
		}
		hexStr := hex.EncodeToString(pk.SerializeCompressed())
		if hexStr != test.expected {
			t.Errorf("expected '%v' but got '%v' instead\n", test.expected, hexStr)
		}
	}
}

func TestBlindMessageAndUnblind(t *testing.T) {
	secret := []byte("test_message")
	rbytes, _ := hex.DecodeString("6d7e0abffc83267de28ed8ecc8760f17697e51252e13333ba69b4ddad1f95d0")
	r := secp256k1.PrivKeyFromBytes(rbytes)

	kbytes, _ := hex.DecodeString("7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f")
	k := secp256k1.PrivKeyFromBytes(kbytes)
	K := k.PubKey()

	B_, rOut, Y, err := BlindMessage(secret, r)
	if err != nil {
		t.Fatalf("BlindMessage returned error: %v", err)
	}
	if !rOut.Key.Equals(&r.Key) {
		t.Fatalf("expected returned blinding factor to match the one supplied")
	}

	expectedY, err := HashToCurve(secret)
	if err != nil {
		t.Fatalf("HashToCurve returned error: %v", err)
	}
	if !Y.IsEqual(expectedY) {
		t.Fatalf("Y did not match HashToCurve(secret)")
	}

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	if !Verify(secret, k, C) {
		t.Error("failed verification of round-tripped signature")
	}
}

func TestBlindMessageGeneratesFactorWhenNil(t *testing.T) {
	B_, r, _, err := BlindMessage([]byte("some secret"), nil)
	if err != nil {
		t.Fatalf("BlindMessage returned error: %v", err)
	}
	if r == nil {
		t.Fatal("expected a generated blinding factor, got nil")
	}
	if B_ == nil {
		t.Fatal("expected a non-nil blinded point")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	secret := []byte("test_message")
	B_, r, _, err := BlindMessage(secret, nil)
	if err != nil {
		t.Fatalf("BlindMessage returned error: %v", err)
	}

	k, _ := secp256k1.GeneratePrivateKey()
	otherK, _ := secp256k1.GeneratePrivateKey()

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, k.PubKey())

	if Verify(secret, otherK, C) {
		t.Error("expected verification to fail with the wrong private key")
	}
}
