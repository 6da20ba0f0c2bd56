// Package nut12 implements the DLEQ proof verification helpers defined in
// [NUT-12].
//
// [NUT-12]: https://github.com/cashubtc/nuts/blob/main/12.md
package nut12

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/crypto"
)

// VerifyProofsDLEQ verifies the DLEQ proof attached to each proof, if
// present, against the mint's public key for that proof's denomination.
// Proofs carrying no DLEQ proof are treated as vacuously valid, since DLEQ
// is an optional NUT-12 feature.
func VerifyProofsDLEQ(proofs cashu.Proofs, keys crypto.PublicKeys) bool {
	for _, proof := range proofs {
		if proof.DLEQ == nil {
			continue
		}

		A, ok := keys[proof.Amount]
		if !ok {
			return false
		}

		if !VerifyProofDLEQ(proof, A) {
			return false
		}
	}
	return true
}

// VerifyProofDLEQ checks a proof's DLEQ proof against the mint's public key
// A for the denomination it was signed under. It recomputes the blinded
// point B_ from the proof's secret and the DLEQ's blinding factor r, and the
// blinded signature C_ = C + r*A, then delegates to crypto.VerifyDLEQ.
func VerifyProofDLEQ(proof cashu.Proof, A *secp256k1.PublicKey) bool {
	e, s, r, err := ParseDLEQ(*proof.DLEQ)
	if err != nil || r == nil {
		return false
	}

	B_, _, _, err := crypto.BlindMessage([]byte(proof.Secret), r)
	if err != nil {
		return false
	}

	CBytes, err := hex.DecodeString(proof.C)
	if err != nil {
		return false
	}
	C, err := secp256k1.ParsePubKey(CBytes)
	if err != nil {
		return false
	}

	var CPoint, APoint secp256k1.JacobianPoint
	C.AsJacobian(&CPoint)
	A.AsJacobian(&APoint)

	// C_ = C + r*A
	var C_Point, rAPoint secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&r.Key, &APoint, &rAPoint)
	rAPoint.ToAffine()
	secp256k1.AddNonConst(&CPoint, &rAPoint, &C_Point)
	C_Point.ToAffine()
	C_ := secp256k1.NewPublicKey(&C_Point.X, &C_Point.Y)

	return crypto.VerifyDLEQ(e, s, A, B_, C_)
}

// VerifyBlindSignatureDLEQ checks the DLEQ proof the mint attaches directly
// to a blind signature, before the wallet unblinds it.
func VerifyBlindSignatureDLEQ(
	dleq cashu.DLEQProof,
	A *secp256k1.PublicKey,
	B_str string,
	C_str string,
) bool {
	e, s, _, err := ParseDLEQ(dleq)
	if err != nil {
		return false
	}

	B_bytes, err := hex.DecodeString(B_str)
	if err != nil {
		return false
	}
	B_, err := secp256k1.ParsePubKey(B_bytes)
	if err != nil {
		return false
	}

	C_bytes, err := hex.DecodeString(C_str)
	if err != nil {
		return false
	}
	C_, err := secp256k1.ParsePubKey(C_bytes)
	if err != nil {
		return false
	}

	return crypto.VerifyDLEQ(e, s, A, B_, C_)
}

func ParseDLEQ(dleq cashu.DLEQProof) (
	*secp256k1.PrivateKey,
	*secp256k1.PrivateKey,
	*secp256k1.PrivateKey,
	error,
) {
	ebytes, err := hex.DecodeString(dleq.E)
	if err != nil {
		return nil, nil, nil, err
	}
	e := secp256k1.PrivKeyFromBytes(ebytes)

	sbytes, err := hex.DecodeString(dleq.S)
	if err != nil {
		return nil, nil, nil, err
	}
	s := secp256k1.PrivKeyFromBytes(sbytes)

	if dleq.R == "" {
		return e, s, nil, nil
	}

	rbytes, err := hex.DecodeString(dleq.R)
	if err != nil {
		return nil, nil, nil, err
	}
	r := secp256k1.PrivKeyFromBytes(rbytes)

	return e, s, r, nil
}
