// Package crypto implements the secp256k1 primitives the mint needs:
// hash-to-curve, blind signing, unblinding and verification (BDHKE), plus
// NUT-12 DLEQ proof generation/verification.
package crypto

import (
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// domainSeparator is prepended to the secret before hashing to curve, as
// specified by NUT-00.
var domainSeparator = []byte("Secp256k1_HashToCurve_Cashu_")

// ErrNoValidPoint is returned if no valid curve point could be derived
// after maxIterations tries, which in practice never happens.
var ErrNoValidPoint = errors.New("crypto: could not find a valid curve point")

const maxIterations = 1_000_000

// HashToCurve deterministically maps secret to a point on secp256k1,
// following the try-and-increment construction from NUT-00: it computes
// msg = SHA256(domain separator || secret), then hashes successive
// (msg || little-endian uint32 counter) candidates until one decodes as a
// valid compressed, even-y point.
func HashToCurve(secret []byte) (*secp256k1.PublicKey, error) {
	msgToHash := sha256.Sum256(append(domainSeparator, secret...))

	for counter := uint32(0); counter < maxIterations; counter++ {
		counterBytes := []byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)}
		hash := sha256.Sum256(append(msgToHash[:], counterBytes...))

		candidate := make([]byte, 33)
		candidate[0] = 0x02
		copy(candidate[1:], hash[:])
		if point, err := secp256k1.ParsePubKey(candidate); err == nil {
			return point, nil
		}
	}

	return nil, ErrNoValidPoint
}

// BlindMessage computes Y = HashToCurve(secret) and B_ = Y + r*G. If r is
// nil, a fresh blinding factor is drawn from the CSPRNG; it is returned
// alongside B_ and Y so the caller can persist or discard it.
func BlindMessage(secret []byte, blindingFactor *secp256k1.PrivateKey) (B_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, Y *secp256k1.PublicKey, err error) {
	Y, err = HashToCurve(secret)
	if err != nil {
		return nil, nil, nil, err
	}

	r = blindingFactor
	if r == nil {
		r, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, nil, err
		}
	}

	var Ypoint, rG, B_point secp256k1.JacobianPoint
	Y.AsJacobian(&Ypoint)
	secp256k1.ScalarBaseMultNonConst(&r.Key, &rG)
	rG.ToAffine()

	secp256k1.AddNonConst(&Ypoint, &rG, &B_point)
	B_point.ToAffine()
	B_ = secp256k1.NewPublicKey(&B_point.X, &B_point.Y)

	return B_, r, Y, nil
}

// SignBlindedMessage computes C_ = k*B_ for the mint's private key k.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var B_point, result secp256k1.JacobianPoint
	B_.AsJacobian(&B_point)

	secp256k1.ScalarMultNonConst(&k.Key, &B_point, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// UnblindSignature computes C = C_ - r*K, where K is the mint's public key
// for the denomination that was signed.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var Kpoint, rKpoint, Cpoint secp256k1.JacobianPoint
	K.AsJacobian(&Kpoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &Kpoint, &rKpoint)

	var C_point secp256k1.JacobianPoint
	C_.AsJacobian(&C_point)
	secp256k1.AddNonConst(&C_point, &rKpoint, &Cpoint)
	Cpoint.ToAffine()
	return secp256k1.NewPublicKey(&Cpoint.X, &Cpoint.Y)
}

// Verify checks that k*HashToCurve(secret) == C, i.e. that C is a valid
// unblinded signature on secret under private key k.
func Verify(secret []byte, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	Y, err := HashToCurve(secret)
	if err != nil {
		return false
	}

	var Ypoint, result secp256k1.JacobianPoint
	Y.AsJacobian(&Ypoint)
	secp256k1.ScalarMultNonConst(&k.Key, &Ypoint, &result)
	result.ToAffine()
	kY := secp256k1.NewPublicKey(&result.X, &result.Y)

	return C.IsEqual(kY)
}
