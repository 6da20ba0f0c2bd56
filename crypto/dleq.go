package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DLEQProof is a non-interactive proof that C_ = k*B_ for the same scalar k
// for which A = k*G, without revealing k. See NUT-12.
type DLEQProof struct {
	E *secp256k1.PrivateKey
	S *secp256k1.PrivateKey
}

// GenerateDLEQ produces a DLEQ proof for a blind signature: k is the mint's
// private key for the signed denomination, A is the corresponding public
// key, B_ is the blinded message and C_ = k*B_ is the blind signature.
func GenerateDLEQ(k *secp256k1.PrivateKey, A, B_, C_ *secp256k1.PublicKey) (*DLEQProof, error) {
	p, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	var R1, R2 secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&p.Key, &R1)
	R1.ToAffine()

	var B_point secp256k1.JacobianPoint
	B_.AsJacobian(&B_point)
	secp256k1.ScalarMultNonConst(&p.Key, &B_point, &R2)
	R2.ToAffine()

	R1pub := secp256k1.NewPublicKey(&R1.X, &R1.Y)
	R2pub := secp256k1.NewPublicKey(&R2.X, &R2.Y)

	e := hashToScalar(R1pub, R2pub, A, C_)

	// s = p + e*k (mod n)
	var eTimesK secp256k1.ModNScalar
	eTimesK.Mul2(&e.Key, &k.Key)
	var s secp256k1.ModNScalar
	s.Add2(&p.Key, &eTimesK)

	sKey := secp256k1.NewPrivateKey(&s)
	return &DLEQProof{E: e, S: sKey}, nil
}

// VerifyDLEQ checks a DLEQ proof (e, s) against public key A and the
// blinded message/signature pair (B_, C_).
func VerifyDLEQ(e, s *secp256k1.PrivateKey, A, B_, C_ *secp256k1.PublicKey) bool {
	// R1 = s*G - e*A
	var sG, eA, R1 secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s.Key, &sG)
	sG.ToAffine()

	var Apoint secp256k1.JacobianPoint
	A.AsJacobian(&Apoint)
	secp256k1.ScalarMultNonConst(&e.Key, &Apoint, &eA)
	eA.ToAffine()
	eA.Y.Negate(1)
	eA.Y.Normalize()

	secp256k1.AddNonConst(&sG, &eA, &R1)
	R1.ToAffine()

	// R2 = s*B_ - e*C_
	var sB_, eC_, R2 secp256k1.JacobianPoint
	var B_point secp256k1.JacobianPoint
	B_.AsJacobian(&B_point)
	secp256k1.ScalarMultNonConst(&s.Key, &B_point, &sB_)
	sB_.ToAffine()

	var C_point secp256k1.JacobianPoint
	C_.AsJacobian(&C_point)
	secp256k1.ScalarMultNonConst(&e.Key, &C_point, &eC_)
	eC_.ToAffine()
	eC_.Y.Negate(1)
	eC_.Y.Normalize()

	secp256k1.AddNonConst(&sB_, &eC_, &R2)
	R2.ToAffine()

	R1pub := secp256k1.NewPublicKey(&R1.X, &R1.Y)
	R2pub := secp256k1.NewPublicKey(&R2.X, &R2.Y)

	eComputed := hashToScalar(R1pub, R2pub, A, C_)
	return eComputed.Key.Equals(&e.Key)
}

// hashToScalar reduces SHA256(R1 || R2 || A || C_) (compressed points)
// modulo the curve order to obtain the Fiat-Shamir challenge.
func hashToScalar(points ...*secp256k1.PublicKey) *secp256k1.PrivateKey {
	h := sha256.New()
	for _, p := range points {
		h.Write(p.SerializeCompressed())
	}
	digest := h.Sum(nil)

	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(digest)
	return secp256k1.NewPrivateKey(&scalar)
}
