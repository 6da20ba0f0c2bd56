package mint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut10"
	"github.com/satmint/mintcore/cashu/nuts/nut11"
	"github.com/satmint/mintcore/cashu/nuts/nut14"
)

// verifySpendingCondition dispatches on a proof's secret kind: P2PK and
// HTLC secrets carry a witness that must be checked before the proof can be
// accepted as an input; any other secret kind (random, or well-known but
// unrecognized) spends freely.
func verifySpendingCondition(proof cashu.Proof) error {
	switch nut10.SecretType(proof) {
	case nut10.P2PK:
		return verifyP2PKLockedProof(proof)
	case nut10.HTLC:
		secret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		return nut14.VerifyHTLCProof(proof, secret)
	default:
		return nil
	}
}

func verifyP2PKLockedProof(proof cashu.Proof) error {
	secret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proof.Witness), &witness); err != nil {
		witness.Signatures = []string{}
	}

	tags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}

	hash := sha256.Sum256([]byte(proof.Secret))
	signaturesRequired := 1

	// if locktime has passed, fall back to the refund pubkeys (or anyone,
	// if none were set)
	if tags.Locktime > 0 && time.Now().Unix() > tags.Locktime {
		if len(tags.Refund) == 0 {
			return nil
		}
		if len(witness.Signatures) < 1 {
			return nut11.InvalidWitness
		}
		if !nut11.HasValidSignatures(hash[:], witness.Signatures, signaturesRequired, tags.Refund) {
			return nut11.NotEnoughSignaturesErr
		}
		return nil
	}

	pubkey, err := nut11.ParsePublicKey(secret.Data)
	if err != nil {
		return err
	}
	keys := []*btcec.PublicKey{pubkey}

	if tags.NSigs > 0 {
		signaturesRequired = tags.NSigs
		if len(tags.Pubkeys) == 0 {
			return nut11.EmptyPubkeysErr
		}
		keys = append(keys, tags.Pubkeys...)
	}

	if len(witness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if !nut11.HasValidSignatures(hash[:], witness.Signatures, signaturesRequired, keys) {
		return nut11.NotEnoughSignaturesErr
	}
	return nil
}

// verifySigAllP2PK checks a SIG_ALL swap or melt: every input proof must
// carry the SIG_ALL flag under the same public keys and threshold, and the
// caller signs once over the concatenation of every input secret followed
// by every output B_ (secret_0‖…‖secret_{m-1}‖B_0‖…‖B_{n-1}). Only the
// first proof's witness carries that signature; the rest need none.
func verifySigAllP2PK(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) error {
	secret, err := nut10.DeserializeSecret(proofs[0].Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	pubkeys, err := nut11.PublicKeys(secret)
	if err != nil {
		return err
	}

	signaturesRequired := 1
	tags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}
	if tags.NSigs > 0 {
		signaturesRequired = tags.NSigs
	}

	for _, proof := range proofs {
		proofSecret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		if !nut11.IsSigAll(proofSecret) {
			return nut11.AllSigAllFlagsErr
		}

		currentRequired := 1
		currentTags, err := nut11.ParseP2PKTags(proofSecret.Tags)
		if err != nil {
			return err
		}
		if currentTags.NSigs > 0 {
			currentRequired = currentTags.NSigs
		}

		currentKeys, err := nut11.PublicKeys(proofSecret)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(pubkeys, currentKeys) {
			return nut11.SigAllKeysMustBeEqualErr
		}
		if signaturesRequired != currentRequired {
			return nut11.NSigsMustBeEqualErr
		}
	}

	var message bytes.Buffer
	for _, proof := range proofs {
		message.WriteString(proof.Secret)
	}
	for _, bm := range blindedMessages {
		B_bytes, err := hex.DecodeString(bm.B_)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		message.Write(B_bytes)
	}
	hash := sha256.Sum256(message.Bytes())

	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proofs[0].Witness), &witness); err != nil || len(witness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if !nut11.HasValidSignatures(hash[:], witness.Signatures, signaturesRequired, pubkeys) {
		return nut11.NotEnoughSignaturesErr
	}

	return nil
}
