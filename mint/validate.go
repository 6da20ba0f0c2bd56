package mint

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut07"
	"github.com/satmint/mintcore/cashu/nuts/nut10"
	"github.com/satmint/mintcore/cashu/nuts/nut11"
	"github.com/satmint/mintcore/crypto"
)

// proofYs computes the Y = hash_to_curve(secret) value for each proof,
// hex-encoded. Y is the value the store indexes spent/pending proofs by,
// since a proof's secret is never stored directly.
func proofYs(proofs cashu.Proofs) ([]string, error) {
	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return nil, cashu.InvalidProofErr
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}
	return Ys, nil
}

// verifyProofs checks that every proof is well-formed, not already spent or
// pending, not duplicated within the batch, and carries a valid BDHKE
// signature (and, where applicable, a valid spending-condition witness)
// under one of the mint's own keysets. blindedMessages is the batch's
// accompanying outputs (swap's new proofs, or melt's blank change outputs);
// it is only consulted when the proofs are P2PK-locked with SIG_ALL, where
// the witness covers inputs and outputs together.
func (m *Mint) verifyProofs(proofs cashu.Proofs, Ys []string, blindedMessages cashu.BlindedMessages) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}

	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(pendingProofs) != 0 {
		return cashu.ProofPendingErr
	}

	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	if len(usedProofs) != 0 {
		return cashu.ProofAlreadyUsedErr
	}

	if cashu.CheckDuplicateProofs(proofs) {
		return cashu.DuplicateProofs
	}

	sigAllActive := false
	if nut10.SecretType(proofs[0]) == nut10.P2PK {
		if secret, err := nut10.DeserializeSecret(proofs[0].Secret); err == nil && nut11.IsSigAll(secret) {
			if err := verifySigAllP2PK(proofs, blindedMessages); err != nil {
				return err
			}
			sigAllActive = true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, proof := range proofs {
		keyset, ok := m.keysets[proof.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		k, ok := keyset.PrivateKeyFor(proof.Amount)
		if !ok {
			return cashu.InvalidProofErr
		}

		// under SIG_ALL the aggregate check above already verified the
		// concatenated secrets and outputs against proofs[0]'s witness;
		// the remaining proofs carry no witness of their own to check.
		if !sigAllActive {
			if err := verifySpendingCondition(proof); err != nil {
				m.logDebugf("spending condition check failed for proof: %v", err)
				return err
			}
		}

		Cbytes, err := hex.DecodeString(proof.C)
		if err != nil {
			errmsg := fmt.Sprintf("invalid C: %v", err)
			return cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		if !crypto.Verify([]byte(proof.Secret), k, C) {
			return cashu.InvalidProofErr
		}
	}

	return nil
}

// validateUnits enforces the single-unit invariant across a batch: every
// input proof must reference a keyset of the same unit, and every output
// blinded message must be on an active keyset of that same unit. unit, if
// already known (as with NUT-04 minting, where it comes from the paid
// quote rather than from input proofs), pins the expected unit even when
// proofs is empty.
func (m *Mint) validateUnits(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages, unit string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, proof := range proofs {
		keyset, ok := m.keysets[proof.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		if unit == "" {
			unit = keyset.Unit
		} else if keyset.Unit != unit {
			return cashu.MultipleUnitsErr
		}
	}

	for _, bm := range blindedMessages {
		keyset, ok := m.keysets[bm.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		if !keyset.Active {
			return cashu.InactiveKeysetSignatureRequest
		}
		if unit == "" {
			unit = keyset.Unit
		} else if keyset.Unit != unit {
			return cashu.InputOutputUnitMismatchErr
		}
	}

	return nil
}

// ProofsStateCheck implements NUT-07: report the spent/unspent/pending
// state of each Y the caller asks about.
func (m *Mint) ProofsStateCheck(Ys []string) ([]nut07.ProofState, error) {
	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	states := make([]nut07.ProofState, len(Ys))
	for i, y := range Ys {
		state := nut07.Unspent
		var witness string
		for _, proof := range usedProofs {
			if proof.Y == y {
				state = nut07.Spent
				witness = proof.Witness
				break
			}
		}
		if state == nut07.Unspent {
			for _, proof := range pendingProofs {
				if proof.Y == y {
					state = nut07.Pending
					witness = proof.Witness
					break
				}
			}
		}
		states[i] = nut07.ProofState{Y: y, State: state, Witness: witness}
	}

	return states, nil
}
