package mint

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/crypto"
)

// signBlindedMessages signs each blinded message under the requested
// keyset's denomination key and attaches a NUT-12 DLEQ proof. Only the
// currently active keyset may sign: an inactive keyset's public keys
// remain valid for verifying old proofs, but it must not mint new value.
func (m *Mint) signBlindedMessages(blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	signatures := make(cashu.BlindedSignatures, len(blindedMessages))
	B_s := make([]string, len(blindedMessages))

	for i, msg := range blindedMessages {
		keyset, ok := m.keysets[msg.Id]
		if !ok {
			return nil, cashu.UnknownKeysetErr
		}
		if !keyset.Active {
			return nil, cashu.InactiveKeysetSignatureRequest
		}
		k, ok := keyset.PrivateKeyFor(msg.Amount)
		if !ok {
			return nil, cashu.InvalidBlindedMessageAmount
		}

		B_bytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			errmsg := fmt.Sprintf("invalid B_: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}
		B_, err := btcec.ParsePubKey(B_bytes)
		if err != nil {
			return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		C_ := crypto.SignBlindedMessage(B_, k)

		dleq, err := crypto.GenerateDLEQ(k, k.PubKey(), B_, C_)
		if err != nil {
			errmsg := fmt.Sprintf("error generating DLEQ proof: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}

		signatures[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			Id:     keyset.Id,
			DLEQ: &cashu.DLEQProof{
				E: hex.EncodeToString(dleq.E.Serialize()),
				S: hex.EncodeToString(dleq.S.Serialize()),
			},
		}
		B_s[i] = msg.B_
	}

	if err := m.db.SaveBlindSignatures(B_s, signatures); err != nil {
		errmsg := fmt.Sprintf("error saving blind signatures: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return signatures, nil
}

// RestoreSignatures implements NUT-09: for each blinded message the wallet
// already knows B_ for, return the previously issued signature if one
// exists, skipping any B_ the mint never signed.
func (m *Mint) RestoreSignatures(blindedMessages cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures, error) {
	outputs := make(cashu.BlindedMessages, 0, len(blindedMessages))
	signatures := make(cashu.BlindedSignatures, 0, len(blindedMessages))

	for _, bm := range blindedMessages {
		sig, err := m.db.GetBlindSignature(bm.B_)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		} else if err != nil {
			errmsg := fmt.Sprintf("could not get signature from db: %v", err)
			return nil, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}

		outputs = append(outputs, bm)
		signatures = append(signatures, sig)
	}

	return outputs, signatures, nil
}
