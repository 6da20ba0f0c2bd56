package mint

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// loadIdentity returns the mint's NUT-06 identity pubkey, deriving it from
// the master seed persisted by the store. A seed is generated and saved on
// first run; unlike keyset signing keys, the identity key is a single
// HD-derived keypair, so only the 32-byte seed needs to be stored.
func (m *Mint) loadIdentity() (string, error) {
	seed, err := m.db.GetSeed()
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}

		seed, err = hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
		if err != nil {
			return "", fmt.Errorf("error generating seed: %v", err)
		}
		if err := m.db.SaveSeed(seed); err != nil {
			return "", fmt.Errorf("error saving seed: %v", err)
		}
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}

	pubkey, err := master.ECPubKey()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(pubkey.SerializeCompressed()), nil
}
