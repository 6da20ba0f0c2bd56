package mint

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/crypto"
	"github.com/satmint/mintcore/mint/storage"
)

const SatUnit = "sat"

// loadKeysets reads every keyset row from the store, reconstructs its
// crypto.MintKeyset and populates the in-memory cache. If no stored keyset
// is active (including on first run) it generates a fresh active keyset and
// persists it.
func (m *Mint) loadKeysets(inputFeePpk uint) error {
	dbKeysets, err := m.db.GetKeysets()
	if err != nil {
		return fmt.Errorf("error reading keysets from db: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dbKeyset := range dbKeysets {
		keyset := keysetFromDB(dbKeyset)
		m.keysets[keyset.Id] = keyset
		if keyset.Active {
			m.activeKeyset = keyset
		}
	}

	if m.activeKeyset == nil {
		keyset, err := crypto.GenerateKeyset(SatUnit, inputFeePpk, crypto.DefaultMaxOrder)
		if err != nil {
			return fmt.Errorf("error generating keyset: %v", err)
		}

		if err := m.db.SaveKeyset(keysetToDB(keyset)); err != nil {
			return fmt.Errorf("error saving new active keyset: %v", err)
		}

		m.keysets[keyset.Id] = keyset
		m.activeKeyset = keyset
		m.logInfof("generated new active keyset '%v' with fee %v ppk", keyset.Id, keyset.InputFeePpk)
	}

	return nil
}

func keysetFromDB(dbKeyset storage.DBKeyset) *crypto.MintKeyset {
	keys := make(map[uint64]crypto.KeyPair, len(dbKeyset.Keys))
	for amount, privkey := range dbKeyset.Keys {
		keys[amount] = crypto.KeyPair{PrivateKey: privkey, PublicKey: privkey.PubKey()}
	}

	return &crypto.MintKeyset{
		Id:          dbKeyset.Id,
		Unit:        dbKeyset.Unit,
		Active:      dbKeyset.Active,
		InputFeePpk: dbKeyset.InputFeePpk,
		CreatedAt:   dbKeyset.CreatedAt,
		Keys:        keys,
	}
}

func keysetToDB(keyset *crypto.MintKeyset) storage.DBKeyset {
	keys := make(map[uint64]*secp256k1.PrivateKey, len(keyset.Keys))
	for amount, kp := range keyset.Keys {
		keys[amount] = kp.PrivateKey
	}

	return storage.DBKeyset{
		Id:          keyset.Id,
		Unit:        keyset.Unit,
		Active:      keyset.Active,
		InputFeePpk: keyset.InputFeePpk,
		CreatedAt:   keyset.CreatedAt,
		Keys:        keys,
	}
}

// GetActiveKeyset returns the keyset currently used to sign new blinded
// messages.
func (m *Mint) GetActiveKeyset() crypto.MintKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.activeKeyset
}

// GetKeysetById returns a keyset (active or inactive) by its NUT-02 id.
func (m *Mint) GetKeysetById(id string) (crypto.MintKeyset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keyset, ok := m.keysets[id]
	if !ok {
		return crypto.MintKeyset{}, cashu.UnknownKeysetErr
	}
	return *keyset, nil
}

// ListKeysets returns metadata for every keyset the mint knows about,
// active and inactive.
func (m *Mint) ListKeysets() []crypto.MintKeyset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keysets := make([]crypto.MintKeyset, 0, len(m.keysets))
	for _, keyset := range m.keysets {
		keysets = append(keysets, *keyset)
	}
	return keysets
}

// deactivateOtherKeysets marks every keyset other than id as inactive, both
// in memory and in the store. Called once at startup in case the previous
// active keyset was never rotated out.
func (m *Mint) deactivateOtherKeysets(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for keysetId, keyset := range m.keysets {
		if keysetId == id || !keyset.Active {
			continue
		}
		if err := m.db.UpdateKeysetActive(keysetId, false); err != nil {
			return err
		}
		keyset.Active = false
		m.logInfof("deactivated keyset '%v'", keysetId)
	}
	return nil
}
