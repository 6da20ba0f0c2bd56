package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DefaultMaxOrder is the default highest denomination order 2^i a keyset
// generates keys for (i in [0, DefaultMaxOrder]).
const DefaultMaxOrder = 20

// MintKeyset is one unit's denomination-indexed signing keyset.
type MintKeyset struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
	CreatedAt   int64
	Keys        map[uint64]KeyPair
}

// KeyPair is a denomination's signing keypair.
type KeyPair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// GenerateKeyset samples a fresh, independent private scalar from the
// CSPRNG for each denomination 2^i, i in [0, maxOrder], assembles the
// keyset and derives its ID. Unlike a deterministic derivation scheme,
// a keyset generated this way cannot be regenerated from a seed: the
// private scalars themselves must be persisted.
func GenerateKeyset(unit string, inputFeePpk uint, maxOrder int) (*MintKeyset, error) {
	keys := make(map[uint64]KeyPair, maxOrder+1)
	pubkeys := make(PublicKeys, maxOrder+1)

	for i := 0; i <= maxOrder; i++ {
		amount := uint64(1) << uint(i)

		privKey, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("crypto: generating key for denomination %d: %w", amount, err)
		}

		keys[amount] = KeyPair{PrivateKey: privKey, PublicKey: privKey.PubKey()}
		pubkeys[amount] = privKey.PubKey()
	}

	return &MintKeyset{
		Id:          DeriveKeysetId(pubkeys),
		Unit:        unit,
		Active:      true,
		InputFeePpk: inputFeePpk,
		CreatedAt:   time.Now().Unix(),
		Keys:        keys,
	}, nil
}

// PublicKeys is a denomination-indexed map of public keys, marshalled with
// string-amount keys sorted ascending, matching NUT-01.
type PublicKeys map[uint64]*secp256k1.PublicKey

func (pks PublicKeys) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	amounts := make([]uint64, 0, len(pks))
	for k := range pks {
		amounts = append(amounts, k)
	}
	slices.Sort(amounts)

	for j, amount := range amounts {
		if j != 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%q", fmt.Sprint(amount), hex.EncodeToString(pks[amount].SerializeCompressed()))
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (pks *PublicKeys) UnmarshalJSON(data []byte) error {
	var tempKeys map[uint64]string
	if err := json.Unmarshal(data, &tempKeys); err != nil {
		return err
	}

	out := make(PublicKeys, len(tempKeys))
	for amount, key := range tempKeys {
		keyBytes, err := hex.DecodeString(key)
		if err != nil {
			return err
		}
		publicKey, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return fmt.Errorf("invalid public key: %v", err)
		}
		out[amount] = publicKey
	}
	*pks = out
	return nil
}

// DeriveKeysetId returns the NUT-02 keyset ID for a set of public keys:
// sort by denomination ascending, concatenate compressed public keys,
// SHA256, take the first 7 bytes hex-encoded, prefixed with version "00".
func DeriveKeysetId(keyset PublicKeys) string {
	type entry struct {
		amount uint64
		pk     *secp256k1.PublicKey
	}
	entries := make([]entry, 0, len(keyset))
	for amount, key := range keyset {
		entries = append(entries, entry{amount, key})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].amount < entries[j].amount })

	concat := make([]byte, 0, len(entries)*33)
	for _, e := range entries {
		concat = append(concat, e.pk.SerializeCompressed()...)
	}

	hash := sha256.Sum256(concat)
	return "00" + hex.EncodeToString(hash[:])[:14]
}

// PublicKeys returns the keyset's public keys, keyed by denomination.
func (ks *MintKeyset) PublicKeys() PublicKeys {
	pubkeys := make(PublicKeys, len(ks.Keys))
	for amount, kp := range ks.Keys {
		pubkeys[amount] = kp.PublicKey
	}
	return pubkeys
}

// PrivateKeyFor returns the signing scalar for a denomination, or false if
// this keyset does not cover that denomination.
func (ks *MintKeyset) PrivateKeyFor(amount uint64) (*secp256k1.PrivateKey, bool) {
	kp, ok := ks.Keys[amount]
	if !ok {
		return nil, false
	}
	return kp.PrivateKey, true
}

type keysetJSON struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
	CreatedAt   int64
	Keys        map[uint64]keyPairJSON
}

type keyPairJSON struct {
	PrivateKey []byte
	PublicKey  []byte
}

// MarshalJSON persists the keyset including its private scalars, since
// CSPRNG-sampled keys cannot be regenerated deterministically.
func (ks *MintKeyset) MarshalJSON() ([]byte, error) {
	keys := make(map[uint64]keyPairJSON, len(ks.Keys))
	for amount, kp := range ks.Keys {
		keys[amount] = keyPairJSON{
			PrivateKey: kp.PrivateKey.Serialize(),
			PublicKey:  kp.PublicKey.SerializeCompressed(),
		}
	}
	return json.Marshal(keysetJSON{
		Id:          ks.Id,
		Unit:        ks.Unit,
		Active:      ks.Active,
		InputFeePpk: ks.InputFeePpk,
		CreatedAt:   ks.CreatedAt,
		Keys:        keys,
	})
}

func (ks *MintKeyset) UnmarshalJSON(data []byte) error {
	var temp keysetJSON
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	ks.Id = temp.Id
	ks.Unit = temp.Unit
	ks.Active = temp.Active
	ks.InputFeePpk = temp.InputFeePpk
	ks.CreatedAt = temp.CreatedAt

	ks.Keys = make(map[uint64]KeyPair, len(temp.Keys))
	for amount, kpj := range temp.Keys {
		priv := secp256k1.PrivKeyFromBytes(kpj.PrivateKey)
		pub, err := secp256k1.ParsePubKey(kpj.PublicKey)
		if err != nil {
			return fmt.Errorf("invalid public key for amount %d: %w", amount, err)
		}
		ks.Keys[amount] = KeyPair{PrivateKey: priv, PublicKey: pub}
	}
	return nil
}
