// Package nut05 contains structs as defined in [NUT-05]
//
// [NUT-05]: https://github.com/cashubtc/nuts/blob/main/05.md
package nut05

import (
	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut15"
)

// State is a melt quote's position in the UNPAID <-> PENDING -> PAID
// lifecycle. PAID is terminal; UNPAID is reachable again from PENDING only
// on confirmed Lightning payment failure.
type State int

const (
	Unpaid State = iota
	Pending
	Paid
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Paid:
		return "PAID"
	default:
		return "UNPAID"
	}
}

func StringToState(s string) State {
	switch s {
	case "PENDING":
		return Pending
	case "PAID":
		return Paid
	default:
		return Unpaid
	}
}

type PostMeltQuoteBolt11Request struct {
	Request string       `json:"request"`
	Unit    string       `json:"unit"`
	Options *nut15.Options `json:"options,omitempty"`
}

type PostMeltQuoteBolt11Response struct {
	Quote      string `json:"quote"`
	Amount     uint64 `json:"amount"`
	FeeReserve uint64 `json:"fee_reserve"`
	State      string `json:"state"`
	Expiry     int64  `json:"expiry"`
	Preimage   string `json:"payment_preimage,omitempty"`
}

type PostMeltBolt11Request struct {
	Quote   string                `json:"quote"`
	Inputs  cashu.Proofs          `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs,omitempty"`
}

type PostMeltBolt11Response struct {
	State    string                  `json:"state"`
	Preimage string                  `json:"payment_preimage"`
	Change   cashu.BlindedSignatures `json:"change,omitempty"`
}
