// Package nut04 contains structs as defined in [NUT-04]
//
// [NUT-04]: https://github.com/cashubtc/nuts/blob/main/04.md
package nut04

import "github.com/satmint/mintcore/cashu"

// State is a mint quote's position in the UNPAID -> PAID -> ISSUED
// lifecycle. ISSUED is terminal.
type State int

const (
	Unpaid State = iota
	Paid
	Issued
)

func (s State) String() string {
	switch s {
	case Paid:
		return "PAID"
	case Issued:
		return "ISSUED"
	default:
		return "UNPAID"
	}
}

func StringToState(s string) State {
	switch s {
	case "PAID":
		return Paid
	case "ISSUED":
		return Issued
	default:
		return Unpaid
	}
}

type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

type PostMintQuoteBolt11Response struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   string `json:"state"`
	Expiry  int64  `json:"expiry"`
}

type PostMintBolt11Request struct {
	Quote   string                `json:"quote"`
	Outputs cashu.BlindedMessages `json:"outputs"`
}

type PostMintBolt11Response struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
