// Package nut15 contains structs as defined in [NUT-15], multi-path
// payments.
//
// [NUT-15]: https://github.com/cashubtc/nuts/blob/main/15.md
package nut15

import "github.com/satmint/mintcore/cashu/nuts/nut06"

// MppOption signals that the wallet wants this mint to pay only part of a
// larger Lightning invoice, attached to a melt quote request.
type MppOption struct {
	Amount uint64 `json:"amount"`
}

// Options is the NUT-15 extension of a melt quote request body.
type Options struct {
	Mpp *MppOption `json:"mpp,omitempty"`
}

// Setting is this mint's NUT-06 info entry for NUT-15, advertising which
// (method, unit) pairs accept partial-payment melt quotes.
type Setting struct {
	Method string `json:"method"`
	Unit   string `json:"unit"`
}

// IsMppSupported reports whether settings declares support for unit.
func IsMppSupported(settings []nut06.MethodSetting, method, unit string) bool {
	for _, s := range settings {
		if s.Method == method && s.Unit == unit {
			return true
		}
	}
	return false
}
