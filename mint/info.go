package mint

import (
	"fmt"

	"github.com/satmint/mintcore/cashu"
	"github.com/satmint/mintcore/cashu/nuts/nut06"
	"github.com/satmint/mintcore/cashu/nuts/nut15"
)

const mintVersion = "mintcore/0.1.0"

// RetrieveMintInfo assembles the NUT-06 info document advertised to
// wallets. The minting NUT entry's disabled flag reflects the mint's live
// balance against its configured limit, so this is computed fresh on every
// call rather than cached at startup.
func (m *Mint) RetrieveMintInfo() (nut06.MintInfo, error) {
	disabled, err := m.mintingDisabled()
	if err != nil {
		return nut06.MintInfo{}, err
	}

	nuts := nut06.NutsMap{
		4: nut06.NutSetting{
			Methods: []nut06.MethodSetting{
				{
					Method:    BOLT11Method,
					Unit:      SatUnit,
					MinAmount: m.limits.MintingSettings.MinAmount,
					MaxAmount: m.limits.MintingSettings.MaxAmount,
				},
			},
			Disabled: disabled,
		},
		5: nut06.NutSetting{
			Methods: []nut06.MethodSetting{
				{
					Method:    BOLT11Method,
					Unit:      SatUnit,
					MinAmount: m.limits.MeltingSettings.MinAmount,
					MaxAmount: m.limits.MeltingSettings.MaxAmount,
				},
			},
			Disabled: false,
		},
		7:  map[string]bool{"supported": true},
		8:  map[string]bool{"supported": true},
		9:  map[string]bool{"supported": true},
		10: map[string]bool{"supported": true},
		11: map[string]bool{"supported": true},
		12: map[string]bool{"supported": true},
		15: []nut15.Setting{{Method: BOLT11Method, Unit: SatUnit}},
	}

	return nut06.MintInfo{
		Name:            m.info.Name,
		Pubkey:          m.identityPubkey,
		Version:         mintVersion,
		Description:     m.info.Description,
		LongDescription: m.info.LongDescription,
		Contact:         m.info.Contact,
		Motd:            m.info.Motd,
		Nuts:            nuts,
	}, nil
}

// balance returns the mint's outstanding ecash, summed across every
// keyset: total issued minus total redeemed.
func (m *Mint) balance() (uint64, error) {
	issued, err := m.db.GetIssuedEcash()
	if err != nil {
		return 0, fmt.Errorf("error getting issued ecash: %v", err)
	}
	redeemed, err := m.db.GetRedeemedEcash()
	if err != nil {
		return 0, fmt.Errorf("error getting redeemed ecash: %v", err)
	}

	var totalIssued, totalRedeemed uint64
	for _, amount := range issued {
		totalIssued += amount
	}
	for _, amount := range redeemed {
		totalRedeemed += amount
	}
	if totalRedeemed >= totalIssued {
		return 0, nil
	}
	return totalIssued - totalRedeemed, nil
}

func (m *Mint) mintingDisabled() (bool, error) {
	if m.limits.MaxBalance == 0 {
		return false, nil
	}
	balance, err := m.balance()
	if err != nil {
		errmsg := fmt.Sprintf("could not get mint balance from db: %v", err)
		return false, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	return balance >= m.limits.MaxBalance, nil
}
