package domain

import (
	"github.com/zyfty/zyftyd/pkg/errors"
)

// Pool accounts owned by the service on the settlement ledger.
const (
	RegistryAccount = "zyfty:registry"
	EscrowAccount   = "zyfty:escrow"
)

const maxFeeBps = 10000

type Settings struct {
	Admin string
	// EscrowAuthority is the only account allowed to move asset ownership outside mint and
	// destroy.
	EscrowAuthority string
	FeeCollector    string
	MintFeeBps      uint32
	UpdatedAt       int64
}

func NewSettings(
	admin, escrowAuthority, feeCollector string, mintFeeBps uint32, now int64,
) (*Settings, error) {
	s := &Settings{
		Admin:           admin,
		EscrowAuthority: escrowAuthority,
		FeeCollector:    feeCollector,
		MintFeeBps:      mintFeeBps,
		UpdatedAt:       now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Admin == "" {
		return errors.INVALID_ARGUMENT.New("missing admin account")
	}
	if s.EscrowAuthority == "" {
		return errors.INVALID_ARGUMENT.New("missing escrow authority")
	}
	if s.FeeCollector == "" {
		return errors.INVALID_ARGUMENT.New("missing fee collector")
	}
	if s.MintFeeBps > maxFeeBps {
		return errors.INVALID_ARGUMENT.New(
			"mint fee %d bps exceeds %d bps", s.MintFeeBps, maxFeeBps,
		)
	}
	return nil
}

func (s *Settings) MintFee(declaredValue uint64) uint64 {
	bps := uint64(s.MintFeeBps)
	// split to keep large declared values from overflowing
	return declaredValue/maxFeeBps*bps + declaredValue%maxFeeBps*bps/maxFeeBps
}

func (s *Settings) RequireAdmin(caller string) error {
	if caller != s.Admin {
		return errors.UNAUTHORIZED.New("account %s is not the registry admin", caller).
			WithMetadata(errors.AccountMetadata{Account: caller, Expected: s.Admin})
	}
	return nil
}

func (s *Settings) RequireEscrowAuthority(caller string) error {
	if caller != s.EscrowAuthority {
		return errors.TRANSFER_NOT_PERMITTED.New(
			"account %s is not the escrow authority", caller,
		).WithMetadata(errors.AccountMetadata{Account: caller, Expected: s.EscrowAuthority})
	}
	return nil
}

func (s *Settings) UpdateEscrow(caller, authority string, now int64) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	if authority == "" {
		return errors.INVALID_ARGUMENT.New("missing escrow authority")
	}
	s.EscrowAuthority = authority
	s.UpdatedAt = now
	return nil
}
