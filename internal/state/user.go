package state

import (
	"github.com/google/uuid"
)

// UserStatus is driven externally from margin verdicts; the engines only
// read it.
type UserStatus int

const (
	UserStatusActive UserStatus = iota
	UserStatusBeingLiquidated
	UserStatusBankrupt
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusActive:
		return "Active"
	case UserStatusBeingLiquidated:
		return "BeingLiquidated"
	case UserStatusBankrupt:
		return "Bankrupt"
	default:
		return "Unknown"
	}
}

// User aggregates one account's positions across all markets.
type User struct {
	UserID uuid.UUID
	Status UserStatus

	// MaxMarginRatio raises (never lowers) the initial margin ratio applied
	// to every perp position. MarginPrecision; zero means no override.
	MaxMarginRatio int64

	PerpPositions []*PerpPosition
	SpotPositions []*SpotPosition
}

// NewUser returns an empty active user.
func NewUser(id uuid.UUID) *User {
	return &User{UserID: id, Status: UserStatusActive}
}

// PerpPosition returns the user's position in the market, if any.
func (u *User) PerpPosition(marketIndex uint16) (*PerpPosition, bool) {
	for _, p := range u.PerpPositions {
		if p.MarketIndex == marketIndex {
			return p, true
		}
	}
	return nil, false
}

// GetOrCreatePerpPosition returns the position, creating it lazily.
func (u *User) GetOrCreatePerpPosition(marketIndex uint16) *PerpPosition {
	if p, ok := u.PerpPosition(marketIndex); ok {
		return p
	}
	p := NewPerpPosition(marketIndex)
	u.PerpPositions = append(u.PerpPositions, p)
	return p
}

// SpotPosition returns the user's balance in the spot market, if any.
func (u *User) SpotPosition(marketIndex uint16) (*SpotPosition, bool) {
	for _, p := range u.SpotPositions {
		if p.MarketIndex == marketIndex {
			return p, true
		}
	}
	return nil, false
}

// GetOrCreateSpotPosition returns the balance, creating it lazily.
func (u *User) GetOrCreateSpotPosition(marketIndex uint16) *SpotPosition {
	if p, ok := u.SpotPosition(marketIndex); ok {
		return p
	}
	p := NewSpotPosition(marketIndex)
	u.SpotPositions = append(u.SpotPositions, p)
	return p
}

// Prune drops positions that are flat with nothing outstanding.
func (u *User) Prune() {
	perps := u.PerpPositions[:0]
	for _, p := range u.PerpPositions {
		if p.IsOpen() {
			perps = append(perps, p)
		}
	}
	u.PerpPositions = perps

	spots := u.SpotPositions[:0]
	for _, p := range u.SpotPositions {
		if p.IsOpen() {
			spots = append(spots, p)
		}
	}
	u.SpotPositions = spots
}
