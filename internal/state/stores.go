package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MarketStore holds every listed perp and spot market keyed by index.
type MarketStore struct {
	mu          sync.RWMutex
	perpMarkets map[uint16]*PerpMarket
	spotMarkets map[uint16]*SpotMarket
}

func NewMarketStore() *MarketStore {
	return &MarketStore{
		perpMarkets: make(map[uint16]*PerpMarket),
		spotMarkets: make(map[uint16]*SpotMarket),
	}
}

func (ms *MarketStore) AddPerpMarket(m *PerpMarket) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("perp market %d: %w", m.MarketIndex, err)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.perpMarkets[m.MarketIndex]; ok {
		return fmt.Errorf("perp market %d already listed", m.MarketIndex)
	}
	ms.perpMarkets[m.MarketIndex] = m
	return nil
}

func (ms *MarketStore) AddSpotMarket(m *SpotMarket) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("spot market %d: %w", m.MarketIndex, err)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.spotMarkets[m.MarketIndex]; ok {
		return fmt.Errorf("spot market %d already listed", m.MarketIndex)
	}
	ms.spotMarkets[m.MarketIndex] = m
	return nil
}

func (ms *MarketStore) PerpMarket(marketIndex uint16) (*PerpMarket, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.perpMarkets[marketIndex]
	return m, ok
}

func (ms *MarketStore) SpotMarket(marketIndex uint16) (*SpotMarket, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.spotMarkets[marketIndex]
	return m, ok
}

// QuoteSpotMarket returns the quote market (index 0).
func (ms *MarketStore) QuoteSpotMarket() (*SpotMarket, bool) {
	return ms.SpotMarket(QuoteSpotMarketIndex)
}

// PerpMarkets returns a snapshot slice of all perp markets.
func (ms *MarketStore) PerpMarkets() []*PerpMarket {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]*PerpMarket, 0, len(ms.perpMarkets))
	for _, m := range ms.perpMarkets {
		out = append(out, m)
	}
	return out
}

// SpotMarkets returns a snapshot slice of all spot markets.
func (ms *MarketStore) SpotMarkets() []*SpotMarket {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]*SpotMarket, 0, len(ms.spotMarkets))
	for _, m := range ms.spotMarkets {
		out = append(out, m)
	}
	return out
}

// UserStore manages user accounts keyed by id.
type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*User)}
}

func (us *UserStore) User(id uuid.UUID) (*User, bool) {
	us.mu.RLock()
	defer us.mu.RUnlock()
	u, ok := us.users[id]
	return u, ok
}

func (us *UserStore) GetOrCreateUser(id uuid.UUID) *User {
	us.mu.Lock()
	defer us.mu.Unlock()
	u, ok := us.users[id]
	if !ok {
		u = NewUser(id)
		us.users[id] = u
	}
	return u
}

func (us *UserStore) Users() []*User {
	us.mu.RLock()
	defer us.mu.RUnlock()
	out := make([]*User, 0, len(us.users))
	for _, u := range us.users {
		out = append(out, u)
	}
	return out
}
