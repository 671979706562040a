package oracle

import "sync"

// Cache holds the latest consumed oracle record per market so read-side
// callers can assemble inputs without touching the feed. The applier writes;
// queries read.
type Cache struct {
	mu   sync.RWMutex
	perp map[uint16]*PriceData
	spot map[uint16]*PriceData
}

func NewCache() *Cache {
	return &Cache{
		perp: make(map[uint16]*PriceData),
		spot: make(map[uint16]*PriceData),
	}
}

func (c *Cache) SetPerp(marketIndex uint16, data *PriceData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perp[marketIndex] = data
}

func (c *Cache) SetSpot(marketIndex uint16, data *PriceData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spot[marketIndex] = data
}

func (c *Cache) Perp(marketIndex uint16) (*PriceData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.perp[marketIndex]
	return d, ok
}

func (c *Cache) Spot(marketIndex uint16) (*PriceData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.spot[marketIndex]
	return d, ok
}

// SnapshotPerp copies the perp map for one margin calculation.
func (c *Cache) SnapshotPerp() map[uint16]*PriceData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint16]*PriceData, len(c.perp))
	for k, v := range c.perp {
		out[k] = v
	}
	return out
}

// SnapshotSpot copies the spot map for one margin calculation.
func (c *Cache) SnapshotSpot() map[uint16]*PriceData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint16]*PriceData, len(c.spot))
	for k, v := range c.spot {
		out[k] = v
	}
	return out
}
