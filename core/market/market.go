// Package market carries bootstrap wholesale market data. Customer models
// use the mean clearing price to judge whether a tariff's regulation
// payments are fairly priced.
package market

import "sync"

// BootstrapData aggregates per-timeslot cleared quantities (MWh) and
// prices (per MWh) from the bootstrap period. The zero value reports no
// data, which customer models treat as bootstrap mode.
type BootstrapData struct {
	mu    sync.RWMutex
	mwh   []float64
	price []float64
}

// NewBootstrapData returns market data over parallel quantity and price
// series. Extra entries in the longer slice are ignored.
func NewBootstrapData(mwh, price []float64) *BootstrapData {
	n := len(mwh)
	if len(price) < n {
		n = len(price)
	}
	return &BootstrapData{mwh: mwh[:n], price: price[:n]}
}

// Append records one cleared timeslot.
func (b *BootstrapData) Append(mwh, price float64) {
	b.mu.Lock()
	b.mwh = append(b.mwh, mwh)
	b.price = append(b.price, price)
	b.mu.Unlock()
}

// MeanMarketPrice returns the quantity-weighted mean clearing price per
// MWh. The bool result is false when no trades have been recorded.
func (b *BootstrapData) MeanMarketPrice() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	totalMWh, totalCost := 0.0, 0.0
	for i := range b.mwh {
		totalMWh += b.mwh[i]
		totalCost += b.mwh[i] * b.price[i]
	}
	if totalMWh == 0.0 {
		return 0.0, false
	}
	return totalCost / totalMWh, true
}
