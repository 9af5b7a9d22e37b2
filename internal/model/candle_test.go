package model

import (
	"testing"
	"time"
)

func TestCandleUpdateFoldsLikeTradeRows(t *testing.T) {
	pair := TradingPair{Base: NativeAsset, Counter: NewAsset("USD", "IssuerA")}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c := NewFromTrade(pair, Res1m, start, 0.10, 100, 10)
	c.Update(0.12, 50, 6)
	c.Update(0.11, 200, 22)

	if c.Open != 0.10 {
		t.Errorf("Open = %v, want 0.10", c.Open)
	}
	if c.Close != 0.11 {
		t.Errorf("Close = %v, want 0.11", c.Close)
	}
	if c.High != 0.12 {
		t.Errorf("High = %v, want 0.12", c.High)
	}
	if c.Low != 0.10 {
		t.Errorf("Low = %v, want 0.10", c.Low)
	}
	if c.BaseVolume != 350 {
		t.Errorf("BaseVolume = %v, want 350", c.BaseVolume)
	}
}

func TestCandleMergeIdentity(t *testing.T) {
	pair := TradingPair{Base: NativeAsset, Counter: NewAsset("USD", "IssuerA")}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg := NewFromTrade(pair, Res15m, start, 1.0, 10, 10)
	for i := 1; i < 15; i++ {
		next := NewFromTrade(pair, Res1m, start.Add(time.Duration(i)*time.Minute), 1.0+float64(i)*0.01, 10, 10)
		agg.Merge(next)
	}

	if agg.Open != 1.0 {
		t.Errorf("Open = %v, want 1.0 (first minute's open preserved)", agg.Open)
	}
	// Computed at run time like the loop's prices above; the constant
	// expression 1.0+14*0.01 rounds differently.
	lastMinute := 14
	wantClose := 1.0 + float64(lastMinute)*0.01
	if agg.Close != wantClose {
		t.Errorf("Close = %v, want %v (last minute's close)", agg.Close, wantClose)
	}
	if agg.BaseVolume != 150 {
		t.Errorf("BaseVolume = %v, want 150", agg.BaseVolume)
	}
}
