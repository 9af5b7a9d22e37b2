package fanout

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"sdexalgo/internal/model"
)

func testPair() model.TradingPair {
	return model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")}
}

// TestFanoutFifteenMinuteBucket: a 15m subscriber
// receives minute candles for minutes 0..15 of one hour. Expected: one
// emitted 15m candle for minutes 0..14 when the minute-15 candle
// arrives; minute-15 becomes the new in-progress aggregate.
func TestFanoutFifteenMinuteBucket(t *testing.T) {
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := make(chan model.Candle, 10)
	f.Subscribe(testPair().Key(), Subscription{DeploymentID: "d1", Resolution: model.Res15m, Sink: sink})

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i <= 15; i++ {
		c := model.NewFromTrade(testPair(), model.Res1m, base.Add(time.Duration(i)*time.Minute), float64(i)+1, 1, 1)
		f.deliver(c)
	}

	select {
	case emitted := <-sink:
		if !emitted.Start.Equal(base) {
			t.Errorf("emitted.Start = %v, want %v", emitted.Start, base)
		}
		if emitted.Close != 15 { // minute 14's close == 14+1
			t.Errorf("emitted.Close = %v, want 15 (minute 14's close)", emitted.Close)
		}
	default:
		t.Fatal("expected one emitted 15m candle")
	}

	select {
	case <-sink:
		t.Fatal("expected exactly one emission, got a second")
	default:
	}

	key := aggKey{pair: testPair().Key(), res: model.Res15m}
	agg, ok := f.aggregates[key]
	if !ok {
		t.Fatal("expected minute-15 to become the new in-progress aggregate")
	}
	if !agg.Start.Equal(base.Add(15 * time.Minute)) {
		t.Errorf("new aggregate start = %v, want minute 15", agg.Start)
	}
}

// TestFanoutTwoSubscribersSameResolution: two deployments subscribed at
// the same (pair, resolution) share one in-progress aggregate, so a
// bucket boundary must emit the same closed candle to both sinks — the
// second subscriber must not see the boundary candle merged into itself
// (doubled volumes) or lose its emission.
func TestFanoutTwoSubscribersSameResolution(t *testing.T) {
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sinkA := make(chan model.Candle, 10)
	sinkB := make(chan model.Candle, 10)
	f.Subscribe(testPair().Key(), Subscription{DeploymentID: "d1", Resolution: model.Res5m, Sink: sinkA})
	f.Subscribe(testPair().Key(), Subscription{DeploymentID: "d2", Resolution: model.Res5m, Sink: sinkB})

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i <= 5; i++ {
		c := model.NewFromTrade(testPair(), model.Res1m, base.Add(time.Duration(i)*time.Minute), float64(i)+1, 1, 1)
		f.deliver(c)
	}

	for name, sink := range map[string]chan model.Candle{"d1": sinkA, "d2": sinkB} {
		select {
		case emitted := <-sink:
			if !emitted.Start.Equal(base) {
				t.Errorf("%s: emitted.Start = %v, want %v", name, emitted.Start, base)
			}
			if emitted.Open != 1 || emitted.Close != 5 {
				t.Errorf("%s: emitted open/close = %v/%v, want 1/5", name, emitted.Open, emitted.Close)
			}
			if emitted.BaseVolume != 5 {
				t.Errorf("%s: emitted.BaseVolume = %v, want 5 (minutes 0..4)", name, emitted.BaseVolume)
			}
		default:
			t.Fatalf("%s: expected an emitted 5m candle", name)
		}
		select {
		case <-sink:
			t.Fatalf("%s: expected exactly one emission", name)
		default:
		}
	}

	key := aggKey{pair: testPair().Key(), res: model.Res5m}
	agg, ok := f.aggregates[key]
	if !ok {
		t.Fatal("expected minute 5 to become the new in-progress aggregate")
	}
	if agg.BaseVolume != 1 {
		t.Errorf("new aggregate volume = %v, want 1 (minute 5 only, not doubled)", agg.BaseVolume)
	}
}

func TestFanout1mPassthrough(t *testing.T) {
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := make(chan model.Candle, 10)
	f.Subscribe(testPair().Key(), Subscription{DeploymentID: "d1", Resolution: model.Res1m, Sink: sink})

	c := model.NewFromTrade(testPair(), model.Res1m, time.Now(), 1, 1, 1)
	f.deliver(c)

	select {
	case got := <-sink:
		if got.Close != c.Close {
			t.Errorf("1m passthrough altered candle: got %+v, want %+v", got, c)
		}
	default:
		t.Fatal("expected the 1m candle to pass through unchanged")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := make(chan model.Candle, 10)
	f.Subscribe(testPair().Key(), Subscription{DeploymentID: "d1", Resolution: model.Res1m, Sink: sink})
	f.Unsubscribe(testPair().Key(), "d1")

	f.deliver(model.NewFromTrade(testPair(), model.Res1m, time.Now(), 1, 1, 1))
	select {
	case <-sink:
		t.Fatal("expected no delivery after unsubscribe")
	default:
	}
}
