package marketdata

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tradingcore/pkg/types"
)

func TestSimMapperBuildsIdTable(t *testing.T) {
	t.Parallel()
	subs := []Subscription{{Instrument: 7, Kind: SubscriptionBook}, {Instrument: 9, Kind: SubscriptionTrade}}
	reqs, ids, err := SimMapper{}.Map(subs)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
	if got, ok := ids["7"]; !ok || got.Instrument != 7 {
		t.Errorf("ids[7] = %+v, ok=%v", got, ok)
	}
	if got, ok := ids["9"]; !ok || got.Kind != SubscriptionTrade {
		t.Errorf("ids[9] = %+v, ok=%v", got, ok)
	}
}

func TestSimValidatorWaitsForExpectedAcksAndBuffersOthers(t *testing.T) {
	t.Parallel()
	frames := make(chan RawMessage, 8)

	ack := func(instrument int, ok bool) RawMessage {
		data, _ := json.Marshal(struct {
			Op         string `json:"op"`
			Instrument int    `json:"instrument"`
			Ok         bool   `json:"ok"`
		}{Op: "ack", Instrument: instrument, Ok: ok})
		return RawMessage{Data: data}
	}

	frames <- RawMessage{Data: []byte(`{"op":"snapshot","instrument":1,"sequence":1,"bids":[],"asks":[]}`)}
	frames <- ack(1, true)
	frames <- ack(2, true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pending, err := (SimValidator{}).Validate(ctx, frames, 2)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, want exactly the one non-ack frame buffered", pending)
	}
}

func TestSimValidatorTimesOutWithoutEnoughAcks(t *testing.T) {
	t.Parallel()
	frames := make(chan RawMessage)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := (SimValidator{}).Validate(ctx, frames, 1)
	if err == nil {
		t.Fatal("expected a timeout error when not enough acks arrive")
	}
}

func TestDecodeSimFrameTradeSide(t *testing.T) {
	t.Parallel()
	df, err := decodeSimFrame(RawMessage{Data: []byte(`{"op":"trade","instrument":3,"price":"10","quantity":"1","side":"sell"}`)}, nil)
	if err != nil {
		t.Fatalf("decodeSimFrame: %v", err)
	}
	if df.Instrument != types.InstrumentIndex(3) || df.TradeSide != types.Sell {
		t.Fatalf("df = %+v, want instrument 3 / Sell", df)
	}
}
