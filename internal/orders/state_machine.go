// Package orders implements the order state machine and the per-instrument
// average-price position accounting described by the engine's data model.
// Every function here is a pure transform: given an Order/Position value
// and an event, it returns the next value or an error if the event is not
// legal from the current state. The engine loop (not this package) is
// responsible for storing the result back into EngineState.
package orders

import (
	"fmt"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// ErrIllegalTransition is returned when an event is not legal from the
// order's current status.
type ErrIllegalTransition struct {
	From  types.OrderStatus
	Event string
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("orders: illegal transition: %s from status %s", e.Event, e.From)
}

// ErrOverfill is returned by OnTrade when a fill would push filled_quantity
// past quantity. Fatal for that order: the fill is dropped and the order is
// left completely untouched, per scenario S4.
type ErrOverfill struct {
	Key       types.OrderKey
	Quantity  fixedpoint.Decimal
	FilledQty fixedpoint.Decimal
	FillQty   fixedpoint.Decimal
}

func (e *ErrOverfill) Error() string {
	return fmt.Sprintf("orders: overfill on %+v: filled=%s + fill=%s > quantity=%s", e.Key, e.FilledQty, e.FillQty, e.Quantity)
}

// OpenRequest constructs a new Order in StatusRequestOpen. This is the only
// way to create an Order; every other function here transitions an
// existing one.
func OpenRequest(key types.OrderKey, side types.Side, kind types.OrderKind, tif types.TimeInForce, price, quantity fixedpoint.Decimal, engineTime int64) types.Order {
	return types.Order{
		Key:                   key,
		Instrument:            key.Instrument,
		Side:                  side,
		Kind:                  kind,
		TIF:                   tif,
		Price:                 price,
		Quantity:              quantity,
		Status:                types.StatusRequestOpen,
		FilledQty:             fixedpoint.Zero,
		AvgFillPx:             fixedpoint.Zero,
		RequestedAtEngineTime: engineTime,
		UpdatedAtEngineTime:   engineTime,
	}
}

// OnSent transitions RequestOpen → InFlightOpen when the open request has
// been handed to the execution backend.
func OnSent(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusRequestOpen {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_sent"}
	}
	o.Status = types.StatusInFlightOpen
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnAck transitions InFlightOpen → Open once the exchange has accepted the
// order and assigned it a venue id.
func OnAck(o types.Order, venueID types.VenueOrderId, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusInFlightOpen {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_ack"}
	}
	o.Status = types.StatusOpen
	o.VenueId = venueID
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnReject transitions RequestOpen or InFlightOpen → Rejected. Legal only
// pre-acknowledgement, per the state machine's documented exception to the
// otherwise-linear open path.
func OnReject(o types.Order, reason string, engineTime int64) (types.Order, error) {
	switch o.Status {
	case types.StatusRequestOpen, types.StatusInFlightOpen:
		o.Status = types.StatusRejected
		o.RejectReason = reason
		o.UpdatedAtEngineTime = engineTime
		return o, nil
	default:
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_reject"}
	}
}

// OnTrade applies a fill to an Open order (or one with a cancel pending,
// RequestCancel/InFlightCancel), updating FilledQty and the
// volume-weighted AvgFillPx. Transitions to FullyFilled once the remaining
// quantity reaches zero. A fill that would push FilledQty past Quantity is
// rejected as an Overfill (fatal for that order, per spec scenario S4): the
// order is returned completely unchanged so no fill volume is folded into
// the position either.
func OnTrade(o types.Order, fillQty, fillPrice fixedpoint.Decimal, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusOpen && o.Status != types.StatusRequestCancel && o.Status != types.StatusInFlightCancel {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_trade"}
	}
	newFilled := o.FilledQty.Add(fillQty)
	if newFilled.GreaterThan(o.Quantity) {
		return o, &ErrOverfill{Key: o.Key, Quantity: o.Quantity, FilledQty: o.FilledQty, FillQty: fillQty}
	}

	priorNotional := o.AvgFillPx.Mul(o.FilledQty)
	fillNotional := fillPrice.Mul(fillQty)

	if avg, ok := priorNotional.Add(fillNotional).Div(newFilled); ok {
		o.AvgFillPx = avg
	}
	o.FilledQty = newFilled
	o.UpdatedAtEngineTime = engineTime

	if o.FilledQty.GreaterThanOrEqual(o.Quantity) {
		o.Status = types.StatusFullyFilled
	}
	return o, nil
}

// RequestCancel transitions Open → RequestCancel. Only a fully Open order
// (never RequestOpen/InFlightOpen) can have a cancel requested against it —
// a caller that wants to abandon an in-flight open must wait for the Ack or
// Reject first.
func RequestCancel(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusOpen {
		return o, &ErrIllegalTransition{From: o.Status, Event: "to_request_cancel"}
	}
	o.Status = types.StatusRequestCancel
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnCancelSent transitions RequestCancel → InFlightCancel.
func OnCancelSent(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusRequestCancel {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_cancel_sent"}
	}
	o.Status = types.StatusInFlightCancel
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnCancelAck transitions InFlightCancel → Cancelled.
func OnCancelAck(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusInFlightCancel {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_cancel_ack"}
	}
	o.Status = types.StatusCancelled
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnCancelReject transitions InFlightCancel back to Open: the exchange
// refused the cancel (e.g. the order already filled concurrently), so the
// order resumes its prior life rather than terminating.
func OnCancelReject(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusInFlightCancel {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_cancel_reject"}
	}
	o.Status = types.StatusOpen
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}

// OnExpired transitions Open → Expired, e.g. a GTD order reaching its
// expiry with no cancel in flight.
func OnExpired(o types.Order, engineTime int64) (types.Order, error) {
	if o.Status != types.StatusOpen {
		return o, &ErrIllegalTransition{From: o.Status, Event: "on_expired"}
	}
	o.Status = types.StatusExpired
	o.UpdatedAtEngineTime = engineTime
	return o, nil
}
