package orders

import (
	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// ApplyFill folds one trade into a position using average-price accounting.
// Quantity is signed: positive long, negative short. A same-direction fill
// extends the position and recomputes the volume-weighted average entry
// price (mirroring the teacher's applyYesFill/applyNoFill totalCost
// formula, generalized from float64 to fixedpoint.Decimal and from two
// hardcoded legs to one signed quantity). An opposite-direction fill
// reduces or closes the position and realizes PnL on the closed portion;
// if the fill size exceeds the open size, the position flips and the
// residual opens fresh at the fill price.
//
// fee is the cost already attributed to this fill (see CostFormula.Apply);
// it is subtracted from realized PnL at the moment of closing, per the
// "fees attributed to the closing portion" invariant. A fee on an
// opening/extending fill has no realized-PnL effect yet — it is carried by
// the caller into the audit trail but does not alter AvgEntryPrice.
func ApplyFill(pos types.Position, side types.Side, fillQty, fillPrice, fee fixedpoint.Decimal, engineTime int64) types.Position {
	signedFillQty := fillQty.Mul(fixedpoint.NewFromInt(int64(side.Sign())))
	pos.UpdatedAtEngineTime = engineTime

	sameDirection := pos.Quantity.IsZero() ||
		(pos.Quantity.IsPositive() && signedFillQty.IsPositive()) ||
		(pos.Quantity.IsNegative() && signedFillQty.IsNegative())

	if sameDirection {
		return extendPosition(pos, signedFillQty, fillPrice)
	}

	closingQty := fillQty // magnitude available to close, in trade units
	openQty := pos.Quantity.Abs()

	if closingQty.LessThanOrEqual(openQty) {
		return reducePosition(pos, side, closingQty, fillPrice, fee, engineTime)
	}

	// Flip: close the entire existing position (realizing its full PnL),
	// then open the residual quantity fresh in the new direction at the
	// fill price — the teacher's "flipping in one fill" case.
	closed := reducePosition(pos, side, openQty, fillPrice, fee, engineTime)
	residualQty := closingQty.Sub(openQty)
	residualSigned := residualQty.Mul(fixedpoint.NewFromInt(int64(side.Sign())))
	return types.Position{
		Instrument:          pos.Instrument,
		Quantity:            residualSigned,
		AvgEntryPrice:       fillPrice,
		RealizedPnL:         closed.RealizedPnL,
		UnrealizedPnL:       fixedpoint.Zero,
		LastMarkPrice:       pos.LastMarkPrice,
		UpdatedAtEngineTime: engineTime,
	}
}

// extendPosition adds a same-direction fill to the position, recomputing
// the volume-weighted average entry price.
func extendPosition(pos types.Position, signedFillQty fixedpoint.Decimal, fillPrice fixedpoint.Decimal) types.Position {
	priorNotional := pos.AvgEntryPrice.Mul(pos.Quantity.Abs())
	fillNotional := fillPrice.Mul(signedFillQty.Abs())
	newQty := pos.Quantity.Add(signedFillQty)

	if newQty.IsZero() {
		pos.Quantity = fixedpoint.Zero
		pos.AvgEntryPrice = fixedpoint.Zero
		return pos
	}
	if avg, ok := priorNotional.Add(fillNotional).Div(newQty.Abs()); ok {
		pos.AvgEntryPrice = avg
	}
	pos.Quantity = newQty
	return pos
}

// reducePosition closes up to `closingQty` of the existing position against
// an opposite-side fill, realizing PnL net of fee on the closed portion.
// closingQty must be <= the position's absolute quantity. fillSide is
// unused directly (the sign of the existing position already determines
// the PnL direction) but kept in the signature for symmetry with
// extendPosition and to make call sites self-documenting.
func reducePosition(pos types.Position, _ types.Side, closingQty, fillPrice, fee fixedpoint.Decimal, engineTime int64) types.Position {
	if pos.Quantity.IsZero() {
		return pos
	}
	positionSign := fixedpoint.NewFromInt(int64(pos.Quantity.Sign()))
	priceDiff := fillPrice.Sub(pos.AvgEntryPrice)
	grossPnL := priceDiff.Mul(closingQty).Mul(positionSign)
	pos.RealizedPnL = pos.RealizedPnL.Add(grossPnL).Sub(fee)

	remaining := pos.Quantity.Abs().Sub(closingQty)
	if remaining.IsZero() {
		pos.Quantity = fixedpoint.Zero
		pos.AvgEntryPrice = fixedpoint.Zero
	} else {
		pos.Quantity = remaining.Mul(positionSign)
		// AvgEntryPrice is unchanged by a partial close.
	}
	pos.UpdatedAtEngineTime = engineTime
	return pos
}

// MarkToMarket recomputes UnrealizedPnL from the current mark price without
// touching RealizedPnL or AvgEntryPrice.
func MarkToMarket(pos types.Position, markPrice fixedpoint.Decimal, engineTime int64) types.Position {
	pos.LastMarkPrice = markPrice
	if pos.Quantity.IsZero() {
		pos.UnrealizedPnL = fixedpoint.Zero
		pos.UpdatedAtEngineTime = engineTime
		return pos
	}
	sign := fixedpoint.NewFromInt(int64(pos.Quantity.Sign()))
	pos.UnrealizedPnL = markPrice.Sub(pos.AvgEntryPrice).Mul(pos.Quantity.Abs()).Mul(sign)
	pos.UpdatedAtEngineTime = engineTime
	return pos
}
