// Package index builds the dense integer key space (ExchangeIndex,
// AssetIndex, InstrumentIndex) that every hot-path lookup in the engine
// uses in place of string names.
//
// The build step runs once at startup: it sorts and deduplicates the
// caller's declared exchanges/assets/instruments, assigns indices in that
// sorted order (so a rebuild from the same declarations is reproducible),
// and validates every cross-reference an instrument makes into the asset
// set before handing back an IndexedInstruments blueprint. Everything after
// that point is O(1) slice/map lookup; there is no sorting or string
// comparison on any hot path.
package index

import (
	"errors"
	"fmt"
	"sort"

	"tradingcore/pkg/types"
)

// ErrMissingAsset is returned by Build when an instrument references an
// asset id that was never declared.
var ErrMissingAsset = errors.New("index: missing asset")

// ErrExchangeMismatch is returned by Build when an instrument's base/quote
// asset lives on a different exchange than the instrument itself.
var ErrExchangeMismatch = errors.New("index: exchange mismatch")

// ErrDuplicateKey is returned by Build when two declarations collide on the
// same (exchange, id) after deduplication was expected to resolve it —
// currently only raised for instruments, since exchanges/assets dedupe
// cleanly by identity.
var ErrDuplicateKey = errors.New("index: duplicate key")

// ErrNotFound is returned by the Find* lookups.
var ErrNotFound = errors.New("index: not found")

// IndexedInstruments is the immutable blueprint produced by Build. It is
// safe for concurrent reads from every goroutine once construction
// completes; nothing in this package mutates it afterwards.
type IndexedInstruments struct {
	exchanges   []types.Exchange
	assets      []types.Asset
	instruments []types.Instrument

	exchangeByID map[types.ExchangeId]types.ExchangeIndex
	assetByKey   map[assetKey]types.AssetIndex
	instByKey    map[instKey]types.InstrumentIndex
}

type assetKey struct {
	exchange types.ExchangeIndex
	id       types.AssetId
}

type instKey struct {
	exchange types.ExchangeIndex
	id       types.InstrumentId
}

// Exchanges returns all indexed exchanges in index order.
func (ix *IndexedInstruments) Exchanges() []types.Exchange { return ix.exchanges }

// Assets returns all indexed assets in index order.
func (ix *IndexedInstruments) Assets() []types.Asset { return ix.assets }

// Instruments returns all indexed instruments in index order.
func (ix *IndexedInstruments) Instruments() []types.Instrument { return ix.instruments }

// Exchange resolves an ExchangeIndex to its Exchange record.
func (ix *IndexedInstruments) Exchange(i types.ExchangeIndex) (types.Exchange, bool) {
	if int(i) < 0 || int(i) >= len(ix.exchanges) {
		return types.Exchange{}, false
	}
	return ix.exchanges[i], true
}

// Asset resolves an AssetIndex to its Asset record.
func (ix *IndexedInstruments) Asset(i types.AssetIndex) (types.Asset, bool) {
	if int(i) < 0 || int(i) >= len(ix.assets) {
		return types.Asset{}, false
	}
	return ix.assets[i], true
}

// Instrument resolves an InstrumentIndex to its Instrument record.
func (ix *IndexedInstruments) Instrument(i types.InstrumentIndex) (types.Instrument, bool) {
	if int(i) < 0 || int(i) >= len(ix.instruments) {
		return types.Instrument{}, false
	}
	return ix.instruments[i], true
}

// FindExchangeIndex looks up an exchange by its declared id.
func (ix *IndexedInstruments) FindExchangeIndex(id types.ExchangeId) (types.ExchangeIndex, error) {
	idx, ok := ix.exchangeByID[id]
	if !ok {
		return 0, fmt.Errorf("%w: exchange %q", ErrNotFound, id)
	}
	return idx, nil
}

// FindAssetIndex looks up an asset by (exchange, internal id).
func (ix *IndexedInstruments) FindAssetIndex(exchange types.ExchangeIndex, id types.AssetId) (types.AssetIndex, error) {
	idx, ok := ix.assetByKey[assetKey{exchange: exchange, id: id}]
	if !ok {
		return 0, fmt.Errorf("%w: asset %q on exchange %d", ErrNotFound, id, exchange)
	}
	return idx, nil
}

// FindInstrumentIndex looks up an instrument by (exchange, internal id).
func (ix *IndexedInstruments) FindInstrumentIndex(exchange types.ExchangeIndex, id types.InstrumentId) (types.InstrumentIndex, error) {
	idx, ok := ix.instByKey[instKey{exchange: exchange, id: id}]
	if !ok {
		return 0, fmt.Errorf("%w: instrument %q on exchange %d", ErrNotFound, id, exchange)
	}
	return idx, nil
}

// Build assembles an IndexedInstruments blueprint from flat declarations.
// Exchanges and assets are derived from the instrument declarations' own
// exchange/base/quote references plus any exchange-only or asset-only
// declarations passed explicitly (e.g. a currency asset with no instrument
// yet, or an exchange with no instruments configured at all).
//
// Deterministic: exchanges sort by Id, assets sort by (exchange, Id),
// instruments sort by (exchange, Id). Exchanges and assets dedupe on that
// key before indices are assigned; a repeated instrument key fails with
// ErrDuplicateKey. Re-running Build on the same declaration set always
// yields the same indices.
func Build(exchanges []types.ExchangeDecl, assets []types.AssetDecl, instruments []types.InstrumentDecl) (*IndexedInstruments, error) {
	exchByID := map[types.ExchangeId]types.ExchangeDecl{}
	for _, e := range exchanges {
		exchByID[e.Id] = e
	}
	for _, a := range assets {
		if _, ok := exchByID[a.Exchange]; !ok {
			exchByID[a.Exchange] = types.ExchangeDecl{Id: a.Exchange}
		}
	}
	for _, inst := range instruments {
		if _, ok := exchByID[inst.Exchange]; !ok {
			exchByID[inst.Exchange] = types.ExchangeDecl{Id: inst.Exchange}
		}
	}

	sortedExchangeIDs := make([]types.ExchangeId, 0, len(exchByID))
	for id := range exchByID {
		sortedExchangeIDs = append(sortedExchangeIDs, id)
	}
	sort.Slice(sortedExchangeIDs, func(i, j int) bool { return sortedExchangeIDs[i] < sortedExchangeIDs[j] })

	ix := &IndexedInstruments{
		exchangeByID: make(map[types.ExchangeId]types.ExchangeIndex, len(sortedExchangeIDs)),
		assetByKey:   map[assetKey]types.AssetIndex{},
		instByKey:    map[instKey]types.InstrumentIndex{},
	}
	for _, id := range sortedExchangeIDs {
		idx := types.ExchangeIndex(len(ix.exchanges))
		ix.exchanges = append(ix.exchanges, types.Exchange{Index: idx, Id: id})
		ix.exchangeByID[id] = idx
	}

	type assetDeclKey struct {
		exchange types.ExchangeId
		id       types.AssetId
	}
	assetByDeclKey := map[assetDeclKey]types.AssetDecl{}
	for _, a := range assets {
		assetByDeclKey[assetDeclKey{exchange: a.Exchange, id: a.Id}] = a
	}
	// Instruments may reference assets that were never declared standalone;
	// synthesize a bare declaration for them so Build stays permissive about
	// caller input shape (a common case: only instruments are configured,
	// and base/quote currencies are implied).
	for _, inst := range instruments {
		for _, assetID := range []types.AssetId{inst.BaseAsset, inst.QuoteAsset} {
			k := assetDeclKey{exchange: inst.Exchange, id: assetID}
			if _, ok := assetByDeclKey[k]; !ok {
				assetByDeclKey[k] = types.AssetDecl{Exchange: inst.Exchange, Id: assetID, Kind: types.AssetCurrency}
			}
		}
	}

	sortedAssetKeys := make([]assetDeclKey, 0, len(assetByDeclKey))
	for k := range assetByDeclKey {
		sortedAssetKeys = append(sortedAssetKeys, k)
	}
	sort.Slice(sortedAssetKeys, func(i, j int) bool {
		if sortedAssetKeys[i].exchange != sortedAssetKeys[j].exchange {
			return sortedAssetKeys[i].exchange < sortedAssetKeys[j].exchange
		}
		return sortedAssetKeys[i].id < sortedAssetKeys[j].id
	})

	for _, k := range sortedAssetKeys {
		decl := assetByDeclKey[k]
		exIdx, ok := ix.exchangeByID[decl.Exchange]
		if !ok {
			return nil, fmt.Errorf("%w: asset %q declares unknown exchange %q", ErrMissingAsset, decl.Id, decl.Exchange)
		}
		idx := types.AssetIndex(len(ix.assets))
		ix.assets = append(ix.assets, types.Asset{
			Index:    idx,
			Exchange: exIdx,
			Id:       decl.Id,
			Kind:     decl.Kind,
		})
		ix.assetByKey[assetKey{exchange: exIdx, id: decl.Id}] = idx
	}

	sortedInstruments := append([]types.InstrumentDecl(nil), instruments...)
	sort.Slice(sortedInstruments, func(i, j int) bool {
		if sortedInstruments[i].Exchange != sortedInstruments[j].Exchange {
			return sortedInstruments[i].Exchange < sortedInstruments[j].Exchange
		}
		return sortedInstruments[i].Id < sortedInstruments[j].Id
	})

	seenInst := map[instKey]bool{}
	for _, decl := range sortedInstruments {
		exIdx, ok := ix.exchangeByID[decl.Exchange]
		if !ok {
			return nil, fmt.Errorf("%w: instrument %q declares unknown exchange %q", ErrMissingAsset, decl.Id, decl.Exchange)
		}
		k := instKey{exchange: exIdx, id: decl.Id}
		if seenInst[k] {
			return nil, fmt.Errorf("%w: instrument %q on exchange %q", ErrDuplicateKey, decl.Id, decl.Exchange)
		}
		seenInst[k] = true

		baseIdx, ok := ix.assetByKey[assetKey{exchange: exIdx, id: decl.BaseAsset}]
		if !ok {
			return nil, fmt.Errorf("%w: instrument %q base asset %q", ErrMissingAsset, decl.Id, decl.BaseAsset)
		}
		quoteIdx, ok := ix.assetByKey[assetKey{exchange: exIdx, id: decl.QuoteAsset}]
		if !ok {
			return nil, fmt.Errorf("%w: instrument %q quote asset %q", ErrMissingAsset, decl.Id, decl.QuoteAsset)
		}
		if base := ix.assets[baseIdx]; base.Exchange != exIdx {
			return nil, fmt.Errorf("%w: instrument %q base asset %q belongs to a different exchange", ErrExchangeMismatch, decl.Id, decl.BaseAsset)
		}
		if quote := ix.assets[quoteIdx]; quote.Exchange != exIdx {
			return nil, fmt.Errorf("%w: instrument %q quote asset %q belongs to a different exchange", ErrExchangeMismatch, decl.Id, decl.QuoteAsset)
		}

		idx := types.InstrumentIndex(len(ix.instruments))
		inst := types.Instrument{
			Index:        idx,
			Exchange:     exIdx,
			Id:           decl.Id,
			BaseAsset:    baseIdx,
			QuoteAsset:   quoteIdx,
			QuoteRole:    decl.QuoteRole,
			PriceTick:    decl.PriceTick,
			QuantityStep: decl.QuantityStep,
			MinNotional:  decl.MinNotional,
			Multiplier:   decl.Multiplier,
			ExpiryUnix:   decl.ExpiryUnix,
			OptionKind:   decl.OptionKind,
			ExerciseStyle: decl.ExerciseStyle,
			StrikePrice:   decl.StrikePrice,
		}
		ix.instruments = append(ix.instruments, inst)
		ix.instByKey[k] = idx
	}

	// Second pass: resolve underlying references now that every instrument
	// has an index. Done after the main loop since a future/option's
	// underlying may be declared later in the same sorted batch.
	for i := range ix.instruments {
		decl := sortedInstruments[i]
		if decl.Underlying == "" {
			continue
		}
		underIdx, ok := ix.instByKey[instKey{exchange: ix.instruments[i].Exchange, id: decl.Underlying}]
		if !ok {
			return nil, fmt.Errorf("%w: instrument %q underlying %q", ErrMissingAsset, decl.Id, decl.Underlying)
		}
		ix.instruments[i].Underlying = underIdx
		ix.instruments[i].HasUnderlying = true
	}

	return ix, nil
}
