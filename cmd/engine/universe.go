package main

import (
	"encoding/json"
	"fmt"
	"os"

	"tradingcore/pkg/types"
)

// universeDocument is the on-disk declaration of the tradable instrument
// universe: every exchange, asset, and instrument the engine indexes at
// startup. It has no counterpart in the teacher, which hardcoded one
// binary market's YES/NO pair; this engine is parameterized over an
// arbitrary exchange/asset/instrument set, so that set has to come from
// somewhere outside the compiled binary.
type universeDocument struct {
	Exchanges   []types.ExchangeDecl   `json:"exchanges"`
	Assets      []types.AssetDecl      `json:"assets"`
	Instruments []types.InstrumentDecl `json:"instruments"`
}

// loadUniverse reads a universeDocument from path. types.InstrumentDecl's
// fixedpoint.Decimal fields decode through Decimal's own UnmarshalJSON, so
// no separate string-to-Decimal conversion step is needed here.
func loadUniverse(path string) (exchanges []types.ExchangeDecl, assets []types.AssetDecl, instruments []types.InstrumentDecl, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read universe file %s: %w", path, err)
	}
	var doc universeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("decode universe file %s: %w", path, err)
	}
	return doc.Exchanges, doc.Assets, doc.Instruments, nil
}
