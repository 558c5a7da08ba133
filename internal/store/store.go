// Package store provides crash-safe position and order persistence backed
// by SQLite, so a restarted engine can rebuild its book without replaying
// the full audit history from scratch.
//
// The teacher persists one JSON file per market with atomic
// write-to-tmp-then-rename semantics. This package keeps that same
// crash-safety guarantee but gets it from SQLite transactions instead,
// since the engine now tracks many instruments across many exchanges in
// one shared book rather than one independent file per market.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// Store persists positions and orders to a SQLite database. Operations are
// mutex-protected: each method holds the mutex for its own duration, so no
// two Store operations run at once. A save followed by a load is two
// separate operations, and another goroutine's save can run between them.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or opens) a store backed by the SQLite database at path,
// creating its parent directory and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			instrument             INTEGER PRIMARY KEY,
			quantity               TEXT NOT NULL,
			avg_entry_price        TEXT NOT NULL,
			realized_pnl           TEXT NOT NULL,
			unrealized_pnl         TEXT NOT NULL,
			last_mark_price        TEXT NOT NULL,
			updated_at_engine_time INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS orders (
			exchange      INTEGER NOT NULL,
			instrument    INTEGER NOT NULL,
			strategy      TEXT NOT NULL,
			client_id     TEXT NOT NULL,
			venue_id      TEXT NOT NULL,
			side          TEXT NOT NULL,
			kind          TEXT NOT NULL,
			tif           TEXT NOT NULL,
			price         TEXT NOT NULL,
			quantity      TEXT NOT NULL,
			status        TEXT NOT NULL,
			filled_qty    TEXT NOT NULL,
			avg_fill_px   TEXT NOT NULL,
			reject_reason TEXT NOT NULL,
			requested_at  INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			PRIMARY KEY (exchange, instrument, strategy, client_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePosition upserts pos. A flat position deletes the row instead, so
// LoadPositions never returns stale zero-quantity rows for an instrument
// the book has fully closed out.
func (s *Store) SavePosition(pos types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos.Flat() {
		if _, err := s.db.Exec(`DELETE FROM positions WHERE instrument = ?`, int(pos.Instrument)); err != nil {
			return fmt.Errorf("store: delete flat position %d: %w", pos.Instrument, err)
		}
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO positions (instrument, quantity, avg_entry_price, realized_pnl, unrealized_pnl, last_mark_price, updated_at_engine_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument) DO UPDATE SET
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			last_mark_price = excluded.last_mark_price,
			updated_at_engine_time = excluded.updated_at_engine_time
	`,
		int(pos.Instrument), pos.Quantity.String(), pos.AvgEntryPrice.String(),
		pos.RealizedPnL.String(), pos.UnrealizedPnL.String(), pos.LastMarkPrice.String(),
		pos.UpdatedAtEngineTime,
	)
	if err != nil {
		return fmt.Errorf("store: save position %d: %w", pos.Instrument, err)
	}
	return nil
}

// LoadPositions restores every persisted position, for book reconstruction
// on startup.
func (s *Store) LoadPositions() ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT instrument, quantity, avg_entry_price, realized_pnl, unrealized_pnl, last_mark_price, updated_at_engine_time
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var (
			instrument                                                        int
			quantity, avgEntryPrice, realizedPnL, unrealizedPnL, lastMarkPrice string
			updatedAt                                                         int64
		)
		if err := rows.Scan(&instrument, &quantity, &avgEntryPrice, &realizedPnL, &unrealizedPnL, &lastMarkPrice, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan position row: %w", err)
		}
		pos, err := decodePosition(instrument, quantity, avgEntryPrice, realizedPnL, unrealizedPnL, lastMarkPrice, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func decodePosition(instrument int, quantity, avgEntryPrice, realizedPnL, unrealizedPnL, lastMarkPrice string, updatedAt int64) (types.Position, error) {
	qty, err := fixedpoint.Parse(quantity)
	if err != nil {
		return types.Position{}, fmt.Errorf("store: decode position %d quantity: %w", instrument, err)
	}
	avg, err := fixedpoint.Parse(avgEntryPrice)
	if err != nil {
		return types.Position{}, fmt.Errorf("store: decode position %d avg_entry_price: %w", instrument, err)
	}
	realized, err := fixedpoint.Parse(realizedPnL)
	if err != nil {
		return types.Position{}, fmt.Errorf("store: decode position %d realized_pnl: %w", instrument, err)
	}
	unrealized, err := fixedpoint.Parse(unrealizedPnL)
	if err != nil {
		return types.Position{}, fmt.Errorf("store: decode position %d unrealized_pnl: %w", instrument, err)
	}
	mark, err := fixedpoint.Parse(lastMarkPrice)
	if err != nil {
		return types.Position{}, fmt.Errorf("store: decode position %d last_mark_price: %w", instrument, err)
	}
	return types.Position{
		Instrument:          types.InstrumentIndex(instrument),
		Quantity:            qty,
		AvgEntryPrice:       avg,
		RealizedPnL:         realized,
		UnrealizedPnL:       unrealized,
		LastMarkPrice:       mark,
		UpdatedAtEngineTime: updatedAt,
	}, nil
}

// orderTIF is the JSON encoding of types.TimeInForce used for the tif
// column, since SQLite has no native composite-type support.
type orderTIF struct {
	Kind     types.TIFKind `json:"kind"`
	PostOnly bool          `json:"post_only,omitempty"`
	Expiry   int64         `json:"expiry,omitempty"`
}

// SaveOrder upserts order. A terminal order is kept, not deleted — unlike
// a flat position, a terminal order's row is still useful on restart, to
// recognize a late or duplicate Ack/Reject for an order the engine already
// considers closed.
func (s *Store) SaveOrder(order types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tif, err := json.Marshal(orderTIF{Kind: order.TIF.Kind, PostOnly: order.TIF.PostOnly, Expiry: order.TIF.Expiry})
	if err != nil {
		return fmt.Errorf("store: encode tif for order %+v: %w", order.Key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO orders (exchange, instrument, strategy, client_id, venue_id, side, kind, tif, price, quantity, status, filled_qty, avg_fill_px, reject_reason, requested_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange, instrument, strategy, client_id) DO UPDATE SET
			venue_id = excluded.venue_id,
			status = excluded.status,
			filled_qty = excluded.filled_qty,
			avg_fill_px = excluded.avg_fill_px,
			reject_reason = excluded.reject_reason,
			updated_at = excluded.updated_at
	`,
		int(order.Key.Exchange), int(order.Key.Instrument), string(order.Key.Strategy), string(order.Key.ClientId),
		string(order.VenueId), string(order.Side), string(order.Kind), string(tif),
		order.Price.String(), order.Quantity.String(), string(order.Status),
		order.FilledQty.String(), order.AvgFillPx.String(), order.RejectReason,
		order.RequestedAtEngineTime, order.UpdatedAtEngineTime,
	)
	if err != nil {
		return fmt.Errorf("store: save order %+v: %w", order.Key, err)
	}
	return nil
}

// LoadOpenOrders restores every persisted order whose status was not
// terminal at last save, for book reconstruction on startup.
func (s *Store) LoadOpenOrders() ([]types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT exchange, instrument, strategy, client_id, venue_id, side, kind, tif, price, quantity, status, filled_qty, avg_fill_px, reject_reason, requested_at, updated_at
		FROM orders
		WHERE status NOT IN (?, ?, ?, ?)
	`, string(types.StatusCancelled), string(types.StatusFullyFilled), string(types.StatusRejected), string(types.StatusExpired))
	if err != nil {
		return nil, fmt.Errorf("store: load open orders: %w", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var (
		exchange, instrument                              int
		strategyID, clientID, venueID, side, kind, tifJSON string
		price, quantity, status, filledQty, avgFillPx      string
		rejectReason                                       string
		requestedAt, updatedAt                             int64
	)
	if err := row.Scan(&exchange, &instrument, &strategyID, &clientID, &venueID, &side, &kind, &tifJSON,
		&price, &quantity, &status, &filledQty, &avgFillPx, &rejectReason, &requestedAt, &updatedAt); err != nil {
		return types.Order{}, fmt.Errorf("store: scan order row: %w", err)
	}

	var tif orderTIF
	if err := json.Unmarshal([]byte(tifJSON), &tif); err != nil {
		return types.Order{}, fmt.Errorf("store: decode tif: %w", err)
	}

	priceDec, err := fixedpoint.Parse(price)
	if err != nil {
		return types.Order{}, fmt.Errorf("store: decode order price: %w", err)
	}
	quantityDec, err := fixedpoint.Parse(quantity)
	if err != nil {
		return types.Order{}, fmt.Errorf("store: decode order quantity: %w", err)
	}
	filledQtyDec, err := fixedpoint.Parse(filledQty)
	if err != nil {
		return types.Order{}, fmt.Errorf("store: decode order filled_qty: %w", err)
	}
	avgFillPxDec, err := fixedpoint.Parse(avgFillPx)
	if err != nil {
		return types.Order{}, fmt.Errorf("store: decode order avg_fill_px: %w", err)
	}

	return types.Order{
		Key: types.OrderKey{
			Exchange:   types.ExchangeIndex(exchange),
			Instrument: types.InstrumentIndex(instrument),
			Strategy:   types.StrategyId(strategyID),
			ClientId:   types.ClientOrderId(clientID),
		},
		Instrument:            types.InstrumentIndex(instrument),
		Side:                  types.Side(side),
		Kind:                  types.OrderKind(kind),
		TIF:                   types.TimeInForce{Kind: tif.Kind, PostOnly: tif.PostOnly, Expiry: tif.Expiry},
		Price:                 priceDec,
		Quantity:              quantityDec,
		Status:                types.OrderStatus(status),
		VenueId:               types.VenueOrderId(venueID),
		FilledQty:             filledQtyDec,
		AvgFillPx:             avgFillPxDec,
		RejectReason:          rejectReason,
		RequestedAtEngineTime: requestedAt,
		UpdatedAtEngineTime:   updatedAt,
	}, nil
}
