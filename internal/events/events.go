// Package events defines the normalized market event stream the core
// consumes (spec.md §3, §6). Concrete exchange connectors are out of
// scope — adapters construct these events and push them onto the ingress
// queue; the core never talks to a wire protocol directly.
package events

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/pkg/types"
)

// Kind tags the MarketEvent union.
type Kind string

const (
	KindOrderBook      Kind = "ORDER_BOOK"
	KindTrade          Kind = "TRADE"
	KindPriceTick      Kind = "PRICE_TICK"
	KindMarketResolved Kind = "MARKET_RESOLVED"
)

// MarketEvent is the normalized tagged union adapters produce. Book
// snapshots are out-of-scope for incremental updates (spec.md §3: "Book
// events are snapshots; incremental updates out of scope").
type MarketEvent interface {
	Kind() Kind
	Market() types.MarketId
	Time() time.Time
}

// PriceLevel is a single bid or ask level.
type PriceLevel struct {
	Price types.Price
	Size  types.Size
}

// OrderBook is a full order-book snapshot for a market. Bids must be sorted
// descending by price, Asks ascending — callers use NewOrderBook to enforce
// this rather than constructing the struct directly.
type OrderBook struct {
	MarketId types.MarketId
	Bids     []PriceLevel
	Asks     []PriceLevel
	Ts       time.Time
}

func (o OrderBook) Kind() Kind            { return KindOrderBook }
func (o OrderBook) Market() types.MarketId { return o.MarketId }
func (o OrderBook) Time() time.Time        { return o.Ts }

// NewOrderBook validates and wraps a snapshot's bid/ask sides.
func NewOrderBook(marketID types.MarketId, bids, asks []PriceLevel, ts time.Time) (OrderBook, error) {
	for i := 1; i < len(bids); i++ {
		if bids[i].Price.GreaterThan(bids[i-1].Price.Decimal) {
			return OrderBook{}, fmt.Errorf("bids not sorted descending at index %d", i)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price.LessThan(asks[i-1].Price.Decimal) {
			return OrderBook{}, fmt.Errorf("asks not sorted ascending at index %d", i)
		}
	}
	return OrderBook{MarketId: marketID, Bids: bids, Asks: asks, Ts: ts}, nil
}

func (o OrderBook) BestBid() (PriceLevel, bool) {
	if len(o.Bids) == 0 {
		return PriceLevel{}, false
	}
	return o.Bids[0], true
}

func (o OrderBook) BestAsk() (PriceLevel, bool) {
	if len(o.Asks) == 0 {
		return PriceLevel{}, false
	}
	return o.Asks[0], true
}

// Mid returns (bestBid+bestAsk)/2, false if either side is empty.
func (o OrderBook) Mid() (decimal.Decimal, bool) {
	bid, ok1 := o.BestBid()
	ask, ok2 := o.BestAsk()
	if !ok1 || !ok2 {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price.Decimal).Div(decimal.NewFromInt(2)), true
}

// Trade is a single executed trade on the market (ours or the tape).
type Trade struct {
	Id        string
	MarketId  types.MarketId
	OutcomeId types.OutcomeId
	Side      types.Side
	Price     types.Price
	Size      types.Size
	Ts        time.Time
}

func (t Trade) Kind() Kind             { return KindTrade }
func (t Trade) Market() types.MarketId { return t.MarketId }
func (t Trade) Time() time.Time        { return t.Ts }

// NewTrade fails closed if side is not exactly "BUY"/"SELL" (spec.md §9c) —
// the adapter must never let an unrecognized side silently default to Buy.
func NewTrade(id string, marketID types.MarketId, outcomeID types.OutcomeId, side string, price types.Price, size types.Size, ts time.Time) (Trade, error) {
	s, err := types.ParseSide(side)
	if err != nil {
		return Trade{}, fmt.Errorf("new trade %s: %w", id, err)
	}
	return Trade{Id: id, MarketId: marketID, OutcomeId: outcomeID, Side: s, Price: price, Size: size, Ts: ts}, nil
}

// PriceTick is a lightweight last-trade-price update, coalescable under
// ingress backpressure (spec.md §5) unlike OrderBook/Trade.
type PriceTick struct {
	MarketId  types.MarketId
	OutcomeId types.OutcomeId
	Price     types.Price
	Ts        time.Time
}

func (p PriceTick) Kind() Kind             { return KindPriceTick }
func (p PriceTick) Market() types.MarketId { return p.MarketId }
func (p PriceTick) Time() time.Time        { return p.Ts }

// CoalesceKey groups PriceTicks for backpressure coalescing by
// (market, outcome) as required by spec.md §5.
func (p PriceTick) CoalesceKey() string {
	return p.MarketId.String() + "|" + string(p.OutcomeId)
}

// MarketResolved announces a market's winning outcome.
type MarketResolved struct {
	MarketId        types.MarketId
	WinningOutcomeId types.OutcomeId
	Ts              time.Time
}

func (m MarketResolved) Kind() Kind             { return KindMarketResolved }
func (m MarketResolved) Market() types.MarketId { return m.MarketId }
func (m MarketResolved) Time() time.Time        { return m.Ts }
