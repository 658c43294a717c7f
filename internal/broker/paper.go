package broker

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// PaperBroker is an in-memory broker simulation: a seedable random-walk
// price feed over a fixed symbol catalog, plus a positions/deals ledger.
// It reports a DEMO account so the executor's paper-only gate passes.
type PaperBroker struct {
	mu sync.Mutex

	seed          int64
	initialEquity float64
	spreadPoints  float64
	now           func() time.Time

	catalog []SymbolMeta
	walks   map[string]*walk
	prices  map[string]float64

	positions  map[int64]*Position
	deals      []Deal
	realized   float64
	nextTicket int64
}

// walk caches a deterministic price series per (symbol, timeframe).
type walk struct {
	rng       *rand.Rand
	tf        Timeframe
	anchor    time.Time // open time of the first cached bar
	candles   []Candle
	lastPrice float64
}

// PaperConfig configures the simulated broker.
type PaperConfig struct {
	Seed          int64
	InitialEquity float64
	SpreadPoints  float64
}

var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker builds a paper broker with the standard catalog.
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	if cfg.SpreadPoints <= 0 {
		cfg.SpreadPoints = 10
	}
	return &PaperBroker{
		seed:          cfg.Seed,
		initialEquity: cfg.InitialEquity,
		spreadPoints:  cfg.SpreadPoints,
		now:           time.Now,
		catalog:       paperCatalog(),
		walks:         make(map[string]*walk),
		prices:        make(map[string]float64),
		positions:     make(map[int64]*Position),
		nextTicket:    1000,
	}
}

// SetClock overrides the wall clock, for tests.
func (p *PaperBroker) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func paperCatalog() []SymbolMeta {
	fx := func(name string) SymbolMeta {
		return SymbolMeta{
			Name: name, Class: ClassForex, Digits: 5, Point: 0.00001,
			StopsLevel: 10, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
			TickValue: 1, TickSize: 0.00001, ContractSize: 100000, TradeAllowed: true,
		}
	}
	return []SymbolMeta{
		fx("EURUSD"), fx("GBPUSD"), fx("USDJPY"), fx("AUDUSD"), fx("USDCAD"), fx("USDCHF"),
		{
			Name: "XAUUSD", Class: ClassMetals, Digits: 2, Point: 0.01,
			StopsLevel: 30, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TickValue: 1, TickSize: 0.01, ContractSize: 100, TradeAllowed: true,
		},
		{
			Name: "XAGUSD", Class: ClassMetals, Digits: 3, Point: 0.001,
			StopsLevel: 30, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01,
			TickValue: 5, TickSize: 0.001, ContractSize: 5000, TradeAllowed: true,
		},
		{
			Name: "US500", Class: ClassIndices, Digits: 1, Point: 0.1,
			StopsLevel: 50, VolumeMin: 0.1, VolumeMax: 100, VolumeStep: 0.1,
			TickValue: 1, TickSize: 0.1, ContractSize: 10, TradeAllowed: true,
		},
		{
			Name: "DE40", Class: ClassIndices, Digits: 1, Point: 0.1,
			StopsLevel: 50, VolumeMin: 0.1, VolumeMax: 100, VolumeStep: 0.1,
			TickValue: 1, TickSize: 0.1, ContractSize: 10, TradeAllowed: true,
		},
		{
			Name: "AAPL", Class: ClassStocks, Digits: 2, Point: 0.01,
			StopsLevel: 10, VolumeMin: 1, VolumeMax: 1000, VolumeStep: 1,
			TickValue: 0.01, TickSize: 0.01, ContractSize: 1, TradeAllowed: true,
		},
		{
			Name: "MSFT", Class: ClassStocks, Digits: 2, Point: 0.01,
			StopsLevel: 10, VolumeMin: 1, VolumeMax: 1000, VolumeStep: 1,
			TickValue: 0.01, TickSize: 0.01, ContractSize: 1, TradeAllowed: true,
		},
	}
}

func (p *PaperBroker) DiscoverSymbols() ([]SymbolMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SymbolMeta, len(p.catalog))
	copy(out, p.catalog)
	return out, nil
}

func (p *PaperBroker) SymbolInfo(symbol string) (*SymbolMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.findMeta(symbol)
	if m == nil {
		return nil, NewError(KindFatal, "symbol_info", fmt.Errorf("unknown symbol %s", symbol))
	}
	cp := *m
	return &cp, nil
}

func (p *PaperBroker) findMeta(symbol string) *SymbolMeta {
	for i := range p.catalog {
		if p.catalog[i].Name == symbol {
			return &p.catalog[i]
		}
	}
	return nil
}

func basePrice(symbol string) float64 {
	switch symbol {
	case "USDJPY":
		return 150
	case "XAUUSD":
		return 2300
	case "XAGUSD":
		return 28
	case "US500":
		return 5400
	case "DE40":
		return 18500
	case "AAPL":
		return 210
	case "MSFT":
		return 430
	default:
		return 1.1
	}
}

// symbolSeed derives a per-symbol RNG seed from the configured seed.
func (p *PaperBroker) symbolSeed(symbol string, tf Timeframe) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(tf))
	return p.seed ^ int64(h.Sum64())
}

// ensureWalk extends the cached series for symbol up to the current
// open bar. The walk is generated lazily from a fixed warmup depth
// behind the first request, so repeated fetches return identical bars.
func (p *PaperBroker) ensureWalk(symbol string, tf Timeframe) *walk {
	key := symbol + "/" + string(tf)
	w, ok := p.walks[key]
	step := tf.Duration()
	nowBar := p.now().UTC().Truncate(step)
	if !ok {
		const warmupDepth = 1200
		w = &walk{
			rng:       rand.New(rand.NewSource(p.symbolSeed(symbol, tf))),
			tf:        tf,
			anchor:    nowBar.Add(-time.Duration(warmupDepth) * step),
			lastPrice: basePrice(symbol),
		}
		p.walks[key] = w
	}
	want := int(nowBar.Sub(w.anchor)/step) + 1
	for len(w.candles) < want {
		i := len(w.candles)
		open := w.lastPrice
		vol := open * 0.0015
		drift := (w.rng.Float64() - 0.5) * 2 * vol
		cls := open + drift
		hi := math.Max(open, cls) + w.rng.Float64()*vol*0.5
		lo := math.Min(open, cls) - w.rng.Float64()*vol*0.5
		w.candles = append(w.candles, Candle{
			Time:  w.anchor.Add(time.Duration(i) * step),
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: cls,
		})
		w.lastPrice = cls
	}
	p.prices[symbol] = w.lastPrice
	return w
}

func (p *PaperBroker) Candles(symbol string, tf Timeframe, n int) ([]Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findMeta(symbol) == nil {
		return nil, NewError(KindFatal, "candles", fmt.Errorf("unknown symbol %s", symbol))
	}
	w := p.ensureWalk(symbol, tf)
	cs := w.candles
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	out := make([]Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (p *PaperBroker) Quote(symbol string) (*Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, err := p.quoteLocked(symbol)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (p *PaperBroker) quoteLocked(symbol string) (*Quote, error) {
	meta := p.findMeta(symbol)
	if meta == nil {
		return nil, NewError(KindFatal, "quote", fmt.Errorf("unknown symbol %s", symbol))
	}
	mid, ok := p.prices[symbol]
	if !ok {
		mid = basePrice(symbol)
	}
	half := p.spreadPoints * meta.Point / 2
	return &Quote{
		Symbol:       symbol,
		Bid:          mid - half,
		Ask:          mid + half,
		Time:         p.now().UTC(),
		SpreadPoints: p.spreadPoints,
	}, nil
}

func (p *PaperBroker) AccountInfo() (*AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	floating := 0.0
	for _, pos := range p.positions {
		floating += p.floatingProfitLocked(pos)
	}
	equity := p.initialEquity + p.realized + floating
	return &AccountInfo{
		Login:     777001,
		Name:      "paper",
		Server:    "paper-sim",
		Currency:  "USD",
		Balance:   p.initialEquity + p.realized,
		Equity:    equity,
		TradeMode: ModeDemo,
	}, nil
}

func (p *PaperBroker) floatingProfitLocked(pos *Position) float64 {
	meta := p.findMeta(pos.Symbol)
	q, err := p.quoteLocked(pos.Symbol)
	if meta == nil || err != nil || meta.TickSize <= 0 {
		return 0
	}
	var px float64
	if pos.Side == SideLong {
		px = q.Bid
	} else {
		px = q.Ask
	}
	diff := px - pos.PriceOpen
	if pos.Side == SideShort {
		diff = -diff
	}
	return diff / meta.TickSize * meta.TickValue * pos.Volume
}

func (p *PaperBroker) ListPositions() ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		cp := *pos
		cp.Profit = p.floatingProfitLocked(pos)
		out = append(out, cp)
	}
	return out, nil
}

func (p *PaperBroker) ListDeals(from, to time.Time) ([]Deal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Deal
	for _, d := range p.deals {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *PaperBroker) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.PositionID != 0 {
		return p.closeLocked(req)
	}
	return p.openLocked(req)
}

func (p *PaperBroker) openLocked(req OrderRequest) (*OrderResult, error) {
	meta := p.findMeta(req.Symbol)
	if meta == nil {
		return nil, NewError(KindFatal, "place_order", fmt.Errorf("unknown symbol %s", req.Symbol))
	}
	if req.Side != SideLong && req.Side != SideShort {
		return nil, NewError(KindFatal, "place_order", fmt.Errorf("invalid side %q", req.Side))
	}
	if req.Volume < meta.VolumeMin || req.Volume > meta.VolumeMax {
		return &OrderResult{Success: false, Retcode: retcodeInvalidVolume, Comment: "invalid volume"}, nil
	}
	q, err := p.quoteLocked(req.Symbol)
	if err != nil {
		return nil, err
	}
	px := q.Ask
	if req.Side == SideShort {
		px = q.Bid
	}
	p.nextTicket++
	posID := p.nextTicket
	p.nextTicket++
	dealTicket := p.nextTicket

	pos := &Position{
		ID:        posID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    req.Volume,
		PriceOpen: px,
		SL:        req.SL,
		TP:        req.TP,
		Time:      p.now().UTC(),
		Magic:     req.Magic,
		Comment:   req.Comment,
	}
	p.positions[posID] = pos
	p.deals = append(p.deals, Deal{
		Ticket:      dealTicket,
		PositionID:  posID,
		OrderTicket: posID,
		Time:        pos.Time,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Entry:       DealEntryIn,
		Volume:      req.Volume,
		Price:       px,
		Magic:       req.Magic,
		Comment:     req.Comment,
	})
	return &OrderResult{
		Success:     true,
		Retcode:     retcodeDone,
		OrderTicket: posID,
		DealTicket:  dealTicket,
		PositionID:  posID,
		Price:       px,
	}, nil
}

func (p *PaperBroker) closeLocked(req OrderRequest) (*OrderResult, error) {
	pos, ok := p.positions[req.PositionID]
	if !ok {
		return &OrderResult{Success: false, Retcode: retcodePositionClosed, Comment: "position not found"}, nil
	}
	meta := p.findMeta(pos.Symbol)
	q, err := p.quoteLocked(pos.Symbol)
	if err != nil {
		return nil, err
	}
	px := q.Bid
	if pos.Side == SideShort {
		px = q.Ask
	}
	diff := px - pos.PriceOpen
	if pos.Side == SideShort {
		diff = -diff
	}
	profit := 0.0
	if meta != nil && meta.TickSize > 0 {
		profit = diff / meta.TickSize * meta.TickValue * pos.Volume
	}
	p.realized += profit
	delete(p.positions, pos.ID)

	p.nextTicket++
	dealTicket := p.nextTicket
	p.deals = append(p.deals, Deal{
		Ticket:      dealTicket,
		PositionID:  pos.ID,
		OrderTicket: dealTicket,
		Time:        p.now().UTC(),
		Symbol:      pos.Symbol,
		Side:        pos.Side.Opposite(),
		Entry:       DealEntryOut,
		Volume:      pos.Volume,
		Price:       px,
		Profit:      profit,
		Magic:       pos.Magic,
		Comment:     req.Comment,
	})
	return &OrderResult{
		Success:     true,
		Retcode:     retcodeDone,
		OrderTicket: dealTicket,
		DealTicket:  dealTicket,
		PositionID:  pos.ID,
		Price:       px,
	}, nil
}

func (p *PaperBroker) ModifyPosition(positionID int64, sl, tp float64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[positionID]
	if !ok {
		return false, nil
	}
	pos.SL = sl
	pos.TP = tp
	return true, nil
}

func (p *PaperBroker) Shutdown() error { return nil }

// Broker success/failure codes, adapter-neutral.
const (
	retcodeDone           = 10009
	retcodeInvalidVolume  = 10014
	retcodePositionClosed = 10036
)
