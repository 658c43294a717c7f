package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/executor"
	"github.com/calebmo/candlebot/internal/notify"
	"github.com/calebmo/candlebot/internal/risk"
	"github.com/calebmo/candlebot/internal/storage"
)

const (
	// initialSyncWindow is the deal lookback on the first reconcile
	// after start, so fills from a short outage are still picked up.
	initialSyncWindow = 6 * time.Hour
	// syncOverlap re-reads a slice of the previous window; the deal
	// ticket unique index makes the overlap idempotent.
	syncOverlap = 5 * time.Minute
)

// Reconciler mirrors broker deals into the trades table and feeds
// realized bot results back into the risk manager. Broker history is
// the source of truth: SL/TP hits and manual closes happen without the
// bot placing an order.
type Reconciler struct {
	broker   broker.Broker
	store    storage.Interface
	risk     *risk.Manager
	notifier notify.Notifier
	magic    int64
	log      *logrus.Logger

	lastSync time.Time
	now      func() time.Time
}

// NewReconciler builds a reconciler for one bot magic number.
func NewReconciler(b broker.Broker, store storage.Interface, rm *risk.Manager, n notify.Notifier, magic int64, log *logrus.Logger) *Reconciler {
	return &Reconciler{broker: b, store: store, risk: rm, notifier: n, magic: magic, log: log, now: time.Now}
}

// SetClock overrides the window clock, for tests.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Run fetches the deal window, persists new rows, and applies closed
// bot deals to the loss streak. Returns the newly inserted rows.
func (r *Reconciler) Run() ([]storage.TradeRow, error) {
	now := r.now()
	from := now.Add(-initialSyncWindow)
	if !r.lastSync.IsZero() {
		from = r.lastSync.Add(-syncOverlap)
	}
	deals, err := r.broker.ListDeals(from, now)
	if err != nil {
		return nil, err
	}
	r.lastSync = now

	rows := make([]storage.TradeRow, 0, len(deals))
	for _, d := range deals {
		rows = append(rows, dealToRow(d))
	}
	inserted, err := r.store.InsertTrades(rows)
	if err != nil {
		return nil, err
	}

	for _, row := range inserted {
		if row.Entry != broker.DealEntryOut || row.Magic != r.magic {
			continue
		}
		r.risk.OnClosedDeal(row.Profit)
		r.log.WithFields(logrus.Fields{
			"ticket": row.DealTicket,
			"symbol": row.Symbol,
			"profit": row.Profit,
		}).Info("bot position closed")
		// Closes the executor dispatched itself were already announced;
		// only SL/TP hits and manual closes are news.
		if !strings.HasPrefix(row.Comment, executor.CommentPrefix) {
			key, msg := notify.TradeClosed(row.Symbol, row.Side, row.Volume, row.Price, row.Profit)
			r.notifier.Send(key, msg)
		}
	}
	return inserted, nil
}

func dealToRow(d broker.Deal) storage.TradeRow {
	raw, _ := json.Marshal(d)
	return storage.TradeRow{
		DealTicket:  d.Ticket,
		PositionID:  d.PositionID,
		OrderTicket: d.OrderTicket,
		TimeUTC:     d.Time.UTC(),
		Symbol:      d.Symbol,
		Side:        string(d.Side),
		Entry:       d.Entry,
		Volume:      d.Volume,
		Price:       d.Price,
		Profit:      d.Profit,
		Commission:  d.Commission,
		Swap:        d.Swap,
		Magic:       d.Magic,
		Comment:     d.Comment,
		RawJSON:     string(raw),
	}
}
