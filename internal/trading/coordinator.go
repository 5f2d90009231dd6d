// Package trading executes buy and sell intents against the market ledger.
// Mutations are applied optimistically and confirmed asynchronously through
// the persistence gateway; a failed settlement restores the exact
// pre-mutation snapshot.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/market"
)

// settleTimeout bounds a single gateway settlement call.
const settleTimeout = 10 * time.Second

// transactionHistoryLimit bounds the retained transaction list. Trimming
// drops the oldest entries, which are long since resolved.
const transactionHistoryLimit = 1000

// Treasury is the coordinator's view of the financial ledger: enough to
// check funds during validation and to post a confirmed trade.
type Treasury interface {
	Funds(actorID string) float64
	RecordTrade(tx domain.Transaction)
}

// Coordinator validates, applies, and settles trades. Each item id has its
// own FIFO settlement queue so two trades on one item confirm in submission
// order instead of racing their confirmation phases.
type Coordinator struct {
	ledger   *market.Ledger
	gateway  domain.PersistenceGateway
	treasury Treasury
	bus      domain.EventBus
	logger   *slog.Logger

	mu           sync.Mutex
	pending      map[string]market.Snapshot // by transaction id; cleared exactly once
	queues       map[string]chan settleJob
	transactions []domain.Transaction

	inflight sync.WaitGroup
}

type settleJob struct {
	intent domain.TradeIntent
}

// NewCoordinator creates a Coordinator over the given ledger and gateway.
func NewCoordinator(
	ledger *market.Ledger,
	gateway domain.PersistenceGateway,
	treasury Treasury,
	bus domain.EventBus,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		gateway:  gateway,
		treasury: treasury,
		bus:      bus,
		logger:   logger.With(slog.String("component", "trading")),
		pending:  make(map[string]market.Snapshot),
		queues:   make(map[string]chan settleJob),
	}
}

// Buy executes a buy intent. On success the returned transaction is in
// OPTIMISTIC state; settlement proceeds asynchronously and its outcome is
// published as a TransactionSettled or TransactionFailed event.
func (c *Coordinator) Buy(ctx context.Context, itemID string, qty int, actorID string) (domain.Transaction, error) {
	return c.execute(ctx, itemID, qty, actorID, domain.TradeBuy)
}

// Sell executes a sell intent. Same lifecycle as Buy; there is no upper
// bound on sell quantity.
func (c *Coordinator) Sell(ctx context.Context, itemID string, qty int, actorID string) (domain.Transaction, error) {
	return c.execute(ctx, itemID, qty, actorID, domain.TradeSell)
}

func (c *Coordinator) execute(ctx context.Context, itemID string, qty int, actorID string, kind domain.TradeKind) (domain.Transaction, error) {
	// Step 1: shape validation. No state is touched and no network round
	// trip happens on a validation failure.
	if qty <= 0 {
		return domain.Transaction{}, &domain.ValidationError{
			Reason: fmt.Sprintf("quantity must be positive, got %d", qty),
			Err:    domain.ErrInvalidQuantity,
		}
	}

	// Steps 2-3: validate, snapshot, and optimistically apply in one ledger
	// critical section, so a concurrent trade on the same item validates
	// against this trade's applied state rather than a shared stale read.
	// The price seen here is the price the trade settles at; a cycle update
	// mid-flight does not retroactively alter it.
	var price, total float64
	snap, _, err := c.ledger.Reserve(itemID, qty, kind, func(item domain.MarketItem) error {
		price = item.CurrentPrice
		total = price * float64(qty)
		if kind != domain.TradeBuy {
			return nil
		}
		if item.Supply < float64(qty) {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("supply %.0f below requested %d", item.Supply, qty),
				Err:    domain.ErrInsufficientSupply,
			}
		}
		if funds := c.treasury.Funds(actorID); funds < total {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("funds %.2f below cost %.2f", funds, total),
				Err:    domain.ErrInsufficientFunds,
			}
		}
		return nil
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return domain.Transaction{}, err
		}
		if errors.Is(err, domain.ErrItemNotFound) {
			return domain.Transaction{}, &domain.ValidationError{
				Reason: fmt.Sprintf("unknown item %q", itemID),
				Err:    domain.ErrItemNotFound,
			}
		}
		return domain.Transaction{}, fmt.Errorf("trading: reserve %s: %w", itemID, err)
	}

	tx := domain.Transaction{
		ID:           uuid.New().String(),
		ItemID:       itemID,
		Kind:         kind,
		Quantity:     qty,
		PricePerUnit: price,
		TotalPrice:   total,
		ActorID:      actorID,
		Timestamp:    time.Now().UTC(),
		State:        domain.TxOptimistic,
	}

	c.mu.Lock()
	c.transactions = append(c.transactions, tx)
	if len(c.transactions) > transactionHistoryLimit {
		c.transactions = c.transactions[len(c.transactions)-transactionHistoryLimit:]
	}
	c.pending[tx.ID] = snap
	queue := c.itemQueue(itemID)
	c.mu.Unlock()

	if err := c.bus.Publish(ctx, &domain.TransactionPending{Transaction: tx}); err != nil {
		c.logger.WarnContext(ctx, "publish pending failed",
			slog.String("tx_id", tx.ID),
			slog.String("error", err.Error()),
		)
	}

	// Step 4: hand off to the item's settlement queue.
	c.inflight.Add(1)
	queue <- settleJob{intent: domain.TradeIntent{
		TransactionID: tx.ID,
		ItemID:        itemID,
		Quantity:      qty,
		Kind:          kind,
		ActorID:       actorID,
		PricePerUnit:  price,
	}}

	return tx, nil
}

// itemQueue returns the settlement queue for an item, starting its worker
// on first use. Callers must hold c.mu.
func (c *Coordinator) itemQueue(itemID string) chan settleJob {
	queue, ok := c.queues[itemID]
	if !ok {
		queue = make(chan settleJob, 64)
		c.queues[itemID] = queue
		go c.settleLoop(queue)
	}
	return queue
}

// settleLoop drains one item's settlement queue in FIFO order.
func (c *Coordinator) settleLoop(queue chan settleJob) {
	for job := range queue {
		c.settle(job.intent)
		c.inflight.Done()
	}
}

// settle confirms one trade with the gateway and resolves the pending
// registry entry.
func (c *Coordinator) settle(intent domain.TradeIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	confirmed, err := c.gateway.SettleTrade(ctx, intent)
	if err != nil {
		c.rollback(ctx, intent, err)
		return
	}
	c.confirm(ctx, intent, confirmed)
}

// confirm replaces the OPTIMISTIC record with the gateway's CONFIRMED one.
// The net ledger effect is unchanged; only the record and cash move.
func (c *Coordinator) confirm(ctx context.Context, intent domain.TradeIntent, confirmed domain.Transaction) {
	c.mu.Lock()
	if _, ok := c.pending[intent.TransactionID]; !ok {
		// Already resolved; resolution is idempotent.
		c.mu.Unlock()
		return
	}
	delete(c.pending, intent.TransactionID)

	confirmed.State = domain.TxConfirmed
	for i := range c.transactions {
		if c.transactions[i].ID == intent.TransactionID {
			c.transactions[i] = confirmed
			break
		}
	}
	c.mu.Unlock()

	delta := confirmed.TotalPrice
	if confirmed.Kind == domain.TradeBuy {
		delta = -delta
	}
	if err := c.gateway.AdjustActorCash(ctx, confirmed.ActorID, delta); err != nil {
		// Cash durability lags; the ledger below remains authoritative for
		// gameplay. Logged for reconciliation.
		c.logger.WarnContext(ctx, "adjust actor cash failed",
			slog.String("tx_id", confirmed.ID),
			slog.String("error", err.Error()),
		)
	}
	c.treasury.RecordTrade(confirmed)

	if err := c.bus.Publish(ctx, &domain.TransactionSettled{Transaction: confirmed}); err != nil {
		c.logger.WarnContext(ctx, "publish settled failed",
			slog.String("tx_id", confirmed.ID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.InfoContext(ctx, "trade settled",
		slog.String("tx_id", confirmed.ID),
		slog.String("item_id", confirmed.ItemID),
		slog.String("kind", string(confirmed.Kind)),
		slog.Int("quantity", confirmed.Quantity),
		slog.Float64("total", confirmed.TotalPrice),
	)
}

// rollback restores the snapshot taken before the optimistic apply and
// discards the OPTIMISTIC record.
func (c *Coordinator) rollback(ctx context.Context, intent domain.TradeIntent, cause error) {
	c.mu.Lock()
	snap, ok := c.pending[intent.TransactionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, intent.TransactionID)

	var failed domain.Transaction
	for i := range c.transactions {
		if c.transactions[i].ID == intent.TransactionID {
			failed = c.transactions[i]
			failed.State = domain.TxRolledBack
			c.transactions = append(c.transactions[:i], c.transactions[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.ledger.Restore(snap)

	reason := "settlement rejected by gateway"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "settlement timed out"
	} else if errors.Is(cause, domain.ErrPriceOutOfBand) {
		reason = "settlement price outside the gateway's sanity band"
	}

	if err := c.bus.Publish(ctx, &domain.TransactionFailed{Transaction: failed, Reason: reason}); err != nil {
		c.logger.WarnContext(ctx, "publish failure failed",
			slog.String("tx_id", intent.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.WarnContext(ctx, "trade rolled back",
		slog.String("tx_id", intent.TransactionID),
		slog.String("item_id", intent.ItemID),
		slog.String("reason", reason),
		slog.String("error", cause.Error()),
	)
}

// Transactions returns the most recent transactions, newest last, up to
// limit (0 means all retained).
func (c *Coordinator) Transactions(limit int) []domain.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.transactions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Transaction, n)
	copy(out, c.transactions[len(c.transactions)-n:])
	return out
}

// PendingCount reports unresolved optimistic trades.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until every enqueued settlement has resolved. Used in tests
// and during shutdown.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}
