package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker is the capability set every adapter must provide.
type Broker interface {
	// Symbol catalog
	DiscoverSymbols() ([]SymbolMeta, error)
	SymbolInfo(symbol string) (*SymbolMeta, error)

	// Market data
	Candles(symbol string, tf Timeframe, n int) ([]Candle, error)
	Quote(symbol string) (*Quote, error)

	// Account state
	AccountInfo() (*AccountInfo, error)
	ListPositions() ([]Position, error)
	ListDeals(from, to time.Time) ([]Deal, error)

	// Trading
	PlaceOrder(req OrderRequest) (*OrderResult, error)
	// ModifyPosition adjusts SL/TP on an open position. Defined for
	// stop-management extensions; the control loop does not call it.
	ModifyPosition(positionID int64, sl, tp float64) (bool, error)

	// Shutdown releases the connection. Idempotent.
	Shutdown() error
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure the wrapper implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

func (c *CircuitBreakerBroker) DiscoverSymbols() ([]SymbolMeta, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]SymbolMeta, error) {
		return b.DiscoverSymbols()
	})
}

func (c *CircuitBreakerBroker) SymbolInfo(symbol string) (*SymbolMeta, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*SymbolMeta, error) {
		return b.SymbolInfo(symbol)
	})
}

func (c *CircuitBreakerBroker) Candles(symbol string, tf Timeframe, n int) ([]Candle, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Candle, error) {
		return b.Candles(symbol, tf, n)
	})
}

func (c *CircuitBreakerBroker) Quote(symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Quote, error) {
		return b.Quote(symbol)
	})
}

func (c *CircuitBreakerBroker) AccountInfo() (*AccountInfo, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*AccountInfo, error) {
		return b.AccountInfo()
	})
}

func (c *CircuitBreakerBroker) ListPositions() ([]Position, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Position, error) {
		return b.ListPositions()
	})
}

func (c *CircuitBreakerBroker) ListDeals(from, to time.Time) ([]Deal, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Deal, error) {
		return b.ListDeals(from, to)
	})
}

func (c *CircuitBreakerBroker) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResult, error) {
		return b.PlaceOrder(req)
	})
}

func (c *CircuitBreakerBroker) ModifyPosition(positionID int64, sl, tp float64) (bool, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (bool, error) {
		return b.ModifyPosition(positionID, sl, tp)
	})
}

func (c *CircuitBreakerBroker) Shutdown() error {
	return c.broker.Shutdown()
}
