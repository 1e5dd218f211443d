package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"Bootcamp/internal/chain"
)

// Chain is a scripted ChainClient. GrantErrs are consumed one per GrantKey
// call; once exhausted grants succeed.
type Chain struct {
	mu sync.Mutex

	Receipts  map[string]*types.Receipt
	Mempool   map[string]bool
	ValidKeys map[string]bool
	GrantErrs []error
	// AlwaysFail makes every GrantKey call fail.
	AlwaysFail error
	// LandOnError issues the key even when a GrantErrs entry fails the call,
	// as when the receipt wait times out after broadcast.
	LandOnError bool
	HasKeyErr   error
	ReceiptErr  error

	GrantCalls  int
	HasKeyCalls int
	Grants      []chain.GrantKeyParams
}

func NewChain() *Chain {
	return &Chain{
		Receipts:  map[string]*types.Receipt{},
		Mempool:   map[string]bool{},
		ValidKeys: map[string]bool{},
	}
}

func keyOf(lock, wallet string) string {
	return strings.ToLower(lock) + "/" + strings.ToLower(wallet)
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReceiptErr != nil {
		return nil, c.ReceiptErr
	}
	rc, ok := c.Receipts[strings.ToLower(hash)]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return rc, nil
}

func (c *Chain) TransactionByHash(ctx context.Context, hash string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Mempool[strings.ToLower(hash)] {
		return true, true, nil
	}
	_, mined := c.Receipts[strings.ToLower(hash)]
	return mined, false, nil
}

func (c *Chain) HasValidKey(ctx context.Context, lockAddress, wallet string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HasKeyCalls++
	if c.HasKeyErr != nil {
		return false, c.HasKeyErr
	}
	return c.ValidKeys[keyOf(lockAddress, wallet)], nil
}

func (c *Chain) GrantKey(ctx context.Context, p chain.GrantKeyParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GrantCalls++
	c.Grants = append(c.Grants, p)
	if c.AlwaysFail != nil {
		return "", c.AlwaysFail
	}
	if len(c.GrantErrs) > 0 {
		err := c.GrantErrs[0]
		c.GrantErrs = c.GrantErrs[1:]
		if err != nil {
			if c.LandOnError {
				c.ValidKeys[keyOf(p.LockAddress, p.Recipient)] = true
				return fmt.Sprintf("0xgrant%d", c.GrantCalls), err
			}
			return "", err
		}
	}
	c.ValidKeys[keyOf(p.LockAddress, p.Recipient)] = true
	return fmt.Sprintf("0xgrant%d", c.GrantCalls), nil
}

func (c *Chain) GrantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.GrantCalls
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Err    error
	Events []Published
}

type Published struct {
	Topic   string
	Payload any
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, Published{Topic: topic, Payload: payload})
	return nil
}

func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Topic)
	}
	return out
}

// Locker is an in-process Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
	Err  error
}

func NewLocker() *Locker {
	return &Locker{held: map[string]bool{}}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, false, l.Err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

// Hold takes key without releasing it.
func (l *Locker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}
