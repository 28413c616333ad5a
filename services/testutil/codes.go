package testutil

import (
	"context"
	"fmt"
	"sync"
)

// Codes hands out sequential display codes without Redis. Err, when set, is
// returned instead of a code.
type Codes struct {
	mu  sync.Mutex
	n   int
	Err error
}

func (c *Codes) NextReportCode(ctx context.Context) (string, error) {
	return c.next("RPT")
}

func (c *Codes) NextDonationCode(ctx context.Context) (string, error) {
	return c.next("DON")
}

func (c *Codes) next(prefix string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	c.n++
	return fmt.Sprintf("%s-240401-%03d", prefix, c.n), nil
}
