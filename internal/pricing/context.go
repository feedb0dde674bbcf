package pricing

import "github.com/shopspring/decimal"

// Context binds a cart subtotal to the active strategy. The owner must call
// SetSubtotal after every cart mutation; Context never observes the cart.
type Context struct {
	subtotal decimal.Decimal
	strategy Strategy
}

func NewContext(strategy Strategy) *Context {
	if strategy == nil {
		strategy = NoDiscount
	}
	return &Context{subtotal: decimal.Zero, strategy: strategy}
}

// SetStrategy swaps the strategy. Totals are recomputed on the next CalculateTotal.
func (c *Context) SetStrategy(strategy Strategy) {
	if strategy == nil {
		strategy = NoDiscount
	}
	c.strategy = strategy
}

func (c *Context) Strategy() Strategy { return c.strategy }

func (c *Context) SetSubtotal(subtotal decimal.Decimal) {
	c.subtotal = subtotal
}

func (c *Context) Subtotal() decimal.Decimal { return c.subtotal }

func (c *Context) CalculateTotal() Result {
	return c.strategy.Calculate(c.subtotal)
}
