package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-spa-checkout/internal/apperrors"
	"github.com/imrishuroy/go-spa-checkout/internal/logger"
)

var (
	ErrAlreadyInCart     = apperrors.New(apperrors.CodeConflict, "already in cart")
	ErrItemNotFound      = apperrors.New(apperrors.CodeNotFound, "item not in cart")
	ErrInvalidItem       = apperrors.New(apperrors.CodeValidation, "invalid cart item")
	ErrInvalidQuantity   = apperrors.New(apperrors.CodeValidation, "quantity must not be negative")
	ErrInsufficientStock = apperrors.New(apperrors.CodeValidation, "quantity exceeds available stock")
)

type line interface {
	itemID() ItemID
	lineTotal() decimal.Decimal
	valid() bool
}

func (s ServiceItem) valid() bool {
	return s.ID != "" && !s.Price.IsNegative()
}

func (p ProductItem) valid() bool {
	return p.ID != "" && !p.Price.IsNegative() && p.Quantity >= 1 && p.Stock >= 0
}

// list holds the items of one cart and mirrors them into storage. Mutations
// build the next slice, persist it, and only then replace the in-memory state.
type list[T line] struct {
	key     string
	storage Storage
	items   []T
}

func load[T line](ctx context.Context, storage Storage, key string, log *logger.Logger) list[T] {
	l := list[T]{key: key, storage: storage, items: []T{}}
	if log == nil {
		log = logger.Nop()
	}

	raw, err := storage.Load(ctx, key)
	if err != nil {
		log.Warn(ctx, "cart storage unreadable, starting empty", err)
		return l
	}
	if len(raw) == 0 {
		return l
	}

	var decoded []T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Warn(ctx, "cart payload corrupt, starting empty", err)
		return l
	}

	seen := make(map[ItemID]struct{}, len(decoded))
	for _, item := range decoded {
		if !item.valid() {
			continue
		}
		if _, dup := seen[item.itemID()]; dup {
			continue
		}
		seen[item.itemID()] = struct{}{}
		l.items = append(l.items, item)
	}
	return l
}

func (l *list[T]) index(id ItemID) int {
	for i, item := range l.items {
		if item.itemID() == id {
			return i
		}
	}
	return -1
}

func (l *list[T]) commit(ctx context.Context, next []T) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := l.storage.Save(ctx, l.key, payload); err != nil {
		return fmt.Errorf("persist cart %s: %w", l.key, err)
	}
	l.items = next
	return nil
}

func (l *list[T]) persist(ctx context.Context) error {
	return l.commit(ctx, l.snapshot())
}

func (l *list[T]) remove(ctx context.Context, id ItemID) error {
	i := l.index(id)
	if i < 0 {
		return ErrItemNotFound
	}
	next := make([]T, 0, len(l.items)-1)
	next = append(next, l.items[:i]...)
	next = append(next, l.items[i+1:]...)
	return l.commit(ctx, next)
}

func (l *list[T]) clear(ctx context.Context) error {
	if err := l.storage.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("clear cart %s: %w", l.key, err)
	}
	l.items = []T{}
	return nil
}

func (l *list[T]) snapshot() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *list[T]) subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l.items {
		total = total.Add(item.lineTotal())
	}
	return total
}

// ServiceCart holds services; an id may appear at most once.
type ServiceCart struct {
	list[ServiceItem]
}

// LoadServices never fails: missing or corrupt data yields an empty cart.
func LoadServices(ctx context.Context, storage Storage, log *logger.Logger) *ServiceCart {
	return &ServiceCart{list: load[ServiceItem](ctx, storage, ServicesKey, log)}
}

func (c *ServiceCart) Add(ctx context.Context, item ServiceItem) error {
	if !item.valid() {
		return ErrInvalidItem
	}
	if c.index(item.ID) >= 0 {
		return ErrAlreadyInCart
	}
	return c.commit(ctx, append(c.snapshot(), item))
}

func (c *ServiceCart) Remove(ctx context.Context, id ItemID) error { return c.remove(ctx, id) }

// Persist rewrites the stored list with the current items.
func (c *ServiceCart) Persist(ctx context.Context) error { return c.persist(ctx) }

func (c *ServiceCart) Clear(ctx context.Context) error { return c.clear(ctx) }

func (c *ServiceCart) Items() []ServiceItem { return c.snapshot() }

func (c *ServiceCart) Len() int { return len(c.items) }

// Subtotal is the sum of service prices, recomputed on each call.
func (c *ServiceCart) Subtotal() decimal.Decimal { return c.subtotal() }

// ProductCart holds products with quantities bounded by stock.
type ProductCart struct {
	list[ProductItem]
}

func LoadProducts(ctx context.Context, storage Storage, log *logger.Logger) *ProductCart {
	return &ProductCart{list: load[ProductItem](ctx, storage, ProductsKey, log)}
}

// Add inserts a product with quantity 1 (or item.Quantity when positive);
// re-adding an existing id increments its quantity instead.
func (c *ProductCart) Add(ctx context.Context, item ProductItem) error {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if !item.valid() {
		return ErrInvalidItem
	}

	next := c.snapshot()
	if i := c.index(item.ID); i >= 0 {
		existing := next[i]
		existing.Quantity += item.Quantity
		existing.Stock = item.Stock
		if existing.Quantity > existing.Stock {
			return ErrInsufficientStock
		}
		next[i] = existing
		return c.commit(ctx, next)
	}

	if item.Quantity > item.Stock {
		return ErrInsufficientStock
	}
	return c.commit(ctx, append(next, item))
}

// SetQuantity overwrites a line's quantity. Zero removes the line.
func (c *ProductCart) SetQuantity(ctx context.Context, id ItemID, n int) error {
	if n < 0 {
		return ErrInvalidQuantity
	}
	i := c.index(id)
	if i < 0 {
		return ErrItemNotFound
	}
	if n == 0 {
		return c.remove(ctx, id)
	}
	if n > c.items[i].Stock {
		return ErrInsufficientStock
	}
	next := c.snapshot()
	next[i].Quantity = n
	return c.commit(ctx, next)
}

func (c *ProductCart) Remove(ctx context.Context, id ItemID) error { return c.remove(ctx, id) }

func (c *ProductCart) Persist(ctx context.Context) error { return c.persist(ctx) }

func (c *ProductCart) Clear(ctx context.Context) error { return c.clear(ctx) }

func (c *ProductCart) Items() []ProductItem { return c.snapshot() }

func (c *ProductCart) Len() int { return len(c.items) }

// Subtotal is the sum of price times quantity, recomputed on each call.
func (c *ProductCart) Subtotal() decimal.Decimal { return c.subtotal() }
