package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ItemID identifies a catalog entry. Older carts stored numeric ids, so both
// JSON numbers and strings decode; ids are always written back as strings.
type ItemID string

func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("cart: item id is required")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cart: item id: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

func (id ItemID) String() string { return string(id) }

// ServiceItem is a bookable treatment. Services are unique per cart and never
// mutated in place.
type ServiceItem struct {
	ID       ItemID          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Duration *int            `json:"duration,omitempty"`
	IsGroup  bool            `json:"isGroup"`
}

func (s ServiceItem) itemID() ItemID { return s.ID }

func (s ServiceItem) lineTotal() decimal.Decimal { return s.Price }

// ProductItem is a retail line. Quantity is at least 1 while the item is in a cart.
type ProductItem struct {
	ID       ItemID          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Stock    int             `json:"stock"`
}

func (p ProductItem) itemID() ItemID { return p.ID }

func (p ProductItem) lineTotal() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// LineTotal is price times quantity.
func (p ProductItem) LineTotal() decimal.Decimal { return p.lineTotal() }
