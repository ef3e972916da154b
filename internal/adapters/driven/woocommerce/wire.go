package woocommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// wcTimeLayouts are the timestamp shapes the REST API emits. Store-local
// dates carry no zone; the _gmt variants are UTC.
var wcTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// wcTime parses WooCommerce timestamps, treating zone-less values as UTC.
type wcTime struct {
	time.Time
}

func (t *wcTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if string(data) == "null" {
			return nil
		}
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range wcTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// money decodes amounts sent either as strings ("12.50") or numbers.
// Empty and null amounts are zero.
type money struct {
	decimal.Decimal
}

func (m *money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	m.Decimal = d
	return nil
}

type wireLineItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int64  `json:"quantity"`
	Total     money  `json:"total"`
}

type wireOrder struct {
	ID             int64          `json:"id"`
	Status         string         `json:"status"`
	DateCreated    wcTime         `json:"date_created"`
	DateCreatedGMT wcTime         `json:"date_created_gmt"`
	Total          money          `json:"total"`
	LineItems      []wireLineItem `json:"line_items"`
}

func (o wireOrder) toDomain() *domain.Order {
	created := o.DateCreatedGMT.Time
	if created.IsZero() {
		created = o.DateCreated.Time
	}

	items := lo.Map(o.LineItems, func(li wireLineItem, _ int) domain.LineItem {
		return domain.LineItem{
			ProductID: li.ProductID,
			Name:      li.Name,
			SKU:       li.SKU,
			Quantity:  li.Quantity,
			Total:     li.Total.Decimal,
		}
	})

	return &domain.Order{
		ID:          o.ID,
		Status:      o.Status,
		DateCreated: created,
		Total:       o.Total.Decimal,
		LineItems:   items,
	}
}

type wireProductReport struct {
	ProductID    int64 `json:"product_id"`
	ItemsSold    int64 `json:"items_sold"`
	NetRevenue   money `json:"net_revenue"`
	ExtendedInfo struct {
		Name string `json:"name"`
		SKU  string `json:"sku"`
	} `json:"extended_info"`
}

func (r wireProductReport) toDomain() *domain.ProductCacheEntry {
	return &domain.ProductCacheEntry{
		ProductID: r.ProductID,
		Name:      r.ExtendedInfo.Name,
		SKU:       r.ExtendedInfo.SKU,
		Quantity:  r.ItemsSold,
		Revenue:   r.NetRevenue.Decimal,
	}
}

// decodeList normalises a list payload. An array decodes as-is, a single
// object becomes a one element list, and null or any other JSON value is
// reported as not a list. Undecodable bodies wrap ErrMalformedResponse.
func decodeList[T any](body []byte) (items []T, isList bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false, nil
	}

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false, fmt.Errorf("decode list: %v: %w", err, domain.ErrMalformedResponse)
		}
		return items, true, nil
	case '{':
		var item T
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, false, fmt.Errorf("decode object: %v: %w", err, domain.ErrMalformedResponse)
		}
		return []T{item}, true, nil
	default:
		if !json.Valid(trimmed) {
			return nil, false, fmt.Errorf("invalid json body: %w", domain.ErrMalformedResponse)
		}
		return nil, false, nil
	}
}
