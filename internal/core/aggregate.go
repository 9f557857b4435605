package core

import (
	"sort"
	"strings"
	"time"
)

// UnspecifiedDateBucket collects pending orders that carry neither an
// expected delivery date nor an order date. Legacy rows imported from the
// previous system occasionally have both blank.
const UnspecifiedDateBucket = "unspecified"

// DeliveryDateOf returns the calendar date an order should be delivered on:
// the expected delivery date when present, otherwise the order date,
// otherwise the unspecified bucket. Timestamps are truncated to YYYY-MM-DD.
func DeliveryDateOf(o Order) string {
	if d := normalizeDate(o.ExpectedDeliveryDate); d != "" {
		return d
	}
	if d := normalizeDate(o.OrderDate); d != "" {
		return d
	}
	return UnspecifiedDateBucket
}

// normalizeDate truncates a date or timestamp string to calendar-date
// granularity. Returns "" for anything unparseable, so callers fall
// through to the next candidate instead of failing.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02")
	}
	return ""
}

// AggregateByDate sums pending order line quantities into per-date,
// per-product demand. Non-pending orders are excluded; malformed lines
// (missing product id, non-positive quantity) are skipped rather than
// failing the whole aggregation. Pure summation: the result does not
// depend on the iteration order of the input.
func AggregateByDate(orders []Order) map[string]map[int]int {
	demand := make(map[string]map[int]int)
	for _, o := range orders {
		if o.Status != OrderPending {
			continue
		}
		date := DeliveryDateOf(o)
		for _, item := range o.Items {
			if item.ProductID <= 0 || item.Quantity <= 0 {
				continue
			}
			if demand[date] == nil {
				demand[date] = make(map[int]int)
			}
			demand[date][item.ProductID] += item.Quantity
		}
	}
	return demand
}

// AggregateAcrossDates unions per-product demand over a caller-chosen set
// of delivery dates, supporting several dates being combined into one
// allocation batch. The result is sorted by product id for determinism.
func AggregateAcrossDates(orders []Order, dates []string) []AggregatedItem {
	selected := make(map[string]bool, len(dates))
	for _, d := range dates {
		if nd := normalizeDate(d); nd != "" {
			selected[nd] = true
		} else if d == UnspecifiedDateBucket {
			selected[UnspecifiedDateBucket] = true
		}
	}

	totals := make(map[int]int)
	for date, products := range AggregateByDate(orders) {
		if !selected[date] {
			continue
		}
		for productID, qty := range products {
			totals[productID] += qty
		}
	}

	items := make([]AggregatedItem, 0, len(totals))
	for productID, qty := range totals {
		items = append(items, AggregatedItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}
