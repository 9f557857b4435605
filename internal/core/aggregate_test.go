package core_test

import (
	"reflect"
	"testing"

	"distro-backoffice/internal/core"
)

func pendingOrder(date, expected string, items ...core.OrderItem) core.Order {
	return core.Order{
		Status:               core.OrderPending,
		OrderDate:            date,
		ExpectedDeliveryDate: expected,
		Items:                items,
	}
}

func TestAggregateByDate_PendingOnly(t *testing.T) {
	orders := []core.Order{
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 10}),
		{Status: core.OrderShipped, OrderDate: "2025-06-01",
			Items: []core.OrderItem{{ProductID: 1, Quantity: 99}}},
		{Status: core.OrderCancelled, OrderDate: "2025-06-01",
			Items: []core.OrderItem{{ProductID: 2, Quantity: 99}}},
	}

	demand := core.AggregateByDate(orders)
	if got := demand["2025-06-01"][1]; got != 10 {
		t.Errorf("expected shipped/cancelled orders excluded, got qty %d", got)
	}
	if got := demand["2025-06-01"][2]; got != 0 {
		t.Errorf("cancelled order leaked into aggregation: qty %d", got)
	}
}

func TestAggregateByDate_DateFallback(t *testing.T) {
	tests := []struct {
		name     string
		order    core.Order
		wantDate string
	}{
		{
			name:     "expected delivery date wins",
			order:    pendingOrder("2025-06-01", "2025-06-05", core.OrderItem{ProductID: 1, Quantity: 1}),
			wantDate: "2025-06-05",
		},
		{
			name:     "falls back to order date",
			order:    pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 1}),
			wantDate: "2025-06-01",
		},
		{
			name:     "timestamp truncated to calendar date",
			order:    pendingOrder("", "2025-06-05T14:30:00Z", core.OrderItem{ProductID: 1, Quantity: 1}),
			wantDate: "2025-06-05",
		},
		{
			name:     "no dates at all goes to the unspecified bucket",
			order:    pendingOrder("", "", core.OrderItem{ProductID: 1, Quantity: 1}),
			wantDate: core.UnspecifiedDateBucket,
		},
		{
			name:     "garbage expected date falls through to order date",
			order:    pendingOrder("2025-06-01", "not-a-date", core.OrderItem{ProductID: 1, Quantity: 1}),
			wantDate: "2025-06-01",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			demand := core.AggregateByDate([]core.Order{tc.order})
			if demand[tc.wantDate][1] != 1 {
				t.Errorf("expected quantity under %q, got buckets %v", tc.wantDate, demand)
			}
		})
	}
}

func TestAggregateByDate_SkipsMalformedLines(t *testing.T) {
	orders := []core.Order{
		pendingOrder("2025-06-01", "",
			core.OrderItem{ProductID: 0, Quantity: 5},  // missing product id
			core.OrderItem{ProductID: 2, Quantity: -3}, // negative quantity
			core.OrderItem{ProductID: 3, Quantity: 7},
		),
	}

	demand := core.AggregateByDate(orders)
	want := map[int]int{3: 7}
	if !reflect.DeepEqual(demand["2025-06-01"], want) {
		t.Errorf("expected %v, got %v", want, demand["2025-06-01"])
	}
}

func TestAggregateByDate_Idempotent(t *testing.T) {
	orders := []core.Order{
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 10}, core.OrderItem{ProductID: 2, Quantity: 5}),
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 2}),
		pendingOrder("2025-06-02", "", core.OrderItem{ProductID: 2, Quantity: 3}),
	}

	first := core.AggregateByDate(orders)
	second := core.AggregateByDate(orders)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different aggregations:\n%v\n%v", first, second)
	}

	// Reversed iteration order must not change totals.
	reversed := []core.Order{orders[2], orders[1], orders[0]}
	third := core.AggregateByDate(reversed)
	if !reflect.DeepEqual(first, third) {
		t.Errorf("order of input changed aggregation:\n%v\n%v", first, third)
	}
}

func TestAggregateAcrossDates(t *testing.T) {
	orders := []core.Order{
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 10}, core.OrderItem{ProductID: 2, Quantity: 5}),
		pendingOrder("2025-06-02", "", core.OrderItem{ProductID: 1, Quantity: 2}),
		pendingOrder("2025-06-03", "", core.OrderItem{ProductID: 9, Quantity: 100}), // not selected
	}

	items := core.AggregateAcrossDates(orders, []string{"2025-06-01", "2025-06-02"})
	want := []core.AggregatedItem{
		{ProductID: 1, Quantity: 12},
		{ProductID: 2, Quantity: 5},
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("expected %v, got %v", want, items)
	}
}

func TestAggregateAcrossDates_EndToEndScenario(t *testing.T) {
	// 3 pending orders on one date: {P1:10, P2:5}, {P1:2}, {P2:3} → {P1:12, P2:8}.
	orders := []core.Order{
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 10}, core.OrderItem{ProductID: 2, Quantity: 5}),
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 1, Quantity: 2}),
		pendingOrder("2025-06-01", "", core.OrderItem{ProductID: 2, Quantity: 3}),
	}

	items := core.AggregateAcrossDates(orders, []string{"2025-06-01"})
	want := []core.AggregatedItem{
		{ProductID: 1, Quantity: 12},
		{ProductID: 2, Quantity: 8},
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("expected %v, got %v", want, items)
	}
}
