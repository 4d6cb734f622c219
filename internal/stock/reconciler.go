// Package stock turns a batch of order lines into per-product stock decrements.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/ordersettle/internal/products"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientStock is the cause of a rejected decrement under RejectOversell.
var ErrInsufficientStock = errors.New("insufficient stock")

// FloorPolicy selects what happens when a decrement would take stock below zero.
type FloorPolicy int

const (
	// RejectOversell fails the decrement, aborting the surrounding transaction.
	RejectOversell FloorPolicy = iota
	// AllowBackorder applies the decrement and reports the shortfall.
	AllowBackorder
)

func (p FloorPolicy) String() string {
	switch p {
	case RejectOversell:
		return "reject_oversell"
	case AllowBackorder:
		return "allow_backorder"
	default:
		return fmt.Sprintf("floor_policy(%d)", int(p))
	}
}

// Adjustment is the aggregate quantity to subtract from one product.
type Adjustment struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
}

// Shortfall records a product left with negative stock after a backorder.
type Shortfall struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Remaining   int
}

// Result summarizes a reconciliation.
type Result struct {
	Adjustments []Adjustment
	Oversold    []Shortfall
}

// Aggregate sums quantities per product. The result is sorted by product id
// so concurrent reconcilers touch rows in the same order.
func Aggregate(orders []models.Order) []Adjustment {
	totals := make(map[uuid.UUID]*Adjustment, len(orders))
	for _, o := range orders {
		if o.Quantity <= 0 {
			continue
		}
		adj, ok := totals[o.ProductID]
		if !ok {
			adj = &Adjustment{ProductID: o.ProductID, ProductName: o.ProductName}
			totals[o.ProductID] = adj
		}
		adj.Quantity += o.Quantity
	}

	out := make([]Adjustment, 0, len(totals))
	for _, adj := range totals {
		out = append(out, *adj)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}

// Reconciler applies stock adjustments through the product repository.
type Reconciler struct {
	products products.Repository
}

// NewReconciler wires a reconciler with the provided product repository.
func NewReconciler(repo products.Repository) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &Reconciler{products: repo}, nil
}

// WithTx binds the reconciler to the caller's transaction.
func (r *Reconciler) WithTx(tx *gorm.DB) *Reconciler {
	return &Reconciler{products: r.products.WithTx(tx)}
}

// Reconcile issues one decrement per distinct product in orders.
func (r *Reconciler) Reconcile(ctx context.Context, orders []models.Order, policy FloorPolicy) (*Result, error) {
	result := &Result{Adjustments: Aggregate(orders)}
	for _, adj := range result.Adjustments {
		switch policy {
		case RejectOversell:
			ok, err := r.products.DecrementStock(ctx, adj.ProductID, adj.Quantity, true)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientStock,
					fmt.Sprintf("insufficient stock for %s", adj.ProductName)).
					WithDetails(map[string]any{"product_id": adj.ProductID.String(), "requested": adj.Quantity})
			}
		case AllowBackorder:
			if _, err := r.products.DecrementStock(ctx, adj.ProductID, adj.Quantity, false); err != nil {
				return nil, err
			}
			remaining, err := r.products.StockLevel(ctx, adj.ProductID)
			if err != nil {
				return nil, err
			}
			if remaining < 0 {
				result.Oversold = append(result.Oversold, Shortfall{
					ProductID:   adj.ProductID,
					ProductName: adj.ProductName,
					Requested:   adj.Quantity,
					Remaining:   remaining,
				})
			}
		default:
			return nil, fmt.Errorf("unknown floor policy %s", policy)
		}
	}
	return result, nil
}
