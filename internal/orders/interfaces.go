package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for order lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrders(ctx context.Context, orders []models.Order) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error)
	// MarkPaid promotes pending orders to paid and clears the temporary flag.
	// Only rows still pending are touched; the count of promoted rows is returned.
	MarkPaid(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
	// Cancel moves pending orders to cancelled with a reason.
	Cancel(ctx context.Context, ids []uuid.UUID, reason string, at time.Time) (int64, error)
	SetGatewaySession(ctx context.Context, ids []uuid.UUID, sessionID string) error
	FindStaleTemporary(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
