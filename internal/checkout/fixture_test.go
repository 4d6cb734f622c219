package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/ordersettle/internal/address"
	"github.com/angelmondragon/ordersettle/internal/cart"
	"github.com/angelmondragon/ordersettle/internal/orders"
	"github.com/angelmondragon/ordersettle/internal/points"
	"github.com/angelmondragon/ordersettle/internal/products"
	"github.com/angelmondragon/ordersettle/internal/stock"
	"github.com/angelmondragon/ordersettle/internal/users"
	"github.com/angelmondragon/ordersettle/internal/vouchers"
	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/db/dbtest"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	pkgstripe "github.com/angelmondragon/ordersettle/pkg/stripe"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const testShippingFee = 30000

type fixture struct {
	db       *gorm.DB
	deps     Dependencies
	user     models.User
	address  models.Address
	oolong   models.Product
	sencha   models.Product
	cartA    models.CartItem
	cartB    models.CartItem
	spring10 models.Voucher
	freeShip models.Voucher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{db: conn}

	f.user = models.User{Email: "buyer@shop.test", Name: "Buyer", Status: enums.UserStatusActive, RewardsPoints: 1000}
	mustCreate(t, conn, &f.user)
	f.address = models.Address{UserID: f.user.ID, Line1: "1 Tea St", City: "Hanoi", Phone: "0900000000"}
	mustCreate(t, conn, &f.address)

	f.oolong = models.Product{Name: "Oolong", Price: 100000, Stock: 5, IsActive: true, Images: pq.StringArray{"oolong.png"}, CategoryIDs: pq.StringArray{"tea"}}
	mustCreate(t, conn, &f.oolong)
	f.sencha = models.Product{Name: "Sencha", Price: 200000, Stock: 5, IsActive: true, CategoryIDs: pq.StringArray{"tea"}}
	mustCreate(t, conn, &f.sencha)

	f.cartA = models.CartItem{UserID: f.user.ID, ProductID: f.oolong.ID, Quantity: 1}
	mustCreate(t, conn, &f.cartA)
	f.cartB = models.CartItem{UserID: f.user.ID, ProductID: f.sencha.ID, Quantity: 1}
	mustCreate(t, conn, &f.cartB)

	maxDiscount := int64(20000)
	f.spring10 = models.Voucher{
		Code: "SPRING10", Name: "Spring", DiscountType: enums.DiscountTypePercentage, DiscountValue: 10,
		MaxDiscount: &maxDiscount, StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		IsActive: true, ApplyForAllProducts: true,
	}
	mustCreate(t, conn, &f.spring10)
	f.freeShip = models.Voucher{
		Code: "FREESHIP", Name: "Free shipping", DiscountType: enums.DiscountTypeFreeShipping,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		IsActive: true, ApplyForAllProducts: true,
	}
	mustCreate(t, conn, &f.freeShip)

	f.deps = newDeps(t, conn, db.NewFromGorm(conn))
	return f
}

func newDeps(t *testing.T, conn *gorm.DB, tx txRunner) Dependencies {
	t.Helper()
	validator, err := vouchers.NewValidator(vouchers.NewRepository(conn))
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	productRepo := products.NewRepository(conn)
	reconciler, err := stock.NewReconciler(productRepo)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	userRepo := users.NewRepository(conn)
	ledger, err := points.NewLedger(userRepo)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	finalizer, err := NewFinalizer(reconciler, validator, ledger, cart.NewRepository(conn))
	if err != nil {
		t.Fatalf("finalizer: %v", err)
	}
	return Dependencies{
		Tx:        tx,
		Users:     userRepo,
		Addresses: address.NewRepository(conn),
		Products:  productRepo,
		Orders:    orders.NewRepository(conn),
		Vouchers:  validator,
		Assembler: orders.NewAssembler(testShippingFee),
		Finalizer: finalizer,
		Retry:     db.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
	}
}

func mustCreate(t *testing.T, conn *gorm.DB, v any) {
	t.Helper()
	if err := conn.Create(v).Error; err != nil {
		t.Fatalf("seed %T: %v", v, err)
	}
}

func (f *fixture) request() Request {
	a, b := f.cartA.ID, f.cartB.ID
	return Request{
		UserID:    f.user.ID,
		AddressID: f.address.ID,
		Items: []orders.LineItem{
			{ProductID: f.oolong.ID, Quantity: 1, CartItemID: &a},
			{ProductID: f.sencha.ID, Quantity: 1, CartItemID: &b},
		},
	}
}

func (f *fixture) reload(t *testing.T, v any, id uuid.UUID) {
	t.Helper()
	if err := f.db.First(v, "id = ?", id).Error; err != nil {
		t.Fatalf("reload %T: %v", v, err)
	}
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

type fakeGateway struct {
	requests []pkgstripe.CheckoutSessionRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &pkgstripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.test/cs_test_123"}, nil
}
