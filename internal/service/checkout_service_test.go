package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/pricing"
	"github.com/fjod/go_market/internal/repository"
	"github.com/fjod/go_market/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

var (
	keyX    = domain.StockKey{ProductID: "x"}
	keyXRed = domain.StockKey{ProductID: "x", VariantID: "x-red"}
	keyY    = domain.StockKey{ProductID: "y"}
	keyZ    = domain.StockKey{ProductID: "z"}
)

func ptr[T any](v T) *T { return &v }

type testEnv struct {
	svc      *CheckoutService
	catalog  *MockCatalog
	orders   *MockOrderStore
	ledger   *RecordingLedger
	vouchers *MockVoucherFinder
	carts    *MockCartStore
	notifier *MockDispatcher
	numbers  *SequenceNumbers
}

func setupCheckout(t *testing.T) *testEnv {
	env := &testEnv{
		catalog: &MockCatalog{
			Products: map[string]domain.Product{
				"x": {ID: "x", ShopID: "shopA", Title: "Product X", ImageURL: "x.png", Price: 100000, Active: true,
					Variants: []domain.Variant{
						{ID: "x-red", ProductID: "x", Name: "Red", Attributes: map[string]string{"color": "red"},
							ImageURL: "x-red.png", Price: ptr(int64(120000)), Stock: ptr(1), Active: true},
						{ID: "x-blue", ProductID: "x", Name: "Blue", Attributes: map[string]string{"color": "blue"}, Active: true},
					}},
				"z": {ID: "z", ShopID: "shopA", Title: "Product Z", Price: 10000, Active: true},
				"y": {ID: "y", ShopID: "shopB", Title: "Product Y", Price: 50000, Active: true},
			},
			Shops: map[string]domain.Shop{
				"shopA": {ID: "shopA", Name: "Shop A", OwnerID: "seller-a"},
				"shopB": {ID: "shopB", Name: "Shop B", OwnerID: "seller-b"},
			},
		},
		orders:   NewMockOrderStore(),
		ledger:   NewRecordingLedger(),
		vouchers: &MockVoucherFinder{Vouchers: map[string]*domain.Voucher{}},
		carts:    &MockCartStore{},
		notifier: &MockDispatcher{},
		numbers:  &SequenceNumbers{},
	}
	env.ledger.SetStock(keyX, 10)
	env.ledger.SetStock(keyXRed, 1)
	env.ledger.SetStock(keyY, 5)
	env.ledger.SetStock(keyZ, 5)

	addresses := &MockAddressBook{Addresses: map[string]domain.Address{
		"addr-1": {ID: "addr-1", UserID: "buyer-1", RecipientName: "Lan", City: "HCMC"},
		"addr-2": {ID: "addr-2", UserID: "buyer-2", RecipientName: "Minh", City: "Hanoi"},
	}}

	env.svc = NewCheckoutService(CheckoutDeps{
		Catalog:   env.catalog,
		Addresses: addresses,
		Orders:    env.orders,
		Carts:     env.carts,
		Ledger:    env.ledger,
		Vouchers:  pricing.NewVoucherValidator(env.vouchers),
		Numbers:   env.numbers,
		Clock:     domain.FixedClock{T: now},
		Notifier:  env.notifier,
	})
	return env
}

func twoShopRequest() CreateOrdersRequest {
	return CreateOrdersRequest{
		UserID: "buyer-1",
		Lines: []domain.CartLine{
			{ProductID: "x", Quantity: 2},
			{ProductID: "y", Quantity: 1},
		},
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
	}
}

func sale20() *domain.Voucher {
	return &domain.Voucher{
		ID: "v-sale20", Code: "SALE20", Type: domain.DiscountPercentage, Value: 20,
		MinOrderValue: ptr(int64(100000)), MaxDiscount: ptr(int64(30000)),
		StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0), Active: true,
	}
}

func assertOrderInvariants(t *testing.T, o *domain.Order) {
	t.Helper()
	var sum int64
	for _, l := range o.Lines {
		sum += l.Subtotal
		assert.Equal(t, l.UnitPrice*int64(l.Quantity), l.Subtotal)
	}
	assert.Equal(t, o.Subtotal, sum)
	assert.Equal(t, o.Subtotal+o.ShippingFee-o.Discount, o.Total)
	assert.GreaterOrEqual(t, o.Total, int64(0))
}

func TestCreateOrders_SplitsByShop(t *testing.T) {
	env := setupCheckout(t)

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	assert.Empty(t, result.Failures)

	a, b := result.Orders[0], result.Orders[1]
	assert.Equal(t, "shopA", a.ShopID)
	assert.Equal(t, int64(200000), a.Subtotal)
	assert.Equal(t, "shopB", b.ShopID)
	assert.Equal(t, int64(50000), b.Subtotal)

	for _, o := range result.Orders {
		assertOrderInvariants(t, o)
		assert.Equal(t, domain.OrderStatusPending, o.Status)
		assert.Equal(t, domain.PaymentStatusUnpaid, o.PaymentStatus)
		assert.Equal(t, int64(0), o.ShippingFee)
		assert.Equal(t, int64(0), o.Discount)
		assert.Equal(t, "HCMC", o.ShippingAddress.City)
		assert.NotEmpty(t, o.StockHoldID)
		assert.Regexp(t, `^ORD-20260315-[A-Z0-9]{4}$`, o.OrderNumber)
	}

	assert.Equal(t, 8, env.ledger.Stock(keyX))
	assert.Equal(t, 4, env.ledger.Stock(keyY))
	assert.Equal(t, 2, env.orders.Count())
	assert.Equal(t, []string{"order.created", "order.created"}, env.notifier.Types())
}

func TestCreateOrders_AppliesVoucherAndShipping(t *testing.T) {
	env := setupCheckout(t)
	env.vouchers.Vouchers["SALE20"] = sale20()
	env.catalog.Shops["shopA"] = domain.Shop{ID: "shopA", ShippingFee: 20000, FreeShippingThreshold: ptr(int64(500000))}

	req := twoShopRequest()
	req.VoucherCodes = map[string]string{"shopA": "sale20"}
	req.Notes = map[string]string{"shopA": "leave at the door"}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)

	a := result.Orders[0]
	assert.Equal(t, int64(30000), a.Discount)
	assert.Equal(t, int64(20000), a.ShippingFee)
	assert.Equal(t, int64(190000), a.Total)
	assert.Equal(t, "SALE20", *a.VoucherCode)
	assert.Equal(t, "leave at the door", a.Note)
	assertOrderInvariants(t, a)

	assert.Nil(t, result.Orders[1].VoucherCode)
}

func TestCreateOrders_FreeShippingThreshold(t *testing.T) {
	env := setupCheckout(t)
	env.catalog.Shops["shopA"] = domain.Shop{ID: "shopA", ShippingFee: 20000, FreeShippingThreshold: ptr(int64(200000))}

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Orders[0].ShippingFee)
	assert.Equal(t, int64(200000), result.Orders[0].Total)
}

func TestCreateOrders_StockShortageFailsOnlyThatShop(t *testing.T) {
	env := setupCheckout(t)
	env.ledger.SetStock(keyY, 0)

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "shopA", result.Orders[0].ShopID)

	require.Len(t, result.Failures, 1)
	f := result.Failures[0]
	assert.Equal(t, "shopB", f.ShopID)
	assert.Equal(t, FailureStock, f.Reason)
	assert.Equal(t, []domain.LineShortage{{ProductID: "y", Requested: 1, Available: 0}}, f.Shortages)
	var stockErr *domain.StockError
	assert.ErrorAs(t, f.Err, &stockErr)

	assert.Equal(t, 8, env.ledger.Stock(keyX))
	assert.Equal(t, 0, env.ledger.Stock(keyY))
}

func TestCreateOrders_VoucherFailureFailsOnlyThatShop(t *testing.T) {
	env := setupCheckout(t)
	expired := sale20()
	expired.Code = "OLD"
	expired.EndDate = now.Add(-time.Hour)
	env.vouchers.Vouchers["OLD"] = expired

	req := twoShopRequest()
	req.VoucherCodes = map[string]string{"shopA": "OLD"}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "shopB", result.Orders[0].ShopID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureVoucher, result.Failures[0].Reason)
	assert.Equal(t, domain.VoucherExpired, result.Failures[0].VoucherError)

	// nothing was taken for the failed shop
	assert.Equal(t, 10, env.ledger.Stock(keyX))
}

func TestCreateOrders_UnknownVoucher(t *testing.T) {
	env := setupCheckout(t)
	req := twoShopRequest()
	req.VoucherCodes = map[string]string{"shopB": "NOPE"}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, domain.VoucherNotFound, result.Failures[0].VoucherError)
}

func TestCreateOrders_SharedInputAbortsWholeCall(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *CreateOrdersRequest)
		field string
	}{
		{"unknown payment method", func(r *CreateOrdersRequest) { r.PaymentMethod = "CARD" }, "payment_method"},
		{"address of another user", func(r *CreateOrdersRequest) { r.AddressID = "addr-2" }, "address_id"},
		{"missing address", func(r *CreateOrdersRequest) { r.AddressID = "nope" }, "address_id"},
		{"empty cart", func(r *CreateOrdersRequest) { r.Lines = nil }, "cart"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupCheckout(t)
			req := twoShopRequest()
			tt.edit(&req)

			result, err := env.svc.CreateOrders(context.Background(), req)
			assert.Nil(t, result)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, env.orders.Count())
			assert.Equal(t, 10, env.ledger.Stock(keyX))
		})
	}
}

func TestCreateOrders_ProductNotFound(t *testing.T) {
	env := setupCheckout(t)
	req := twoShopRequest()
	req.Lines = append(req.Lines, domain.CartLine{ProductID: "ghost", Quantity: 1})

	_, err := env.svc.CreateOrders(context.Background(), req)
	var notFound *domain.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.ProductID)
	assert.Equal(t, 0, env.orders.Count())
}

func TestCreateOrders_InactiveProductIsShortage(t *testing.T) {
	env := setupCheckout(t)
	y := env.catalog.Products["y"]
	y.Active = false
	env.catalog.Products["y"] = y

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureStock, result.Failures[0].Reason)
	assert.Equal(t, 0, result.Failures[0].Shortages[0].Available)
	assert.Equal(t, 5, env.ledger.Stock(keyY))
}

func TestCreateOrders_CompensatesFailedDecrement(t *testing.T) {
	env := setupCheckout(t)
	// validation sees stock, then another checkout takes it before the decrement
	env.ledger.FailDecrement[keyZ] = store.ErrInsufficientStock

	req := twoShopRequest()
	req.Lines = []domain.CartLine{
		{ProductID: "x", Quantity: 2},
		{ProductID: "z", Quantity: 3},
	}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Orders)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureStock, result.Failures[0].Reason)
	assert.Equal(t, "z", result.Failures[0].Shortages[0].ProductID)

	require.Len(t, env.ledger.Increments, 1)
	assert.Equal(t, keyX, env.ledger.Increments[0].Key)
	assert.Equal(t, 2, env.ledger.Increments[0].Qty)
	assert.Equal(t, 10, env.ledger.Stock(keyX))
	assert.Equal(t, 0, env.orders.Count())
}

func TestCreateOrders_VoucherExhaustedAtPersist(t *testing.T) {
	env := setupCheckout(t)
	env.vouchers.Vouchers["SALE20"] = sale20()
	env.orders.CreateErrs = []error{repository.ErrVoucherExhausted}

	req := twoShopRequest()
	req.VoucherCodes = map[string]string{"shopA": "SALE20"}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "shopB", result.Orders[0].ShopID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureVoucher, result.Failures[0].Reason)
	assert.Equal(t, domain.VoucherUsageLimitReached, result.Failures[0].VoucherError)
	assert.Equal(t, 10, env.ledger.Stock(keyX))
}

func TestCreateOrders_RetriesOrderNumberCollision(t *testing.T) {
	env := setupCheckout(t)
	env.orders.CreateErrs = []error{repository.ErrDuplicateOrderNumber, repository.ErrDuplicateOrderNumber}

	req := twoShopRequest()
	req.Lines = req.Lines[:1]

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "ORD-20260315-0003", result.Orders[0].OrderNumber)
	assert.Equal(t, 3, env.orders.Creates)
}

func TestCreateOrders_OrderNumberExhaustion(t *testing.T) {
	env := setupCheckout(t)
	env.numbers.Repeat = true
	// an order already owns ORD-20260315-0000
	_, err := env.svc.CreateOrders(context.Background(), CreateOrdersRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
		Lines: []domain.CartLine{{ProductID: "z", Quantity: 1}},
	})
	require.NoError(t, err)

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	assert.Empty(t, result.Orders)
	require.Len(t, result.Failures, 2)
	for _, f := range result.Failures {
		assert.Equal(t, FailureConflict, f.Reason)
		var conflict *domain.ConflictError
		assert.ErrorAs(t, f.Err, &conflict)
	}
	assert.Equal(t, 1+2*DefaultOrderNumberAttempts, env.orders.Creates)
	assert.Equal(t, 10, env.ledger.Stock(keyX))
	assert.Equal(t, 5, env.ledger.Stock(keyY))
}

func TestCreateOrders_InfrastructureFailureIsPerShop(t *testing.T) {
	env := setupCheckout(t)
	env.orders.CreateErrs = []error{errors.New("connection reset")}

	result, err := env.svc.CreateOrders(context.Background(), twoShopRequest())
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureInternal, result.Failures[0].Reason)
	assert.Equal(t, 10, env.ledger.Stock(keyX))
}

func TestCreateOrders_SnapshotsVariant(t *testing.T) {
	env := setupCheckout(t)
	req := twoShopRequest()
	req.Lines = []domain.CartLine{
		{ProductID: "x", VariantID: "x-red", Quantity: 1},
		{ProductID: "x", VariantID: "x-blue", Quantity: 2},
	}

	result, err := env.svc.CreateOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)

	lines := result.Orders[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "Red", lines[0].VariantName)
	assert.Equal(t, int64(120000), lines[0].UnitPrice)
	assert.Equal(t, "x-red.png", lines[0].ImageURL)
	assert.Equal(t, "x-red", lines[0].StockVariantID)
	assert.Equal(t, "", lines[1].StockVariantID)
	assert.Equal(t, "x.png", lines[1].ImageURL)
	assert.Equal(t, int64(320000), result.Orders[0].Subtotal)

	// variant with its own counter and variant sharing the product counter
	assert.Equal(t, 0, env.ledger.Stock(keyXRed))
	assert.Equal(t, 8, env.ledger.Stock(keyX))

	// catalog edits do not reach the order
	env.catalog.Products["x"].Variants[0].Attributes["color"] = "crimson"
	assert.Equal(t, "red", lines[0].Attributes["color"])
}

func TestCreateOrders_ConcurrentLastUnit(t *testing.T) {
	env := setupCheckout(t)
	req := CreateOrdersRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
		Lines: []domain.CartLine{{ProductID: "x", VariantID: "x-red", Quantity: 1}},
	}

	var wg sync.WaitGroup
	results := make([]*CheckoutResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := env.svc.CreateOrders(context.Background(), req)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	created, stockFailures := 0, 0
	for _, r := range results {
		created += len(r.Orders)
		for _, f := range r.Failures {
			if f.Reason == FailureStock {
				stockFailures++
			}
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 0, env.ledger.Stock(keyXRed))
}

func TestCreateOrders_StockNeverNegativeUnderLoad(t *testing.T) {
	env := setupCheckout(t)
	req := CreateOrdersRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
		Lines: []domain.CartLine{{ProductID: "z", Quantity: 2}},
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := env.svc.CreateOrders(context.Background(), req)
			if assert.NoError(t, err) {
				mu.Lock()
				created += len(r.Orders)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, created)
	assert.Equal(t, 1, env.ledger.Stock(keyZ))
}

func TestCheckout_RemovesPurchasedLines(t *testing.T) {
	env := setupCheckout(t)
	env.ledger.SetStock(keyY, 0)
	env.carts.Cart = &domain.Cart{UserID: "buyer-1", Version: 3, Lines: []domain.CartLine{
		{ProductID: "x", VariantID: "x-blue", Quantity: 1},
		{ProductID: "y", Quantity: 1},
	}}

	result, err := env.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	assert.Len(t, result.Orders, 1)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, []domain.LineKey{{ProductID: "x", VariantID: "x-blue"}}, env.carts.Removed)
}

func TestCheckout_CartCleanupFailureKeepsOrders(t *testing.T) {
	env := setupCheckout(t)
	env.carts.Cart = &domain.Cart{UserID: "buyer-1", Lines: []domain.CartLine{{ProductID: "y", Quantity: 1}}}
	env.carts.RemoveErr = errors.New("mongo down")

	result, err := env.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	assert.Len(t, result.Orders, 1)
}

func TestCheckout_CallerCancelDoesNotStopCheckout(t *testing.T) {
	env := setupCheckout(t)
	env.carts.Cart = &domain.Cart{UserID: "buyer-1", Lines: twoShopRequest().Lines}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.orders.AfterCreate = cancel

	result, err := env.svc.Checkout(ctx, CheckoutRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	require.Len(t, result.Orders, 2)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 8, env.ledger.Stock(keyX))
	assert.Equal(t, 4, env.ledger.Stock(keyY))
	assert.ElementsMatch(t, []domain.LineKey{{ProductID: "x"}, {ProductID: "y"}}, env.carts.Removed)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := setupCheckout(t)

	_, err := env.svc.Checkout(context.Background(), CheckoutRequest{
		UserID: "buyer-1", AddressID: "addr-1", PaymentMethod: domain.PaymentMethodCOD,
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cart", verr.Field)
}

func TestRandomOrderNumbers_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n, err := RandomOrderNumbers{}.Next(now)
		require.NoError(t, err)
		assert.Regexp(t, `^ORD-20260315-[A-Z0-9]{4}$`, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 1)
}
