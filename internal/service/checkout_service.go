package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/metrics"
	"github.com/fjod/go_market/internal/pricing"
	"github.com/fjod/go_market/internal/publisher"
	"github.com/fjod/go_market/internal/repository"
	"github.com/fjod/go_market/internal/store"
	"github.com/fjod/go_market/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const DefaultOrderNumberAttempts = 5

type FailureReason string

const (
	FailureStock    FailureReason = "STOCK"
	FailureVoucher  FailureReason = "VOUCHER"
	FailureConflict FailureReason = "CONFLICT"
	FailureInternal FailureReason = "INTERNAL"
)

// ShopFailure explains why no order was created for one shop.
type ShopFailure struct {
	ShopID       string                  `json:"shop_id"`
	Reason       FailureReason           `json:"reason"`
	Message      string                  `json:"message"`
	Shortages    []domain.LineShortage   `json:"shortages,omitempty"`
	VoucherError domain.VoucherErrorCode `json:"voucher_error,omitempty"`
	Err          error                   `json:"-"`
}

type CheckoutResult struct {
	Orders   []*domain.Order `json:"orders"`
	Failures []ShopFailure   `json:"failures"`
}

type CreateOrdersRequest struct {
	UserID        string
	Lines         []domain.CartLine
	AddressID     string
	PaymentMethod domain.PaymentMethod
	// VoucherCodes and Notes are keyed by shop ID
	VoucherCodes map[string]string
	Notes        map[string]string
}

type CheckoutRequest struct {
	UserID        string               `json:"-"`
	AddressID     string               `json:"address_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	VoucherCodes  map[string]string    `json:"voucher_codes,omitempty"`
	Notes         map[string]string    `json:"notes,omitempty"`
}

type CheckoutService struct {
	catalog   Catalog
	addresses AddressBook
	orders    OrderStore
	carts     CartStore
	ledger    store.StockLedger
	vouchers  *pricing.VoucherValidator
	numbers   OrderNumberGenerator
	attempts  int
	clock     domain.Clock
	notifier  Dispatcher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

type CheckoutDeps struct {
	Catalog             Catalog
	Addresses           AddressBook
	Orders              OrderStore
	Carts               CartStore
	Ledger              store.StockLedger
	Vouchers            *pricing.VoucherValidator
	Numbers             OrderNumberGenerator
	OrderNumberAttempts int
	Clock               domain.Clock
	Notifier            Dispatcher
	Metrics             *metrics.Metrics
	Log                 *zap.Logger
}

func NewCheckoutService(d CheckoutDeps) *CheckoutService {
	if d.Numbers == nil {
		d.Numbers = RandomOrderNumbers{}
	}
	if d.OrderNumberAttempts <= 0 {
		d.OrderNumberAttempts = DefaultOrderNumberAttempts
	}
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &CheckoutService{
		catalog:   d.Catalog,
		addresses: d.Addresses,
		orders:    d.Orders,
		carts:     d.Carts,
		ledger:    d.Ledger,
		vouchers:  d.Vouchers,
		numbers:   d.Numbers,
		attempts:  d.OrderNumberAttempts,
		clock:     d.Clock,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		log:       d.Log,
	}
}

// Checkout turns the user's cart into one order per shop and removes the
// purchased lines from the cart.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	cart, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, &domain.ValidationError{Field: "cart", Reason: "cart is empty"}
	}

	// a checkout in flight is not cancelled by the caller
	ctx = context.WithoutCancel(ctx)
	result, err := s.CreateOrders(ctx, CreateOrdersRequest{
		UserID:        req.UserID,
		Lines:         cart.Lines,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		VoucherCodes:  req.VoucherCodes,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, err
	}

	var purchased []domain.LineKey
	for _, o := range result.Orders {
		for _, l := range o.Lines {
			purchased = append(purchased, domain.LineKey{ProductID: l.ProductID, VariantID: l.VariantID})
		}
	}
	if err := s.carts.RemoveLines(ctx, req.UserID, purchased); err != nil {
		logger.WithTrace(ctx, s.log).Error("failed to remove purchased lines from cart",
			zap.String("user_id", req.UserID), zap.Error(err))
	}

	return result, nil
}

// CreateOrders creates one PENDING order per shop in lines. Input shared by
// every order aborts the whole call; anything else fails only its shop.
// Cancelling ctx does not stop a call in flight.
func (s *CheckoutService) CreateOrders(ctx context.Context, req CreateOrdersRequest) (*CheckoutResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "checkout")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.CheckoutDuration(time.Since(start)) }()

	address, err := s.validateShared(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	products, err := s.catalog.GetProductsByIDs(ctx, pricing.ProductIDs(req.Lines))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	groups, err := pricing.Group(req.Lines, pricing.NewCatalog(products))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	shops, err := s.loadShops(ctx, groups)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := &CheckoutResult{Orders: []*domain.Order{}, Failures: []ShopFailure{}}
	for _, g := range groups {
		order, failure := s.createShopOrder(ctx, req, g, shops[g.ShopID], address, now)
		if failure != nil {
			s.metrics.ShopOrder(string(failure.Reason))
			result.Failures = append(result.Failures, *failure)
			continue
		}
		s.metrics.ShopOrder("CREATED")
		result.Orders = append(result.Orders, order)
		s.notifyCreated(order)
	}

	span.SetAttributes(
		attribute.Int("checkout.shops", len(groups)),
		attribute.Int("checkout.orders", len(result.Orders)),
	)
	logger.WithTrace(ctx, s.log).Info("checkout finished",
		zap.String("user_id", req.UserID),
		zap.Int("orders", len(result.Orders)),
		zap.Int("failures", len(result.Failures)))

	return result, nil
}

func (s *CheckoutService) validateShared(ctx context.Context, req CreateOrdersRequest) (*domain.Address, error) {
	if req.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(req.Lines) == 0 {
		return nil, &domain.ValidationError{Field: "cart", Reason: "cart is empty"}
	}
	if !req.PaymentMethod.IsKnown() {
		return nil, &domain.ValidationError{
			Field:  "payment_method",
			Reason: fmt.Sprintf("unsupported payment method %q", req.PaymentMethod),
		}
	}

	address, err := s.addresses.GetAddress(ctx, req.AddressID, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ValidationError{Field: "address_id", Reason: "address not found for user", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	return address, nil
}

func (s *CheckoutService) loadShops(ctx context.Context, groups []pricing.ShopGroup) (map[string]*domain.Shop, error) {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ShopID)
	}
	list, err := s.catalog.GetShopsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load shops: %w", err)
	}

	shops := make(map[string]*domain.Shop, len(list))
	for i := range list {
		shops[list[i].ID] = &list[i]
	}
	for _, id := range ids {
		if _, ok := shops[id]; !ok {
			return nil, fmt.Errorf("shop %s: %w", id, repository.ErrShopNotFound)
		}
	}
	return shops, nil
}

func (s *CheckoutService) createShopOrder(
	ctx context.Context,
	req CreateOrdersRequest,
	g pricing.ShopGroup,
	shop *domain.Shop,
	address *domain.Address,
	now time.Time,
) (*domain.Order, *ShopFailure) {
	ctx, span := tracer.Start(ctx, "shop_order")
	defer span.End()
	span.SetAttributes(attribute.String("shop.id", g.ShopID))
	log := logger.WithTrace(ctx, s.log).With(zap.String("user_id", req.UserID), zap.String("shop_id", g.ShopID))

	plan, keys := g.StockPlan()
	shortages, err := s.checkStock(ctx, g, plan)
	if err != nil {
		log.Error("stock validation failed", zap.Error(err))
		return nil, internalFailure(g.ShopID, err)
	}
	if len(shortages) > 0 {
		return nil, stockFailure(g.ShopID, shortages)
	}

	var (
		voucher  *domain.Voucher
		discount int64
	)
	if code := req.VoucherCodes[g.ShopID]; code != "" {
		v, err := s.vouchers.Validate(ctx, code, g.ShopID, g.Subtotal, now)
		if err != nil {
			return nil, voucherFailure(g.ShopID, err)
		}
		voucher = v
		discount = pricing.CalculateDiscount(v, g.Subtotal)
	}

	shippingFee := pricing.ShippingFee(shop, g.Subtotal)
	total := pricing.OrderTotal(g.Subtotal, shippingFee, discount)

	holdID := uuid.NewString()
	applied := make([]domain.StockKey, 0, len(keys))
	for _, key := range keys {
		available, err := s.ledger.Decrement(ctx, holdID, key, plan[key])
		if err != nil {
			s.release(ctx, log, holdID, applied, plan, "checkout_decrement")
			if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrCounterNotFound) {
				return nil, stockFailure(g.ShopID, []domain.LineShortage{{
					ProductID: key.ProductID,
					VariantID: key.VariantID,
					Requested: plan[key],
					Available: available,
				}})
			}
			return nil, internalFailure(g.ShopID, err)
		}
		applied = append(applied, key)
	}

	order := buildOrder(req, g, address, now)
	order.StockHoldID = holdID
	order.ShippingFee = shippingFee
	order.Discount = discount
	order.Total = total
	if voucher != nil {
		order.VoucherCode = &voucher.Code
	}

	if err := s.persist(ctx, order); err != nil {
		s.release(ctx, log, holdID, applied, plan, "checkout_persist")
		log.Warn("failed to persist order", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())

		var conflict *domain.ConflictError
		switch {
		case errors.Is(err, repository.ErrVoucherExhausted):
			return nil, voucherFailure(g.ShopID, &domain.VoucherError{
				Code:        domain.VoucherUsageLimitReached,
				VoucherCode: voucher.Code,
			})
		case errors.As(err, &conflict):
			return nil, &ShopFailure{ShopID: g.ShopID, Reason: FailureConflict, Message: err.Error(), Err: err}
		default:
			return nil, internalFailure(g.ShopID, err)
		}
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	log.Info("order created", zap.String("order_number", order.OrderNumber), zap.Int64("total", order.Total))
	return order, nil
}

// checkStock reports lines whose product or variant is inactive, or else
// the ledger's shortages for plan.
func (s *CheckoutService) checkStock(ctx context.Context, g pricing.ShopGroup, plan map[domain.StockKey]int) ([]domain.LineShortage, error) {
	var inactive []domain.LineShortage
	for _, l := range g.Lines {
		if !l.Purchasable() {
			inactive = append(inactive, domain.LineShortage{
				ProductID: l.Line.ProductID,
				VariantID: l.Line.VariantID,
				Requested: l.Line.Quantity,
				Available: 0,
			})
		}
	}
	if len(inactive) > 0 {
		return inactive, nil
	}
	return s.ledger.Validate(ctx, plan)
}

// persist writes order, drawing a fresh order number on every collision.
func (s *CheckoutService) persist(ctx context.Context, order *domain.Order) error {
	for attempt := 0; attempt < s.attempts; attempt++ {
		number, err := s.numbers.Next(order.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}
		order.OrderNumber = number

		err = s.orders.CreateOrder(ctx, order)
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			continue
		}
		return err
	}
	return &domain.ConflictError{
		Resource: "order_number",
		Reason:   fmt.Sprintf("no unique order number after %d attempts", s.attempts),
	}
}

// release gives back every decrement of a failed shop order. Failures are
// logged; the reconciler releases whatever is left of the hold.
func (s *CheckoutService) release(ctx context.Context, log *zap.Logger, holdID string, applied []domain.StockKey, plan map[domain.StockKey]int, reason string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range applied {
		s.metrics.Compensation(reason)
		if _, err := s.ledger.Increment(ctx, holdID, key, plan[key]); err != nil {
			log.Error("failed to release stock",
				zap.String("hold_id", holdID),
				zap.String("product_id", key.ProductID),
				zap.String("variant_id", key.VariantID),
				zap.Error(err))
		}
	}
}

func (s *CheckoutService) notifyCreated(order *domain.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(publisher.Notification{
		UserID: order.BuyerID,
		Type:   publisher.TypeOrderCreated,
		Payload: map[string]any{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"shop_id":      order.ShopID,
			"total":        order.Total,
		},
		OccurredAt: order.CreatedAt,
	})
}

// buildOrder snapshots the catalog into a PENDING order.
func buildOrder(req CreateOrdersRequest, g pricing.ShopGroup, address *domain.Address, now time.Time) *domain.Order {
	id := uuid.New()
	order := &domain.Order{
		ID:              id,
		BuyerID:         req.UserID,
		ShopID:          g.ShopID,
		AddressID:       address.ID,
		ShippingAddress: address.Snapshot(),
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		Status:          domain.OrderStatusPending,
		Subtotal:        g.Subtotal,
		Note:            req.Notes[g.ShopID],
		CreatedAt:       now,
		UpdatedAt:       now,
		Lines:           make([]domain.OrderLine, 0, len(g.Lines)),
	}

	for _, l := range g.Lines {
		line := domain.OrderLine{
			ID:             uuid.New(),
			OrderID:        id,
			ProductID:      l.Product.ID,
			VariantID:      l.Line.VariantID,
			StockVariantID: l.StockKey.VariantID,
			Title:          l.Product.Title,
			ImageURL:       l.Product.ImageFor(l.Variant),
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Line.Quantity,
			Subtotal:       l.Subtotal,
		}
		if l.Variant != nil {
			line.VariantName = l.Variant.Name
			line.Attributes = maps.Clone(l.Variant.Attributes)
		}
		order.Lines = append(order.Lines, line)
	}
	return order
}

func stockFailure(shopID string, shortages []domain.LineShortage) *ShopFailure {
	err := &domain.StockError{Shortages: shortages}
	return &ShopFailure{
		ShopID:    shopID,
		Reason:    FailureStock,
		Message:   err.Error(),
		Shortages: shortages,
		Err:       err,
	}
}

func voucherFailure(shopID string, err error) *ShopFailure {
	var verr *domain.VoucherError
	if !errors.As(err, &verr) {
		return internalFailure(shopID, err)
	}
	return &ShopFailure{
		ShopID:       shopID,
		Reason:       FailureVoucher,
		Message:      verr.Error(),
		VoucherError: verr.Code,
		Err:          verr,
	}
}

func internalFailure(shopID string, err error) *ShopFailure {
	return &ShopFailure{ShopID: shopID, Reason: FailureInternal, Message: "order could not be created", Err: err}
}
