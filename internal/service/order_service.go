package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/metrics"
	"github.com/fjod/go_market/internal/publisher"
	"github.com/fjod/go_market/internal/repository"
	"github.com/fjod/go_market/internal/store"
	"github.com/fjod/go_market/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type OrderService struct {
	orders   OrderStore
	ledger   store.StockLedger
	clock    domain.Clock
	notifier Dispatcher
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewOrderService(orders OrderStore, ledger store.StockLedger, clock domain.Clock, notifier Dispatcher, m *metrics.Metrics, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &OrderService{
		orders:   orders,
		ledger:   ledger,
		clock:    clock,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

// GetOrder returns the order if actor may see it. Orders of other buyers or
// shops are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(order, actor) {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns a seller's shop orders, or else the actor's own purchases.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor) ([]*domain.Order, error) {
	if actor.Role == domain.RoleSeller {
		return s.orders.ListOrdersByShop(ctx, actor.ShopID)
	}
	return s.orders.ListOrdersByBuyer(ctx, actor.UserID)
}

// TransitionOrderStatus moves the order to status `to` and applies the side
// effects of entering it. Stock given back on CANCELLED and RETURNED is
// journaled under the order's restock reference, so it happens once.
func (s *OrderService) TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, actor domain.Actor, to domain.OrderStatus, reason string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "transitionOrderStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("order.to", string(to)),
		attribute.String("actor.role", string(actor.Role)),
	)

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !domain.CanTransition(from, to) {
		err := &domain.InvalidTransitionError{From: from, To: to}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !domain.CanPerform(actor.Role, from, to) {
		err := &domain.ForbiddenTransitionError{Role: actor.Role, From: from, To: to}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	updated := *order
	now := s.clock.Now()
	applyTransition(&updated, to, reason, now)

	if err := s.orders.UpdateOrderStatus(ctx, &updated, from); err != nil {
		if errors.Is(err, repository.ErrStaleOrder) {
			return nil, &domain.ConflictError{Resource: "order", Reason: "status changed concurrently"}
		}
		return nil, err
	}

	log := logger.WithTrace(ctx, s.log).With(
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	log.Info("order status changed", zap.String("actor", actor.UserID))
	s.metrics.Transition(string(from), string(to))

	if to.RestoresStock() {
		s.Restock(ctx, &updated)
	}
	s.notifyStatusChanged(&updated, from)

	return &updated, nil
}

// Restock returns the stock of order to the ledger. Calls for the same
// order after the first are no-ops; failures are logged and left to the
// reconciler.
func (s *OrderService) Restock(ctx context.Context, order *domain.Order) {
	ctx = context.WithoutCancel(ctx)
	ref := store.RestockRef(order.ID.String())
	plan := order.StockPlan()

	for _, key := range sortedKeys(plan) {
		s.metrics.Compensation("restock")
		if _, err := s.ledger.Increment(ctx, ref, key, plan[key]); err != nil {
			logger.WithTrace(ctx, s.log).Error("failed to restock",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", key.ProductID),
				zap.String("variant_id", key.VariantID),
				zap.Error(err))
		}
	}
}

func applyTransition(o *domain.Order, to domain.OrderStatus, reason string, now time.Time) {
	o.Status = to
	o.UpdatedAt = now

	switch to {
	case domain.OrderStatusCancelled:
		if reason != "" {
			o.CancellationReason = &reason
		}
	case domain.OrderStatusDelivered:
		// cash is collected on delivery
		if o.PaymentStatus == domain.PaymentStatusUnpaid {
			o.PaymentStatus = domain.PaymentStatusPaid
		}
	case domain.OrderStatusCompleted:
		o.CompletedAt = &now
	case domain.OrderStatusReturned:
		o.PaymentStatus = domain.PaymentStatusRefunded
	}
}

func canView(o *domain.Order, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleSeller:
		return actor.ShopID != "" && o.ShopID == actor.ShopID
	default:
		return o.IsOwnedBy(actor.UserID)
	}
}

func (s *OrderService) notifyStatusChanged(o *domain.Order, from domain.OrderStatus) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(publisher.Notification{
		UserID: o.BuyerID,
		Type:   publisher.TypeOrderStatusChanged,
		Payload: map[string]any{
			"order_id":     o.ID.String(),
			"order_number": o.OrderNumber,
			"from":         from,
			"to":           o.Status,
		},
		OccurredAt: o.UpdatedAt,
	})
}

func sortedKeys(plan map[domain.StockKey]int) []domain.StockKey {
	keys := make([]domain.StockKey, 0, len(plan))
	for k := range plan {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].VariantID < keys[j].VariantID
	})
	return keys
}
