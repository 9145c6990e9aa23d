package domain

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusConfirmed       OrderStatus = "CONFIRMED"
	OrderStatusPacked          OrderStatus = "PACKED"
	OrderStatusShipping        OrderStatus = "SHIPPING"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
)

type ActorRole string

const (
	RoleBuyer  ActorRole = "BUYER"
	RoleSeller ActorRole = "SELLER"
	RoleAdmin  ActorRole = "ADMIN"
)

type Actor struct {
	UserID string
	Role   ActorRole
	// ShopID is set for sellers
	ShopID string
}

// transitions is the complete order lifecycle. Each edge lists the non-admin
// roles allowed to take it; admins may take any edge.
var transitions = map[OrderStatus]map[OrderStatus][]ActorRole{
	OrderStatusPending: {
		OrderStatusConfirmed: {RoleSeller},
		OrderStatusCancelled: {RoleBuyer, RoleSeller},
	},
	OrderStatusConfirmed: {
		OrderStatusPacked:    {RoleSeller},
		OrderStatusCancelled: {RoleBuyer, RoleSeller},
	},
	OrderStatusPacked: {
		OrderStatusShipping: {RoleSeller},
	},
	OrderStatusShipping: {
		OrderStatusDelivered: {RoleSeller},
	},
	OrderStatusDelivered: {
		OrderStatusCompleted:       {RoleBuyer},
		OrderStatusReturnRequested: {RoleBuyer},
	},
	OrderStatusReturnRequested: {
		OrderStatusReturned:  {RoleSeller},
		OrderStatusDelivered: {RoleSeller},
	},
}

func CanTransition(from, to OrderStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// CanPerform reports whether role may take the edge from -> to. It is false
// for every edge CanTransition rejects.
func CanPerform(role ActorRole, from, to OrderStatus) bool {
	roles, ok := transitions[from][to]
	if !ok {
		return false
	}
	if role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s OrderStatus) []OrderStatus {
	next := make([]OrderStatus, 0, len(transitions[s]))
	for to := range transitions[s] {
		next = append(next, to)
	}
	return next
}

func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s OrderStatus) IsKnown() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPacked, OrderStatusShipping,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled,
		OrderStatusReturnRequested, OrderStatusReturned:
		return true
	}
	return false
}

// RestoresStock reports whether entering s returns the order's stock.
func (s OrderStatus) RestoresStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

func (s OrderStatus) String() string {
	return string(s)
}
