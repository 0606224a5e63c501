package domain

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusDraft is a priced-but-unpaid order tied to an in-progress card checkout.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusWaitingBankTransfer is committed and awaits the customer's transfer.
	OrderStatusWaitingBankTransfer OrderStatus = "waitingBankTransfer"
	// OrderStatusPaid is committed and paid; fulfilment progress lives in WorkflowStep.
	OrderStatusPaid OrderStatus = "paid"
)

// Valid reports whether the status is a known state.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusWaitingBankTransfer, OrderStatusPaid:
		return true
	}
	return false
}

// Committed reports whether the order is charge-committed and therefore append-only.
func (s OrderStatus) Committed() bool {
	switch s {
	case OrderStatusWaitingBankTransfer, OrderStatusPaid:
		return true
	case OrderStatusDraft:
		return false
	}
	return false
}

// orderStateTransitions lists the allowed status moves. An empty source means creation.
var orderStateTransitions = map[OrderStatus][]OrderStatus{
	"":                             {OrderStatusDraft, OrderStatusWaitingBankTransfer, OrderStatusPaid},
	OrderStatusDraft:               {OrderStatusPaid},
	OrderStatusPaid:                {},
	OrderStatusWaitingBankTransfer: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range orderStateTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// WorkflowStep tracks fulfilment while an order is paid.
type WorkflowStep string

const (
	// WorkflowInProduction is the first step after payment.
	WorkflowInProduction WorkflowStep = "inProduction"
	// WorkflowShipping starts when a shipping label is purchased.
	WorkflowShipping WorkflowStep = "shipping"
	// WorkflowDelivered is terminal.
	WorkflowDelivered WorkflowStep = "delivered"
)

// Valid reports whether the step is a known state.
func (w WorkflowStep) Valid() bool {
	switch w {
	case WorkflowInProduction, WorkflowShipping, WorkflowDelivered:
		return true
	}
	return false
}

// Next returns the step that follows w.
func (w WorkflowStep) Next() (WorkflowStep, bool) {
	switch w {
	case WorkflowInProduction:
		return WorkflowShipping, true
	case WorkflowShipping:
		return WorkflowDelivered, true
	case WorkflowDelivered:
		return "", false
	}
	return "", false
}

// PaymentMethod records how a committed order was or will be paid.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bankTransfer"
	PaymentMethodGiftCard     PaymentMethod = "giftCard"
)
