package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/packlane/orderflow/pkg/db/models"
	"github.com/packlane/orderflow/pkg/enums"
	"github.com/packlane/orderflow/pkg/lock"
	"github.com/packlane/orderflow/pkg/pagination"
	"github.com/packlane/orderflow/pkg/types"
)

// Repository is the persistence surface of the root order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindAllByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, userID *uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	Save(ctx context.Context, order *models.Order) error
	// UpdateStatusFields applies the field set only while the stored status
	// still differs from target, and reports whether the write applied.
	// This is what makes concurrent duplicate transitions safe: only the
	// first caller wins, the rest observe applied=false and re-read.
	UpdateStatusFields(ctx context.Context, id uuid.UUID, target enums.OrderStatus, fields map[string]any) (bool, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Product is the slice of the catalog the engine needs for checkout
// validation.
type Product struct {
	ID          uuid.UUID
	Type        enums.ProductType
	Active      bool
	MinQuantity int
	// MaxQuantity of zero means unbounded.
	MaxQuantity int
}

// ProductCatalog looks up products for position validation. Returns nil
// without error when the id is unknown.
type ProductCatalog interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

// TransactionContext carries the acting user and the provider-specific
// context bag into payment operations.
type TransactionContext struct {
	UserID  uuid.UUID
	Context types.ContextMap
}

// PaymentAdapter is the provider capability behind a payment ledger entry.
// Charge, Confirm and Cancel are expected to be idempotent so an aborted
// cascade can be resumed by re-invoking checkout or confirm.
type PaymentAdapter interface {
	Charge(ctx context.Context, payment *models.OrderPayment, tc TransactionContext) error
	Confirm(ctx context.Context, payment *models.OrderPayment, tc TransactionContext) error
	Cancel(ctx context.Context, payment *models.OrderPayment, tc TransactionContext) error
	IsBlockingOrderConfirmation(ctx context.Context, payment *models.OrderPayment) (bool, error)
	IsBlockingOrderFulfillment(ctx context.Context, payment *models.OrderPayment) (bool, error)
}

// PaymentAdapterResolver maps a provider id to its adapter.
type PaymentAdapterResolver interface {
	PaymentAdapter(providerID string) (PaymentAdapter, error)
}

// DeliveryAdapter is the provider capability behind a delivery ledger entry.
// Send must be idempotent: a confirm retry after a partially executed
// cascade re-invokes it.
type DeliveryAdapter interface {
	Send(ctx context.Context, delivery *models.OrderDelivery, order *models.Order, deliveryContext types.ContextMap) error
	IsBlockingOrderConfirmation(ctx context.Context, delivery *models.OrderDelivery) (bool, error)
	IsBlockingOrderFulfillment(ctx context.Context, delivery *models.OrderDelivery) (bool, error)
}

// DeliveryAdapterResolver maps a provider id to its adapter.
type DeliveryAdapterResolver interface {
	DeliveryAdapter(providerID string) (DeliveryAdapter, error)
}

// Warehousing tokenizes the tokenized-product positions of a confirmed order.
type Warehousing interface {
	TokenizeItems(ctx context.Context, order *models.Order, items []models.OrderPosition) error
}

// Enrollments creates plan enrollments out of a confirmed checkout.
type Enrollments interface {
	CreateFromCheckout(ctx context.Context, order *models.Order, items []models.OrderPosition, context types.ContextMap) error
}

// Quotation is the slice of a quotation the engine inspects.
type Quotation struct {
	ID      uuid.UUID
	Context types.ContextMap
}

// Quotations is the quotation capability: validity check at checkout,
// fulfillment after confirmation. FulfillQuotation must be idempotent.
type Quotations interface {
	FindQuotation(ctx context.Context, id uuid.UUID) (*Quotation, error)
	IsProposalValid(ctx context.Context, quotation *Quotation) (bool, error)
	FulfillQuotation(ctx context.Context, id, orderID, positionID uuid.UUID) error
}

// Users is the account write-back capability: a successful checkout records
// the order's billing address and contact as the user's last used values.
type Users interface {
	UpdateLastBillingAddress(ctx context.Context, userID uuid.UUID, address types.Address) error
	UpdateLastContact(ctx context.Context, userID uuid.UUID, contact types.Contact) error
}

// Locker serializes checkout/confirm/reject calls against the same order.
type Locker interface {
	Acquire(ctx context.Context, orderID, operation string, timeout time.Duration) (*lock.Lease, error)
}
