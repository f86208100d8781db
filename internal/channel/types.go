package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

var validate = validator.New()

// Window bounds a listing call by creation time.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// RawOrder is a released purchase order as the Channel returns it.
type RawOrder struct {
	PurchaseOrderID string       `json:"purchaseOrderId" validate:"required"`
	CustomerOrderID string       `json:"customerOrderId"`
	OrderDate       time.Time    `json:"orderDate" validate:"required"`
	ShippingInfo    ShippingInfo `json:"shippingInfo"`
	OrderLines      []OrderLine  `json:"orderLines" validate:"required,min=1,dive"`
}

// ShippingInfo carries the ship-to details of a purchase order.
type ShippingInfo struct {
	Phone         string        `json:"phone"`
	MethodCode    string        `json:"methodCode"`
	PostalAddress PostalAddress `json:"postalAddress"`
}

// PostalAddress is the Channel's address shape.
type PostalAddress struct {
	Name       string `json:"name" validate:"required"`
	Address1   string `json:"address1" validate:"required"`
	Address2   string `json:"address2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// OrderLine is one line of a purchase order. Prices are per unit.
type OrderLine struct {
	LineNumber     string          `json:"lineNumber" validate:"required"`
	SKU            string          `json:"sku" validate:"required"`
	ProductName    string          `json:"productName"`
	Quantity       int             `json:"quantity" validate:"gt=0"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	ShippingCharge decimal.Decimal `json:"shippingCharge"`
	Currency       string          `json:"currency"`
}

// Validate checks the fields the importer depends on.
func (o RawOrder) Validate() error {
	if err := validate.Struct(o); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("purchase order %q failed validation", o.PurchaseOrderID))
	}
	for _, line := range o.OrderLines {
		if line.UnitPrice.IsNegative() || line.ShippingCharge.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("purchase order %q line %s has a negative charge", o.PurchaseOrderID, line.LineNumber))
		}
	}
	return nil
}

// RawReturn is a Channel-initiated return of one order line.
type RawReturn struct {
	ReturnOrderID   string          `json:"returnOrderId" validate:"required"`
	PurchaseOrderID string          `json:"purchaseOrderId" validate:"required"`
	CustomerOrderID string          `json:"customerOrderId"`
	ReturnDate      time.Time       `json:"returnOrderDate" validate:"required"`
	LineNumber      string          `json:"lineNumber"`
	SKU             string          `json:"sku" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	RefundAmount    decimal.Decimal `json:"refundAmount"`
	Reason          string          `json:"returnReason"`
	Status          string          `json:"status"`
}

// Validate checks the fields the reconciler depends on.
func (r RawReturn) Validate() error {
	if err := validate.Struct(r); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("return %q failed validation", r.ReturnOrderID))
	}
	if r.RefundAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("return %q has a negative refund", r.ReturnOrderID))
	}
	return nil
}

// LineShipment is the tracking update for one order line.
type LineShipment struct {
	LineNumber     string
	Quantity       int
	Carrier        enums.Carrier
	TrackingNumber string
	TrackingURL    string
	ShippedAt      time.Time
}

// InventoryUpdate is the available quantity for one Channel SKU.
type InventoryUpdate struct {
	SKU      string
	Quantity int
}

// Cents converts a Channel money amount into integer cents.
func Cents(amount decimal.Decimal) int {
	return int(amount.Shift(2).Round(0).IntPart())
}

// MarketplaceSKU strips the listing prefix from a Channel SKU.
func MarketplaceSKU(channelSKU, prefix string) string {
	return strings.TrimPrefix(strings.TrimSpace(channelSKU), prefix)
}

// ChannelSKU is the SKU a marketplace product is listed under on the Channel.
func ChannelSKU(sku, prefix string) string {
	if prefix == "" || strings.HasPrefix(sku, prefix) {
		return sku
	}
	return prefix + sku
}
