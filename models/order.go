package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents all possible states of an order
type OrderStatus string

const (
	StatusPending        OrderStatus = "Pending"
	StatusConfirmed      OrderStatus = "Confirmed"
	StatusPreparing      OrderStatus = "Preparing"
	StatusOutForDelivery OrderStatus = "Out for Delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

var OrderStatuses = []OrderStatus{
	StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "Credit Card"
	PaymentDebitCard      PaymentMethod = "Debit Card"
	PaymentPayPal         PaymentMethod = "PayPal"
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentDebitCard, PaymentPayPal, PaymentCashOnDelivery:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

type DeliveryAddress struct {
	Street       string   `json:"street" validate:"required,max=100"`
	City         string   `json:"city" validate:"required,max=50"`
	State        string   `json:"state" validate:"required,max=50"`
	ZipCode      string   `json:"zipCode" validate:"required,max=12"`
	Latitude     *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Instructions string   `json:"instructions,omitempty" validate:"max=200"`
}

type ContactInfo struct {
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email_rfc"`
}

// Pricing is always derived server-side from the order's line items.
type Pricing struct {
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:varchar(32)"`
	DeliveryFee    decimal.Decimal `json:"deliveryFee" gorm:"type:varchar(32)"`
	Tax            decimal.Decimal `json:"tax" gorm:"type:varchar(32)"`
	DiscountAmount decimal.Decimal `json:"discountAmount" gorm:"type:varchar(32)"`
	CouponCode     string          `json:"couponCode,omitempty"`
	Total          decimal.Decimal `json:"total" gorm:"type:varchar(32)"`
}

type OrderRating struct {
	Food     int       `json:"food" validate:"gte=1,lte=5"`
	Delivery int       `json:"delivery" validate:"gte=1,lte=5"`
	Overall  int       `json:"overall" validate:"gte=1,lte=5"`
	Comment  string    `json:"comment,omitempty" validate:"max=500"`
	RatedAt  time.Time `json:"ratedAt"`
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "Pending"
	RefundApproved  RefundStatus = "Approved"
	RefundRejected  RefundStatus = "Rejected"
	RefundProcessed RefundStatus = "Processed"
)

type Refund struct {
	Requested   bool            `json:"requested"`
	Reason      string          `json:"reason"`
	Amount      decimal.Decimal `json:"amount"`
	Status      RefundStatus    `json:"status"`
	RequestedAt time.Time       `json:"requestedAt"`
}

type Order struct {
	ID                    string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CustomerID            string          `json:"customerId" gorm:"type:varchar(36);not null;index:idx_order_customer_created,priority:1;uniqueIndex:idx_order_idempotency,priority:1"`
	Customer              *User           `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	RestaurantID          string          `json:"restaurantId" gorm:"type:varchar(36);not null;index:idx_order_restaurant_status,priority:1"`
	Restaurant            *Restaurant     `json:"restaurant,omitempty" gorm:"foreignKey:RestaurantID"`
	Items                 []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Status                OrderStatus     `json:"status" gorm:"not null;index:idx_order_restaurant_status,priority:2"`
	PaymentMethod         PaymentMethod   `json:"paymentMethod" gorm:"not null"`
	PaymentStatus         PaymentStatus   `json:"paymentStatus" gorm:"not null"`
	PaymentID             string          `json:"paymentId,omitempty"`
	DeliveryAddress       DeliveryAddress `json:"deliveryAddress" gorm:"embedded;embeddedPrefix:delivery_"`
	ContactInfo           ContactInfo     `json:"contactInfo" gorm:"embedded;embeddedPrefix:contact_"`
	Pricing               Pricing         `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	EstimatedDeliveryTime time.Time       `json:"estimatedDeliveryTime"`
	ActualDeliveryTime    *time.Time      `json:"actualDeliveryTime,omitempty"`
	SpecialInstructions   string          `json:"specialInstructions,omitempty"`
	Rating                *OrderRating    `json:"rating,omitempty" gorm:"serializer:json"`
	Refund                *Refund         `json:"refund,omitempty" gorm:"serializer:json"`
	// IdempotencyKey is unique per customer; nil keys never collide.
	IdempotencyKey *string              `json:"-" gorm:"type:varchar(64);uniqueIndex:idx_order_idempotency,priority:2"`
	StatusHistory  []OrderStatusHistory `json:"statusHistory,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `json:"createdAt" gorm:"index:idx_order_customer_created,priority:2,sort:desc"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

type SelectedOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type SelectedCustomization struct {
	Name            string           `json:"name"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
}

// OrderItem snapshots what was charged; later menu edits never reach it.
type OrderItem struct {
	ID                  string                  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID             string                  `json:"orderId" gorm:"type:varchar(36);not null;index"`
	MenuItemID          string                  `json:"menuItemId" gorm:"type:varchar(36);not null"`
	Name                string                  `json:"name"`
	Quantity            int                     `json:"quantity" gorm:"not null"`
	UnitPrice           decimal.Decimal         `json:"unitPrice" gorm:"type:varchar(32);not null"`
	Customizations      []SelectedCustomization `json:"customizations" gorm:"serializer:json"`
	SpecialInstructions string                  `json:"specialInstructions,omitempty"`
	LineTotal           decimal.Decimal         `json:"lineTotal" gorm:"type:varchar(32)"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// OrderStatusHistory tracks every status change
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    string      `json:"orderId" gorm:"type:varchar(36);not null;index"`
	FromStatus OrderStatus `json:"fromStatus"`
	ToStatus   OrderStatus `json:"toStatus" gorm:"not null"`
	ChangedBy  string      `json:"changedBy"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"createdAt"`
}
