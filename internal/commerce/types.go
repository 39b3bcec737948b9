// Package commerce manages customers, their address, orders and line items.
package commerce

import (
	"context"
	"time"

	"shopcore.dev/internal/paging"
)

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Address   *Address  `json:"address,omitempty"`
	Orders    []Order   `json:"orders"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Address struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Street     string `json:"street"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Order struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	Description string     `json:"description,omitempty"`
	LineItems   []LineItem `json:"lineItems"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type LineItem struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CustomerInput is the create/update payload. Orders are only read on create.
type CustomerInput struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Address *AddressInput `json:"address"`
	Orders  []OrderInput  `json:"orders"`
}

type AddressInput struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderInput is the create/update payload. LineItems are only read on create.
type OrderInput struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	LineItems   []LineItemInput `json:"lineItems"`
}

type LineItemInput struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// Repository persists the customer aggregate. Nested lookups are scoped by their
// parents: an order of another customer is reported as not found.
type Repository interface {
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id string) (Customer, error)
	ListCustomers(ctx context.Context, req paging.Request) ([]Customer, int, error)
	UpdateCustomer(ctx context.Context, c Customer) (Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreateAddress(ctx context.Context, a Address) (Address, error)
	GetAddress(ctx context.Context, customerID, addressID string) (Address, error)
	UpdateAddress(ctx context.Context, a Address) (Address, error)
	DeleteAddress(ctx context.Context, customerID, addressID string) error

	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, customerID, orderID string) (Order, error)
	ListOrders(ctx context.Context, customerID string, req paging.Request) ([]Order, int, error)
	UpdateOrder(ctx context.Context, o Order) (Order, error)
	DeleteOrder(ctx context.Context, customerID, orderID string) error

	CreateLineItem(ctx context.Context, customerID string, li LineItem) (LineItem, error)
	GetLineItem(ctx context.Context, customerID, orderID, lineItemID string) (LineItem, error)
	ListLineItems(ctx context.Context, customerID, orderID string, req paging.Request) ([]LineItem, int, error)
	UpdateLineItem(ctx context.Context, customerID string, li LineItem) (LineItem, error)
	DeleteLineItem(ctx context.Context, customerID, orderID, lineItemID string) error
}
