package commerce

import (
	"errors"
	"strings"
	"testing"
	"time"

	"shopcore.dev/internal/apperr"
)

func TestCustomerFromInputMapsTree(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := customerFromInput(CustomerInput{
		Name:    "  Ada  ",
		Email:   " Ada@Example.COM ",
		Address: &AddressInput{Street: " 1 Main St ", City: "Springfield"},
		Orders: []OrderInput{{
			ID:          "order-1",
			Description: "first",
			LineItems:   []LineItemInput{{Description: "widget"}, {Description: "gadget", Quantity: 3}},
		}},
	}, now)

	if c.ID == "" || c.Name != "Ada" || c.Email != "ada@example.com" {
		t.Fatalf("unexpected customer %+v", c)
	}
	if c.Address == nil || c.Address.CustomerID != c.ID || c.Address.Street != "1 Main St" || c.Address.ID == "" {
		t.Fatalf("unexpected address %+v", c.Address)
	}
	if len(c.Orders) != 1 || c.Orders[0].ID != "order-1" || c.Orders[0].CustomerID != c.ID {
		t.Fatalf("unexpected orders %+v", c.Orders)
	}
	items := c.Orders[0].LineItems
	if len(items) != 2 || items[0].OrderID != "order-1" {
		t.Fatalf("unexpected line items %+v", items)
	}
	if items[0].Quantity != 1 || items[1].Quantity != 3 {
		t.Fatalf("quantity defaulting broken: %d %d", items[0].Quantity, items[1].Quantity)
	}
	if !c.CreatedAt.Equal(now) || !items[1].CreatedAt.Equal(now) {
		t.Fatalf("timestamps not propagated")
	}
}

func TestValidateCustomerCollectsNestedFields(t *testing.T) {
	err := validateCustomer(CustomerInput{
		Name:    " ",
		Email:   "not-an-email",
		Address: &AddressInput{Street: ""},
		Orders: []OrderInput{
			{Description: strings.Repeat("x", maxOrderDescription+1)},
			{LineItems: []LineItemInput{{Description: "ok"}, {Description: "", Quantity: -1}}},
		},
	}, true)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	got := map[string]bool{}
	for _, f := range verr.Fields {
		got[f.Field] = true
	}
	for _, field := range []string{
		"name",
		"email",
		"address.street",
		"orders[0].description",
		"orders[1].lineItems[1].description",
		"orders[1].lineItems[1].quantity",
	} {
		if !got[field] {
			t.Fatalf("missing field error %q in %v", field, verr.Fields)
		}
	}
	if got["orders[1].lineItems[0].description"] {
		t.Fatalf("valid line item was flagged")
	}
}

func TestValidateCustomerSkipsChildrenOnUpdate(t *testing.T) {
	err := validateCustomer(CustomerInput{
		Name:   "Ada",
		Orders: []OrderInput{{LineItems: []LineItemInput{{Description: ""}}}},
	}, false)
	if err != nil {
		t.Fatalf("children must be ignored on update: %v", err)
	}
}

func TestValidateLineItemLimits(t *testing.T) {
	if err := validateLineItem(LineItemInput{Description: strings.Repeat("a", maxLineItemDescription)}); err != nil {
		t.Fatalf("description at the limit rejected: %v", err)
	}
	if err := validateLineItem(LineItemInput{Description: strings.Repeat("a", maxLineItemDescription+1)}); err == nil {
		t.Fatalf("description over the limit accepted")
	}
}
