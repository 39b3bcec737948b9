package commerce

import (
	"fmt"
	"strings"
	"time"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/ids"
)

const (
	maxNameLen             = 128
	maxEmailLen            = 256
	maxStreetLen           = 256
	maxCityLen             = 128
	maxPostalCodeLen       = 32
	maxCountryLen          = 64
	maxOrderDescription    = 8192
	maxLineItemDescription = 256
)

// Each level validates its own fields and maps itself; parents call children top-down.

func validateCustomer(in CustomerInput, withChildren bool) error {
	var v apperr.Validator
	v.NotBlank("name", in.Name)
	v.MaxLen("name", strings.TrimSpace(in.Name), maxNameLen)
	email := strings.TrimSpace(in.Email)
	v.MaxLen("email", email, maxEmailLen)
	v.Check(email == "" || strings.Contains(email, "@"), "email", "must be a well-formed email address")
	if in.Address != nil {
		v.Merge("address", validateAddress(*in.Address))
	}
	if withChildren {
		for i, o := range in.Orders {
			v.Merge(fmt.Sprintf("orders[%d]", i), validateOrder(o, true))
		}
	}
	return v.Err()
}

func validateAddress(in AddressInput) error {
	var v apperr.Validator
	v.NotBlank("street", in.Street)
	v.MaxLen("street", strings.TrimSpace(in.Street), maxStreetLen)
	v.MaxLen("city", strings.TrimSpace(in.City), maxCityLen)
	v.MaxLen("postalCode", strings.TrimSpace(in.PostalCode), maxPostalCodeLen)
	v.MaxLen("country", strings.TrimSpace(in.Country), maxCountryLen)
	return v.Err()
}

func validateOrder(in OrderInput, withChildren bool) error {
	var v apperr.Validator
	v.MaxLen("description", strings.TrimSpace(in.Description), maxOrderDescription)
	if withChildren {
		for i, li := range in.LineItems {
			v.Merge(fmt.Sprintf("lineItems[%d]", i), validateLineItem(li))
		}
	}
	return v.Err()
}

func validateLineItem(in LineItemInput) error {
	var v apperr.Validator
	v.NotBlank("description", in.Description)
	v.MaxLen("description", strings.TrimSpace(in.Description), maxLineItemDescription)
	v.Check(in.Quantity >= 0, "quantity", "must not be negative")
	return v.Err()
}

func customerFromInput(in CustomerInput, now time.Time) Customer {
	c := Customer{
		ID:        ids.Ensure(in.ID),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Orders:    make([]Order, 0, len(in.Orders)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Address != nil {
		a := addressFromInput(c.ID, *in.Address)
		c.Address = &a
	}
	for _, o := range in.Orders {
		c.Orders = append(c.Orders, orderFromInput(c.ID, o, now))
	}
	return c
}

func addressFromInput(customerID string, in AddressInput) Address {
	return Address{
		ID:         ids.Ensure(in.ID),
		CustomerID: customerID,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
	}
}

func orderFromInput(customerID string, in OrderInput, now time.Time) Order {
	o := Order{
		ID:          ids.Ensure(in.ID),
		CustomerID:  customerID,
		Description: strings.TrimSpace(in.Description),
		LineItems:   make([]LineItem, 0, len(in.LineItems)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, li := range in.LineItems {
		o.LineItems = append(o.LineItems, lineItemFromInput(o.ID, li, now))
	}
	return o
}

func lineItemFromInput(orderID string, in LineItemInput, now time.Time) LineItem {
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	return LineItem{
		ID:          ids.Ensure(in.ID),
		OrderID:     orderID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    qty,
		CreatedAt:   now,
	}
}
