package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/paging"
)

func (s *Store) CreateCustomer(_ context.Context, c commerce.Customer) (commerce.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; ok {
		return commerce.Customer{}, fmt.Errorf("%w: customer %s exists", apperr.ErrConflict, c.ID)
	}
	for _, o := range c.Orders {
		if _, ok := s.orders[o.ID]; ok {
			return commerce.Customer{}, fmt.Errorf("%w: order %s exists", apperr.ErrConflict, o.ID)
		}
	}
	s.customers[c.ID] = commerce.Customer{ID: c.ID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
	if c.Address != nil {
		s.addresses[c.ID] = *c.Address
	}
	for _, o := range c.Orders {
		s.putOrder(o)
	}
	return s.customerView(c.ID, true), nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (commerce.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.customers[id]; !ok {
		return commerce.Customer{}, apperr.NotFound("customer", id)
	}
	return s.customerView(id, true), nil
}

func (s *Store) ListCustomers(_ context.Context, req paging.Request) ([]commerce.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]commerce.Customer, 0, len(s.customers))
	for id := range s.customers {
		all = append(all, s.customerView(id, false))
	}
	items, total := sortedPage(all, func(c commerce.Customer) string { return c.ID }, req)
	return items, total, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c commerce.Customer) (commerce.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.customers[c.ID]
	if !ok {
		return commerce.Customer{}, apperr.NotFound("customer", c.ID)
	}
	cur.Name, cur.Email, cur.UpdatedAt = c.Name, c.Email, c.UpdatedAt
	s.customers[c.ID] = cur
	if c.Address != nil {
		a := *c.Address
		if existing, ok := s.addresses[c.ID]; ok {
			a.ID = existing.ID
		}
		s.addresses[c.ID] = a
	}
	return s.customerView(c.ID, true), nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return apperr.NotFound("customer", id)
	}
	for oid, o := range s.orders {
		if o.CustomerID == id {
			s.dropOrder(oid)
		}
	}
	delete(s.addresses, id)
	delete(s.customers, id)
	return nil
}

func (s *Store) CreateAddress(_ context.Context, a commerce.Address) (commerce.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[a.CustomerID]; !ok {
		return commerce.Address{}, apperr.NotFound("customer", a.CustomerID)
	}
	if _, ok := s.addresses[a.CustomerID]; ok {
		return commerce.Address{}, fmt.Errorf("%w: customer %s already has an address", apperr.ErrConflict, a.CustomerID)
	}
	s.addresses[a.CustomerID] = a
	return a, nil
}

func (s *Store) GetAddress(_ context.Context, customerID, addressID string) (commerce.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.addresses[customerID]
	if !ok || a.ID != addressID {
		return commerce.Address{}, apperr.NotFound("address", addressID)
	}
	return a, nil
}

func (s *Store) UpdateAddress(_ context.Context, a commerce.Address) (commerce.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.addresses[a.CustomerID]
	if !ok || cur.ID != a.ID {
		return commerce.Address{}, apperr.NotFound("address", a.ID)
	}
	s.addresses[a.CustomerID] = a
	return a, nil
}

func (s *Store) DeleteAddress(_ context.Context, customerID, addressID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.addresses[customerID]
	if !ok || cur.ID != addressID {
		return apperr.NotFound("address", addressID)
	}
	delete(s.addresses, customerID)
	return nil
}

func (s *Store) CreateOrder(_ context.Context, o commerce.Order) (commerce.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[o.CustomerID]; !ok {
		return commerce.Order{}, apperr.NotFound("customer", o.CustomerID)
	}
	if _, ok := s.orders[o.ID]; ok {
		return commerce.Order{}, fmt.Errorf("%w: order %s exists", apperr.ErrConflict, o.ID)
	}
	s.putOrder(o)
	return s.orderView(o.ID), nil
}

func (s *Store) GetOrder(_ context.Context, customerID, orderID string) (commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireOrder(customerID, orderID); err != nil {
		return commerce.Order{}, err
	}
	return s.orderView(orderID), nil
}

func (s *Store) ListOrders(_ context.Context, customerID string, req paging.Request) ([]commerce.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.customers[customerID]; !ok {
		return nil, 0, apperr.NotFound("customer", customerID)
	}
	var all []commerce.Order
	for id, o := range s.orders {
		if o.CustomerID == customerID {
			all = append(all, s.orderView(id))
		}
	}
	items, total := sortedPage(all, func(o commerce.Order) string { return o.ID }, req)
	return items, total, nil
}

func (s *Store) UpdateOrder(_ context.Context, o commerce.Order) (commerce.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrder(o.CustomerID, o.ID); err != nil {
		return commerce.Order{}, err
	}
	cur := s.orders[o.ID]
	cur.Description, cur.UpdatedAt = o.Description, o.UpdatedAt
	s.orders[o.ID] = cur
	return s.orderView(o.ID), nil
}

func (s *Store) DeleteOrder(_ context.Context, customerID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrder(customerID, orderID); err != nil {
		return err
	}
	s.dropOrder(orderID)
	return nil
}

func (s *Store) CreateLineItem(_ context.Context, customerID string, li commerce.LineItem) (commerce.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrder(customerID, li.OrderID); err != nil {
		return commerce.LineItem{}, err
	}
	if _, ok := s.lineItems[li.ID]; ok {
		return commerce.LineItem{}, fmt.Errorf("%w: line item %s exists", apperr.ErrConflict, li.ID)
	}
	s.lineItems[li.ID] = li
	return li, nil
}

func (s *Store) GetLineItem(_ context.Context, customerID, orderID, lineItemID string) (commerce.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLineItem(customerID, orderID, lineItemID)
}

func (s *Store) ListLineItems(_ context.Context, customerID, orderID string, req paging.Request) ([]commerce.LineItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireOrder(customerID, orderID); err != nil {
		return nil, 0, err
	}
	items, total := sortedPage(s.itemsOf(orderID), func(li commerce.LineItem) string { return li.ID }, req)
	return items, total, nil
}

func (s *Store) UpdateLineItem(_ context.Context, customerID string, li commerce.LineItem) (commerce.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.findLineItem(customerID, li.OrderID, li.ID)
	if err != nil {
		return commerce.LineItem{}, err
	}
	cur.Description, cur.Quantity = li.Description, li.Quantity
	s.lineItems[li.ID] = cur
	return cur, nil
}

func (s *Store) DeleteLineItem(_ context.Context, customerID, orderID, lineItemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLineItem(customerID, orderID, lineItemID); err != nil {
		return err
	}
	delete(s.lineItems, lineItemID)
	return nil
}

func (s *Store) putOrder(o commerce.Order) {
	items := o.LineItems
	o.LineItems = nil
	s.orders[o.ID] = o
	for _, li := range items {
		s.lineItems[li.ID] = li
	}
}

func (s *Store) dropOrder(orderID string) {
	for id, li := range s.lineItems {
		if li.OrderID == orderID {
			delete(s.lineItems, id)
		}
	}
	delete(s.orders, orderID)
}

func (s *Store) requireOrder(customerID, orderID string) error {
	if _, ok := s.customers[customerID]; !ok {
		return apperr.NotFound("customer", customerID)
	}
	o, ok := s.orders[orderID]
	if !ok || o.CustomerID != customerID {
		return apperr.NotFound("order", orderID)
	}
	return nil
}

func (s *Store) findLineItem(customerID, orderID, lineItemID string) (commerce.LineItem, error) {
	if err := s.requireOrder(customerID, orderID); err != nil {
		return commerce.LineItem{}, err
	}
	li, ok := s.lineItems[lineItemID]
	if !ok || li.OrderID != orderID {
		return commerce.LineItem{}, apperr.NotFound("line item", lineItemID)
	}
	return li, nil
}

func (s *Store) itemsOf(orderID string) []commerce.LineItem {
	items := []commerce.LineItem{}
	for _, li := range s.lineItems {
		if li.OrderID == orderID {
			items = append(items, li)
		}
	}
	slices.SortFunc(items, func(a, b commerce.LineItem) int { return strings.Compare(a.ID, b.ID) })
	return items
}

func (s *Store) orderView(orderID string) commerce.Order {
	o := s.orders[orderID]
	o.LineItems = s.itemsOf(orderID)
	return o
}

func (s *Store) customerView(id string, withOrders bool) commerce.Customer {
	c := s.customers[id]
	if a, ok := s.addresses[id]; ok {
		c.Address = &a
	}
	c.Orders = []commerce.Order{}
	if withOrders {
		for oid, o := range s.orders {
			if o.CustomerID == id {
				c.Orders = append(c.Orders, s.orderView(oid))
			}
		}
		slices.SortFunc(c.Orders, func(a, b commerce.Order) int { return strings.Compare(a.ID, b.ID) })
	}
	return c
}
