package commerce

import (
	"context"
	"errors"
	"strings"
	"time"

	"shopcore.dev/internal/events"
	"shopcore.dev/internal/obs"
	"shopcore.dev/internal/paging"
)

// Service orchestrates validation, mapping, persistence and event publication.
// Events are best effort: a failed publish is logged and never fails the request.
type Service struct {
	repo      Repository
	publisher events.Publisher
	now       func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, publisher events.Publisher, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("commerce: repository is required")
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(nil)
	}
	s := &Service{repo: repo, publisher: publisher, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) publish(ctx context.Context, typ, subject string, data any) {
	if err := s.publisher.Publish(ctx, events.New(typ, subject, data)); err != nil {
		obs.Logger(ctx).WarnContext(ctx, "publish domain event failed", "type", typ, "subject", subject, "error", err)
	}
}

// CreateCustomer stores the customer together with its address, orders and line items.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	if err := validateCustomer(in, true); err != nil {
		return Customer{}, err
	}
	c, err := obs.Timed(ctx, "commerce.create_customer", func(ctx context.Context) (Customer, error) {
		return s.repo.CreateCustomer(ctx, customerFromInput(in, s.timestamp()))
	})
	if err != nil {
		return Customer{}, err
	}
	s.publish(ctx, events.CustomerCreated, c.ID, c)
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (Customer, error) {
	return obs.Timed(ctx, "commerce.get_customer", func(ctx context.Context) (Customer, error) {
		return s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	})
}

func (s *Service) ListCustomers(ctx context.Context, req paging.Request) (paging.Page[Customer], error) {
	req = req.Normalize()
	items, total, err := s.repo.ListCustomers(ctx, req)
	if err != nil {
		return paging.Page[Customer]{}, err
	}
	return paging.New(items, req, total), nil
}

// UpdateCustomer replaces name and email; an address in the payload is upserted.
func (s *Service) UpdateCustomer(ctx context.Context, id string, in CustomerInput) (Customer, error) {
	if err := validateCustomer(in, false); err != nil {
		return Customer{}, err
	}
	id = strings.TrimSpace(id)
	c, err := obs.Timed(ctx, "commerce.update_customer", func(ctx context.Context) (Customer, error) {
		mapped := customerFromInput(CustomerInput{ID: id, Name: in.Name, Email: in.Email, Address: in.Address}, s.timestamp())
		return s.repo.UpdateCustomer(ctx, mapped)
	})
	if err != nil {
		return Customer{}, err
	}
	s.publish(ctx, events.CustomerUpdated, c.ID, c)
	return c, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := obs.TimedErr(ctx, "commerce.delete_customer", func(ctx context.Context) error {
		return s.repo.DeleteCustomer(ctx, id)
	}); err != nil {
		return err
	}
	s.publish(ctx, events.CustomerDeleted, id, nil)
	return nil
}

func (s *Service) CreateAddress(ctx context.Context, customerID string, in AddressInput) (Address, error) {
	if err := validateAddress(in); err != nil {
		return Address{}, err
	}
	a, err := s.repo.CreateAddress(ctx, addressFromInput(strings.TrimSpace(customerID), in))
	if err != nil {
		return Address{}, err
	}
	s.publish(ctx, events.AddressSaved, a.CustomerID, a)
	return a, nil
}

func (s *Service) GetAddress(ctx context.Context, customerID, addressID string) (Address, error) {
	return s.repo.GetAddress(ctx, strings.TrimSpace(customerID), strings.TrimSpace(addressID))
}

func (s *Service) UpdateAddress(ctx context.Context, customerID, addressID string, in AddressInput) (Address, error) {
	if err := validateAddress(in); err != nil {
		return Address{}, err
	}
	in.ID = strings.TrimSpace(addressID)
	a, err := s.repo.UpdateAddress(ctx, addressFromInput(strings.TrimSpace(customerID), in))
	if err != nil {
		return Address{}, err
	}
	s.publish(ctx, events.AddressSaved, a.CustomerID, a)
	return a, nil
}

func (s *Service) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	customerID = strings.TrimSpace(customerID)
	if err := s.repo.DeleteAddress(ctx, customerID, strings.TrimSpace(addressID)); err != nil {
		return err
	}
	s.publish(ctx, events.AddressDeleted, customerID, nil)
	return nil
}

// CreateOrder stores the order and its line items for an existing customer.
func (s *Service) CreateOrder(ctx context.Context, customerID string, in OrderInput) (Order, error) {
	if err := validateOrder(in, true); err != nil {
		return Order{}, err
	}
	customerID = strings.TrimSpace(customerID)
	o, err := obs.Timed(ctx, "commerce.create_order", func(ctx context.Context) (Order, error) {
		return s.repo.CreateOrder(ctx, orderFromInput(customerID, in, s.timestamp()))
	})
	if err != nil {
		return Order{}, err
	}
	s.publish(ctx, events.OrderCreated, customerID, o)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, customerID, orderID string) (Order, error) {
	return obs.Timed(ctx, "commerce.get_order", func(ctx context.Context) (Order, error) {
		return s.repo.GetOrder(ctx, strings.TrimSpace(customerID), strings.TrimSpace(orderID))
	})
}

func (s *Service) ListOrders(ctx context.Context, customerID string, req paging.Request) (paging.Page[Order], error) {
	req = req.Normalize()
	items, total, err := s.repo.ListOrders(ctx, strings.TrimSpace(customerID), req)
	if err != nil {
		return paging.Page[Order]{}, err
	}
	return paging.New(items, req, total), nil
}

// UpdateOrder replaces the description; line items are managed through their own calls.
func (s *Service) UpdateOrder(ctx context.Context, customerID, orderID string, in OrderInput) (Order, error) {
	if err := validateOrder(in, false); err != nil {
		return Order{}, err
	}
	customerID = strings.TrimSpace(customerID)
	o := orderFromInput(customerID, OrderInput{ID: strings.TrimSpace(orderID), Description: in.Description}, s.timestamp())
	updated, err := obs.Timed(ctx, "commerce.update_order", func(ctx context.Context) (Order, error) {
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	s.publish(ctx, events.OrderUpdated, customerID, updated)
	return updated, nil
}

func (s *Service) DeleteOrder(ctx context.Context, customerID, orderID string) error {
	customerID = strings.TrimSpace(customerID)
	if err := s.repo.DeleteOrder(ctx, customerID, strings.TrimSpace(orderID)); err != nil {
		return err
	}
	s.publish(ctx, events.OrderDeleted, customerID, map[string]string{"orderId": orderID})
	return nil
}

func (s *Service) CreateLineItem(ctx context.Context, customerID, orderID string, in LineItemInput) (LineItem, error) {
	if err := validateLineItem(in); err != nil {
		return LineItem{}, err
	}
	customerID = strings.TrimSpace(customerID)
	li, err := s.repo.CreateLineItem(ctx, customerID, lineItemFromInput(strings.TrimSpace(orderID), in, s.timestamp()))
	if err != nil {
		return LineItem{}, err
	}
	s.publish(ctx, events.LineItemSaved, customerID, li)
	return li, nil
}

func (s *Service) GetLineItem(ctx context.Context, customerID, orderID, lineItemID string) (LineItem, error) {
	return s.repo.GetLineItem(ctx, strings.TrimSpace(customerID), strings.TrimSpace(orderID), strings.TrimSpace(lineItemID))
}

func (s *Service) ListLineItems(ctx context.Context, customerID, orderID string, req paging.Request) (paging.Page[LineItem], error) {
	req = req.Normalize()
	items, total, err := s.repo.ListLineItems(ctx, strings.TrimSpace(customerID), strings.TrimSpace(orderID), req)
	if err != nil {
		return paging.Page[LineItem]{}, err
	}
	return paging.New(items, req, total), nil
}

func (s *Service) UpdateLineItem(ctx context.Context, customerID, orderID, lineItemID string, in LineItemInput) (LineItem, error) {
	if err := validateLineItem(in); err != nil {
		return LineItem{}, err
	}
	customerID = strings.TrimSpace(customerID)
	in.ID = strings.TrimSpace(lineItemID)
	li, err := s.repo.UpdateLineItem(ctx, customerID, lineItemFromInput(strings.TrimSpace(orderID), in, s.timestamp()))
	if err != nil {
		return LineItem{}, err
	}
	s.publish(ctx, events.LineItemSaved, customerID, li)
	return li, nil
}

func (s *Service) DeleteLineItem(ctx context.Context, customerID, orderID, lineItemID string) error {
	customerID = strings.TrimSpace(customerID)
	if err := s.repo.DeleteLineItem(ctx, customerID, strings.TrimSpace(orderID), strings.TrimSpace(lineItemID)); err != nil {
		return err
	}
	s.publish(ctx, events.LineItemDeleted, customerID, map[string]string{"lineItemId": lineItemID})
	return nil
}
