package pg

import (
	"context"
	"database/sql"
	"errors"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/paging"
)

const (
	customerColumns = `c.id, c.name, c.email, c.created_at, c.updated_at`
	addressColumns  = `a.id, a.customer_id, a.street, a.city, a.postal_code, a.country`
	orderColumns    = `o.id, o.customer_id, o.description, o.created_at, o.updated_at`
	lineItemColumns = `li.id, li.order_id, li.description, li.quantity, li.created_at`
)

func (s *Store) CreateCustomer(ctx context.Context, c commerce.Customer) (commerce.Customer, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (commerce.Customer, error) {
		if _, err := tx.ExecContext(ctx, `
			insert into customers (id, name, email, created_at, updated_at)
			values ($1, $2, $3, $4, $5)
		`, c.ID, c.Name, c.Email, c.CreatedAt, c.UpdatedAt); err != nil {
			return commerce.Customer{}, translate(err, "customer "+c.ID)
		}
		if c.Address != nil {
			if err := insertAddress(ctx, tx, *c.Address); err != nil {
				return commerce.Customer{}, err
			}
		}
		for _, o := range c.Orders {
			if err := insertOrder(ctx, tx, o); err != nil {
				return commerce.Customer{}, err
			}
		}
		return loadCustomer(ctx, tx, c.ID)
	})
}

func (s *Store) GetCustomer(ctx context.Context, id string) (commerce.Customer, error) {
	return loadCustomer(ctx, s.db, id)
}

// ListCustomers returns customers with their address; orders are fetched per customer.
func (s *Store) ListCustomers(ctx context.Context, req paging.Request) ([]commerce.Customer, int, error) {
	total, err := count(ctx, s.db, `select count(*) from customers`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+customerColumns+`, `+addressColumnsNullable+`
		from customers c
		left join addresses a on a.customer_id = c.id
		order by c.id
		limit $1 offset $2
	`, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	customers, err := collect(rows, scanCustomerWithAddress)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// UpdateCustomer changes name and email and upserts the address, keeping an existing address id.
func (s *Store) UpdateCustomer(ctx context.Context, c commerce.Customer) (commerce.Customer, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (commerce.Customer, error) {
		res, err := tx.ExecContext(ctx, `
			update customers set name = $2, email = $3, updated_at = $4 where id = $1
		`, c.ID, c.Name, c.Email, c.UpdatedAt)
		if err != nil {
			return commerce.Customer{}, err
		}
		if err := affected(res, "customer", c.ID); err != nil {
			return commerce.Customer{}, err
		}
		if a := c.Address; a != nil {
			if _, err := tx.ExecContext(ctx, `
				insert into addresses (id, customer_id, street, city, postal_code, country)
				values ($1, $2, $3, $4, $5, $6)
				on conflict (customer_id) do update
				set street = excluded.street,
				    city = excluded.city,
				    postal_code = excluded.postal_code,
				    country = excluded.country
			`, a.ID, c.ID, a.Street, a.City, a.PostalCode, a.Country); err != nil {
				return commerce.Customer{}, translate(err, "address "+a.ID)
			}
		}
		return loadCustomer(ctx, tx, c.ID)
	})
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from customers where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, "customer", id)
}

func (s *Store) CreateAddress(ctx context.Context, a commerce.Address) (commerce.Address, error) {
	if err := insertAddress(ctx, s.db, a); err != nil {
		return commerce.Address{}, err
	}
	return a, nil
}

func (s *Store) GetAddress(ctx context.Context, customerID, addressID string) (commerce.Address, error) {
	a, err := scanAddress(s.db.QueryRowContext(ctx, `
		select `+addressColumns+` from addresses a where a.customer_id = $1 and a.id = $2
	`, customerID, addressID))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.Address{}, apperr.NotFound("address", addressID)
	}
	return a, err
}

func (s *Store) UpdateAddress(ctx context.Context, a commerce.Address) (commerce.Address, error) {
	out, err := scanAddress(s.db.QueryRowContext(ctx, `
		update addresses a
		set street = $3, city = $4, postal_code = $5, country = $6
		where a.customer_id = $1 and a.id = $2
		returning `+addressColumns,
		a.CustomerID, a.ID, a.Street, a.City, a.PostalCode, a.Country))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.Address{}, apperr.NotFound("address", a.ID)
	}
	return out, err
}

func (s *Store) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	res, err := s.db.ExecContext(ctx, `delete from addresses where customer_id = $1 and id = $2`, customerID, addressID)
	if err != nil {
		return err
	}
	return affected(res, "address", addressID)
}

func (s *Store) CreateOrder(ctx context.Context, o commerce.Order) (commerce.Order, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (commerce.Order, error) {
		if err := insertOrder(ctx, tx, o); err != nil {
			return commerce.Order{}, err
		}
		return loadOrder(ctx, tx, o.CustomerID, o.ID)
	})
}

func (s *Store) GetOrder(ctx context.Context, customerID, orderID string) (commerce.Order, error) {
	return loadOrder(ctx, s.db, customerID, orderID)
}

func (s *Store) ListOrders(ctx context.Context, customerID string, req paging.Request) ([]commerce.Order, int, error) {
	if err := requireCustomer(ctx, s.db, customerID); err != nil {
		return nil, 0, err
	}
	total, err := count(ctx, s.db, `select count(*) from orders where customer_id = $1`, customerID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+orderColumns+`
		from orders o
		where o.customer_id = $1
		order by o.id
		limit $2 offset $3
	`, customerID, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	orders, err := collect(rows, scanOrder)
	if err != nil {
		return nil, 0, err
	}
	if err := attachLineItems(ctx, s.db, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrder changes the description only.
func (s *Store) UpdateOrder(ctx context.Context, o commerce.Order) (commerce.Order, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (commerce.Order, error) {
		res, err := tx.ExecContext(ctx, `
			update orders set description = $3, updated_at = $4
			where customer_id = $1 and id = $2
		`, o.CustomerID, o.ID, o.Description, o.UpdatedAt)
		if err != nil {
			return commerce.Order{}, err
		}
		if err := affected(res, "order", o.ID); err != nil {
			return commerce.Order{}, err
		}
		return loadOrder(ctx, tx, o.CustomerID, o.ID)
	})
}

func (s *Store) DeleteOrder(ctx context.Context, customerID, orderID string) error {
	res, err := s.db.ExecContext(ctx, `delete from orders where customer_id = $1 and id = $2`, customerID, orderID)
	if err != nil {
		return err
	}
	return affected(res, "order", orderID)
}

func (s *Store) CreateLineItem(ctx context.Context, customerID string, li commerce.LineItem) (commerce.LineItem, error) {
	return inTx(ctx, s.db, func(tx *sql.Tx) (commerce.LineItem, error) {
		if err := requireOrder(ctx, tx, customerID, li.OrderID); err != nil {
			return commerce.LineItem{}, err
		}
		if err := insertLineItem(ctx, tx, li); err != nil {
			return commerce.LineItem{}, err
		}
		return li, nil
	})
}

func (s *Store) GetLineItem(ctx context.Context, customerID, orderID, lineItemID string) (commerce.LineItem, error) {
	li, err := scanLineItem(s.db.QueryRowContext(ctx, `
		select `+lineItemColumns+`
		from line_items li
		join orders o on o.id = li.order_id
		where o.customer_id = $1 and li.order_id = $2 and li.id = $3
	`, customerID, orderID, lineItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.LineItem{}, apperr.NotFound("line item", lineItemID)
	}
	return li, err
}

func (s *Store) ListLineItems(ctx context.Context, customerID, orderID string, req paging.Request) ([]commerce.LineItem, int, error) {
	if err := requireOrder(ctx, s.db, customerID, orderID); err != nil {
		return nil, 0, err
	}
	total, err := count(ctx, s.db, `select count(*) from line_items where order_id = $1`, orderID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+lineItemColumns+`
		from line_items li
		where li.order_id = $1
		order by li.id
		limit $2 offset $3
	`, orderID, req.Size, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanLineItem)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) UpdateLineItem(ctx context.Context, customerID string, li commerce.LineItem) (commerce.LineItem, error) {
	out, err := scanLineItem(s.db.QueryRowContext(ctx, `
		update line_items li
		set description = $4, quantity = $5
		from orders o
		where o.id = li.order_id and o.customer_id = $1 and li.order_id = $2 and li.id = $3
		returning `+lineItemColumns,
		customerID, li.OrderID, li.ID, li.Description, li.Quantity))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.LineItem{}, apperr.NotFound("line item", li.ID)
	}
	return out, err
}

func (s *Store) DeleteLineItem(ctx context.Context, customerID, orderID, lineItemID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from line_items li
		using orders o
		where o.id = li.order_id and o.customer_id = $1 and li.order_id = $2 and li.id = $3
	`, customerID, orderID, lineItemID)
	if err != nil {
		return err
	}
	return affected(res, "line item", lineItemID)
}

const addressColumnsNullable = `a.id, a.street, a.city, a.postal_code, a.country`

func scanCustomerWithAddress(sc scanner) (commerce.Customer, error) {
	var (
		c                                  commerce.Customer
		aID, street, city, postal, country sql.NullString
	)
	if err := sc.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt, &aID, &street, &city, &postal, &country); err != nil {
		return commerce.Customer{}, err
	}
	if aID.Valid {
		c.Address = &commerce.Address{
			ID:         aID.String,
			CustomerID: c.ID,
			Street:     street.String,
			City:       city.String,
			PostalCode: postal.String,
			Country:    country.String,
		}
	}
	c.Orders = []commerce.Order{}
	return c, nil
}

func scanAddress(sc scanner) (commerce.Address, error) {
	var a commerce.Address
	err := sc.Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.PostalCode, &a.Country)
	return a, err
}

func scanOrder(sc scanner) (commerce.Order, error) {
	var o commerce.Order
	err := sc.Scan(&o.ID, &o.CustomerID, &o.Description, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanLineItem(sc scanner) (commerce.LineItem, error) {
	var li commerce.LineItem
	err := sc.Scan(&li.ID, &li.OrderID, &li.Description, &li.Quantity, &li.CreatedAt)
	return li, err
}

func loadCustomer(ctx context.Context, q querier, id string) (commerce.Customer, error) {
	c, err := scanCustomerWithAddress(q.QueryRowContext(ctx, `
		select `+customerColumns+`, `+addressColumnsNullable+`
		from customers c
		left join addresses a on a.customer_id = c.id
		where c.id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.Customer{}, apperr.NotFound("customer", id)
	}
	if err != nil {
		return commerce.Customer{}, err
	}
	rows, err := q.QueryContext(ctx, `
		select `+orderColumns+` from orders o where o.customer_id = $1 order by o.id
	`, id)
	if err != nil {
		return commerce.Customer{}, err
	}
	if c.Orders, err = collect(rows, scanOrder); err != nil {
		return commerce.Customer{}, err
	}
	if err := attachLineItems(ctx, q, c.Orders); err != nil {
		return commerce.Customer{}, err
	}
	return c, nil
}

func loadOrder(ctx context.Context, q querier, customerID, orderID string) (commerce.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `
		select `+orderColumns+` from orders o where o.customer_id = $1 and o.id = $2
	`, customerID, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return commerce.Order{}, apperr.NotFound("order", orderID)
	}
	if err != nil {
		return commerce.Order{}, err
	}
	orders := []commerce.Order{o}
	if err := attachLineItems(ctx, q, orders); err != nil {
		return commerce.Order{}, err
	}
	return orders[0], nil
}

func attachLineItems(ctx context.Context, q querier, orders []commerce.Order) error {
	if len(orders) == 0 {
		return nil
	}
	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	rows, err := q.QueryContext(ctx, `
		select `+lineItemColumns+`
		from line_items li
		where li.order_id in (`+placeholders(1, len(orderIDs))+`)
		order by li.id
	`, stringArgs(orderIDs)...)
	if err != nil {
		return err
	}
	items, err := collect(rows, scanLineItem)
	if err != nil {
		return err
	}
	byOrder := map[string][]commerce.LineItem{}
	for _, li := range items {
		byOrder[li.OrderID] = append(byOrder[li.OrderID], li)
	}
	for i := range orders {
		orders[i].LineItems = nonNil(byOrder[orders[i].ID])
	}
	return nil
}

func insertAddress(ctx context.Context, q querier, a commerce.Address) error {
	_, err := q.ExecContext(ctx, `
		insert into addresses (id, customer_id, street, city, postal_code, country)
		values ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.CustomerID, a.Street, a.City, a.PostalCode, a.Country)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrForeignKeyViolation:
			return apperr.NotFound("customer", a.CustomerID)
		case pgErrUniqueViolation:
			return translate(err, "address for customer "+a.CustomerID)
		}
	}
	return err
}

func insertOrder(ctx context.Context, q querier, o commerce.Order) error {
	_, err := q.ExecContext(ctx, `
		insert into orders (id, customer_id, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, o.ID, o.CustomerID, o.Description, o.CreatedAt, o.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return apperr.NotFound("customer", o.CustomerID)
	}
	if err != nil {
		return translate(err, "order "+o.ID)
	}
	for _, li := range o.LineItems {
		if err := insertLineItem(ctx, q, li); err != nil {
			return err
		}
	}
	return nil
}

func insertLineItem(ctx context.Context, q querier, li commerce.LineItem) error {
	_, err := q.ExecContext(ctx, `
		insert into line_items (id, order_id, description, quantity, created_at)
		values ($1, $2, $3, $4, $5)
	`, li.ID, li.OrderID, li.Description, li.Quantity, li.CreatedAt)
	return translate(err, "line item "+li.ID)
}

func requireCustomer(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `select exists (select 1 from customers where id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("customer", id)
	}
	return nil
}

func requireOrder(ctx context.Context, q querier, customerID, orderID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `
		select exists (select 1 from orders where customer_id = $1 and id = $2)
	`, customerID, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("order", orderID)
	}
	return nil
}
