package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/easyeat/internal/domain/order"
)

const orderColumns = `id, lines, items_subtotal, delivery_fee, address, phone, notes,
	status, customer_id, customer_name, seller_id, seller_name, created_at, updated_at`

// Re-inserting an existing id returns the stored timestamps so retried
// writes are idempotent.
const createOrderSQL = `INSERT INTO orders (id, lines, items_subtotal, delivery_fee, address,
	phone, notes, status, customer_id, customer_name, seller_id, seller_name)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET updated_at = orders.updated_at
	RETURNING created_at, updated_at`

const getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

const updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
	WHERE id = $1 AND status = $2
	RETURNING updated_at`

const orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

const listByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE customer_id = $1 ORDER BY created_at DESC`

const listBySellerSQL = `SELECT ` + orderColumns + ` FROM orders WHERE seller_id = $1`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Lines are stored as a JSONB document in the
// same shape the device keeps them.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	status := o.Status
	if status == "" {
		status = order.StatusNew
	}

	err := r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, order.MarshalLines(o.Lines), o.ItemsSubtotal, o.DeliveryFee, o.Address,
		o.Phone, o.Notes, string(status), o.CustomerID, o.CustomerName, o.SellerID, o.SellerName,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	o.Status = status
	return nil
}

// Get returns order.ErrOrderNotFound when id is unknown.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// UpdateStatus performs a compare-and-set on the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (time.Time, error) {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, updateStatusSQL, id, string(from), string(to)).Scan(&updatedAt)
	if err == nil {
		return updatedAt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, errors.Wrapf(err, "update order %q status", id)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return time.Time{}, errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return time.Time{}, order.ErrOrderNotFound
	}
	return time.Time{}, order.ErrStatusChanged
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listByCustomerSQL, customerID)
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string, opts order.ListOptions) ([]order.Order, error) {
	query := listBySellerSQL
	if opts.NewestFirst {
		query += ` ORDER BY created_at DESC`
	}
	return r.list(ctx, query, sellerID)
}

func (r *OrderRepository) list(ctx context.Context, query, arg string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		lines  []byte
		status string
	)
	if err := row.Scan(
		&o.ID, &lines, &o.ItemsSubtotal, &o.DeliveryFee, &o.Address, &o.Phone, &o.Notes,
		&status, &o.CustomerID, &o.CustomerName, &o.SellerID, &o.SellerName, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", o.ID)
	}
	o.Status = st

	if o.Lines, err = order.UnmarshalLines(lines); err != nil {
		return nil, errors.Wrapf(err, "order %q lines", o.ID)
	}
	return &o, nil
}
