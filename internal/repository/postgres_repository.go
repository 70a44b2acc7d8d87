package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const orderColumns = `id, checkout_id, user_id, status, cancellation_status, items, shipping_address,
	payment_method, total_amount, currency, created_at, updated_at`

const returnRequestColumns = `id, order_id, user_id, product_id, type, reason, new_size, new_color,
	pickup_address, images, status, admin_note, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var status, cancellation string
	var itemsJSON, addressJSON []byte
	if err := row.Scan(
		&order.ID,
		&order.CheckoutID,
		&order.UserID,
		&status,
		&cancellation,
		&itemsJSON,
		&addressJSON,
		&order.PaymentMethod,
		&order.TotalAmount,
		&order.Currency,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Status = domain.ParseStatus(status)
	order.CancellationStatus = domain.ParseCancellationStatus(cancellation)

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &order, nil
}

func scanReturnRequest(row rowScanner) (*domain.ReturnRequest, error) {
	var rr domain.ReturnRequest
	var rrType, reason, status string
	var addressJSON []byte
	if err := row.Scan(
		&rr.ID,
		&rr.OrderID,
		&rr.UserID,
		&rr.ProductID,
		&rrType,
		&reason,
		&rr.NewSize,
		&rr.NewColor,
		&addressJSON,
		pq.Array(&rr.Images),
		&status,
		&rr.AdminNote,
		&rr.CreatedAt,
		&rr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rr.Type = domain.ReturnType(rrType)
	rr.Reason = domain.ReturnReason(reason)
	rr.Status = domain.ReturnStatus(status)
	if err := json.Unmarshal(addressJSON, &rr.PickupAddress); err != nil {
		return nil, fmt.Errorf("unmarshal pickup address: %w", err)
	}
	return &rr, nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, eventType domain.EventType, orderID uuid.UUID) error {
	payload, err := eventPayload(eventType, orderID, time.Now())
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		orderID.String(), string(eventType), payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	query := `INSERT INTO orders (id, checkout_id, user_id, status, cancellation_status, items, shipping_address,
	              payment_method, total_amount, currency, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	          RETURNING created_at, updated_at`

	return r.inTx(ctx, func(tx *sql.Tx) error {
		insertErr := tx.QueryRowContext(ctx, query,
			order.ID,
			order.CheckoutID,
			order.UserID,
			string(order.Status),
			string(order.CancellationStatus),
			itemsJSON,
			addressJSON,
			order.PaymentMethod,
			order.TotalAmount,
			order.Currency,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if insertErr != nil {
			var pqErr *pq.Error
			if errors.As(insertErr, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrDuplicateCheckout
			}
			return fmt.Errorf("insert order: %w", insertErr)
		}
		return insertOutbox(ctx, tx, domain.EventOrderCreated, order.ID)
	})
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	return collectOrders(rows)
}

func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	filter = filter.normalized()

	pattern := ""
	if filter.Search != "" {
		pattern = "%" + escapeLike(filter.Search) + "%"
	}

	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE ($1 = '' OR status = $1)
	            AND ($2 = '' OR id::text ILIKE $2 OR user_id ILIKE $2
	                 OR items::text ILIKE $2 OR shipping_address->>'full_name' ILIKE $2)
	          ORDER BY created_at DESC
	          LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), pattern, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, order *domain.Order, expectedUpdatedAt time.Time) error {
	query := `UPDATE orders SET status = $2, cancellation_status = $3, updated_at = NOW()
	          WHERE id = $1 AND updated_at = $4
	          RETURNING updated_at`

	return r.inTx(ctx, func(tx *sql.Tx) error {
		var updatedAt time.Time
		err := tx.QueryRowContext(ctx, query,
			order.ID,
			string(order.Status),
			string(order.CancellationStatus),
			expectedUpdatedAt,
		).Scan(&updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if e2 := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); e2 != nil {
				return fmt.Errorf("check order exists: %w", e2)
			}
			if !exists {
				return ErrOrderNotFound
			}
			return ErrConcurrentUpdate
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		order.UpdatedAt = updatedAt
		return insertOutbox(ctx, tx, domain.EventOrderUpdated, order.ID)
	})
}

func (r *Repository) CreateReturnRequest(ctx context.Context, rr *domain.ReturnRequest) error {
	addressJSON, err := json.Marshal(rr.PickupAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal pickup address: %w", err)
	}
	images := rr.Images
	if images == nil {
		images = []string{}
	}

	query := `INSERT INTO return_requests (id, order_id, user_id, product_id, type, reason, new_size, new_color,
	              pickup_address, images, status, admin_note, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	          RETURNING created_at, updated_at`

	return r.inTx(ctx, func(tx *sql.Tx) error {
		insertErr := tx.QueryRowContext(ctx, query,
			rr.ID,
			rr.OrderID,
			rr.UserID,
			rr.ProductID,
			string(rr.Type),
			string(rr.Reason),
			rr.NewSize,
			rr.NewColor,
			addressJSON,
			pq.Array(images),
			string(rr.Status),
			rr.AdminNote,
		).Scan(&rr.CreatedAt, &rr.UpdatedAt)
		if insertErr != nil {
			var pqErr *pq.Error
			if errors.As(insertErr, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrDuplicateReturnRequest
			}
			return fmt.Errorf("insert return request: %w", insertErr)
		}
		return insertOutbox(ctx, tx, domain.EventOrderUpdated, rr.OrderID)
	})
}

func (r *Repository) GetReturnRequest(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	query := `SELECT ` + returnRequestColumns + ` FROM return_requests WHERE id = $1`

	rr, err := scanReturnRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReturnRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query return request by id: %w", err)
	}
	return rr, nil
}

func (r *Repository) ListReturnRequestsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.ReturnRequest, error) {
	query := `SELECT ` + returnRequestColumns + ` FROM return_requests WHERE order_id = $1 ORDER BY created_at`
	return r.queryReturnRequests(ctx, query, orderID)
}

func (r *Repository) ListReturnRequestsByUser(ctx context.Context, userID string) ([]domain.ReturnRequest, error) {
	query := `SELECT ` + returnRequestColumns + ` FROM return_requests WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryReturnRequests(ctx, query, userID)
}

// ListReturnRequests lists every request, or only those in status when it is set.
func (r *Repository) ListReturnRequests(ctx context.Context, status domain.ReturnStatus) ([]domain.ReturnRequest, error) {
	query := `SELECT ` + returnRequestColumns + ` FROM return_requests
	          WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`
	return r.queryReturnRequests(ctx, query, string(status))
}

func (r *Repository) queryReturnRequests(ctx context.Context, query string, args ...any) ([]domain.ReturnRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query return requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.ReturnRequest, 0)
	for rows.Next() {
		rr, err := scanReturnRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request row: %w", err)
		}
		requests = append(requests, *rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return requests, nil
}

func (r *Repository) UpdateReturnRequest(ctx context.Context, rr *domain.ReturnRequest) error {
	query := `UPDATE return_requests SET status = $2, admin_note = $3, updated_at = NOW()
	          WHERE id = $1
	          RETURNING updated_at`

	return r.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, rr.ID, string(rr.Status), rr.AdminNote).Scan(&rr.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReturnRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("update return request: %w", err)
		}
		return insertOutbox(ctx, tx, domain.EventOrderUpdated, rr.OrderID)
	})
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM order_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*OutboxEvent, 0)
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateId, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}
