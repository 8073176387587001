package psql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	databaseerrors "shopping/internal/database"
	"shopping/internal/models"
	"shopping/internal/port"
	"shopping/pkg/lib/logger/sl"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	log *slog.Logger
	db  *sqlx.DB
}

func New(log *slog.Logger, connStr string) (*Storage, error) {
	const op = "database.psql.New"

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		log.With("op", op).Error("Error connect to database", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := Migrate(db.DB); err != nil {
		log.With("op", op).Error("Error applying migrations", sl.Err(err))
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		log: log,
		db:  db,
	}, nil
}

func NewWithParams(log *slog.Logger, db *sqlx.DB) *Storage {
	return &Storage{
		log: log,
		db:  db,
	}
}

func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *Storage) GetAll(ctx context.Context) ([]models.Product, error) {
	const op = "database.psql.GetAll"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	products, err := queries{q: s.db}.getAll(ctx)
	if err != nil {
		log.Error("Failed to select products", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

func (s *Storage) GetByName(ctx context.Context, name string) (models.Product, bool, error) {
	const op = "database.psql.GetByName"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	p, ok, err := queries{q: s.db}.getByName(ctx, name)
	if err != nil {
		log.Error("Failed to select product", slog.String("name", name), sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return p, ok, nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	const op = "database.psql.GetByID"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	p, ok, err := queries{q: s.db}.getByID(ctx, id)
	if err != nil {
		log.Error("Failed to select product", slog.String("id", id.String()), sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return p, ok, nil
}

func (s *Storage) Save(ctx context.Context, product models.Product) error {
	const op = "database.psql.Save"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := (queries{q: s.db}).save(ctx, product); err != nil {
		if errors.Is(err, databaseerrors.ErrAlreadyExists) {
			log.Warn("Product name is taken", slog.String("name", product.Name))
		} else {
			log.Error("Failed to save product", sl.Err(err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	const op = "database.psql.GetCart"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	cart, ok, err := queries{q: s.db}.getCart(ctx, customerId)
	if err != nil {
		log.Error("Failed to select cart", slog.Int64("customer_id", customerId), sl.Err(err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return cart, ok, nil
}

func (s *Storage) SaveCart(ctx context.Context, cart *models.Cart) error {
	const op = "database.psql.SaveCart"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Error("Failed to begin transaction", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if err := (queries{q: tx, lock: true}).saveCart(ctx, cart); err != nil {
		log.Error("Failed to save cart", slog.Int64("customer_id", cart.Customer.Id), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		log.Error("Failed to commit transaction", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteCart(ctx context.Context, customerId int64) error {
	const op = "database.psql.DeleteCart"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := (queries{q: s.db}).deleteCart(ctx, customerId); err != nil {
		log.Error("Failed to delete cart", slog.Int64("customer_id", customerId), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InTx runs fn inside a database transaction. Products read through the
// transaction, and the carts of customers it touches, stay locked until it ends.
func (s *Storage) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	const op = "database.psql.InTx"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Error("Failed to begin transaction", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{queries{q: tx, lock: true}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("Failed to commit transaction", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

type txStore struct {
	queries
}

func (t *txStore) GetAll(ctx context.Context) ([]models.Product, error) {
	return t.getAll(ctx)
}

func (t *txStore) GetByName(ctx context.Context, name string) (models.Product, bool, error) {
	return t.getByName(ctx, name)
}

func (t *txStore) GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	return t.getByID(ctx, id)
}

func (t *txStore) Save(ctx context.Context, product models.Product) error {
	return t.save(ctx, product)
}

func (t *txStore) GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	return t.getCart(ctx, customerId)
}

func (t *txStore) SaveCart(ctx context.Context, cart *models.Cart) error {
	return t.saveCart(ctx, cart)
}

func (t *txStore) DeleteCart(ctx context.Context, customerId int64) error {
	return t.deleteCart(ctx, customerId)
}

type queries struct {
	q    sqlx.ExtContext
	lock bool
}

func (r queries) getAll(ctx context.Context) ([]models.Product, error) {
	products := make([]models.Product, 0, 16)
	if err := sqlx.SelectContext(ctx, r.q, &products, `
		SELECT id, name, count FROM product
		ORDER BY name;
	`); err != nil {
		return nil, err
	}
	return products, nil
}

func (r queries) getByName(ctx context.Context, name string) (models.Product, bool, error) {
	query := `
		SELECT id, name, count FROM product
		WHERE name=$1`
	if r.lock {
		query += ` FOR UPDATE`
	}
	return r.getOne(ctx, query, name)
}

func (r queries) getByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	query := `
		SELECT id, name, count FROM product
		WHERE id=$1`
	if r.lock {
		query += ` FOR UPDATE`
	}
	return r.getOne(ctx, query, id)
}

func (r queries) getOne(ctx context.Context, query string, arg any) (models.Product, bool, error) {
	var p models.Product
	if err := sqlx.GetContext(ctx, r.q, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, false, nil
		}
		return models.Product{}, false, err
	}
	return p, true, nil
}

func (r queries) save(ctx context.Context, product models.Product) error {
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO product (id, name, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, count = EXCLUDED.count;
	`, product.Id, product.Name, product.Count); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("product %q: %w", product.Name, databaseerrors.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// lockCart serializes cart changes of one customer until the transaction ends.
// A row lock would not cover a cart that does not exist yet.
func (r queries) lockCart(ctx context.Context, customerId int64) error {
	if !r.lock {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1);`, customerId)
	return err
}

func (r queries) getCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	if err := r.lockCart(ctx, customerId); err != nil {
		return nil, false, err
	}

	var (
		customer models.Customer
		revision uuid.UUID
	)
	if err := r.q.QueryRowxContext(ctx, `
		SELECT customer_id, phone, revision FROM cart
		WHERE customer_id=$1;
	`, customerId).Scan(&customer.Id, &customer.Phone, &revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	rows, err := r.q.QueryxContext(ctx, `
		SELECT p.id, p.name, p.count, ci.quantity FROM cart_item AS ci
		JOIN product AS p
		ON ci.product_id = p.id
		WHERE ci.customer_id=$1;
	`, customerId)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	cart := models.NewCart(customer)
	cart.Revision = revision
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.Product.Id, &line.Product.Name, &line.Product.Count, &line.Quantity); err != nil {
			return nil, false, err
		}
		cart.Restore(line)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	return cart, true, nil
}

// saveCart replaces the stored cart under a fresh revision and records it on cart.
func (r queries) saveCart(ctx context.Context, cart *models.Cart) error {
	if err := r.lockCart(ctx, cart.Customer.Id); err != nil {
		return err
	}

	revision := uuid.New()
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO cart (customer_id, phone, revision)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET phone = EXCLUDED.phone, revision = EXCLUDED.revision;
	`, cart.Customer.Id, cart.Customer.Phone, revision); err != nil {
		return err
	}

	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_item
		WHERE customer_id=$1;
	`, cart.Customer.Id); err != nil {
		return err
	}

	for _, line := range cart.Lines() {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO cart_item (customer_id, product_id, quantity)
			VALUES ($1, $2, $3);
		`, cart.Customer.Id, line.Product.Id, line.Quantity); err != nil {
			return err
		}
	}

	cart.Revision = revision
	return nil
}

func (r queries) deleteCart(ctx context.Context, customerId int64) error {
	if err := r.lockCart(ctx, customerId); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM cart
		WHERE customer_id=$1;
	`, customerId)
	return err
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
