package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	databaseerrors "shopping/internal/database"
	"shopping/internal/models"
	"shopping/internal/port"
	"shopping/pkg/lib/logger/sl"

	"github.com/google/uuid"
)

type Storage struct {
	log *slog.Logger

	mu sync.RWMutex
	st *state
}

func New(log *slog.Logger) *Storage {
	return &Storage{
		log: log,
		st:  newState(),
	}
}

func (s *Storage) GetAll(ctx context.Context) ([]models.Product, error) {
	const op = "database.memory.GetAll"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.getAll(), nil
}

func (s *Storage) GetByName(ctx context.Context, name string) (models.Product, bool, error) {
	const op = "database.memory.GetByName"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.getByName(name)
	return p, ok, nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	const op = "database.memory.GetByID"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return models.Product{}, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.products[id]
	return p, ok, nil
}

func (s *Storage) Save(ctx context.Context, product models.Product) error {
	const op = "database.memory.Save"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.st.save(product); err != nil {
		log.Warn("Failed to save product", slog.String("name", product.Name), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	const op = "database.memory.GetCart"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.st.getCart(customerId)
	return cart, ok, nil
}

func (s *Storage) SaveCart(ctx context.Context, cart *models.Cart) error {
	const op = "database.memory.SaveCart"
	log := s.log.With("op", op)

	if err := ctxErr(ctx); err != nil {
		log.Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.st.saveCart(cart); err != nil {
		log.Warn("Failed to save cart", slog.Int64("customer_id", cart.Customer.Id), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) DeleteCart(ctx context.Context, customerId int64) error {
	const op = "database.memory.DeleteCart"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.st.carts, customerId)
	return nil
}

// InTx holds the write lock for the whole transaction. fn works on a copy of
// the state which replaces the live state only when fn succeeds.
func (s *Storage) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	const op = "database.memory.InTx"

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Error("Context is over", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&txStore{st: staged}); err != nil {
		return err
	}

	if err := ctxErr(ctx); err != nil {
		s.log.With("op", op).Warn("Context is over before commit", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.st = staged
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctxErr(ctx)
}

func (s *Storage) Close() error {
	return nil
}

type txStore struct {
	st *state
}

func (t *txStore) GetAll(ctx context.Context) ([]models.Product, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, fmt.Errorf("database.memory.tx.GetAll: %w", err)
	}
	return t.st.getAll(), nil
}

func (t *txStore) GetByName(ctx context.Context, name string) (models.Product, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return models.Product{}, false, fmt.Errorf("database.memory.tx.GetByName: %w", err)
	}
	p, ok := t.st.getByName(name)
	return p, ok, nil
}

func (t *txStore) GetByID(ctx context.Context, id uuid.UUID) (models.Product, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return models.Product{}, false, fmt.Errorf("database.memory.tx.GetByID: %w", err)
	}
	p, ok := t.st.products[id]
	return p, ok, nil
}

func (t *txStore) Save(ctx context.Context, product models.Product) error {
	if err := ctxErr(ctx); err != nil {
		return fmt.Errorf("database.memory.tx.Save: %w", err)
	}
	if err := t.st.save(product); err != nil {
		return fmt.Errorf("database.memory.tx.Save: %w", err)
	}
	return nil
}

func (t *txStore) GetCart(ctx context.Context, customerId int64) (*models.Cart, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, fmt.Errorf("database.memory.tx.GetCart: %w", err)
	}
	cart, ok := t.st.getCart(customerId)
	return cart, ok, nil
}

func (t *txStore) SaveCart(ctx context.Context, cart *models.Cart) error {
	if err := ctxErr(ctx); err != nil {
		return fmt.Errorf("database.memory.tx.SaveCart: %w", err)
	}
	if err := t.st.saveCart(cart); err != nil {
		return fmt.Errorf("database.memory.tx.SaveCart: %w", err)
	}
	return nil
}

func (t *txStore) DeleteCart(ctx context.Context, customerId int64) error {
	if err := ctxErr(ctx); err != nil {
		return fmt.Errorf("database.memory.tx.DeleteCart: %w", err)
	}
	delete(t.st.carts, customerId)
	return nil
}

type cartRecord struct {
	customer   models.Customer
	revision   uuid.UUID
	quantities map[uuid.UUID]int
}

type state struct {
	products map[uuid.UUID]models.Product
	carts    map[int64]cartRecord
}

func newState() *state {
	return &state{
		products: make(map[uuid.UUID]models.Product),
		carts:    make(map[int64]cartRecord),
	}
}

func (st *state) clone() *state {
	out := &state{
		products: make(map[uuid.UUID]models.Product, len(st.products)),
		carts:    make(map[int64]cartRecord, len(st.carts)),
	}
	for id, p := range st.products {
		out.products[id] = p
	}
	for id, rec := range st.carts {
		quantities := make(map[uuid.UUID]int, len(rec.quantities))
		for pid, q := range rec.quantities {
			quantities[pid] = q
		}
		out.carts[id] = cartRecord{customer: rec.customer, revision: rec.revision, quantities: quantities}
	}
	return out
}

func (st *state) getAll() []models.Product {
	out := make([]models.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (st *state) getByName(name string) (models.Product, bool) {
	for _, p := range st.products {
		if p.Name == name {
			return p, true
		}
	}
	return models.Product{}, false
}

func (st *state) save(product models.Product) error {
	if existing, ok := st.getByName(product.Name); ok && existing.Id != product.Id {
		return fmt.Errorf("product %q: %w", product.Name, databaseerrors.ErrAlreadyExists)
	}
	st.products[product.Id] = product
	return nil
}

// getCart rebuilds the cart with the current product snapshots.
func (st *state) getCart(customerId int64) (*models.Cart, bool) {
	rec, ok := st.carts[customerId]
	if !ok {
		return nil, false
	}

	cart := models.NewCart(rec.customer)
	cart.Revision = rec.revision
	for pid, q := range rec.quantities {
		p, ok := st.products[pid]
		if !ok {
			continue
		}
		cart.Restore(models.CartLine{Product: p, Quantity: q})
	}
	return cart, true
}

// saveCart stores the cart under a fresh revision and records it on cart.
func (st *state) saveCart(cart *models.Cart) error {
	quantities := make(map[uuid.UUID]int, cart.Len())
	for pid, line := range cart.Products() {
		if _, ok := st.products[pid]; !ok {
			return fmt.Errorf("product %q: %w", line.Product.Name, databaseerrors.ErrNotFound)
		}
		quantities[pid] = line.Quantity
	}
	revision := uuid.New()
	st.carts[cart.Customer.Id] = cartRecord{customer: cart.Customer, revision: revision, quantities: quantities}
	cart.Revision = revision
	return nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
