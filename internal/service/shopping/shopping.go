package shoppingservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	databaseerrors "shopping/internal/database"
	"shopping/internal/events"
	"shopping/internal/models"
	"shopping/internal/port"
	serviceerrors "shopping/internal/service"
	"shopping/pkg/lib/logger/sl"

	"github.com/google/uuid"
)

const (
	OutcomePurchased         = "purchased"
	OutcomeEmpty             = "empty"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeRejected          = "rejected"
	OutcomeFailed            = "failed"
)

type PurchaseRecorder interface {
	ObservePurchase(outcome string, units int)
}

type ShoppingService struct {
	log       *slog.Logger
	storage   port.Storage
	publisher events.Publisher
	recorder  PurchaseRecorder
	now       func() time.Time
}

// New builds the service. publisher and recorder may be nil.
func New(log *slog.Logger, storage port.Storage, publisher events.Publisher, recorder PurchaseRecorder) *ShoppingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ShoppingService{
		log:       log,
		storage:   storage,
		publisher: publisher,
		recorder:  recorder,
		now:       time.Now,
	}
}

// GetCart returns the cart stored for the customer, or a new empty one.
func (s *ShoppingService) GetCart(ctx context.Context, customer models.Customer) (*models.Cart, error) {
	const op = "service.shopping.GetCart"
	log := s.log.With("op", op)

	if err := checkContext(ctx, log, op); err != nil {
		return nil, err
	}

	cart, found, err := s.storage.GetCart(ctx, customer.Id)
	if err != nil {
		return nil, storageError(log, op, err, "Failed to get cart")
	}
	if !found {
		return models.NewCart(customer), nil
	}

	return cart, nil
}

func (s *ShoppingService) SaveCart(ctx context.Context, cart *models.Cart) error {
	const op = "service.shopping.SaveCart"
	log := s.log.With("op", op)

	if err := checkContext(ctx, log, op); err != nil {
		return err
	}

	if err := s.storage.SaveCart(ctx, cart); err != nil {
		return storageError(log, op, err, "Failed to save cart")
	}

	return nil
}

// AddToCart sets the quantity of the named product in the customer's cart.
func (s *ShoppingService) AddToCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error) {
	const op = "service.shopping.AddToCart"
	return s.updateCart(ctx, op, customer, productName, func(cart *models.Cart, product models.Product) error {
		return cart.Add(product, quantity)
	})
}

// EditCart changes the quantity of a product already in the customer's cart.
func (s *ShoppingService) EditCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error) {
	const op = "service.shopping.EditCart"
	return s.updateCart(ctx, op, customer, productName, func(cart *models.Cart, product models.Product) error {
		return cart.Edit(product, quantity)
	})
}

func (s *ShoppingService) RemoveFromCart(ctx context.Context, customer models.Customer, productName string) (*models.Cart, error) {
	const op = "service.shopping.RemoveFromCart"
	return s.updateCart(ctx, op, customer, productName, func(cart *models.Cart, product models.Product) error {
		if !cart.Remove(product.Id) {
			return fmt.Errorf("%w: %s", models.ErrProductNotInCart, product.Name)
		}
		return nil
	})
}

func (s *ShoppingService) updateCart(
	ctx context.Context,
	op string,
	customer models.Customer,
	productName string,
	change func(cart *models.Cart, product models.Product) error,
) (*models.Cart, error) {
	log := s.log.With("op", op, slog.Int64("customer_id", customer.Id), slog.String("product", productName))

	if err := checkContext(ctx, log, op); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.storage.InTx(ctx, func(tx port.Tx) error {
		// cart before products, the lock order purchases use
		stored, found, err := tx.GetCart(ctx, customer.Id)
		if err != nil {
			return err
		}
		if !found {
			stored = models.NewCart(customer)
		}

		product, found, err := tx.GetByName(ctx, productName)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("product %q: %w", productName, databaseerrors.ErrNotFound)
		}

		if err := change(stored, product); err != nil {
			return err
		}

		if err := tx.SaveCart(ctx, stored); err != nil {
			return err
		}
		cart = stored
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidQuantity) || errors.Is(err, models.ErrProductNotInCart) {
			log.Warn("Cart change rejected", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, storageError(log, op, err, "Failed to update cart")
	}

	return cart, nil
}

func (s *ShoppingService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	const op = "service.shopping.GetAllProducts"
	log := s.log.With("op", op)

	if err := checkContext(ctx, log, op); err != nil {
		return nil, err
	}

	products, err := s.storage.GetAll(ctx)
	if err != nil {
		return nil, storageError(log, op, err, "Failed to get products")
	}

	return products, nil
}

// GetProductByName reports found=false when no product has exactly that name.
func (s *ShoppingService) GetProductByName(ctx context.Context, name string) (models.Product, bool, error) {
	const op = "service.shopping.GetProductByName"
	log := s.log.With("op", op)

	if err := checkContext(ctx, log, op); err != nil {
		return models.Product{}, false, err
	}

	product, found, err := s.storage.GetByName(ctx, name)
	if err != nil {
		return models.Product{}, false, storageError(log, op, err, "Failed to get product")
	}

	return product, found, nil
}

func (s *ShoppingService) CreateProduct(ctx context.Context, name string, count int) (models.Product, error) {
	const op = "service.shopping.CreateProduct"
	log := s.log.With("op", op, slog.String("product", name))

	if err := checkContext(ctx, log, op); err != nil {
		return models.Product{}, err
	}

	if count < 0 {
		return models.Product{}, fmt.Errorf("%s: %w: count must not be negative", op, models.ErrInvalidQuantity)
	}

	product := models.NewProduct(name, count)
	err := s.storage.InTx(ctx, func(tx port.Tx) error {
		_, found, err := tx.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("product %q: %w", name, databaseerrors.ErrAlreadyExists)
		}
		return tx.Save(ctx, product)
	})
	if err != nil {
		return models.Product{}, storageError(log, op, err, "Failed to create product")
	}

	log.Info("Product created", slog.Int("count", count))
	return product, nil
}

// EnsureProduct returns the named product, creating it with count units when missing.
func (s *ShoppingService) EnsureProduct(ctx context.Context, name string, count int) (models.Product, error) {
	product, err := s.CreateProduct(ctx, name, count)
	if errors.Is(err, serviceerrors.ErrAlreadyExists) {
		product, _, err = s.GetProductByName(ctx, name)
	}
	return product, err
}

func (s *ShoppingService) Restock(ctx context.Context, name string, count int) (models.Product, error) {
	const op = "service.shopping.Restock"
	log := s.log.With("op", op, slog.String("product", name))

	if err := checkContext(ctx, log, op); err != nil {
		return models.Product{}, err
	}

	if count <= 0 {
		return models.Product{}, fmt.Errorf("%s: %w: count must be positive", op, models.ErrInvalidQuantity)
	}

	var product models.Product
	err := s.storage.InTx(ctx, func(tx port.Tx) error {
		p, found, err := tx.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("product %q: %w", name, databaseerrors.ErrNotFound)
		}
		p.AddCount(count)
		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return models.Product{}, storageError(log, op, err, "Failed to restock product")
	}

	return product, nil
}

// Buy moves the cart contents out of inventory. An empty cart buys nothing
// and reports false. Either every line is bought or none is: a missing
// product, a non-positive quantity or short stock on any line aborts the
// whole purchase.
//
// A cart read from storage is bought only while it is still the stored
// revision, and the stored cart is deleted with the purchase. When the stored
// cart is already gone Buy reports false; when it changed after it was read
// Buy fails with ErrCartChanged. A cart that was never stored leaves the
// customer's stored cart alone.
func (s *ShoppingService) Buy(ctx context.Context, cart *models.Cart) (bool, error) {
	const op = "service.shopping.Buy"
	log := s.log.With("op", op, slog.Int64("customer_id", cart.Customer.Id))

	if err := checkContext(ctx, log, op); err != nil {
		return false, err
	}

	if cart.IsEmpty() {
		log.Info("Cart is empty, nothing to buy")
		s.recorder.ObservePurchase(OutcomeEmpty, 0)
		return false, nil
	}

	bought, err := s.purchase(ctx, log, op, cart.Customer.Id, func(tx port.Tx) (*models.Cart, bool, error) {
		if cart.Revision == uuid.Nil {
			return cart, false, nil
		}

		stored, found, err := tx.GetCart(ctx, cart.Customer.Id)
		if err != nil {
			return nil, false, err
		}
		if !found {
			log.Info("Cart is already checked out")
			return nil, false, nil
		}
		if stored.Revision != cart.Revision {
			return nil, false, fmt.Errorf("%w: customer %d", serviceerrors.ErrCartChanged, cart.Customer.Id)
		}
		return cart, true, nil
	})
	if bought {
		cart.Clear()
	}
	return bought, err
}

// Checkout buys the customer's stored cart. The cart is read inside the
// purchase transaction, so concurrent checkouts buy it once.
func (s *ShoppingService) Checkout(ctx context.Context, customer models.Customer) (bool, error) {
	const op = "service.shopping.Checkout"
	log := s.log.With("op", op, slog.Int64("customer_id", customer.Id))

	if err := checkContext(ctx, log, op); err != nil {
		return false, err
	}

	return s.purchase(ctx, log, op, customer.Id, func(tx port.Tx) (*models.Cart, bool, error) {
		stored, found, err := tx.GetCart(ctx, customer.Id)
		if err != nil || !found {
			return nil, false, err
		}
		return stored, true, nil
	})
}

// purchase runs one purchase transaction. pick chooses the cart to buy; a nil
// or empty cart buys nothing. When stored is true the customer's stored cart
// is deleted together with the stock decrements.
func (s *ShoppingService) purchase(
	ctx context.Context,
	log *slog.Logger,
	op string,
	customerId int64,
	pick func(tx port.Tx) (cart *models.Cart, stored bool, err error),
) (bool, error) {
	var items []models.PurchaseItem
	err := s.storage.InTx(ctx, func(tx port.Tx) error {
		cart, stored, err := pick(tx)
		if err != nil {
			return err
		}
		if cart == nil || cart.IsEmpty() {
			return nil
		}

		// lock rows in a stable order
		lines := cart.Lines()
		sort.Slice(lines, func(i, j int) bool {
			return lines[i].Product.Id.String() < lines[j].Product.Id.String()
		})

		bought := make([]models.PurchaseItem, 0, len(lines))
		for _, line := range lines {
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: product %s has quantity %d", models.ErrInvalidQuantity, line.Product.Name, line.Quantity)
			}

			product, found, err := tx.GetByID(ctx, line.Product.Id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("product %q: %w", line.Product.Name, databaseerrors.ErrNotFound)
			}

			if product.Count < line.Quantity {
				return &serviceerrors.PurchaseError{
					Product:   product.Name,
					Requested: line.Quantity,
					Available: product.Count,
				}
			}

			product.SubtractCount(line.Quantity)
			if err := tx.Save(ctx, product); err != nil {
				return err
			}

			bought = append(bought, models.PurchaseItem{
				ProductId: product.Id,
				Name:      product.Name,
				Quantity:  line.Quantity,
			})
		}

		if stored {
			if err := tx.DeleteCart(ctx, customerId); err != nil {
				return err
			}
		}
		items = bought
		return nil
	})
	if err != nil {
		var purchaseErr *serviceerrors.PurchaseError
		switch {
		case errors.As(err, &purchaseErr):
			log.Warn("Not enough units in stock",
				slog.String("product", purchaseErr.Product),
				slog.Int("missing", purchaseErr.Missing()),
			)
			s.recorder.ObservePurchase(OutcomeInsufficientStock, 0)
			return false, fmt.Errorf("%s: %w", op, err)
		case errors.Is(err, models.ErrInvalidQuantity):
			log.Warn("Cart holds an invalid quantity", sl.Err(err))
			s.recorder.ObservePurchase(OutcomeRejected, 0)
			return false, fmt.Errorf("%s: %w", op, err)
		case errors.Is(err, serviceerrors.ErrCartChanged):
			log.Warn("Cart changed since it was read", sl.Err(err))
			s.recorder.ObservePurchase(OutcomeRejected, 0)
			return false, fmt.Errorf("%s: %w", op, err)
		default:
			s.recorder.ObservePurchase(OutcomeFailed, 0)
			return false, storageError(log, op, err, "Failed to complete purchase")
		}
	}

	if items == nil {
		log.Info("Nothing to buy")
		s.recorder.ObservePurchase(OutcomeEmpty, 0)
		return false, nil
	}

	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	s.recorder.ObservePurchase(OutcomePurchased, units)

	event := models.PurchaseEvent{
		CustomerId:  customerId,
		Items:       items,
		PurchasedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Error("Failed to publish purchase event", sl.Err(err))
	}

	log.Info("Purchase completed", slog.Int("lines", len(items)), slog.Int("units", units))
	return true, nil
}

func (s *ShoppingService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

func checkContext(ctx context.Context, log *slog.Logger, op string) error {
	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.Canceled) {
			log.Warn("context canceled", sl.Err(err))
			return fmt.Errorf("%s: %w", op, serviceerrors.ErrContextCanceled)
		} else if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("deadline exceeded", sl.Err(err))
			return fmt.Errorf("%s: %w", op, serviceerrors.ErrDeadlineExceeded)
		}
		log.Error("unexpected error", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	default:
		return nil
	}
}

// storageError translates storage failures into service errors.
func storageError(log *slog.Logger, op string, err error, msg string) error {
	if errors.Is(err, context.Canceled) {
		log.Warn("context canceled", sl.Err(serviceerrors.ErrContextCanceled))
		return fmt.Errorf("%s: %w", op, serviceerrors.ErrContextCanceled)
	} else if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("deadline exceeded", sl.Err(serviceerrors.ErrDeadlineExceeded))
		return fmt.Errorf("%s: %w", op, serviceerrors.ErrDeadlineExceeded)
	} else if errors.Is(err, databaseerrors.ErrNotFound) {
		log.Warn("not found", sl.Err(err))
		return fmt.Errorf("%s: %w: %v", op, serviceerrors.ErrNotFound, err)
	} else if errors.Is(err, databaseerrors.ErrAlreadyExists) {
		log.Warn("already exists", sl.Err(err))
		return fmt.Errorf("%s: %w: %v", op, serviceerrors.ErrAlreadyExists, err)
	}

	log.Error(msg, sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

type nopRecorder struct{}

func (nopRecorder) ObservePurchase(string, int) {}
