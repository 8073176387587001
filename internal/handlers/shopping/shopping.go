package shoppinghandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"shopping/internal/models"
	serviceerrors "shopping/internal/service"
	"shopping/pkg/lib/logger/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const StatusClientClosedRequest = 499

// HeaderCustomerPhone optionally carries the customer's phone number.
const HeaderCustomerPhone = "X-Customer-Phone"

type ShoppingService interface {
	GetCart(ctx context.Context, customer models.Customer) (*models.Cart, error)
	AddToCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error)
	EditCart(ctx context.Context, customer models.Customer, productName string, quantity int) (*models.Cart, error)
	RemoveFromCart(ctx context.Context, customer models.Customer, productName string) (*models.Cart, error)
	Checkout(ctx context.Context, customer models.Customer) (bool, error)
	GetAllProducts(ctx context.Context) ([]models.Product, error)
	GetProductByName(ctx context.Context, name string) (models.Product, bool, error)
	CreateProduct(ctx context.Context, name string, count int) (models.Product, error)
	Restock(ctx context.Context, name string, count int) (models.Product, error)
}

type Handler struct {
	log      *slog.Logger
	service  ShoppingService
	validate *validator.Validate
}

func New(log *slog.Logger, service ShoppingService) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Quantities and counts are range checked by the service so every bad
// quantity gets the same 422.
type addItemRequest struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity"`
}

type editItemRequest struct {
	Quantity int `json:"quantity"`
}

type createProductRequest struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count"`
}

type restockRequest struct {
	Count int `json:"count"`
}

type checkoutResponse struct {
	Purchased bool `json:"purchased"`
}

// GET /products
func (h *Handler) GetAllProducts(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.GetAllProducts"
	log := h.log.With("op", op)

	products, err := h.service.GetAllProducts(r.Context())
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to get products")
		return
	}

	h.respond(w, log, http.StatusOK, products)
}

// GET /products/{name}
func (h *Handler) GetProductByName(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.GetProductByName"
	log := h.log.With("op", op)

	name := chi.URLParam(r, "name")

	product, found, err := h.service.GetProductByName(r.Context(), name)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to get product")
		return
	}
	if !found {
		log.Info("Product not found", slog.String("product", name))
		http.NotFound(w, r)
		return
	}

	h.respond(w, log, http.StatusOK, product)
}

// POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.CreateProduct"
	log := h.log.With("op", op)

	var req createProductRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req.Name, req.Count)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to create product")
		return
	}

	h.respond(w, log, http.StatusCreated, product)
}

// POST /products/{name}/restock
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.Restock"
	log := h.log.With("op", op)

	var req restockRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	product, err := h.service.Restock(r.Context(), chi.URLParam(r, "name"), req.Count)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to restock product")
		return
	}

	h.respond(w, log, http.StatusOK, product)
}

// GET /customers/{customerID}/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.GetCart"
	log := h.log.With("op", op)

	customer, ok := h.customer(w, r, log)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), customer)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to get cart")
		return
	}

	h.respond(w, log, http.StatusOK, cart)
}

// PUT /customers/{customerID}/cart/items
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.AddToCart"
	log := h.log.With("op", op)

	customer, ok := h.customer(w, r, log)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	cart, err := h.service.AddToCart(r.Context(), customer, req.Product, req.Quantity)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to add product to cart")
		return
	}

	h.respond(w, log, http.StatusOK, cart)
}

// PATCH /customers/{customerID}/cart/items/{product}
func (h *Handler) EditCart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.EditCart"
	log := h.log.With("op", op)

	customer, ok := h.customer(w, r, log)
	if !ok {
		return
	}

	var req editItemRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	cart, err := h.service.EditCart(r.Context(), customer, chi.URLParam(r, "product"), req.Quantity)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to edit cart")
		return
	}

	h.respond(w, log, http.StatusOK, cart)
}

// DELETE /customers/{customerID}/cart/items/{product}
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.RemoveFromCart"
	log := h.log.With("op", op)

	customer, ok := h.customer(w, r, log)
	if !ok {
		return
	}

	_, err := h.service.RemoveFromCart(r.Context(), customer, chi.URLParam(r, "product"))
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to remove product from cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /customers/{customerID}/cart/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.shopping.Checkout"
	log := h.log.With("op", op)

	customer, ok := h.customer(w, r, log)
	if !ok {
		return
	}

	purchased, err := h.service.Checkout(r.Context(), customer)
	if err != nil {
		h.serviceError(w, r, log, err, "Failed to checkout")
		return
	}

	h.respond(w, log, http.StatusOK, checkoutResponse{Purchased: purchased})
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Customer, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		log.Error("CustomerID must be int", sl.Err(err))
		http.Error(w, "CustomerID must be int", http.StatusBadRequest)
		return models.Customer{}, false
	}

	return models.Customer{
		Id:    id,
		Phone: r.Header.Get(HeaderCustomerPhone),
	}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Error("Cannot unmarshal request body", sl.Err(err))
		http.Error(w, "Cannot unmarshal request body", http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		log.Error("Failed to validate", sl.Err(err))
		http.Error(w, "Failed to validate: "+err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}

func (h *Handler) respond(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to respond user", sl.Err(err))
	}
}

func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, msg string) {
	var purchaseErr *serviceerrors.PurchaseError

	if errors.Is(err, serviceerrors.ErrContextCanceled) {
		log.Warn("Context canceled", sl.Err(serviceerrors.ErrContextCanceled))
		http.Error(w, "Context canceled", StatusClientClosedRequest)
	} else if errors.Is(err, serviceerrors.ErrDeadlineExceeded) {
		log.Warn("Deadline exceeded", sl.Err(serviceerrors.ErrDeadlineExceeded))
		http.Error(w, "Deadline exceeded", http.StatusGatewayTimeout)
	} else if errors.Is(err, serviceerrors.ErrNotFound) {
		log.Warn("Not found", sl.Err(err))
		http.NotFound(w, r)
	} else if errors.Is(err, serviceerrors.ErrAlreadyExists) {
		log.Warn("Already exists", sl.Err(err))
		http.Error(w, "Already exists", http.StatusConflict)
	} else if errors.Is(err, serviceerrors.ErrCartChanged) {
		log.Warn("Cart changed", sl.Err(err))
		http.Error(w, "Cart changed, reload it and retry", http.StatusConflict)
	} else if errors.As(err, &purchaseErr) {
		log.Warn("Not enough units in stock", sl.Err(err))
		http.Error(w, purchaseErr.Error(), http.StatusConflict)
	} else if errors.Is(err, models.ErrProductNotInCart) {
		log.Warn("Product is not in cart", sl.Err(err))
		http.NotFound(w, r)
	} else if errors.Is(err, models.ErrInvalidQuantity) {
		log.Warn("Invalid quantity", sl.Err(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	} else {
		log.Error(msg, sl.Err(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
