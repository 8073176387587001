package shoppinghandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	shoppinghandler "shopping/internal/handlers/shopping"
	"shopping/internal/handlers/shopping/mocks"
	"shopping/internal/models"
	serviceerrors "shopping/internal/service"
	"shopping/pkg/lib/logger/slogdiscard"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var customer = models.Customer{Id: 1, Phone: "123"}

func newTestHandler(service *mocks.Service) *shoppinghandler.Handler {
	logger := slogdiscard.NewDiscardLogger()
	return shoppinghandler.New(logger, service)
}

// withParams attaches chi URL parameters the way the router would.
func withParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func cartWith(t *testing.T, product models.Product, quantity int) *models.Cart {
	t.Helper()
	cart := models.NewCart(customer)
	require.NoError(t, cart.Add(product, quantity))
	return cart
}

func TestHandler_GetAllProducts(t *testing.T) {
	products := []models.Product{models.NewProduct("Cookie", 1)}

	tests := []struct {
		name         string
		setupMock    func(s *mocks.Service)
		expectedCode int
		checkBody    bool
	}{
		{
			name: "Success",
			setupMock: func(s *mocks.Service) {
				s.On("GetAllProducts", mock.Anything).Return(products, nil)
			},
			expectedCode: http.StatusOK,
			checkBody:    true,
		},
		{
			name: "Context canceled",
			setupMock: func(s *mocks.Service) {
				s.On("GetAllProducts", mock.Anything).Return(nil, serviceerrors.ErrContextCanceled)
			},
			expectedCode: shoppinghandler.StatusClientClosedRequest,
		},
		{
			name: "Deadline exceeded",
			setupMock: func(s *mocks.Service) {
				s.On("GetAllProducts", mock.Anything).Return(nil, serviceerrors.ErrDeadlineExceeded)
			},
			expectedCode: http.StatusGatewayTimeout,
		},
		{
			name: "Failed to get products",
			setupMock: func(s *mocks.Service) {
				s.On("GetAllProducts", mock.Anything).Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodGet, "/products", nil)
			ww := httptest.NewRecorder()

			handler.GetAllProducts(ww, req)
			resp := ww.Result()
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedCode, resp.StatusCode)

			if tt.checkBody {
				var got []models.Product
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				assert.Equal(t, products, got)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_GetProductByName(t *testing.T) {
	cookie := models.NewProduct("Cookie", 3)

	tests := []struct {
		name         string
		product      string
		setupMock    func(s *mocks.Service)
		expectedCode int
	}{
		{
			name:    "Found",
			product: "Cookie",
			setupMock: func(s *mocks.Service) {
				s.On("GetProductByName", mock.Anything, "Cookie").Return(cookie, true, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:    "Absent",
			product: "Bread",
			setupMock: func(s *mocks.Service) {
				s.On("GetProductByName", mock.Anything, "Bread").Return(models.Product{}, false, nil)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodGet, "/products/"+tt.product, nil)
			req = withParams(req, map[string]string{"name": tt.product})
			ww := httptest.NewRecorder()

			handler.GetProductByName(ww, req)

			assert.Equal(t, tt.expectedCode, ww.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_CreateProduct(t *testing.T) {
	tests := []struct {
		name         string
		body         []byte
		setupMock    func(s *mocks.Service)
		expectedCode int
	}{
		{
			name: "Success",
			body: []byte(`{"name":"Cookie","count":10}`),
			setupMock: func(s *mocks.Service) {
				s.On("CreateProduct", mock.Anything, "Cookie", 10).Return(models.NewProduct("Cookie", 10), nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "Missing name",
			body:         []byte(`{"count":10}`),
			setupMock:    func(s *mocks.Service) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Malformed body",
			body:         []byte(`{"name":`),
			setupMock:    func(s *mocks.Service) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Negative count",
			body: []byte(`{"name":"Cookie","count":-1}`),
			setupMock: func(s *mocks.Service) {
				s.On("CreateProduct", mock.Anything, "Cookie", -1).
					Return(models.Product{}, fmt.Errorf("%w: count must not be negative", models.ErrInvalidQuantity))
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "Duplicate",
			body: []byte(`{"name":"Cookie","count":1}`),
			setupMock: func(s *mocks.Service) {
				s.On("CreateProduct", mock.Anything, "Cookie", 1).Return(models.Product{}, serviceerrors.ErrAlreadyExists)
			},
			expectedCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewReader(tt.body))
			ww := httptest.NewRecorder()

			handler.CreateProduct(ww, req)

			assert.Equal(t, tt.expectedCode, ww.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_Restock(t *testing.T) {
	bread := models.NewProduct("Bread", 5)

	mockService := new(mocks.Service)
	mockService.On("Restock", mock.Anything, "Bread", 5).Return(bread, nil)

	handler := newTestHandler(mockService)
	req := httptest.NewRequest(http.MethodPost, "/products/Bread/restock", bytes.NewReader([]byte(`{"count":5}`)))
	req = withParams(req, map[string]string{"name": "Bread"})
	ww := httptest.NewRecorder()

	handler.Restock(ww, req)

	assert.Equal(t, http.StatusOK, ww.Code)
	var got models.Product
	require.NoError(t, json.NewDecoder(ww.Body).Decode(&got))
	assert.Equal(t, bread, got)
	mockService.AssertExpectations(t)
}

func TestHandler_GetCart(t *testing.T) {
	cookie := models.NewProduct("Cookie", 3)

	tests := []struct {
		name         string
		customerID   string
		setupMock    func(s *mocks.Service)
		expectedCode int
		checkBody    bool
	}{
		{
			name:       "Success",
			customerID: "1",
			setupMock: func(s *mocks.Service) {
				s.On("GetCart", mock.Anything, customer).Return(cartWith(t, cookie, 2), nil)
			},
			expectedCode: http.StatusOK,
			checkBody:    true,
		},
		{
			name:         "Invalid customerID",
			customerID:   "abc",
			setupMock:    func(s *mocks.Service) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:       "Deadline exceeded",
			customerID: "1",
			setupMock: func(s *mocks.Service) {
				s.On("GetCart", mock.Anything, customer).Return(nil, serviceerrors.ErrDeadlineExceeded)
			},
			expectedCode: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/customers/%s/cart", tt.customerID), nil)
			req.Header.Set(shoppinghandler.HeaderCustomerPhone, customer.Phone)
			req = withParams(req, map[string]string{"customerID": tt.customerID})
			ww := httptest.NewRecorder()

			handler.GetCart(ww, req)
			resp := ww.Result()
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedCode, resp.StatusCode)

			if tt.checkBody {
				got := models.NewCart(models.Customer{})
				require.NoError(t, json.NewDecoder(resp.Body).Decode(got))
				assert.Equal(t, customer, got.Customer)
				assert.Equal(t, 2, got.Quantity(cookie.Id))
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_AddToCart(t *testing.T) {
	cookie := models.NewProduct("Cookie", 3)

	tests := []struct {
		name         string
		customerID   string
		body         []byte
		setupMock    func(s *mocks.Service)
		expectedCode int
	}{
		{
			name:         "Empty body",
			customerID:   "1",
			body:         nil,
			setupMock:    func(s *mocks.Service) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Invalid customerID",
			customerID:   "abc",
			body:         []byte(`{"product":"Cookie","quantity":1}`),
			setupMock:    func(s *mocks.Service) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:       "Non-positive quantity",
			customerID: "1",
			body:       []byte(`{"product":"Cookie","quantity":-1}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Cookie", -1).
					Return(nil, &models.QuantityError{Op: models.CartOpAdd, Product: "Cookie", Requested: -1})
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:       "Missing quantity",
			customerID: "1",
			body:       []byte(`{"product":"Cookie"}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Cookie", 0).
					Return(nil, &models.QuantityError{Op: models.CartOpAdd, Product: "Cookie"})
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:       "Success",
			customerID: "1",
			body:       []byte(`{"product":"Cookie","quantity":2}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Cookie", 2).Return(cartWith(t, cookie, 2), nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:       "Too many units",
			customerID: "1",
			body:       []byte(`{"product":"Cookie","quantity":4}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Cookie", 4).
					Return(nil, &models.QuantityError{Product: "Cookie", Requested: 4, Available: 3})
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:       "Unknown product",
			customerID: "1",
			body:       []byte(`{"product":"Bread","quantity":1}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Bread", 1).Return(nil, serviceerrors.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:       "Context canceled",
			customerID: "1",
			body:       []byte(`{"product":"Cookie","quantity":1}`),
			setupMock: func(s *mocks.Service) {
				s.On("AddToCart", mock.Anything, customer, "Cookie", 1).Return(nil, serviceerrors.ErrContextCanceled)
			},
			expectedCode: shoppinghandler.StatusClientClosedRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/customers/%s/cart/items", tt.customerID), bytes.NewReader(tt.body))
			req.Header.Set(shoppinghandler.HeaderCustomerPhone, customer.Phone)
			req = withParams(req, map[string]string{"customerID": tt.customerID})
			ww := httptest.NewRecorder()

			handler.AddToCart(ww, req)

			assert.Equal(t, tt.expectedCode, ww.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_EditCart(t *testing.T) {
	cookie := models.NewProduct("Cookie", 3)

	tests := []struct {
		name         string
		body         string
		setupMock    func(s *mocks.Service)
		expectedCode int
	}{
		{
			name: "Success",
			body: `{"quantity":1}`,
			setupMock: func(s *mocks.Service) {
				s.On("EditCart", mock.Anything, customer, "Cookie", 1).Return(cartWith(t, cookie, 1), nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Not in cart",
			body: `{"quantity":1}`,
			setupMock: func(s *mocks.Service) {
				s.On("EditCart", mock.Anything, customer, "Cookie", 1).Return(nil, models.ErrProductNotInCart)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "Zero quantity",
			body: `{"quantity":0}`,
			setupMock: func(s *mocks.Service) {
				s.On("EditCart", mock.Anything, customer, "Cookie", 0).
					Return(nil, &models.QuantityError{Op: models.CartOpEdit, Product: "Cookie"})
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodPatch, "/customers/1/cart/items/Cookie", strings.NewReader(tt.body))
			req.Header.Set(shoppinghandler.HeaderCustomerPhone, customer.Phone)
			req = withParams(req, map[string]string{"customerID": "1", "product": "Cookie"})
			ww := httptest.NewRecorder()

			handler.EditCart(ww, req)

			assert.Equal(t, tt.expectedCode, ww.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_RemoveFromCart(t *testing.T) {
	mockService := new(mocks.Service)
	mockService.On("RemoveFromCart", mock.Anything, customer, "Cookie").Return(models.NewCart(customer), nil)

	handler := newTestHandler(mockService)
	req := httptest.NewRequest(http.MethodDelete, "/customers/1/cart/items/Cookie", nil)
	req.Header.Set(shoppinghandler.HeaderCustomerPhone, customer.Phone)
	req = withParams(req, map[string]string{"customerID": "1", "product": "Cookie"})
	ww := httptest.NewRecorder()

	handler.RemoveFromCart(ww, req)

	assert.Equal(t, http.StatusNoContent, ww.Code)
	mockService.AssertExpectations(t)
}

func TestHandler_Checkout(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(s *mocks.Service)
		expectedCode  int
		wantPurchased *bool
	}{
		{
			name: "Purchased",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(true, nil)
			},
			expectedCode:  http.StatusOK,
			wantPurchased: func() *bool { b := true; return &b }(),
		},
		{
			name: "Empty cart",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(false, nil)
			},
			expectedCode:  http.StatusOK,
			wantPurchased: func() *bool { b := false; return &b }(),
		},
		{
			name: "Insufficient stock",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(false,
					fmt.Errorf("service.shopping.Buy: %w", &serviceerrors.PurchaseError{Product: "Cookie", Requested: 5, Available: 4}))
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Cart changed",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(false,
					fmt.Errorf("service.shopping.Buy: %w", serviceerrors.ErrCartChanged))
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Invalid quantity at checkout",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(false, models.ErrInvalidQuantity)
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "Storage failure",
			setupMock: func(s *mocks.Service) {
				s.On("Checkout", mock.Anything, customer).Return(false, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.Service)
			tt.setupMock(mockService)

			handler := newTestHandler(mockService)
			req := httptest.NewRequest(http.MethodPost, "/customers/1/cart/checkout", nil)
			req.Header.Set(shoppinghandler.HeaderCustomerPhone, customer.Phone)
			req = withParams(req, map[string]string{"customerID": "1"})
			ww := httptest.NewRecorder()

			handler.Checkout(ww, req)

			assert.Equal(t, tt.expectedCode, ww.Code)

			if tt.wantPurchased != nil {
				var got struct {
					Purchased bool `json:"purchased"`
				}
				require.NoError(t, json.NewDecoder(ww.Body).Decode(&got))
				assert.Equal(t, *tt.wantPurchased, got.Purchased)
			}

			mockService.AssertExpectations(t)
		})
	}
}
