package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ezshop/cart-service/internal/core/service"
	"github.com/ezshop/cart-service/internal/metrics"
)

type HTTPHandler struct {
	products *service.ProductService
	carts    *service.CartService
	metrics  *metrics.Metrics
}

func NewHTTPHandler(products *service.ProductService, carts *service.CartService, m *metrics.Metrics) *HTTPHandler {
	return &HTTPHandler{
		products: products,
		carts:    carts,
		metrics:  m,
	}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.healthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/products", h.instrument("create_product", h.createProduct))
	mux.HandleFunc("GET /api/products", h.instrument("list_products", h.listProducts))
	mux.HandleFunc("GET /api/products/search", h.instrument("search_products", h.searchProducts))
	mux.HandleFunc("GET /api/products/{id}", h.instrument("get_product", h.getProduct))
	mux.HandleFunc("PATCH /api/products/{id}/stock", h.instrument("set_stock", h.setStock))

	mux.HandleFunc("GET /api/carts/{userId}", h.instrument("get_cart", h.getCart))
	mux.HandleFunc("POST /api/carts/{userId}/items", h.instrument("add_item", h.addItem))
	mux.HandleFunc("PATCH /api/carts/{userId}/items/{productId}", h.instrument("update_quantity", h.updateQuantity))
	mux.HandleFunc("DELETE /api/carts/{userId}/items/{productId}", h.instrument("remove_item", h.removeItem))
	mux.HandleFunc("POST /api/carts/{userId}/checkout", h.instrument("checkout", h.checkout))
}

type createProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutResponse struct {
	Message    string  `json:"message"`
	OrderTotal float64 `json:"orderTotal"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.products.CreateProduct(r.Context(), service.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.products.SetStock(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	result, err := h.products.ListProducts(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.SearchProducts(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "productId is required"})
		return
	}

	cart, err := h.carts.AddItem(r.Context(), r.PathValue("userId"), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), r.PathValue("userId"), r.PathValue("productId"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveItem(r.Context(), r.PathValue("userId"), r.PathValue("productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) checkout(w http.ResponseWriter, r *http.Request) {
	orderTotal, err := h.carts.Checkout(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		Message:    "checkout successful",
		OrderTotal: orderTotal,
	})
}

func (h *HTTPHandler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, service.ErrCheckoutFailed) {
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrCartNotFound),
		errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrLockConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// instrument records request count and latency per handler.
func (h *HTTPHandler) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		h.metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func queryInt(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
