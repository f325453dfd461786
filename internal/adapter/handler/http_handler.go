package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

const authorizationHeader = "authorization"

type ShopCatalog interface {
	Get(ctx context.Context, id int64) (*domain.Shop, error)
	Create(ctx context.Context, shop domain.Shop) (int64, error)
	Update(ctx context.Context, shop domain.Shop) error
}

type ShopTypeLister interface {
	List(ctx context.Context) ([]domain.ShopType, error)
}

type VoucherAdmin interface {
	AddSeckillVoucher(ctx context.Context, v domain.SeckillVoucher, stock int) error
}

type OrderPlacer interface {
	Seckill(ctx context.Context, voucherID, userID int64) (int64, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

type HTTPHandler struct {
	shops     ShopCatalog
	shopTypes ShopTypeLister
	vouchers  VoucherAdmin
	orders    OrderPlacer
	sessions  Authenticator
}

// Response is the envelope of every HTTP reply.
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type AddSeckillVoucherRequest struct {
	VoucherID int64     `json:"voucher_id"`
	Title     string    `json:"title"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
}

func NewHTTPHandler(shops ShopCatalog, shopTypes ShopTypeLister, vouchers VoucherAdmin, orders OrderPlacer, sessions Authenticator) *HTTPHandler {
	return &HTTPHandler{
		shops:     shops,
		shopTypes: shopTypes,
		vouchers:  vouchers,
		orders:    orders,
		sessions:  sessions,
	}
}

func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.accessLog, h.loadSession)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/shop/{id:[0-9]+}", h.GetShop).Methods(http.MethodGet)
	r.HandleFunc("/shop-type/list", h.ListShopTypes).Methods(http.MethodGet)

	r.Handle("/shop", h.requireUser(h.CreateShop)).Methods(http.MethodPost)
	r.Handle("/shop", h.requireUser(h.UpdateShop)).Methods(http.MethodPut)
	r.Handle("/voucher/seckill", h.requireUser(h.AddSeckillVoucher)).Methods(http.MethodPost)
	r.Handle("/voucher-order/seckill/{id:[0-9]+}", h.requireUser(h.Seckill)).Methods(http.MethodPost)
	r.Handle("/user/me", h.requireUser(h.Me)).Methods(http.MethodGet)

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "ok"}})
}

func (h *HTTPHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	shop, err := h.shops.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: shop})
}

func (h *HTTPHandler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var shop domain.Shop
	if !decodeBody(w, r, &shop) {
		return
	}

	id, err := h.shops.Create(r.Context(), shop)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: map[string]int64{"id": id}})
}

func (h *HTTPHandler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	var shop domain.Shop
	if !decodeBody(w, r, &shop) {
		return
	}

	if err := h.shops.Update(r.Context(), shop); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (h *HTTPHandler) ListShopTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.shopTypes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: types})
}

func (h *HTTPHandler) AddSeckillVoucher(w http.ResponseWriter, r *http.Request) {
	var req AddSeckillVoucherRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := domain.SeckillVoucher{
		VoucherID: req.VoucherID,
		Title:     req.Title,
		BeginTime: req.BeginTime,
		EndTime:   req.EndTime,
	}
	if err := h.vouchers.AddSeckillVoucher(r.Context(), v, req.Stock); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: map[string]int64{"voucher_id": req.VoucherID}})
}

func (h *HTTPHandler) Seckill(w http.ResponseWriter, r *http.Request) {
	voucherID, ok := pathID(w, r)
	if !ok {
		return
	}
	user, _ := domain.UserFromContext(r.Context())

	orderID, err := h.orders.Seckill(r.Context(), voucherID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]int64{"order_id": orderID}})
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := domain.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, Response{Success: true, Data: user})
}

// loadSession attaches the session user when the request carries a valid
// token. Requests without one continue anonymously; a failing session store
// fails the request.
func (h *HTTPHandler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(authorizationHeader)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.sessions.Authenticate(r.Context(), token)
		if errors.Is(err, domain.ErrUnauthorized) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(domain.ContextWithUser(r.Context(), user)))
	})
}

func (h *HTTPHandler) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := domain.UserFromContext(r.Context()); !ok {
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next(w, r)
	})
}

func (h *HTTPHandler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, domain.ErrInvalidArgument)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Code:    "INVALID_ARGUMENT",
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	rej := classify(err)
	if rej.httpStatus >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, rej.httpStatus, Response{Code: rej.reason, Message: rej.message()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
