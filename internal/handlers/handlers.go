package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"procurahub/internal/apperror"
	"procurahub/internal/auth"
	"procurahub/internal/docstore"
	"procurahub/internal/notify"
	"procurahub/internal/scheduler"
)

// Handler оборачивает хранилище и коллабораторов для обработчиков API
type Handler struct {
	Store    StorageInterface
	Notifier notify.Notifier
	Tokens   *auth.TokenManager
	Docs     *docstore.Store

	sched        *scheduler.Scheduler
	baseCurrency string
	rates        map[string]decimal.Decimal
	setupToken   string
}

// Options — параметры поведения, взятые из конфигурации
type Options struct {
	InvitationBatchSize int
	BaseCurrency        string
	CurrencyRates       map[string]decimal.Decimal
	// SetupToken защищает одноразовую инициализацию пустой базы
	SetupToken string
}

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, notifier notify.Notifier, tokens *auth.TokenManager, docs *docstore.Store, opts Options) *Handler {
	if opts.InvitationBatchSize <= 0 {
		opts.InvitationBatchSize = 25
	}
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = "USD"
	}
	return &Handler{
		Store:        store,
		Notifier:     notifier,
		Tokens:       tokens,
		Docs:         docs,
		sched:        scheduler.New(store, notifier, opts.InvitationBatchSize),
		baseCurrency: opts.BaseCurrency,
		rates:        opts.CurrencyRates,
		setupToken:   opts.SetupToken,
	}
}

var validate = validator.New()

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// identity достаёт проверенную личность из контекста запроса
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return identity, ok
}

// decodeJSON читает и валидирует тело запроса
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	// Ограничение размера тела, чтобы избежать DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.Validation(err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError отдаёт структурированную ошибку {kind, message}
func writeError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch kind {
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindForbidden:
		status = http.StatusForbidden
	case apperror.KindInvalidState, apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindConflict:
		status = http.StatusConflict
	default:
		log.Printf("internal error: %v", err)
		message = "internal error"
	}

	writeJSON(w, status, apperror.New(kind, message))
}

// urlID парсит числовой параметр пути
func urlID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid id in path")
	}
	return id, nil
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	params.Limit = 20 // дефолт
	params.Offset = 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

// awardValue приводит сумму котировки к базовой валюте, если курс настроен;
// без курса сумма копится как есть
func (h *Handler) awardValue(amount decimal.Decimal, currency string) decimal.Decimal {
	if currency == h.baseCurrency {
		return amount
	}
	rate, ok := h.rates[currency]
	if !ok {
		return amount
	}
	return amount.Mul(rate).Round(2)
}
