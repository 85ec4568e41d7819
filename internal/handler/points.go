package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pointsledger/pointsledger/internal/handler/dto"
	"github.com/pointsledger/pointsledger/internal/middleware"
	"github.com/pointsledger/pointsledger/internal/service"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// storeRetryAfter is advertised when the store is unavailable.
const storeRetryAfter = 1

// PointsHandler handles ledger read and write requests.
type PointsHandler struct {
	svc    *service.PointsService
	logger *slog.Logger
}

// NewPointsHandler creates a new PointsHandler.
func NewPointsHandler(svc *service.PointsService, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{svc: svc, logger: logger}
}

// ListTenants lists every program.
// GET /api/v1/tenants
func (h *PointsHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants := h.svc.ListTenants()
	resp := dto.TenantListResponse{Data: make([]dto.TenantResponse, len(tenants))}
	for i, t := range tenants {
		resp.Data[i] = dto.ToTenantResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBalance returns a customer's ledger and live balance.
// GET /api/v1/tenants/{tenantID}/points?email=...
func (h *PointsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	h.getBalance(w, r, chi.URLParam(r, "tenantID"))
}

// GetTotals returns the aggregate view of a customer's ledger.
// GET /api/v1/tenants/{tenantID}/points/total?email=...
func (h *PointsHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Tenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	res, err := h.svc.GetTotals(r.Context(), t.ID, t.Variant.ReadParams(r.URL.Query().Get))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TotalsResponse{
		TenantID:     res.Tenant.ID,
		ProgramName:  res.Tenant.ProgramName,
		UnitLabel:    res.Tenant.UnitLabel,
		Customer:     dto.ToCustomerResponse(res.Customer),
		Balance:      res.Summary.Balance,
		ExpiredTotal: res.Summary.ExpiredTotal,
		ActiveCount:  res.Summary.ActiveCount,
		ExpiredCount: res.Summary.ExpiredCount,
		NextExpiry:   res.Summary.NextExpiry,
		EvaluatedAt:  res.EvaluatedAt,
	})
}

// Grant appends a grant or debit entry.
// PUT|POST /api/v1/tenants/{tenantID}/points
func (h *PointsHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, chi.URLParam(r, "tenantID"))
}

// LegacyGetBalance serves the query-addressed form ?companyId=...&email=...
// GET /api/points
func (h *PointsHandler) LegacyGetBalance(w http.ResponseWriter, r *http.Request) {
	if tenantID, ok := legacyTenantID(w, r); ok {
		h.getBalance(w, r, tenantID)
	}
}

// LegacyGrant serves the query-addressed write form.
// PUT /api/points?companyId=...&email=...
func (h *PointsHandler) LegacyGrant(w http.ResponseWriter, r *http.Request) {
	if tenantID, ok := legacyTenantID(w, r); ok {
		h.grant(w, r, tenantID)
	}
}

func legacyTenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := r.URL.Query().Get("companyId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing or invalid fields: companyId is required",
			map[string]any{"fields": []string{"companyId"}})
		return "", false
	}
	return tenantID, true
}

func (h *PointsHandler) getBalance(w http.ResponseWriter, r *http.Request, tenantID string) {
	t, err := h.svc.Tenant(tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	res, err := h.svc.GetBalance(r.Context(), t.ID, t.Variant.ReadParams(r.URL.Query().Get))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		TenantID:    res.Tenant.ID,
		ProgramName: res.Tenant.ProgramName,
		UnitLabel:   res.Tenant.UnitLabel,
		Customer:    dto.ToCustomerResponse(res.Customer),
		Balance:     res.Balance,
		Entries:     dto.ToEntryResponses(res.History),
		EvaluatedAt: res.EvaluatedAt,
	})
}

func (h *PointsHandler) grant(w http.ResponseWriter, r *http.Request, tenantID string) {
	t, err := h.svc.Tenant(tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	body, err := decodeBody(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be a JSON object",
			map[string]any{"fields": []string{"body"}})
		return
	}

	query := r.URL.Query()
	params := t.Variant.ReadParams(func(name string) string {
		if v := body.text(name); v != nil {
			return *v
		}
		return query.Get(name)
	})

	draft := service.EntryDraft{
		Amount:        body.first(t.Variant.AmountParamNames()...),
		Expiry:        body.text(tenant.FieldExpiry),
		TransactionID: body.text(tenant.FieldTransactionID),
		FlightNumber:  body.text(tenant.FieldFlightNumber),
		RouteCode:     body.text(tenant.FieldRouteCode),
	}

	res, err := h.svc.GrantPoints(r.Context(), t.ID, params, draft)
	if err != nil {
		h.logger.Warn("grant_rejected",
			slog.String("tenant_id", t.ID),
			slog.String("reason", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("points_granted",
		slog.String("tenant_id", t.ID),
		slog.String("entry_id", res.Entry.ID),
		slog.Int64("amount", res.Entry.Amount),
		slog.Int64("balance", res.BalanceAfter),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)

	writeJSON(w, http.StatusOK, dto.GrantResponse{
		Accepted:    res.Accepted,
		Message:     t.UnitLabel + " updated successfully.",
		TenantID:    t.ID,
		ProgramName: t.ProgramName,
		Entry:       dto.ToEntryResponse(res.Entry, res.Entry.StatusAt(res.EvaluatedAt)),
		Balance:     res.BalanceAfter,
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *PointsHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing or invalid fields: "+verr.Error(),
			map[string]any{"fields": verr.Fields.Fields(), "errors": []tenant.FieldError(verr.Fields)})
	case errors.Is(err, service.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Company not found.", nil)
	case errors.Is(err, service.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found.", nil)
	case errors.Is(err, service.ErrBalanceWouldGoNegative):
		writeError(w, http.StatusUnprocessableEntity, "BALANCE_WOULD_GO_NEGATIVE", "Total points cannot be negative.", nil)
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Error("store_unavailable",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		w.Header().Set("Retry-After", strconv.Itoa(storeRetryAfter))
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Ledger store is temporarily unavailable.", nil)
	default:
		h.logger.Error("internal_error",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", nil)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, dto.ErrorResponse{Error: dto.ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// requestBody holds a decoded JSON object. JSON null and absent keys
// both read as nil.
type requestBody map[string]json.RawMessage

// decodeBody reads a JSON object. An empty body reads as an empty object.
func decodeBody(r *http.Request) (requestBody, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return requestBody{}, nil
	}

	var body requestBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if body == nil {
		// literal null
		return requestBody{}, nil
	}
	return body, nil
}

// text returns the field as text: strings unquoted, numbers verbatim.
// Booleans, objects and arrays yield a value that fails validation.
func (b requestBody) text(name string) *string {
	raw, ok := b[name]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}

	// Not representable as text; a single space is reported as missing.
	s = " "
	return &s
}

// first returns the first present field among names.
func (b requestBody) first(names ...string) *string {
	for _, name := range names {
		if v := b.text(name); v != nil {
			return v
		}
	}
	return nil
}
