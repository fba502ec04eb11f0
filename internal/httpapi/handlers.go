package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zakupai/lotsearch/internal/app"
	"github.com/zakupai/lotsearch/internal/strategy"
	"github.com/zakupai/lotsearch/internal/upstream"
)

type handlers struct {
	svc *app.Service
}

func newHandlers(svc *app.Service) *handlers { return &handlers{svc: svc} }

// searchRequest is the JSON body for POST /v1/search.
type searchRequest struct {
	Query              string   `json:"query"`
	CustomerBIN        string   `json:"customer_bin,omitempty"`
	TradeMethodIDs     []int    `json:"trade_method_ids,omitempty"`
	StatusIDs          []int    `json:"status_ids,omitempty"`
	AmountFrom         *float64 `json:"amount_from,omitempty"`
	AmountTo           *float64 `json:"amount_to,omitempty"`
	AnnouncementNumber string   `json:"announcement_number,omitempty"`
	PublishDateFrom    string   `json:"publish_date_from,omitempty"`
	PublishDateTo      string   `json:"publish_date_to,omitempty"`
	EndDateFrom        string   `json:"end_date_from,omitempty"`
	EndDateTo          string   `json:"end_date_to,omitempty"`
	Limit              int      `json:"limit,omitempty"`
	Offset             int      `json:"offset,omitempty"`
	UserID             int64    `json:"user_id"`
	Strategy           string   `json:"strategy,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, upstream.E(upstream.KindValidation, "", err))
		return
	}
	req := app.SearchRequest{
		Query: upstream.SearchQuery{
			Keyword:            body.Query,
			CustomerBIN:        body.CustomerBIN,
			TradeMethodIDs:     body.TradeMethodIDs,
			StatusIDs:          body.StatusIDs,
			AmountFrom:         body.AmountFrom,
			AmountTo:           body.AmountTo,
			AnnouncementNumber: body.AnnouncementNumber,
			PublishDateFrom:    body.PublishDateFrom,
			PublishDateTo:      body.PublishDateTo,
			EndDateFrom:        body.EndDateFrom,
			EndDateTo:          body.EndDateTo,
			Limit:              body.Limit,
			Offset:             body.Offset,
		},
		UserID: body.UserID,
		APIKey: r.Header.Get("X-Api-Key"),
	}
	if body.Strategy == string(strategy.ModeHybrid) {
		req.Override = strategy.ModeHybrid
	}
	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) lotByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	lot, err := h.svc.GetLotByNumber(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	if lot == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "lot not found", Kind: upstream.KindNotFound.String()})
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *handlers) createKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TgID  int64  `json:"tg_id"`
		Email string `json:"email,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, upstream.E(upstream.KindValidation, "", err))
		return
	}
	grant, err := h.svc.CreateKey(r.Context(), body.TgID, body.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *handlers) popularQueries(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.PopularQueries(r.Context(), queryInt(r, "days", 7), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) systemStats(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.SystemStats(r.Context(), queryInt(r, "days", 7))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) topUsers(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.TopUsers(r.Context(), queryInt(r, "days", 7), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) userAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, upstream.E(upstream.KindValidation, "", err))
		return
	}
	out, err := h.svc.UserAnalytics(r.Context(), id, queryInt(r, "days", 30))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	kind := upstream.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case upstream.KindValidation:
		status = http.StatusBadRequest
	case upstream.KindUnauthorized:
		status = http.StatusUnauthorized
	case upstream.KindRateLimited:
		status = http.StatusTooManyRequests
	case upstream.KindNotFound:
		status = http.StatusNotFound
	case upstream.KindTimeout:
		status = http.StatusGatewayTimeout
	case upstream.KindNetwork, upstream.KindProtocol:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}
