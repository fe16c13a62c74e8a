/*
handlers.go - HTTP handler implementations

PURPOSE:
  Implements the REST endpoints. Handlers are thin: decode, delegate to
  the domain packages, encode. All rule evaluation lives in codes/ and
  points/.

CALLER IDENTITY:
  The caller is read from the X-House, X-User, and X-Admin headers set by
  the session layer in front of this service. This service does not
  authenticate; it trusts those headers.

ERROR DISCIPLINE:
  Redemption and preview failures are not errors and never explain
  themselves: a missing code, an exhausted code, and an ineligible caller
  all produce the same response. Store failures are 500s.

SEE ALSO:
  - server.go: Route wiring
  - dto.go: Request/response shapes
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emberhall/house-points/codes"
	"github.com/emberhall/house-points/points"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	Engine *codes.Engine
	Ledger points.Ledger
	Hub    *Hub
	Log    zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(engine *codes.Engine, ledger points.Ledger, hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Ledger: ledger, Hub: hub, Log: log}
}

// caller reconstructs the caller from the session headers.
func caller(r *http.Request) codes.Caller {
	c := codes.Caller{
		Identity: r.Header.Get("X-User"),
		Admin:    r.Header.Get("X-Admin") == "true",
	}
	if raw := r.Header.Get("X-House"); raw != "" {
		h := points.House(raw)
		if points.ValidHouse(h) {
			c.House = &h
		}
	}
	return c
}

// =============================================================================
// STANDINGS ENDPOINTS
// =============================================================================

// GetStandings returns the current leaderboard.
// GET /api/points
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Ledger.Totals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load standings", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalDTOs(totals))
}

// GetStats returns the leaderboard with per-category breakdowns.
// GET /api/points/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totals, err := h.Ledger.Totals(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load standings", err)
		return
	}
	events, err := h.Ledger.Events(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load events", err)
		return
	}

	stats := points.BuildStats(totals, events)
	dtos := make([]TotalWithStatsDTO, 0, len(stats))
	for _, s := range stats {
		dtos = append(dtos, toTotalWithStatsDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddPoints posts a direct award. Admin only.
// POST /api/points
func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	who := caller(r)
	if !who.Admin {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	var req AddPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	house := points.House(req.House)
	if !points.ValidHouse(house) {
		writeError(w, http.StatusBadRequest, "Unknown house", nil)
		return
	}

	now := time.Now().UTC()
	effectiveAt := now
	if req.EffectiveAt != nil {
		effectiveAt = *req.EffectiveAt
	}

	ev := points.Event{
		ID:          uuid.NewString(),
		House:       house,
		Delta:       req.Amount,
		EffectiveAt: effectiveAt,
		RecordedAt:  now,
		AddedBy:     who.Identity,
		Owner:       req.Owner,
		Reason:      req.Reason,
		ByAdmin:     true,
	}
	if err := h.Ledger.Post(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to post points", err)
		return
	}

	h.Log.Info().
		Str("house", string(house)).
		Str("amount", req.Amount.String()).
		Str("added_by", who.Identity).
		Msg("points added")

	h.broadcastStandings(r)
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// CODE ENDPOINTS
// =============================================================================

// IssueCode creates a new redeemable code. Admin only.
// POST /api/codes
func (h *Handler) IssueCode(w http.ResponseWriter, r *http.Request) {
	who := caller(r)
	if !who.Admin {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	var req IssueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.House != "" && !points.ValidHouse(points.House(req.House)) {
		writeError(w, http.StatusBadRequest, "Unknown house", nil)
		return
	}

	id, err := h.Engine.Issue(r.Context(), req.toConfig())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue code", err)
		return
	}
	if id == "" {
		writeError(w, http.StatusConflict, "Code collision, retry", nil)
		return
	}

	writeJSON(w, http.StatusCreated, IssueCodeResponse{Code: id})
}

// PreviewCode returns the redeemer-facing view of a code, or 404 when the
// code does not exist or is not currently redeemable by this caller.
// GET /api/codes/{code}
func (h *Handler) PreviewCode(w http.ResponseWriter, r *http.Request) {
	pub, err := h.Engine.Preview(r.Context(), chi.URLParam(r, "code"), caller(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up code", err)
		return
	}
	if pub == nil {
		writeError(w, http.StatusNotFound, "Code not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// RedeemCode attempts to redeem a code.
// POST /api/codes/{code}/redeem
func (h *Handler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveAt := time.Now().UTC()
	if req.EffectiveAt != nil {
		effectiveAt = *req.EffectiveAt
	}

	domainReq := codes.Request{
		Code:        chi.URLParam(r, "code"),
		Amount:      req.Amount,
		EffectiveAt: effectiveAt,
		Owner:       req.Owner,
		Reason:      req.Reason,
		Caller:      caller(r),
	}
	if req.House != nil {
		house := points.House(*req.House)
		if !points.ValidHouse(house) {
			writeError(w, http.StatusBadRequest, "Unknown house", nil)
			return
		}
		domainReq.House = &house
	}

	applied, err := h.Engine.Redeem(r.Context(), domainReq)
	if err != nil && !applied {
		writeError(w, http.StatusInternalServerError, "Failed to redeem code", err)
		return
	}
	// applied with a non-nil error means the redemption counted but the
	// event post failed; the engine has logged it. The redeemer still
	// gets their success.
	if applied {
		h.broadcastStandings(r)
	}
	writeJSON(w, http.StatusOK, RedeemResponse{Applied: applied})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) broadcastStandings(r *http.Request) {
	if h.Hub == nil {
		return
	}
	totals, err := h.Ledger.Totals(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("load standings for broadcast")
		return
	}
	h.Hub.BroadcastStandings(totals)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
