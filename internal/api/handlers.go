package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xtrntr/parimut/internal/auth"
	"github.com/xtrntr/parimut/internal/cache"
	"github.com/xtrntr/parimut/internal/db"
	"github.com/xtrntr/parimut/internal/engine"
	"github.com/xtrntr/parimut/internal/metrics"
	"github.com/xtrntr/parimut/internal/models"
	"github.com/xtrntr/parimut/internal/notify"
	"github.com/xtrntr/parimut/internal/ws"
)

// Handler contains dependencies for HTTP handlers. Odds cache, hub, and
// producer are optional and may be nil.
type Handler struct {
	DB          *db.DB
	AuthService *auth.AuthService
	Odds        *cache.OddsCache
	Hub         *ws.Hub
	Producer    *notify.Producer
	Log         *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, authService *auth.AuthService, odds *cache.OddsCache, hub *ws.Hub, producer *notify.Producer, log *zap.Logger) *Handler {
	return &Handler{
		DB:          database,
		AuthService: authService,
		Odds:        odds,
		Hub:         hub,
		Producer:    producer,
		Log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy to HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrEventClosed):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to register user"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"balance":  user.Balance,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and stores the claims in context
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization header required"})
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		claims, err := h.AuthService.VerifyToken(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), "user_id", claims.UserID)
		ctx = context.WithValue(ctx, "role", claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates event creation, settlement, and balance adjustment
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value("role").(string)
		if role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value("user_id").(int)
	return id, ok
}

func eventIDParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// CreateEvent opens a new wagering market (admin only)
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string             `json:"title"`
		Description string             `json:"description"`
		Options     []string           `json:"options"`
		FeePercent  *float64           `json:"fee_percent"`
		SeedPool    map[string]float64 `json:"seed_pool"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	fee := 0.05
	if req.FeePercent != nil {
		fee = *req.FeePercent
	}

	event, err := h.DB.CreateEvent(r.Context(), req.Title, req.Description, req.Options, req.SeedPool, fee)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info("event created",
		zap.Int("event_id", event.ID),
		zap.String("title", event.Title),
		zap.Strings("options", event.Options))
	writeJSON(w, http.StatusCreated, event)
}

// GetActiveEvents lists open events
func (h *Handler) GetActiveEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.DB.GetActiveEvents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetArchivedEvents lists settled events
func (h *Handler) GetArchivedEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.DB.GetArchivedEvents(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent retrieves one event by id
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	event, err := h.DB.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetOdds returns the live pool and coefficient view of an event
func (h *Handler) GetOdds(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	if h.Odds != nil {
		if view, ok := h.Odds.Get(r.Context(), eventID); ok {
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	view, err := h.DB.CurrentOdds(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.Odds != nil {
		h.Odds.Set(r.Context(), view)
	}
	writeJSON(w, http.StatusOK, view)
}

// PlaceStake places a wager on an active event
func (h *Handler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	eventID, err := eventIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	var req struct {
		Option string  `json:"option"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	bet, err := h.DB.PlaceStake(r.Context(), uid, eventID, req.Option, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInsufficientFunds):
			metrics.StakesRejected.WithLabelValues("insufficient_funds").Inc()
		case errors.Is(err, engine.ErrEventClosed):
			metrics.StakesRejected.WithLabelValues("event_closed").Inc()
		case errors.Is(err, engine.ErrInvalidArgument):
			metrics.StakesRejected.WithLabelValues("invalid").Inc()
		}
		h.writeError(w, err)
		return
	}

	metrics.StakesPlaced.Inc()
	metrics.StakeAmount.Observe(bet.Amount)
	h.Log.Info("stake placed",
		zap.Int("bet_id", bet.ID),
		zap.Int("user_id", uid),
		zap.Int("event_id", eventID),
		zap.String("option", bet.Option),
		zap.Float64("amount", bet.Amount),
		zap.Float64("coeff_snapshot", bet.CoeffSnapshot))

	h.afterOddsChange(r.Context(), eventID)
	if h.Producer != nil {
		if err := h.Producer.PublishStakeAccepted(r.Context(), notify.StakeAccepted{
			BetID:         bet.ID,
			UserID:        bet.UserID,
			EventID:       bet.EventID,
			Option:        bet.Option,
			Amount:        bet.Amount,
			CoeffSnapshot: bet.CoeffSnapshot,
		}); err != nil {
			h.Log.Warn("failed to publish stake_accepted", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, bet)
}

// SettleEvent closes an event and pays out every pending bet (admin only)
func (h *Handler) SettleEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	var req struct {
		WinningOption string `json:"winning_option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	report, err := h.DB.Settle(r.Context(), eventID, req.WinningOption)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics.Settlements.Inc()
	h.Log.Info("event settled",
		zap.Int("event_id", report.EventID),
		zap.String("winning_option", report.WinningOption),
		zap.Float64("final_coeff", report.FinalCoeff),
		zap.Float64("total_pool", report.TotalPool),
		zap.Float64("commission", report.Commission),
		zap.Int("bets", len(report.Results)))

	h.afterOddsChange(r.Context(), eventID)
	if h.Producer != nil {
		if err := h.Producer.PublishEventSettled(r.Context(), notify.EventSettled{Report: *report}); err != nil {
			h.Log.Warn("failed to publish event_settled", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// GetUserBets retrieves the caller's bets; ?active=true keeps pending only
func (h *Handler) GetUserBets(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	onlyActive := r.URL.Query().Get("active") == "true"
	bets, err := h.DB.GetUserBets(r.Context(), uid, onlyActive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

// GetMe returns the caller's profile and balance
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	user, err := h.DB.GetUser(r.Context(), uid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AdjustBalance credits or debits a user (admin only)
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.DB.AdjustBalance(r.Context(), targetID, req.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info("balance adjusted",
		zap.Int("user_id", user.ID),
		zap.Float64("delta", req.Delta),
		zap.Float64("balance", user.Balance))
	writeJSON(w, http.StatusOK, user)
}

// afterOddsChange refreshes the cached odds view and pushes it to websocket
// subscribers once a stake or settlement has committed.
func (h *Handler) afterOddsChange(ctx context.Context, eventID int) {
	if h.Odds != nil {
		h.Odds.Invalidate(ctx, eventID)
	}
	if h.Odds == nil && h.Hub == nil {
		return
	}

	view, err := h.DB.CurrentOdds(ctx, eventID)
	if err != nil {
		h.Log.Warn("failed to refresh odds", zap.Int("event_id", eventID), zap.Error(err))
		return
	}
	if h.Odds != nil {
		h.Odds.Set(ctx, view)
	}
	if h.Hub != nil {
		h.Hub.Broadcast(view)
	}
}
