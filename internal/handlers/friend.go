package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"campus-social-backend/internal/middleware"
	"campus-social-backend/internal/models"
	"campus-social-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// FriendHandler handles friend-related HTTP requests
type FriendHandler struct {
	friendService *services.FriendService
	validate      *validator.Validate
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(friendService *services.FriendService) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
		validate:      validator.New(),
	}
}

// Routes mounts the friend API on r
func (h *FriendHandler) Routes(r chi.Router, sendLimit func(http.Handler) http.Handler) {
	r.With(sendLimit).Post("/request", h.SendRequest)
	r.Post("/accept/{request_id}", h.AcceptRequest)
	r.Post("/decline/{request_id}", h.DeclineRequest)
	r.Get("/", h.ListFriends)
	r.Get("/count", h.FriendCount)
	r.Get("/online", h.OnlineFriends)
	r.Get("/status/{other_user_id}", h.GetStatus)
	r.Post("/status/batch", h.BatchStatus)
	r.Delete("/{friend_user_id}", h.RemoveFriend)
}

// SendFriendRequest represents the request body for sending a friend request
type SendFriendRequest struct {
	ToUserID int64 `json:"to_user_id" validate:"required,gt=0"`
}

// BatchStatusRequest represents the request body for a batch status check
type BatchStatusRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"min=1,max=100,dive,gt=0"`
}

// ResultResponse is the JSON form of a relationship mutation
type ResultResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	Status      string `json:"status,omitempty"`
	RequestID   *int64 `json:"request_id,omitempty"`
	HasIncoming bool   `json:"has_incoming,omitempty"`
}

func statusCodeFor(code services.Code) int {
	switch code {
	case services.CodeOK:
		return http.StatusOK
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeConflict, services.CodeInvalidStateTransition:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func respondResult(w http.ResponseWriter, result *services.Result) {
	resp := ResultResponse{
		Success:     result.Success,
		Status:      string(result.Status),
		RequestID:   result.RequestID,
		HasIncoming: result.Code == services.CodeIncomingRequestExists,
	}
	if result.Success || resp.HasIncoming {
		resp.Message = result.Message
	} else {
		resp.Error = result.Message
	}
	respondJSON(w, statusCodeFor(result.Code), resp)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SendRequest handles POST /api/friends/request
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, "Missing user ID", http.StatusBadRequest)
		return
	}

	result, err := h.friendService.SendRequest(ctx, userID, req.ToUserID)
	if err != nil {
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondResult(w, result)
}

// AcceptRequest handles POST /api/friends/accept/{request_id}
func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requestID, ok := idParam(r, "request_id")
	if !ok {
		respondError(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	result, err := h.friendService.AcceptRequest(ctx, userID, requestID)
	if err != nil {
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondResult(w, result)
}

// DeclineRequest handles POST /api/friends/decline/{request_id}
func (h *FriendHandler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requestID, ok := idParam(r, "request_id")
	if !ok {
		respondError(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	result, err := h.friendService.DeclineRequest(ctx, userID, requestID)
	if err != nil {
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondResult(w, result)
}

// RemoveFriend handles DELETE /api/friends/{friend_user_id}
func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	friendID, ok := idParam(r, "friend_user_id")
	if !ok {
		respondError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	result, err := h.friendService.RemoveFriend(ctx, userID, friendID)
	if err != nil {
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondResult(w, result)
}

// ListFriends handles GET /api/friends
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	page := 1
	perPage := services.DefaultPerPage
	targetID := userID

	query := r.URL.Query()
	if v := query.Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			page = parsed
		}
	}
	if v := query.Get("per_page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			perPage = parsed
		}
	}
	if v := query.Get("user_id"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			targetID = parsed
		}
	}

	list, err := h.friendService.ListFriends(ctx, targetID, page, perPage)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Int64("target_user_id", targetID).Msg("Failed to list friends")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"friends":    list.Friends,
		"pagination": list.Pagination,
	})
}

// FriendCount handles GET /api/friends/count
func (h *FriendHandler) FriendCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	count, err := h.friendService.FriendCount(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to count friends")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

// OnlineFriends handles GET /api/friends/online
func (h *FriendHandler) OnlineFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	online, err := h.friendService.OnlineFriends(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list online friends")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "online": online})
}

// GetStatus handles GET /api/friends/status/{other_user_id}
func (h *FriendHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	otherID, ok := idParam(r, "other_user_id")
	if !ok {
		respondError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	status, err := h.friendService.GetStatus(ctx, userID, otherID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Int64("other_user_id", otherID).Msg("Failed to check friend status")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.FriendStatus
	}{true, status})
}

// BatchStatus handles POST /api/friends/status/batch
func (h *FriendHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req BatchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, "Invalid user_ids", http.StatusBadRequest)
		return
	}

	statuses, err := h.friendService.GetStatuses(ctx, userID, req.UserIDs)
	if err != nil {
		if errors.Is(err, services.ErrInvalidBatch) {
			respondError(w, "Invalid user_ids", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to batch check statuses")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "statuses": statuses})
}
