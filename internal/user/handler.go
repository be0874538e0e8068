package user

import (
	"errors"
	"log/slog"
	"net/http"

	myMiddleware "nexus-chat/internal/middleware"
	"nexus-chat/internal/respond"
)

type Handler struct {
	Service *Service
	log     *slog.Logger
}

func NewHandler(s *Service, log *slog.Logger) *Handler {
	return &Handler{Service: s, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, http.StatusCreated, res, "user registered successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if errors.Is(err, ErrInvalidCredentials) {
		respond.Fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, http.StatusOK, res, "logged in successfully")
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, users, "users fetched successfully")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := myMiddleware.UserID(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.Service.Me(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, u, "current user fetched successfully")
}
