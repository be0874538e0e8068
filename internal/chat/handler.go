package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"
	myMiddleware "nexus-chat/internal/middleware"
	"nexus-chat/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the chat and message endpoints. The router must already authenticate.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/chats", func(r chi.Router) {
		r.Get("/", h.ListChats)
		r.Post("/c/{receiverId}", h.CreateOrGetOneOnOne)
		r.Delete("/remove/{chatId}", h.DeleteOneOnOne)

		r.Post("/group", h.CreateGroup)
		r.Get("/group/{chatId}", h.GetGroup)
		r.Patch("/group/{chatId}", h.Rename)
		r.Delete("/group/{chatId}", h.DeleteGroup)
		r.Post("/group/{chatId}/{participantId}", h.AddParticipant)
		r.Delete("/group/{chatId}/{participantId}", h.RemoveParticipant)
		r.Patch("/group/{chatId}/admin/{participantId}", h.TransferAdmin)
		r.Delete("/leave/group/{chatId}", h.Leave)
	})
	r.Route("/api/messages/{chatId}", func(r chi.Router) {
		r.Get("/", h.ListMessages)
		r.Post("/", h.SendMessage)
		r.Delete("/{messageId}", h.DeleteMessage)
	})
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	chats, err := h.service.ListChats(r.Context(), caller)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, chats, "user chats fetched successfully")
}

func (h *Handler) CreateOrGetOneOnOne(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	receiver, err := pathID(r, "receiverId")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	v, err := h.service.CreateOrGetOneOnOne(r.Context(), caller, receiver)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v, "chat retrieved successfully")
}

func (h *Handler) DeleteOneOnOne(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteOneOnOne(r.Context(), caller, chatID); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct{}{}, "chat deleted successfully")
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	// Ids are already validated as uuids.
	members := lo.Map(req.ParticipantIDs, func(id string, _ int) uuid.UUID { return uuid.MustParse(id) })
	v, err := h.service.CreateGroup(r.Context(), caller, req.ChatName, members)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, v, "group chat created successfully")
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	v, err := h.service.GetGroup(r.Context(), caller, chatID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v, "group chat fetched successfully")
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	var req RenameRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	v, err := h.service.Rename(r.Context(), caller, chatID, req.Name)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v, "group chat name updated successfully")
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), caller, chatID); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct{}{}, "group chat deleted successfully")
}

func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.service.AddParticipant, "participant added successfully")
}

func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.service.RemoveParticipant, "participant removed successfully")
}

func (h *Handler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.service.TransferAdmin, "group admin changed successfully")
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	if err := h.service.Leave(r.Context(), caller, chatID); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct{}{}, "left the group successfully")
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respond.Error(w, h.log, apperr.Invalid("before must be an RFC3339 timestamp"))
			return
		}
		before = &t
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respond.Error(w, h.log, apperr.Invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}
	msgs, err := h.service.ListMessages(r.Context(), caller, chatID, before, limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, msgs, "messages fetched successfully")
}

// SendMessage accepts JSON, or multipart/form-data with a content field and attachments files.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	content, files, err := readMessage(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	mv, err := h.service.SendMessage(r.Context(), caller, chatID, content, files)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, mv, "message saved successfully")
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	mv, err := h.service.DeleteMessage(r.Context(), caller, chatID, messageID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, mv, "message deleted successfully")
}

// ---------------------------------------------
// Request helpers
// ---------------------------------------------

type participantOp func(ctx context.Context, caller, chatID, target uuid.UUID) (*entity.ChatView, error)

func (h *Handler) participantAction(w http.ResponseWriter, r *http.Request, op participantOp, message string) {
	caller, chatID, ok := h.callerAndChat(w, r)
	if !ok {
		return
	}
	target, err := pathID(r, "participantId")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	v, err := op(r.Context(), caller, chatID, target)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v, message)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := myMiddleware.UserID(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

func (h *Handler) callerAndChat(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	chatID, err := pathID(r, "chatId")
	if err != nil {
		respond.Error(w, h.log, err)
		return uuid.Nil, uuid.Nil, false
	}
	return caller, chatID, true
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name + " is not a valid id")
	}
	return id, nil
}

func readMessage(r *http.Request) (string, []File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req SendMessageRequest
		if err := respond.Decode(r, &req); err != nil {
			return "", nil, err
		}
		return req.Content, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, apperr.Invalid("malformed multipart body")
	}
	req := SendMessageRequest{Content: r.FormValue("content")}
	if err := respond.Validate(&req); err != nil {
		return "", nil, err
	}
	headers := r.MultipartForm.File["attachments"]
	if len(headers) > maxAttachments {
		return "", nil, apperr.Invalid(fmt.Sprintf("at most %d attachments per message", maxAttachments))
	}
	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxUploadBytes {
			return "", nil, apperr.Invalid(fh.Filename + " is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		_ = f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		files = append(files, File{Name: fh.Filename, Data: data})
	}
	return req.Content, files, nil
}
