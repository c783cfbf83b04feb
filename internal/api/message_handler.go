package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ListUserMessages возвращает последние уведомления пользователя.
// GET /api/v1/users/{id}/messages?limit=...
func (h *Handler) ListUserMessages(w http.ResponseWriter, r *http.Request) error {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return badRequest("invalid user id")
	}
	limit, err := parseLimit(r)
	if err != nil {
		return err
	}

	msgs, err := h.messages.ListByUser(r.Context(), userID, limit)
	if err != nil {
		return err
	}

	result := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		result[i] = MessageFromDomain(m)
	}
	return writeList(w, result, len(result))
}
