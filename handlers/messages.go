package handlers

import (
	"net/http"
	"strconv"

	"chuckafile/models"
)

type sendMessageRequest struct {
	RecipientID int64              `json:"recipientId" validate:"required,gt=0"`
	Message     string             `json:"message" validate:"required"`
	MessageType models.MessageType `json:"messageType" validate:"omitempty,oneof=text file"`
}

// SendMessage stores a message. Only the real-time path fans it out.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req sendMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	msg, err := h.convs.PostMessage(r.Context(), user.ID, req.RecipientID, req.Message, req.MessageType)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusCreated, map[string]interface{}{
		"message": "Message sent successfully",
		"data":    msg,
	})
}

// GetConversation returns one page of history with a friend
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	friendID, err := pathID(r, "friendId")
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	// Unparseable values fall back to the defaults.
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, page, err := h.convs.GetConversation(r.Context(), user.ID, friendID, limit, offset)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"messages":   messages,
		"pagination": page,
	})
}

// GetConversations lists every friend with the latest message
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.convs.ListConversations(r.Context(), currentUser(r).ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}
