package api

import (
	"context"
	"net/http"
	"strings"

	"chatapp/core"

	"github.com/gorilla/mux"
)

// SendMessageRequest is the body of POST /api/messages/send/{id}
type SendMessageRequest struct {
	Text  string `json:"text" validate:"required_without=Image,max=10000"`
	Image string `json:"image" validate:"required_without=Text"`
}

var sendMessageMessages = fieldMessages{
	"*.required_without": "Message must have text or image",
	"text.max":           "Message text is too long",
}

// getUsersForSidebar lists every user except the caller
func (a *API) getUsersForSidebar(w http.ResponseWriter, r *http.Request) {
	me, ok := GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()

	users, err := a.users.ListUsersExcept(ctx, me.ID)
	if err != nil {
		writeStorageError(w, err, a.logger)
		return
	}
	respondJSON(w, users, http.StatusOK)
}

// getMessages returns the conversation between the caller and {id}
func (a *API) getMessages(w http.ResponseWriter, r *http.Request) {
	me, ok := GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}
	otherID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()

	messages, err := a.messages.GetConversation(ctx, me.ID, otherID)
	if err != nil {
		writeStorageError(w, err, a.logger)
		return
	}
	respondJSON(w, messages, http.StatusOK)
}

// sendMessage stores a message to {id} and pushes it to the receiver's sockets
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}
	receiverID := mux.Vars(r)["id"]

	var req SendMessageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		a.writeBodyError(w, err)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Image = strings.TrimSpace(req.Image)
	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err, sendMessageMessages), nil, a.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), core.DBOperationTimeout)
	defer cancel()

	// Unknown receivers are reported as 404 rather than stored
	if _, err := a.lookupUser(ctx, receiverID); err != nil {
		writeStorageError(w, err, a.logger)
		return
	}

	msg := core.NewMessage(me.ID, receiverID, req.Text, req.Image)
	if err := a.messages.CreateMessage(ctx, msg); err != nil {
		writeStorageError(w, err, a.logger)
		return
	}

	if a.hub != nil {
		if err := a.hub.SendToUser(receiverID, core.EventNewMessage, msg); err != nil {
			LogWithRequestID(r, a.logger).Warnw("Failed to push message to receiver",
				"receiver_id", receiverID,
				"error", err)
		}
	}

	respondJSON(w, msg, http.StatusCreated)
}
