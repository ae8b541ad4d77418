package api

import (
	"context"
	"launchman_backend/config"
	"net/http"
)

func (srv *HttpServer) GetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	rw.MarshalAndRespond(srv.Manager.Notifications)
}

type PatchNotificationsConfig struct {
	Enabled               bool    `json:"enabled"`
	TelegramBotToken      string  `json:"telegram_bot_token"`
	TelegramTargetChatIDS []int64 `json:"telegram_target_chat_ids"`
}

func (nc *PatchNotificationsConfig) Validate(ctx context.Context, srv *HttpServer) *Error {
	return nil
}

// UpdateNotificationSettings replaces the notification settings wholesale
// and persists them, responding with the result.
func (srv *HttpServer) UpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*PatchNotificationsConfig)

	notifications := srv.Manager.Notifications
	notifications.Enabled = req.Enabled
	notifications.TelegramBotToken = req.TelegramBotToken
	notifications.TelegramTargetChatIDS = req.TelegramTargetChatIDS

	if err := notifications.Save(); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	rw.MarshalAndRespond(notifications)
}

type TestMessage struct {
	SendEverywhere bool   `json:"send_everywhere"`
	SendToChatId   int64  `json:"send_to_chat_id"`
	Text           string `json:"text"`
}

func (t *TestMessage) Validate(ctx context.Context, srv *HttpServer) *Error {
	if t.Text == "" {
		return MakeE(MessageCodeTextRequired, "Text required", http.StatusBadRequest, "")
	}
	return nil
}

// TestNotification fires the given text at either every configured target
// or one specific chat, and returns the per-target outcomes.
func (srv *HttpServer) TestNotification(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*TestMessage)

	var results []config.SendResult
	if req.SendEverywhere {
		results = srv.Manager.Notifications.SendMessage(req.Text)
	} else {
		results = []config.SendResult{srv.Manager.Notifications.SendTelegramMessage(req.Text, req.SendToChatId)}
	}
	rw.MarshalAndRespond(results)
}
