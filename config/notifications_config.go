package config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"time"
)

const NotificationConfigFileName = "notifications.json"

// NotificationsConfig lives next to the binary in notifications.json and
// is rewritten in place whenever it changes through the API.
type NotificationsConfig struct {
	Enabled               bool    `json:"enabled"`
	TelegramBotToken      string  `json:"telegram_bot_token"`
	TelegramTargetChatIDS []int64 `json:"telegram_target_chat_ids"`
}

var telegramClient = &http.Client{Timeout: 10 * time.Second}

// LoadOrCreateNotificationsConfig reads notifications.json, writing a
// disabled default first if the file does not exist yet.
func LoadOrCreateNotificationsConfig() (*NotificationsConfig, error) {
	f, err := os.Open(NotificationConfigFileName)
	if os.IsNotExist(err) {
		cfg := &NotificationsConfig{TelegramTargetChatIDS: make([]int64, 0)}
		if err = cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &NotificationsConfig{}
	if err = json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (nc *NotificationsConfig) Save() error {
	f, err := os.OpenFile(NotificationConfigFileName, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(nc)
}

// SendResult reports the outcome of one sendMessage call, per chat.
type SendResult struct {
	Success   bool
	ChatId    int64
	MessageId int
	Error     string
}

type telegramRequest struct {
	ChatId int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageId int `json:"message_id"`
	} `json:"result"`
}

func (nc *NotificationsConfig) SendTelegramMessage(text string, chatId int64) SendResult {
	fail := func(reason string) SendResult {
		return SendResult{ChatId: chatId, Error: reason}
	}

	body, err := json.Marshal(telegramRequest{ChatId: chatId, Text: text})
	if err != nil {
		return fail(err.Error())
	}

	url := "https://api.telegram.org/bot" + nc.TelegramBotToken + "/sendMessage"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := telegramClient.Do(req)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()

	var tg telegramResponse
	if err = json.NewDecoder(resp.Body).Decode(&tg); err != nil {
		return fail(err.Error())
	}
	if !tg.Ok || resp.StatusCode >= 400 {
		if tg.Description == "" {
			return fail("unknown error")
		}
		return fail(tg.Description)
	}
	if tg.Result.MessageId == 0 {
		return fail("could not get message_id")
	}

	return SendResult{Success: true, ChatId: chatId, MessageId: tg.Result.MessageId}
}

// SendMessage delivers text to every configured chat. A disabled config
// sends nothing and returns nil.
func (nc *NotificationsConfig) SendMessage(text string) []SendResult {
	if !nc.Enabled {
		return nil
	}
	results := make([]SendResult, 0, len(nc.TelegramTargetChatIDS))
	for _, chatId := range nc.TelegramTargetChatIDS {
		results = append(results, nc.SendTelegramMessage(text, chatId))
	}
	return results
}
