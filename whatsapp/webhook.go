package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akhmetov/weighbot/bot"
)

// webhookPayload mirrors the Green API notification shape, limited to the
// fields the bot reads.
type webhookPayload struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	SenderData  struct {
		ChatID     string `json:"chatId"`
		Sender     string `json:"sender"`
		SenderName string `json:"senderName"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
		FileMessageData struct {
			DownloadURL string `json:"downloadUrl"`
			Caption     string `json:"caption"`
			MimeType    string `json:"mimeType"`
		} `json:"fileMessageData"`
	} `json:"messageData"`
}

// ParseWebhook turns a raw Green API notification into a normalized inbound
// message. The second return is false for notifications the bot ignores:
// non-message webhooks (statuses, state changes), group chats and payloads
// with no usable content. Malformed JSON is an error.
func ParseWebhook(raw []byte) (bot.Inbound, bool, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return bot.Inbound{}, false, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}

	if p.TypeWebhook != "incomingMessageReceived" {
		return bot.Inbound{}, false, nil
	}

	chatID := p.SenderData.ChatID
	// Group traffic is outbound-only: reports are broadcast there, group
	// members do not converse with the bot.
	if strings.HasSuffix(chatID, "@g.us") {
		return bot.Inbound{}, false, nil
	}
	identity := strings.TrimSuffix(chatID, "@c.us")
	if identity == "" {
		return bot.Inbound{}, false, nil
	}

	in := bot.Inbound{
		Identity: identity,
		Chat:     chatID,
		MsgID:    p.IDMessage,
	}

	switch p.MessageData.TypeMessage {
	case "textMessage":
		in.Text = p.MessageData.TextMessageData.TextMessage
	case "extendedTextMessage":
		in.Text = p.MessageData.ExtendedTextMessageData.Text
	case "imageMessage", "documentMessage":
		in.HasMedia = true
		in.MediaRef = p.MessageData.FileMessageData.DownloadURL
		in.Text = p.MessageData.FileMessageData.Caption
	default:
		return bot.Inbound{}, false, nil
	}

	if in.Text == "" && !in.HasMedia {
		return bot.Inbound{}, false, nil
	}
	return in, true, nil
}
