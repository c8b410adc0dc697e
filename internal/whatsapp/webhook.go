package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the envelope Meta posts for the whatsapp_business_account object.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Statuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses"`
}

// InboundMessage is a text message received on a business number.
type InboundMessage struct {
	ID            string
	PhoneNumberID string
	From          string
	ProfileName   string
	Text          string
	ReceivedAt    time.Time
}

// InboundMessages extracts every non-empty text message in the payload.
// Status callbacks and non-text messages are skipped.
func (p WebhookPayload) InboundMessages() []InboundMessage {
	out := make([]InboundMessage, 0)
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range value.Messages {
				if msg.Type != "text" || msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				out = append(out, InboundMessage{
					ID:            msg.ID,
					PhoneNumberID: value.Metadata.PhoneNumberID,
					From:          msg.From,
					ProfileName:   names[msg.From],
					Text:          msg.Text.Body,
					ReceivedAt:    parseUnix(msg.Timestamp),
				})
			}
		}
	}
	return out
}

// VerifySignature checks the X-Hub-Signature-256 header against the body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// SignBody computes the X-Hub-Signature-256 header value for body.
func SignBody(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
