// Package whatsapp talks to the WhatsApp Cloud API: outbound text and audio
// messages, media upload, and parsing of inbound webhook payloads.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
)

const maxErrorBody = 4 << 10

// Credentials identify the business number a message is sent from.
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

// Valid reports whether both parts are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.PhoneNumberID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// Result is the outcome of a send. Failures never surface as errors so the
// caller decides how to treat them.
type Result struct {
	OK        bool            `json:"ok"`
	MessageID string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrNotConnected is the Result error for senders without credentials.
const ErrNotConnected = "whatsapp not connected"

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppGraphURL(), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *textBody   `json:"text,omitempty"`
	Audio            *audioMedia `json:"audio,omitempty"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type audioMedia struct {
	ID string `json:"id"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message to the canonical phone key to.
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) Result {
	return c.send(ctx, creds, textMessage{
		MessagingProduct: "whatsapp",
		To:               recipient(to),
		Type:             "text",
		Text:             &textBody{PreviewURL: false, Body: body},
	})
}

// SendAudio sends previously uploaded audio media as a voice message.
func (c *Client) SendAudio(ctx context.Context, creds Credentials, to, mediaID string) Result {
	return c.send(ctx, creds, textMessage{
		MessagingProduct: "whatsapp",
		To:               recipient(to),
		Type:             "audio",
		Audio:            &audioMedia{ID: mediaID},
	})
}

func (c *Client) send(ctx context.Context, creds Credentials, payload textMessage) Result {
	if !creds.Valid() {
		return Result{OK: false, Error: ErrNotConnected}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("marshal whatsapp payload: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{OK: false, Error: fmt.Sprintf("whatsapp request failed: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{
			OK:    false,
			Data:  rawJSON(data),
			Error: fmt.Sprintf("whatsapp api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	result := Result{OK: true, Data: rawJSON(data)}
	var parsed sendResponse
	if json.Unmarshal(data, &parsed) == nil && len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	if c.log != nil {
		c.log.Info("whatsapp message sent", "type", payload.Type, "to", payload.To, "message_id", result.MessageID)
	}
	return result
}

type uploadResponse struct {
	ID string `json:"id"`
}

// UploadAudio uploads an audio file and returns its media id.
func (c *Client) UploadAudio(ctx context.Context, creds Credentials, r io.Reader, filename, mimeType string) (string, error) {
	if !creds.Valid() {
		return "", errors.New(ErrNotConnected)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := form.WriteField("type", mimeType); err != nil {
		return "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/media", c.baseURL, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp media upload failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("whatsapp media api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.ID == "" {
		return "", fmt.Errorf("whatsapp media api returned no id")
	}
	return parsed.ID, nil
}

// recipient renders a canonical key in the digits-only form the API expects.
func recipient(key string) string {
	return strings.TrimPrefix(phone.FormatE164(key), "+")
}

func rawJSON(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	return nil
}
