package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	apiBase        = "https://api.telegram.org"
	requestTimeout = 10 * time.Second
	maxFileSize    = 5 << 20
)

// Client is a thin Bot API client covering the calls this service needs:
// user notification and profile photo retrieval. A Client with an empty bot
// token is disabled; every call reports ErrNotConfigured.
type Client struct {
	botToken string
	client   *http.Client
}

var ErrNotConfigured = fmt.Errorf("telegram bot token not configured")

func NewClient(botToken string) *Client {
	return &Client{
		botToken: botToken,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) Enabled() bool {
	return c.botToken != ""
}

// SendMessage delivers a text message, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]InlineButton) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = replyMarkup{InlineKeyboard: buttons}
	}

	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// AnswerCallbackQuery acknowledges an inline button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}

	_, err := c.call(ctx, "answerCallbackQuery", payload)
	return err
}

// ProfilePhotoFileID returns the file id of the user's largest current profile
// photo, or "" if the user has none.
func (c *Client) ProfilePhotoFileID(ctx context.Context, telegramID int64) (string, error) {
	result, err := c.call(ctx, "getUserProfilePhotos", map[string]any{
		"user_id": telegramID,
		"limit":   1,
	})
	if err != nil {
		return "", err
	}

	var photos struct {
		TotalCount int `json:"total_count"`
		Photos     [][]struct {
			FileID string `json:"file_id"`
		} `json:"photos"`
	}
	if err := json.Unmarshal(result, &photos); err != nil {
		return "", fmt.Errorf("parse profile photos: %w", err)
	}

	if len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}

	// Sizes are ordered smallest to largest.
	sizes := photos.Photos[0]
	return sizes[len(sizes)-1].FileID, nil
}

// DownloadFile fetches file bytes by file id, returning the content and the
// file path extension reported by the API.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	result, err := c.call(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, "", err
	}

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result, &file); err != nil {
		return nil, "", fmt.Errorf("parse file info: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("empty file path for file %s", fileID)
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", apiBase, c.botToken, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}

	return data, file.FilePath, nil
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", apiBase, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}

	log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Bool("ok", apiResp.OK).
		Msg("telegram api call")

	if !apiResp.OK {
		return nil, fmt.Errorf("telegram api %s: %s", method, apiResp.Description)
	}

	return apiResp.Result, nil
}
