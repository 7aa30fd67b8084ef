// Package telegram is a small Bot API client covering what the relay needs:
// sending alerts with inline controls, answering button presses and long
// polling for updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// ParseModeHTML is used for every outgoing text.
const ParseModeHTML = "HTML"

// APIError is a Bot API failure, either a non-2xx status or ok=false.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *APIError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	if desc == "" {
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
}

// IsNotModified reports whether err is Telegram refusing an edit that changes
// nothing. Removing controls twice yields this, and callers treat it as success.
func IsNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}

// IsMediaRejected reports whether a sendPhoto/sendVideo failure is Telegram
// refusing the media itself (unreachable URL, unsupported file) rather than
// the chat.
func IsMediaRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return !strings.Contains(strings.ToLower(apiErr.Description), "chat")
}

// IsPollTimeout reports whether a getUpdates error is just the long poll expiring.
func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// InputFile is media for sendPhoto/sendVideo. Set one of URL, Path or Data.
type InputFile struct {
	URL      string
	Path     string
	Data     []byte
	Filename string
}

// Options configures a Client.
type Options struct {
	Token         string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the Bot API. Sends share one rate limiter; getUpdates
// bypasses it.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		http:    opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		limiter: rate.NewLimiter(limit, burst),
		log:     opts.Logger.With("component", "telegram"),
	}
	if c.http.Timeout == 0 {
		c.http = &http.Client{Transport: opts.HTTPClient.Transport, Timeout: opts.Timeout}
	}
	return c
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts a JSON body and decodes the result into out (may be nil).
func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// The request URL carries the token; keep it out of errors and logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		return &APIError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := c.do(req, "getMe", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates starting at offset and returns the next
// offset to use.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(secs))
	q.Set("allowed_updates", `["message","callback_query"]`)
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}
	// The shared client timeout is shorter than a long poll.
	client := &http.Client{Transport: c.http.Transport}

	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, offset, fmt.Errorf("telegram getUpdates: %w", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		return nil, offset, &APIError{StatusCode: resp.StatusCode, ErrorCode: env.ErrorCode, Description: env.Description, Body: strings.TrimSpace(string(raw))}
	}
	var updates []Update
	if err := json.Unmarshal(env.Result, &updates); err != nil {
		return nil, offset, fmt.Errorf("decode getUpdates result: %w", err)
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

type sendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends HTML text with optional inline controls.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             ParseModeHTML,
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendPhoto sends an image with an HTML caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, file InputFile, caption string, markup *InlineKeyboardMarkup) (*Message, error) {
	return c.sendMedia(ctx, "sendPhoto", "photo", chatID, file, caption, markup)
}

// SendVideo sends a video with an HTML caption.
func (c *Client) SendVideo(ctx context.Context, chatID int64, file InputFile, caption string, markup *InlineKeyboardMarkup) (*Message, error) {
	return c.sendMedia(ctx, "sendVideo", "video", chatID, file, caption, markup)
}

func (c *Client) sendMedia(ctx context.Context, method, field string, chatID int64, file InputFile, caption string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	if file.URL != "" {
		body := map[string]any{
			"chat_id":    chatID,
			field:        file.URL,
			"caption":    caption,
			"parse_mode": ParseModeHTML,
		}
		if markup != nil {
			body["reply_markup"] = markup
		}
		if err := c.call(ctx, method, body, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}

	var src io.Reader
	switch {
	case file.Path != "":
		f, err := os.Open(file.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		src = f
		if file.Filename == "" {
			file.Filename = filepath.Base(file.Path)
		}
	case file.Data != nil:
		src = bytes.NewReader(file.Data)
	default:
		return nil, fmt.Errorf("telegram %s: empty input file", method)
	}
	if file.Filename == "" {
		file.Filename = field
	}

	var markupJSON []byte
	if markup != nil {
		var err error
		if markupJSON, err = json.Marshal(markup); err != nil {
			return nil, fmt.Errorf("encode reply_markup: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		_ = mw.WriteField("caption", caption)
		_ = mw.WriteField("parse_mode", ParseModeHTML)
		if markupJSON != nil {
			_ = mw.WriteField("reply_markup", string(markupJSON))
		}
		part, err := mw.CreateFormFile(field, file.Filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.do(req, method, &msg); err != nil {
		_ = pr.Close()
		return nil, err
	}
	return &msg, nil
}

type editReplyMarkupRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkup replaces a message's inline controls. A nil markup
// removes them.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	if markup == nil {
		markup = &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}}
	}
	return c.call(ctx, "editMessageReplyMarkup", editReplyMarkupRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}, nil)
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges a button press, optionally as a popup.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	}, nil)
}
