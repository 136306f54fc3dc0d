package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/draftly/draftly/internal/mailbox"
	"github.com/draftly/draftly/internal/platform/crypto"
	userrepo "github.com/draftly/draftly/internal/user/repository"
)

const defaultBaseURL = "https://gmail.googleapis.com"

// Client adapts the Gmail REST API to the mailbox interfaces. Each call
// authenticates with the user's stored (encrypted) OAuth access token.
type Client struct {
	users      userrepo.UserRepository
	cipher     *crypto.Cipher
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(users userrepo.UserRepository, cipher *crypto.Cipher, logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		users:      users,
		cipher:     cipher,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("adapter", "gmail"),
	}
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data"`
}

type gmailPart struct {
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailBody     `json:"body"`
	Parts    []gmailPart   `json:"parts"`
}

type gmailMessage struct {
	ID       string     `json:"id"`
	ThreadID string     `json:"threadId"`
	Snippet  string     `json:"snippet"`
	Payload  *gmailPart `json:"payload"`
}

type gmailThread struct {
	ID       string         `json:"id"`
	Snippet  string         `json:"snippet"`
	Messages []gmailMessage `json:"messages"`
}

type gmailThreadList struct {
	Threads []struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
	} `json:"threads"`
}

func (c *Client) ListThreads(ctx context.Context, userID string, maxResults int) ([]mailbox.ThreadSummary, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	accessToken, err := c.userAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	var list gmailThreadList
	url := fmt.Sprintf("%s/gmail/v1/users/me/threads?maxResults=%d", c.baseURL, maxResults)
	if err := c.get(ctx, url, accessToken, &list); err != nil {
		return nil, err
	}

	summaries := make([]mailbox.ThreadSummary, 0, len(list.Threads))
	for _, t := range list.Threads {
		var detail gmailThread
		detailURL := fmt.Sprintf(
			"%s/gmail/v1/users/me/threads/%s?format=metadata&metadataHeaders=Subject&metadataHeaders=From&metadataHeaders=To&metadataHeaders=Date",
			c.baseURL, t.ID,
		)
		if err := c.get(ctx, detailURL, accessToken, &detail); err != nil {
			return nil, err
		}

		summary := mailbox.ThreadSummary{ID: t.ID, Snippet: t.Snippet, Subject: "(no subject)"}
		if len(detail.Messages) > 0 {
			first := detail.Messages[0]
			headers := mapHeaders(first.Payload)
			if headers["subject"] != "" {
				summary.Subject = headers["subject"]
			}
			summary.From = headers["from"]
			summary.To = headers["to"]
			if first.Snippet != "" {
				summary.Snippet = first.Snippet
			}
		}
		summaries = append(summaries, summary)
	}

	c.logger.InfoContext(ctx, "Fetched Gmail threads", "user_id", userID, "count", len(summaries))
	return summaries, nil
}

func (c *Client) GetThread(ctx context.Context, userID, threadID string) (*mailbox.Thread, error) {
	accessToken, err := c.userAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	var raw gmailThread
	url := fmt.Sprintf("%s/gmail/v1/users/me/threads/%s?format=full", c.baseURL, threadID)
	if err := c.get(ctx, url, accessToken, &raw); err != nil {
		return nil, err
	}

	thread := &mailbox.Thread{ID: raw.ID}
	for _, msg := range raw.Messages {
		headers := mapHeaders(msg.Payload)
		text, html, attachments := parsePayload(msg.Payload)
		body := text
		if body == "" {
			body = html
		}
		thread.Messages = append(thread.Messages, mailbox.Message{
			ID:          msg.ID,
			ThreadID:    raw.ID,
			Subject:     headers["subject"],
			From:        headers["from"],
			To:          headers["to"],
			Date:        headers["date"],
			Snippet:     msg.Snippet,
			Body:        body,
			BodyHTML:    html,
			Attachments: attachments,
		})
	}
	if n := len(thread.Messages); n > 0 {
		thread.Subject = thread.Messages[n-1].Subject
	} else {
		thread.Subject = raw.Snippet
	}
	return thread, nil
}

func (c *Client) GetMessageContext(ctx context.Context, userID, threadID, messageID string) (*mailbox.MessageContext, error) {
	accessToken, err := c.userAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msg gmailMessage
	url := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?format=full", c.baseURL, messageID)
	if err := c.get(ctx, url, accessToken, &msg); err != nil {
		return nil, err
	}

	headers := mapHeaders(msg.Payload)
	text, html, attachments := parsePayload(msg.Payload)
	body := text
	if body == "" {
		body = html
	}
	return &mailbox.MessageContext{
		Subject:     headers["subject"],
		From:        headers["from"],
		To:          headers["to"],
		Body:        body,
		BodyHTML:    html,
		Attachments: attachments,
	}, nil
}

func (c *Client) Deliver(ctx context.Context, userID string, raw []byte) (string, error) {
	accessToken, err := c.userAccessToken(ctx, userID)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/gmail/v1/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gmail send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.ErrorContext(ctx, "Gmail send returned non-200", "status", resp.StatusCode, "body", string(snippet))
		return "", fmt.Errorf("%w: gmail send returned status %d", mailbox.ErrMailboxReject, resp.StatusCode)
	}

	var sent struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", fmt.Errorf("failed to decode gmail send response: %w", err)
	}
	c.logger.InfoContext(ctx, "Message handed to Gmail", "user_id", userID, "provider_message_id", sent.ID)
	return sent.ID, nil
}

func (c *Client) userAccessToken(ctx context.Context, userID string) (string, error) {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	accessToken, err := c.cipher.DecryptToken(user.GoogleAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt stored oauth token for user %s: %w", userID, err)
	}
	return accessToken, nil
}

func (c *Client) get(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return mailbox.ErrMessageNotFound
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.ErrorContext(ctx, "Gmail API returned non-200", "status", resp.StatusCode, "url", url, "body", string(snippet))
		return fmt.Errorf("%w: gmail returned status %d", mailbox.ErrMailboxReject, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func mapHeaders(payload *gmailPart) map[string]string {
	headers := map[string]string{}
	if payload == nil {
		return headers
	}
	for _, h := range payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// parsePayload walks the MIME tree collecting the first text/plain and
// text/html bodies plus attachment metadata. Attachment payloads stay behind
// their attachment ids; only metadata is surfaced.
func parsePayload(payload *gmailPart) (text, html string, attachments []mailbox.Attachment) {
	if payload == nil {
		return "", "", nil
	}

	var walk func(part *gmailPart)
	walk = func(part *gmailPart) {
		if part == nil {
			return
		}
		switch {
		case part.Filename != "":
			att := mailbox.Attachment{
				Filename: part.Filename,
				MimeType: part.MimeType,
				Size:     part.Body.Size,
			}
			for _, h := range part.Headers {
				if strings.EqualFold(h.Name, "Content-ID") {
					att.ContentID = strings.Trim(h.Value, "<>")
				}
				if strings.EqualFold(h.Name, "Content-Disposition") && strings.HasPrefix(strings.ToLower(h.Value), "inline") {
					att.Inline = true
				}
			}
			attachments = append(attachments, att)
		case part.MimeType == "text/plain" && text == "":
			text = decodeBody(part.Body.Data)
		case part.MimeType == "text/html" && html == "":
			html = decodeBody(part.Body.Data)
		}
		for i := range part.Parts {
			walk(&part.Parts[i])
		}
	}
	walk(payload)
	return text, html, attachments
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
