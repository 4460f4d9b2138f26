// Package client talks to a claridad daemon over HTTP and WebSocket and
// implements the coordinator backend on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/coordinator"
	"go.uber.org/zap"
)

var _ coordinator.Backend = (*Client)(nil)

// StatusError is a non-2xx daemon response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client is a daemon connection. Safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// New creates a client for the daemon at baseURL. timeout bounds each
// request; it does not apply to message streams.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("daemon url %q: scheme must be http or https", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		logger: logger.Named("client"),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func channelPath(id string, rest ...string) string {
	p := "/api/channels/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Join assigns the user to a neighborhood channel, creating it if needed.
func (c *Client) Join(ctx context.Context, neighborhood, userID, userName string) (*chat.Channel, error) {
	var out api.Channel
	err := c.do(ctx, http.MethodPost, "/api/channels/join", nil, api.JoinRequest{
		Neighborhood: neighborhood,
		UserID:       userID,
		UserName:     userName,
	}, &out)
	if err != nil {
		return nil, err
	}
	ch := api.ChannelFromWire(out)
	return &ch, nil
}

// ResolveUserChannel returns the user's channel, or nil when the user has
// none.
func (c *Client) ResolveUserChannel(ctx context.Context, userID string) (*chat.Channel, error) {
	var out api.Channel
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/channel", nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch := api.ChannelFromWire(out)
	return &ch, nil
}

// Channel returns channel metadata, or nil if unknown.
func (c *Client) Channel(ctx context.Context, id string) (*chat.Channel, error) {
	var out api.Channel
	err := c.do(ctx, http.MethodGet, channelPath(id), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch := api.ChannelFromWire(out)
	return &ch, nil
}

// Channels lists every neighborhood channel the daemon knows.
func (c *Client) Channels(ctx context.Context) ([]chat.Channel, error) {
	var out api.ChannelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/channels", nil, nil, &out); err != nil {
		return nil, err
	}
	channels := make([]chat.Channel, 0, len(out.Channels))
	for _, ch := range out.Channels {
		channels = append(channels, api.ChannelFromWire(ch))
	}
	return channels, nil
}

// ListMessages fetches the newest limit messages; 0 means all.
func (c *Client) ListMessages(ctx context.Context, channelID string, limit int) ([]chat.Message, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out api.MessagesResponse
	if err := c.do(ctx, http.MethodGet, channelPath(channelID, "messages"), q, nil, &out); err != nil {
		return nil, err
	}
	return api.MessagesFromWire(out.Messages), nil
}

// Search finds messages containing query.
func (c *Client) Search(ctx context.Context, channelID, query string, limit int) ([]api.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out api.SearchResponse
	if err := c.do(ctx, http.MethodGet, channelPath(channelID, "messages", "search"), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Post writes a message and returns it as stored.
func (c *Client) Post(ctx context.Context, nm chat.NewMessage) (chat.Message, error) {
	var out api.Message
	err := c.do(ctx, http.MethodPost, channelPath(nm.ChannelID, "messages"), nil, api.SendRequest{
		UserID:   nm.UserID,
		UserName: nm.UserName,
		Text:     nm.Text,
		Type:     string(nm.Type),
		Metadata: nm.Metadata,
	}, &out)
	if err != nil {
		return chat.Message{}, err
	}
	return api.MessageFromWire(out), nil
}

func (c *Client) WriteMessage(ctx context.Context, nm chat.NewMessage) error {
	_, err := c.Post(ctx, nm)
	return err
}

func (c *Client) WriteTyping(ctx context.Context, channelID, userID, userName string, isTyping bool) error {
	return c.do(ctx, http.MethodPut, channelPath(channelID, "typing"), nil,
		api.PresenceRequest{UserID: userID, UserName: userName, Active: isTyping}, nil)
}

func (c *Client) ReadTyping(ctx context.Context, channelID string) ([]chat.TypingUser, error) {
	var out api.TypingResponse
	if err := c.do(ctx, http.MethodGet, channelPath(channelID, "typing"), nil, nil, &out); err != nil {
		return nil, err
	}
	return api.TypingFromWire(out.Users), nil
}

func (c *Client) WriteOnline(ctx context.Context, channelID, userID, userName string, isOnline bool) error {
	return c.do(ctx, http.MethodPut, channelPath(channelID, "online"), nil,
		api.PresenceRequest{UserID: userID, UserName: userName, Active: isOnline}, nil)
}

func (c *Client) ReadOnline(ctx context.Context, channelID string) ([]chat.OnlineUser, error) {
	var out api.OnlineResponse
	if err := c.do(ctx, http.MethodGet, channelPath(channelID, "online"), nil, nil, &out); err != nil {
		return nil, err
	}
	return api.OnlineFromWire(out.Users), nil
}
