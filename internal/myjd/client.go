// Package myjd talks to a MyJDownloader-style remote download engine. The
// session layer handles the encrypted envelope protocol: connect, device
// discovery, token rotation and per-device RPC. The engine layer on top
// implements the bridge client contract.
package myjd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/logger"
)

const (
	appKey = "bridgarr"
	apiVer = 1

	// sessionValidity is how long a session token is trusted before the
	// client reconnects proactively instead of waiting for a rejection.
	sessionValidity = 45 * time.Minute
)

type Config struct {
	BaseURL    string
	Email      string
	Password   string
	DeviceName string
	Timeout    time.Duration
}

// session holds the rotating token state of one connection.
type session struct {
	token         string
	regainToken   string
	serverSecret  []byte // encrypts account-scope calls
	deviceSecret  []byte // encrypts device-scope calls
	deviceID      string
	establishedAt time.Time
}

// Client is the low-level RPC client. Safe for concurrent use; the session
// is re-established lazily when it expires or the server rejects it.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger

	mu   sync.Mutex
	sess *session
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jdownloader.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.New("myjd"),
	}
}

type rpcResponse struct {
	RID  int64           `json:"rid"`
	Data json.RawMessage `json:"data"`
}

type deviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// callDevice invokes an RPC on the connected device, reconnecting once if
// the session has gone stale.
func (c *Client) callDevice(ctx context.Context, action string, params []any, out any) error {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return err
	}

	err = c.deviceRPC(ctx, sess, action, params, out)
	if err != nil && errors.IsAuth(err) {
		c.invalidate(sess)

		sess, err = c.currentSession(ctx)
		if err != nil {
			return err
		}

		err = c.deviceRPC(ctx, sess, action, params, out)
	}

	return err
}

func (c *Client) currentSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && time.Since(c.sess.establishedAt) < sessionValidity {
		return c.sess, nil
	}

	sess, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	c.sess = sess

	return sess, nil
}

func (c *Client) invalidate(sess *session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

// connect performs the credential handshake and resolves the configured
// device name to its id.
func (c *Client) connect(ctx context.Context) (*session, error) {
	login := loginSecret(c.cfg.Email, c.cfg.Password)

	query := fmt.Sprintf("/my/connect?email=%s&appkey=%s&rid=%d",
		url.QueryEscape(strings.ToLower(c.cfg.Email)), url.QueryEscape(appKey), requestID())
	signed := query + "&signature=" + sign(login, query)

	body, status, err := c.do(ctx, http.MethodGet, signed, nil, "")
	if err != nil {
		return nil, errors.NewEngineError(err, "connect", 0)
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return nil, errors.NewAuthError(errors.ErrAuthentication, "connect")
	}
	if status != http.StatusOK {
		return nil, errors.NewEngineError(fmt.Errorf("connect rejected"), "connect", status)
	}

	plain, err := decrypt(login, body)
	if err != nil {
		return nil, errors.NewEngineError(err, "connect", 0)
	}

	var resp struct {
		SessionToken string `json:"sessiontoken"`
		RegainToken  string `json:"regaintoken"`
	}
	if err := json.Unmarshal(plain, &resp); err != nil {
		return nil, errors.NewEngineError(fmt.Errorf("failed to parse connect response: %w", err), "connect", 0)
	}

	serverSecret, err := updateToken(login, resp.SessionToken)
	if err != nil {
		return nil, errors.NewEngineError(err, "connect", 0)
	}
	devSecret, err := updateToken(deviceSecret(c.cfg.Email, c.cfg.Password), resp.SessionToken)
	if err != nil {
		return nil, errors.NewEngineError(err, "connect", 0)
	}

	sess := &session{
		token:         resp.SessionToken,
		regainToken:   resp.RegainToken,
		serverSecret:  serverSecret,
		deviceSecret:  devSecret,
		establishedAt: time.Now(),
	}

	if err := c.resolveDevice(ctx, sess); err != nil {
		return nil, err
	}

	c.log.Info().Str("device", c.cfg.DeviceName).Msg("engine session established")

	return sess, nil
}

// resolveDevice finds the configured device among the account's registered
// instances. With a single device the name match is optional.
func (c *Client) resolveDevice(ctx context.Context, sess *session) error {
	query := fmt.Sprintf("/my/listdevices?sessiontoken=%s&rid=%d", url.QueryEscape(sess.token), requestID())
	signed := query + "&signature=" + sign(sess.serverSecret, query)

	body, status, err := c.do(ctx, http.MethodGet, signed, nil, "")
	if err != nil {
		return errors.NewEngineError(err, "listdevices", 0)
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return errors.NewAuthError(errors.ErrAuthentication, "listdevices")
	}
	if status != http.StatusOK {
		return errors.NewEngineError(fmt.Errorf("listdevices rejected"), "listdevices", status)
	}

	plain, err := decrypt(sess.serverSecret, body)
	if err != nil {
		return errors.NewEngineError(err, "listdevices", 0)
	}

	var resp struct {
		List []deviceInfo `json:"list"`
	}
	if err := json.Unmarshal(plain, &resp); err != nil {
		return errors.NewEngineError(fmt.Errorf("failed to parse device list: %w", err), "listdevices", 0)
	}

	if len(resp.List) == 0 {
		return errors.NewEngineError(errors.New("no devices registered"), "listdevices", 0)
	}

	for _, d := range resp.List {
		if strings.EqualFold(d.Name, c.cfg.DeviceName) {
			sess.deviceID = d.ID
			return nil
		}
	}

	if len(resp.List) == 1 {
		sess.deviceID = resp.List[0].ID
		return nil
	}

	return errors.NewEngineError(fmt.Errorf("device %q not found among %d registered devices", c.cfg.DeviceName, len(resp.List)), "listdevices", 0)
}

// deviceRPC sends one encrypted action call to the device endpoint.
func (c *Client) deviceRPC(ctx context.Context, sess *session, action string, params []any, out any) error {
	rid := requestID()

	encodedParams := make([]string, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return errors.NewEngineError(fmt.Errorf("failed to encode params: %w", err), action, 0)
		}
		encodedParams = append(encodedParams, string(raw))
	}

	payload, err := json.Marshal(map[string]any{
		"url":    action,
		"params": encodedParams,
		"rid":    rid,
		"apiVer": apiVer,
	})
	if err != nil {
		return errors.NewEngineError(fmt.Errorf("failed to encode request: %w", err), action, 0)
	}

	sealed, err := encrypt(sess.deviceSecret, payload)
	if err != nil {
		return errors.NewEngineError(err, action, 0)
	}

	path := fmt.Sprintf("/t_%s_%s%s", url.PathEscape(sess.token), url.PathEscape(sess.deviceID), action)

	body, status, err := c.do(ctx, http.MethodPost, path, strings.NewReader(sealed), "application/aesjson-jd; charset=utf-8")
	if err != nil {
		return errors.NewEngineError(err, action, 0)
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return errors.NewAuthError(errors.ErrAuthentication, action)
	}
	if status != http.StatusOK {
		return errors.NewEngineError(fmt.Errorf("device call rejected"), action, status)
	}

	plain, err := decrypt(sess.deviceSecret, body)
	if err != nil {
		return errors.NewEngineError(err, action, 0)
	}

	var resp rpcResponse
	if err := json.Unmarshal(plain, &resp); err != nil {
		return errors.NewEngineError(fmt.Errorf("failed to parse device response: %w", err), action, 0)
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return errors.NewEngineError(fmt.Errorf("failed to parse device payload: %w", err), action, 0)
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return data, resp.StatusCode, nil
}

// requestID must be strictly increasing within a session.
func requestID() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int63n(1000)
}
