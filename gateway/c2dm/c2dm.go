// Package c2dm implements the push gateway for Google's Cloud to Device
// Messaging service: a ClientLogin authentication handshake followed by
// form-encoded delivery POSTs authorized with the session token.
package c2dm

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

const (
	defaultAuthenticationURL = "https://www.google.com/accounts/ClientLogin"
	defaultPushURL           = "https://android.apis.google.com/c2dm/send"
)

var (
	authTokenPattern   = regexp.MustCompile(`Auth=(\S+)`)
	deliveryErrPattern = regexp.MustCompile(`Error=(\w+)`)
	requiredOptions    = []string{"email", "password", "source"}
)

// gateway lifecycle. Authentication runs once during construction; a failure
// is terminal until the gateway is reconstructed.
type state int

const (
	stateUninitialized state = iota
	stateAuthenticating
	stateReady
	stateFailed
)

// Gateway delivers to Android devices over the C2DM HTTP API.
type Gateway struct {
	client   *http.Client
	authURL  string
	pushURL  string
	payload  bool
	debug    bool
	email    string
	pass     string
	source   string
	collapse string
	logger   *slog.Logger

	authMu sync.Mutex
	mu     sync.RWMutex
	state  state
	token  string
}

// Defaults returns the backend defaults merged beneath caller options.
func Defaults() push.Options {
	return push.Options{
		"authentication_url": defaultAuthenticationURL,
		"push_url":           defaultPushURL,
	}
}

// New validates the configuration and performs the ClientLogin handshake.
// Required options: email, password, source. Optional: authentication_url,
// push_url, adapter (http.RoundTripper), connection (transport passthrough,
// currently "timeout"), collapse_key (fixed collapse group for every send),
// payload (forward Message.Payload as data.* fields), debug (dump
// requests/responses at debug level).
//
// No network call is made before the required options validate.
func New(ctx context.Context, opts push.Options, logger *slog.Logger) (*Gateway, error) {
	opts = opts.Merge(Defaults())
	if err := opts.Require(requiredOptions...); err != nil {
		return nil, err
	}

	client := &http.Client{}
	if transport := opts.Transport("adapter"); transport != nil {
		client.Transport = transport
	}
	if conn := opts.Sub("connection"); conn != nil {
		client.Timeout = conn.Duration("timeout")
	}

	g := &Gateway{
		client:   client,
		authURL:  opts.String("authentication_url"),
		pushURL:  opts.String("push_url"),
		payload:  opts.Bool("payload"),
		debug:    opts.Bool("debug"),
		email:    opts.String("email"),
		pass:     opts.String("password"),
		source:   opts.String("source"),
		collapse: opts.String("collapse_key"),
		logger:   logger.With("component", "C2DMGateway"),
	}

	if err := g.authenticate(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) Name() string    { return "c2dm" }
func (g *Gateway) Kinds() []string { return []string{push.KindAndroid} }

// Token returns the held session token, empty until Ready.
func (g *Gateway) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// ClearToken drops the session token. The next delivery re-authenticates.
func (g *Gateway) ClearToken() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = ""
	g.state = stateUninitialized
}

func (g *Gateway) ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == stateReady && g.token != ""
}

// ensureReady re-runs the handshake when the token was cleared or never
// obtained. The auth mutex single-flights concurrent deliveries: one caller
// hits the wire, the rest re-check under the lock and reuse its token.
func (g *Gateway) ensureReady(ctx context.Context) error {
	if g.ready() {
		return nil
	}
	g.authMu.Lock()
	defer g.authMu.Unlock()
	if g.ready() {
		return nil
	}
	return g.authenticate(ctx)
}

// authenticate runs the ClientLogin handshake and stores the session token.
func (g *Gateway) authenticate(ctx context.Context) error {
	g.setState(stateAuthenticating)

	form := url.Values{
		"accountType": {"HOSTED_OR_GOOGLE"},
		"Email":       {g.email},
		"Passwd":      {g.pass},
		"service":     {"ac2dm"},
		"source":      {g.source},
	}

	status, body, err := g.postForm(ctx, g.authURL, form, "")
	if err != nil {
		g.setState(stateFailed)
		return &push.AuthenticationFailedError{Gateway: g.Name(), Err: err}
	}
	if status < 200 || status >= 300 {
		g.setState(stateFailed)
		return &push.AuthenticationFailedError{Gateway: g.Name(), Status: status, Body: body}
	}

	match := authTokenPattern.FindStringSubmatch(body)
	if match == nil {
		// A success status without an extractable token is still an
		// authentication failure, never a silent no-op.
		g.setState(stateFailed)
		return &push.AuthenticationFailedError{
			Gateway: g.Name(),
			Status:  status,
			Err:     fmt.Errorf("no Auth token in response body %q", body),
		}
	}

	g.mu.Lock()
	g.token = match[1]
	g.state = stateReady
	g.mu.Unlock()

	g.logger.Debug("authenticated", "source", g.source)
	return nil
}

// collapseKey groups messages so the backend can collapse pending duplicates
// while the device is offline. A configured key wins; otherwise messages
// collapse per subject, falling back to a digest of the body.
func (g *Gateway) collapseKey(msg push.Message) string {
	if g.collapse != "" {
		return g.collapse
	}
	if msg.Subject != "" {
		return msg.Subject
	}
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(msg.Body))), 16)
}

// Deliver posts the message to the push endpoint. The gateway is a terminal
// chain link; the continuation is never invoked.
func (g *Gateway) Deliver(ctx context.Context, msg push.Message, dev push.Device, _ push.NextFunc) error {
	if err := g.ensureReady(ctx); err != nil {
		return err
	}

	form := url.Values{
		"registration_id": {dev.Identifier},
		"collapse_key":    {g.collapseKey(msg)},
	}
	if msg.Body != "" {
		form.Set("data.body", msg.Body)
	}
	if msg.Subject != "" {
		form.Set("data.subject", msg.Subject)
	}
	if msg.Sound != "" {
		form.Set("data.sound", msg.Sound)
	}
	if msg.Badge != nil {
		form.Set("data.badge", strconv.Itoa(*msg.Badge))
	}
	if g.payload {
		for k, v := range msg.Payload {
			form.Set("data."+k, v)
		}
	}

	status, body, err := g.postForm(ctx, g.pushURL, form, "GoogleLogin auth="+g.Token())
	if err != nil {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Err: err}
	}
	if status < 200 || status >= 300 {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Status: status, Body: body}
	}
	// A 200 whose body carries an Error= marker is a backend rejection.
	// Unknown error codes collapse into the same generic failure.
	if deliveryErrPattern.MatchString(body) {
		return &push.DeliveryFailedError{Gateway: g.Name(), Message: msg, Device: dev, Status: status, Body: body}
	}

	g.logger.Debug("delivered", "device", dev.Identifier)
	return nil
}

// postForm issues one form-encoded POST and drains the response.
func (g *Gateway) postForm(ctx context.Context, endpoint string, form url.Values, authorization string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	if g.debug {
		if dump, dumpErr := httputil.DumpRequestOut(req, true); dumpErr == nil {
			g.logger.Debug("request", "dump", string(dump))
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response body: %w", err)
	}

	if g.debug {
		g.logger.Debug("response", "status", resp.StatusCode, "body", string(body))
	}
	return resp.StatusCode, string(body), nil
}

func (g *Gateway) setState(s state) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}
