package rtspclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/sdp"
)

// State is the Client's position in the DESCRIBE/SETUP/PLAY state
// machine spec.md §4.E defines. Grounded on the teacher's
// client.go clientState, trimmed to the play-only path this module
// needs (no RECORD/ANNOUNCE side, spec.md's scope is ingest only).
type State int

// States of the RTSP client state machine.
const (
	StateInit State = iota
	StateConnected
	StateDescribed
	StateSetup
	StatePlaying
	StatePaused
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnected:
		return "Connected"
	case StateDescribed:
		return "Described"
	case StateSetup:
		return "Setup"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config configures a Client. Mirrors the teacher's ClientConf-style
// config-struct idiom (SPEC_FULL.md AMBIENT STACK): zero-value fields
// fall back to sane defaults in setDefaults.
type Config struct {
	UserAgent    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DialTimeout bounds the initial TCP/TLS/WebSocket handshake.
	DialTimeout time.Duration
	// Transport is not read by Client: Setup offers the Transport
	// value passed to it. WebSocket tunneling is selected by setting
	// UseWebSocketTunnel.
	Transport            TransportProtocol
	UseWebSocketTunnel   bool
	TLSConfig            *tls.Config
	Credentials          Credentials
	// Now defaults to time.Now; tests inject a fake clock.
	Now func() time.Time
	// Logf defaults to a no-op sink.
	Logf func(format string, args ...any)
}

func (c *Config) setDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "vdkio"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logf == nil {
		c.Logf = func(string, ...any) {}
	}
}

// Client implements the RTSP control plane of spec.md §4.E: connect,
// DESCRIBE/SETUP/PLAY/PAUSE/TEARDOWN, Digest/Basic auth retry,
// keep-alive, and state-machine error surfacing. Grounded on the
// teacher's client.go/clientconn.go control flow, narrowed to the
// play-only (ingest) path.
type Client struct {
	ID uuid.UUID

	cfg  Config
	conn net.Conn
	rb   *bufio.Reader
	wb   *bufio.Writer

	mu          sync.Mutex
	state       State
	cseq        int
	sessionID   string
	sessionTO   time.Duration
	baseURL     *URL
	contentBase *URL

	useGetParameter bool

	keepaliveStop chan struct{}
	keepaliveDone chan struct{}
}

// New allocates a Client, not yet connected.
func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{ID: uuid.New(), cfg: cfg, state: StateInit}
}

// State returns the client's current state machine position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials u's host, selecting TLS when the scheme is rtsps,
// a WebSocket tunnel when cfg.UseWebSocketTunnel is set, or a plain
// TCP socket otherwise. Grounded on the teacher's Client.connOpen.
func (c *Client) Connect(ctx context.Context, u *URL) error {
	c.mu.Lock()
	if c.state != StateInit {
		c.mu.Unlock()
		return errs.New(errs.ProtocolError, "rtspclient.Connect", c.state, nil)
	}
	c.mu.Unlock()

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "554")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	switch {
	case c.cfg.UseWebSocketTunnel:
		conn, err = DialWebSocketTunnel(ctx, host, u.Scheme == "rtsps")
	case u.Scheme == "rtsps":
		dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", host, c.cfg.TLSConfig)
	default:
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", host)
	}
	if err != nil {
		return errs.New(errs.TransportLost, "rtspclient.Connect", host, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.rb = bufio.NewReader(conn)
	c.wb = bufio.NewWriter(conn)
	c.baseURL = u
	c.contentBase = u
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

// Close tears down the underlying connection and stops the keep-alive
// goroutine if running. Does not send TEARDOWN; call Teardown first
// if the server should be notified.
func (c *Client) Close() error {
	c.stopKeepalive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// checkState returns a ProtocolError unless the client is currently
// in one of allowed. Grounded on the teacher's Client.checkState.
func (c *Client) checkState(allowed ...State) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return errs.New(errs.ProtocolError, "rtspclient", fmt.Sprintf("invalid command in state %s", c.state), nil)
}

// do sends req, reads the response, and retries once with
// Authorization on a 401 challenge. A second 401 in a row (the
// credentialed retry rejected) surfaces AuthFailed, 5xx surfaces ServerError-kind ProtocolError
// with the code attached, matching spec.md §4.E/§7.
func (c *Client) do(req *Request) (*Response, error) {
	res, err := c.doOnce(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != StatusUnauthorized {
		return c.checkResponseStatus(res)
	}

	challenge, perr := ParseWWWAuthenticate(res.Header.Get("WWW-Authenticate"))
	if perr != nil {
		return nil, errs.New(errs.AuthFailed, "rtspclient.do", nil, perr)
	}

	uri := req.URL.CloneWithoutCredentials().String()
	auth := BuildAuthorization(challenge, c.cfg.Credentials, req.Method, uri)
	if req.Header == nil {
		req.Header = Header{}
	}
	req.Header.Set("Authorization", auth)

	res2, err := c.doOnce(req)
	if err != nil {
		return nil, err
	}
	if res2.StatusCode == StatusUnauthorized {
		return nil, errs.New(errs.AuthFailed, "rtspclient.do", req.Method, nil)
	}
	return c.checkResponseStatus(res2)
}

func (c *Client) checkResponseStatus(res *Response) (*Response, error) {
	if res.StatusCode >= 500 {
		return nil, errs.New(errs.ProtocolError, "rtspclient.do", res.StatusCode, nil)
	}
	return res, nil
}

func (c *Client) doOnce(req *Request) (*Response, error) {
	c.mu.Lock()
	c.cseq++
	cseq := c.cseq
	sessionID := c.sessionID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, errs.New(errs.ProtocolError, "rtspclient.do", req.Method, nil)
	}

	if req.Header == nil {
		req.Header = Header{}
	}
	req.Header.Set("CSeq", strconv.Itoa(cseq))
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if sessionID != "" {
		req.Header.Set("Session", sessionID)
	}

	buf, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	conn.SetWriteDeadline(c.cfg.Now().Add(c.cfg.WriteTimeout))
	if _, err := c.wb.Write(buf); err != nil {
		return nil, errs.New(errs.TransportLost, "rtspclient.do", req.Method, err)
	}
	if err := c.wb.Flush(); err != nil {
		return nil, errs.New(errs.TransportLost, "rtspclient.do", req.Method, err)
	}

	conn.SetReadDeadline(c.cfg.Now().Add(c.cfg.ReadTimeout))
	res, err := ReadResponse(c.rb)
	if err != nil {
		return nil, errs.New(errs.TransportLost, "rtspclient.do", req.Method, err)
	}
	return res, nil
}

// Options sends OPTIONS to u. Valid from any connected state. A
// Public header listing GET_PARAMETER switches the keep-alive to it.
func (c *Client) Options(u *URL) (*Response, error) {
	c.mu.Lock()
	if err := c.checkState(StateConnected, StateDescribed, StateSetup, StatePlaying, StatePaused); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	res, err := c.do(&Request{Method: MethodOptions, URL: u})
	if err != nil {
		return nil, err
	}
	if strings.Contains(res.Header.Get("Public"), string(MethodGetParameter)) {
		c.mu.Lock()
		c.useGetParameter = true
		c.mu.Unlock()
	}
	return res, nil
}

// Describe sends DESCRIBE and parses the returned SDP, recording the
// response's Content-Base (falling back to u) for later control-URL
// resolution, per spec.md §4.E.
func (c *Client) Describe(u *URL) (*sdp.SessionDescription, error) {
	c.mu.Lock()
	if err := c.checkState(StateConnected, StateDescribed); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	req := &Request{Method: MethodDescribe, URL: u, Header: Header{"Accept": HeaderValue{"application/sdp"}}}
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}

	base := u
	if cb := res.Header.Get("Content-Base"); cb != "" {
		if pu, perr := ParseURL(cb); perr == nil {
			base = pu
		}
	}

	desc, err := sdp.Parse(res.Body, base)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.contentBase = base
	c.state = StateDescribed
	c.mu.Unlock()
	return desc, nil
}

// Setup sends SETUP for one media's control URL with the requested
// transport, and records what the server actually granted.
func (c *Client) Setup(media sdp.MediaDescription, requested Transport) (*Transport, error) {
	c.mu.Lock()
	if err := c.checkState(StateDescribed, StateSetup); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	req := &Request{
		Method: MethodSetup,
		URL:    media.Control,
		Header: Header{"Transport": HeaderValue{requested.MarshalRequest()}},
	}
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}

	granted, err := ParseTransport(res.Header.Get("Transport"))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.sessionID == "" {
		sess := res.Header.Get("Session")
		id, timeout := parseSessionHeader(sess)
		c.sessionID = id
		c.sessionTO = timeout
	}
	c.state = StateSetup
	c.mu.Unlock()

	return granted, nil
}

// parseSessionHeader splits "id;timeout=60" into its id and the
// keep-alive interval implied by timeout/2, per spec.md §4.E. A
// missing timeout defaults to 60s (a common RTSP server default),
// matching the teacher's own defaulting posture for unset timers.
func parseSessionHeader(v string) (id string, keepalive time.Duration) {
	parts := strings.SplitN(v, ";", 2)
	id = strings.TrimSpace(parts[0])
	timeout := 60
	if len(parts) == 2 {
		kv := strings.TrimSpace(parts[1])
		if strings.HasPrefix(kv, "timeout=") {
			if n, err := strconv.Atoi(strings.TrimPrefix(kv, "timeout=")); err == nil {
				timeout = n
			}
		}
	}
	return id, time.Duration(timeout) * time.Second / 2
}

// Play sends PLAY and starts the keep-alive goroutine.
func (c *Client) Play(u *URL) (*Response, error) {
	c.mu.Lock()
	if err := c.checkState(StateSetup, StatePaused); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	res, err := c.do(&Request{Method: MethodPlay, URL: u})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.state = StatePlaying
	c.mu.Unlock()
	c.startKeepalive(u)
	return res, nil
}

// Pause sends PAUSE and stops the keep-alive goroutine.
func (c *Client) Pause(u *URL) (*Response, error) {
	c.mu.Lock()
	if err := c.checkState(StatePlaying); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.stopKeepalive()
	res, err := c.do(&Request{Method: MethodPause, URL: u})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state = StatePaused
	c.mu.Unlock()
	return res, nil
}

// Teardown sends TEARDOWN, stops keep-alive, and returns the client
// to Connected so a fresh Describe/Setup cycle can reuse the open
// connection.
func (c *Client) Teardown(u *URL) (*Response, error) {
	c.mu.Lock()
	if err := c.checkState(StatePlaying, StatePaused, StateSetup); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.stopKeepalive()
	res, err := c.do(&Request{Method: MethodTeardown, URL: u})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state = StateConnected
	c.sessionID = ""
	c.mu.Unlock()
	return res, nil
}

// startKeepalive sends GET_PARAMETER (or OPTIONS if the server never
// advertised support for it, tracked via useGetParameter) every
// Session:timeout/2 while Playing, per spec.md §4.E. Grounded on the
// teacher's Client.keepaliveTimer loop.
func (c *Client) startKeepalive(u *URL) {
	c.mu.Lock()
	period := c.sessionTO
	if period <= 0 {
		period = 30 * time.Second
	}
	c.keepaliveStop = make(chan struct{})
	c.keepaliveDone = make(chan struct{})
	stop := c.keepaliveStop
	done := c.keepaliveDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				method := MethodOptions
				c.mu.Lock()
				if c.useGetParameter {
					method = MethodGetParameter
				}
				c.mu.Unlock()
				if _, err := c.do(&Request{Method: method, URL: u}); err != nil {
					c.cfg.Logf("rtspclient: keepalive failed: %v", err)
					return
				}
			}
		}
	}()
}

func (c *Client) stopKeepalive() {
	c.mu.Lock()
	stop := c.keepaliveStop
	done := c.keepaliveDone
	c.keepaliveStop = nil
	c.keepaliveDone = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// ReadInterleavedFrame reads one InterleavedFrame off the control
// connection, for callers using TCP-interleaved transport. Returns
// TransportLost on any read error, per spec.md §4.E's "connection
// loss while Playing" rule.
func (c *Client) ReadInterleavedFrame() (*InterleavedFrame, error) {
	f := &InterleavedFrame{}
	if err := f.Unmarshal(c.rb); err != nil {
		return nil, errs.New(errs.TransportLost, "rtspclient.ReadInterleavedFrame", nil, err)
	}
	return f, nil
}
