package rtspclient

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/bkataru-workshop/vdkio/errs"
)

// Method is a RTSP request method. Grounded on the teacher's
// pkg/base.Method constants.
type Method string

// Supported methods per spec.md §4.E.
const (
	MethodOptions      Method = "OPTIONS"
	MethodDescribe     Method = "DESCRIBE"
	MethodSetup        Method = "SETUP"
	MethodPlay         Method = "PLAY"
	MethodPause        Method = "PAUSE"
	MethodTeardown     Method = "TEARDOWN"
	MethodGetParameter Method = "GET_PARAMETER"
)

const rtspProtocol10 = "RTSP/1.0"

// HeaderValue is one header's list of values, matching the teacher's
// pkg/base.HeaderValue (a header may legally repeat).
type HeaderValue []string

// Header is the map of RTSP header field names to values, present in
// both Request and Response. Grounded on the teacher's
// pkg/base/header.go, including its case-normalization table for the
// headers RTSP capitalizes unusually (CSeq, WWW-Authenticate).
type Header map[string]HeaderValue

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "cseq":
		return "CSeq"
	case "www-authenticate":
		return "WWW-Authenticate"
	case "rtp-info":
		return "RTP-Info"
	}
	return http.CanonicalHeaderKey(in)
}

// Get returns the first value of key, or "".
func (h Header) Get(key string) string {
	v, ok := h[headerKeyNormalize(key)]
	if !ok || len(v) == 0 {
		return ""
	}
	return v[0]
}

// Set replaces key's values with a single value.
func (h Header) Set(key, value string) {
	h[headerKeyNormalize(key)] = HeaderValue{value}
}

func (h *Header) read(rb *bufio.Reader) error {
	*h = make(Header)
	for {
		line, err := rb.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return fmt.Errorf("malformed header line %q", line)
		}
		key := headerKeyNormalize(line[:i])
		val := strings.TrimLeft(line[i+1:], " ")
		(*h)[key] = append((*h)[key], val)
	}
}

func (h Header) write(w *bufio.Writer) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			if _, err := w.WriteString(k + ": " + v + "\r\n"); err != nil {
				return err
			}
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// Request is a RTSP request. Grounded on the teacher's
// pkg/base/request.go: method, absolute URL, header map, optional
// body, Content-Length auto-injected on Marshal.
type Request struct {
	Method Method
	URL    *URL
	Header Header
	Body   []byte
}

// Marshal renders req as CRLF-terminated wire bytes.
func (req *Request) Marshal() ([]byte, error) {
	var b strings.Builder
	b.WriteString(string(req.Method))
	b.WriteByte(' ')
	b.WriteString(req.URL.CloneWithoutCredentials().String())
	b.WriteByte(' ')
	b.WriteString(rtspProtocol10)
	b.WriteString("\r\n")

	h := req.Header
	if h == nil {
		h = Header{}
	}
	if len(req.Body) > 0 {
		h = cloneHeader(h)
		h.Set("Content-Length", strconv.Itoa(len(req.Body)))
	}

	wb := bufio.NewWriter(&b)
	if err := h.write(wb); err != nil {
		return nil, err
	}
	wb.Flush()

	out := []byte(b.String())
	out = append(out, req.Body...)
	return out, nil
}

func cloneHeader(h Header) Header {
	nh := make(Header, len(h))
	for k, v := range h {
		nh[k] = v
	}
	return nh
}

// readRequestLine reads "METHOD uri RTSP/1.0\r\n" and fills m/rawURL.
func readRequestLine(rb *bufio.Reader) (method string, rawURL string, err error) {
	line, err := rb.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[2] != rtspProtocol10 {
		return "", "", fmt.Errorf("malformed request line %q", line)
	}
	return parts[0], parts[1], nil
}

// ReadRequest parses a Request off rb.
func ReadRequest(rb *bufio.Reader) (*Request, error) {
	method, rawURL, err := readRequestLine(rb)
	if err != nil {
		return nil, err
	}
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	req := &Request{Method: Method(method), URL: u}
	if err := req.Header.read(rb); err != nil {
		return nil, err
	}
	body, err := readBody(rb, req.Header)
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

func readBody(rb *bufio.Reader, h Header) ([]byte, error) {
	cl := h.Get("Content-Length")
	if cl == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", cl)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rb, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// StatusCode is a RTSP response status code. Grounded on the
// teacher's pkg/base.StatusCode; only the subset spec.md §4.E's state
// machine needs is named here.
type StatusCode int

// Status codes referenced by the state machine (spec.md §4.E, §7).
const (
	StatusOK                        StatusCode = 200
	StatusUnauthorized              StatusCode = 401
	StatusMethodNotValidInThisState StatusCode = 455
	StatusInternalServerError       StatusCode = 500
)

// Response is a RTSP response. Grounded on the teacher's
// pkg/base/response.go.
type Response struct {
	StatusCode    StatusCode
	StatusMessage string
	Header        Header
	Body          []byte
}

// ReadResponse parses a Response off rb.
func ReadResponse(rb *bufio.Reader) (*Response, error) {
	line, err := rb.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] != rtspProtocol10 {
		return nil, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code %q", parts[1])
	}
	res := &Response{StatusCode: StatusCode(code), StatusMessage: parts[2]}
	if err := res.Header.read(rb); err != nil {
		return nil, err
	}
	body, err := readBody(rb, res.Header)
	if err != nil {
		return nil, err
	}
	res.Body = body
	return res, nil
}

// Marshal renders res as CRLF-terminated wire bytes, for the unit
// tests that round-trip a Response without a live server.
func (res *Response) Marshal() ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\r\n", rtspProtocol10, res.StatusCode, res.StatusMessage)

	h := res.Header
	if h == nil {
		h = Header{}
	}
	if len(res.Body) > 0 {
		h = cloneHeader(h)
		h.Set("Content-Length", strconv.Itoa(len(res.Body)))
	}
	wb := bufio.NewWriter(&b)
	if err := h.write(wb); err != nil {
		return nil, err
	}
	wb.Flush()

	out := []byte(b.String())
	out = append(out, res.Body...)
	return out, nil
}

// InterleavedFrameMagicByte leads every interleaved frame on a
// RTP/AVP/TCP connection. Grounded on the teacher's
// pkg/base/interleaved_frame.go.
const InterleavedFrameMagicByte = 0x24

// InterleavedFrame carries one RTP or RTCP packet multiplexed onto
// the RTSP TCP connection, per spec.md §4.E's TCP-interleaved
// transport.
type InterleavedFrame struct {
	Channel int
	Payload []byte
}

// Unmarshal decodes one interleaved frame off br.
func (f *InterleavedFrame) Unmarshal(br *bufio.Reader) error {
	var header [4]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return err
	}
	if header[0] != InterleavedFrameMagicByte {
		return errs.New(errs.ProtocolError, "rtspclient.InterleavedFrame.Unmarshal", header[0], nil)
	}
	f.Channel = int(header[1])
	n := int(header[2])<<8 | int(header[3])
	f.Payload = make([]byte, n)
	_, err := io.ReadFull(br, f.Payload)
	return err
}

// Marshal encodes f as a 4-byte header followed by its payload.
func (f *InterleavedFrame) Marshal() []byte {
	buf := make([]byte, 4+len(f.Payload))
	buf[0] = InterleavedFrameMagicByte
	buf[1] = byte(f.Channel)
	buf[2] = byte(len(f.Payload) >> 8)
	buf[3] = byte(len(f.Payload))
	copy(buf[4:], f.Payload)
	return buf
}
