package rtspclient

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bkataru-workshop/vdkio/errs"
)

func errKind(err error) (string, bool) {
	k, ok := errs.KindOf(err)
	if !ok {
		return "", false
	}
	return k.String(), true
}

func TestDigestResponseMatchesScenarioS5(t *testing.T) {
	// S5: method=DESCRIBE, uri=rtsp://h/s, user=u, pass=p, realm=r,
	// nonce=n => response = MD5(MD5("u:r:p") + ":n:" + MD5("DESCRIBE:rtsp://h/s"))
	got := digestResponse(DigestMD5, "u", "r", "p", "DESCRIBE", "rtsp://h/s", "n")

	ha1 := md5Hex("u:r:p")
	ha2 := md5Hex("DESCRIBE:rtsp://h/s")
	want := md5Hex(ha1 + ":n:" + ha2)

	require.Equal(t, want, got)
	require.Len(t, got, 32, "MD5 hex digest is 32 lowercase hex characters")
}

func TestBuildAuthorizationDigestEchoesChallengeFields(t *testing.T) {
	ch := &WWWAuthenticate{Method: AuthDigest, Realm: "r", Nonce: "n"}
	cred := Credentials{User: "u", Pass: "p"}

	header := BuildAuthorization(ch, cred, MethodDescribe, "rtsp://h/s")

	require.Contains(t, header, `username="u"`)
	require.Contains(t, header, `realm="r"`)
	require.Contains(t, header, `nonce="n"`)
	require.Contains(t, header, `uri="rtsp://h/s"`)

	expectedResponse := digestResponse(DigestMD5, "u", "r", "p", "DESCRIBE", "rtsp://h/s", "n")
	require.Contains(t, header, `response="`+expectedResponse+`"`)
}

func TestBuildAuthorizationBasicEncodesUserPass(t *testing.T) {
	ch := &WWWAuthenticate{Method: AuthBasic, Realm: "r"}
	cred := Credentials{User: "u", Pass: "p"}

	header := BuildAuthorization(ch, cred, MethodDescribe, "rtsp://h/s")
	require.Equal(t, "Basic dTpw", header) // base64("u:p")
}

func TestParseWWWAuthenticateDigest(t *testing.T) {
	ch, err := ParseWWWAuthenticate(`Digest realm="Streaming", nonce="abc123", opaque="xyz"`)
	require.NoError(t, err)
	require.Equal(t, AuthDigest, ch.Method)
	require.Equal(t, "Streaming", ch.Realm)
	require.Equal(t, "abc123", ch.Nonce)
	require.Equal(t, "xyz", ch.Opaque)
}

func TestBuildAuthorizationDigestSHA256WhenChallengeAdvertisesIt(t *testing.T) {
	ch := &WWWAuthenticate{Method: AuthDigest, Algorithm: DigestSHA256, Realm: "r", Nonce: "n"}
	cred := Credentials{User: "u", Pass: "p"}

	header := BuildAuthorization(ch, cred, MethodDescribe, "rtsp://h/s")
	require.Contains(t, header, `algorithm="SHA-256"`)

	expectedResponse := digestResponse(DigestSHA256, "u", "r", "p", "DESCRIBE", "rtsp://h/s", "n")
	require.Contains(t, header, `response="`+expectedResponse+`"`)
}

func TestParseWWWAuthenticateBasic(t *testing.T) {
	ch, err := ParseWWWAuthenticate(`Basic realm="Streaming"`)
	require.NoError(t, err)
	require.Equal(t, AuthBasic, ch.Method)
	require.Equal(t, "Streaming", ch.Realm)
}

func TestRequestMarshalProducesCRLFWireFormat(t *testing.T) {
	u, err := ParseURL("rtsp://example.com/stream")
	require.NoError(t, err)

	req := &Request{
		Method: MethodDescribe,
		URL:    u,
		Header: Header{"CSeq": HeaderValue{"1"}, "User-Agent": HeaderValue{"vdkio"}},
	}
	buf, err := req.Marshal()
	require.NoError(t, err)

	s := string(buf)
	require.True(t, bytes.HasPrefix(buf, []byte("DESCRIBE rtsp://example.com/stream RTSP/1.0\r\n")))
	require.Contains(t, s, "CSeq: 1\r\n")
	require.Contains(t, s, "User-Agent: vdkio\r\n")
	require.True(t, bytes.HasSuffix(buf, []byte("\r\n\r\n")))
}

func TestReadResponseParsesStatusHeadersAndBody(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\n" +
		"CSeq: 2\r\n" +
		"Content-Base: rtsp://example.com/stream/\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"

	res, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.StatusCode)
	require.Equal(t, "OK", res.StatusMessage)
	require.Equal(t, "2", res.Header.Get("CSeq"))
	require.Equal(t, []byte("hello"), res.Body)
}

func TestInterleavedFrameRoundTrip(t *testing.T) {
	f := &InterleavedFrame{Channel: 0, Payload: []byte{1, 2, 3, 4}}
	buf := f.Marshal()

	require.Equal(t, byte(InterleavedFrameMagicByte), buf[0])

	var got InterleavedFrame
	err := got.Unmarshal(bufio.NewReader(bytes.NewReader(buf)))
	require.NoError(t, err)
	require.Equal(t, f.Channel, got.Channel)
	require.Equal(t, f.Payload, got.Payload)
}

func TestPathSplitTrackIDDefaultsToZeroWhenAbsent(t *testing.T) {
	id, rest, ok := PathSplitTrackID("stream")
	require.True(t, ok)
	require.Equal(t, 0, id)
	require.Equal(t, "stream", rest)
}

func TestPathSplitTrackIDExtractsTrailingAttribute(t *testing.T) {
	id, rest, ok := PathSplitTrackID("stream/trackID=1")
	require.True(t, ok)
	require.Equal(t, 1, id)
	require.Equal(t, "stream", rest)
}

func TestResolveControlURLAbsolute(t *testing.T) {
	base, err := ParseURL("rtsp://example.com/stream/")
	require.NoError(t, err)

	u, err := ResolveControlURL(base, "rtsp://other.com/track1")
	require.NoError(t, err)
	require.Equal(t, "rtsp://other.com/track1", u.String())
}

func TestResolveControlURLRelativeAppendsToContentBase(t *testing.T) {
	base, err := ParseURL("rtsp://example.com/stream/")
	require.NoError(t, err)

	u, err := ResolveControlURL(base, "track1")
	require.NoError(t, err)
	require.Equal(t, "rtsp://example.com/stream/track1", u.String())
}

func TestResolveControlURLStarReturnsBaseUnchanged(t *testing.T) {
	base, err := ParseURL("rtsp://example.com/stream/")
	require.NoError(t, err)

	u, err := ResolveControlURL(base, "*")
	require.NoError(t, err)
	require.Equal(t, base, u)
}

func TestTransportMarshalRequestUDP(t *testing.T) {
	tr := Transport{Protocol: TransportUDP, ClientPorts: [2]int{6000, 6001}}
	require.Equal(t, "RTP/AVP;unicast;client_port=6000-6001", tr.MarshalRequest())
}

func TestTransportMarshalRequestTCP(t *testing.T) {
	tr := Transport{Protocol: TransportTCP, InterleavedIDs: [2]int{0, 1}}
	require.Equal(t, "RTP/AVP/TCP;unicast;interleaved=0-1", tr.MarshalRequest())
}

func TestParseTransportUDPServerPorts(t *testing.T) {
	tr, err := ParseTransport("RTP/AVP;unicast;client_port=6000-6001;server_port=7000-7001")
	require.NoError(t, err)
	require.Equal(t, TransportUDP, tr.Protocol)
	require.Equal(t, [2]int{7000, 7001}, tr.ServerPorts)
}

func TestParseTransportTCPInterleaved(t *testing.T) {
	tr, err := ParseTransport("RTP/AVP/TCP;unicast;interleaved=2-3")
	require.NoError(t, err)
	require.Equal(t, TransportTCP, tr.Protocol)
	require.Equal(t, [2]int{2, 3}, tr.InterleavedIDs)
}

func TestCheckStateRejectsInvalidTransitionWithProtocolError(t *testing.T) {
	c := New(Config{})
	// A client in StateInit has never Connect()ed: Describe must
	// reject rather than dereference a nil connection.
	u, err := ParseURL("rtsp://example.com/s")
	require.NoError(t, err)

	_, err = c.Describe(u)
	require.Error(t, err)
	kind, ok := errKind(err)
	require.True(t, ok)
	require.Equal(t, "ProtocolError", kind)
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	require.NotEqual(t, a.ID, b.ID)
}

func TestParseSessionHeaderSplitsIDAndHalvesTimeout(t *testing.T) {
	id, period := parseSessionHeader("12345678;timeout=60")
	require.Equal(t, "12345678", id)
	require.Equal(t, 30, int(period.Seconds()))
}
