// Package rtspurl implements RTSP URL parsing and the control-URL
// resolution rules spec.md §4.E and its SDP paragraph both depend on.
// Split out from pkg/rtspclient so pkg/sdp can resolve a=control:
// attributes without importing the client package. Grounded on the
// teacher's legacy base/url.go (the current pkg/base/url.go dropped
// the control-attribute helpers this module still needs).
package rtspurl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bkataru-workshop/vdkio/errs"
)

// URL is a parsed rtsp:// or rtsps:// URL, wrapping net/url.URL the
// way the teacher's base.URL does.
type URL struct {
	*url.URL
}

// ParseURL parses s as a RTSP URL, rejecting any scheme other than
// rtsp/rtsps. Default port 554 per spec.md §4.E is applied by callers
// that dial, not here, matching the teacher's own URL type staying a
// thin net/url wrapper.
func ParseURL(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "rtspurl.ParseURL", s, err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, errs.New(errs.InvalidInput, "rtspurl.ParseURL", s, nil)
	}
	return &URL{u}, nil
}

// CloneWithoutCredentials returns a copy of u with User stripped, for
// use in request lines and in the Digest "uri" field (credentials are
// never echoed on the wire).
func (u *URL) CloneWithoutCredentials() *URL {
	nu := *u.URL
	nu.User = nil
	return &URL{&nu}
}

// stringsReverseIndex finds the last occurrence of substr in s,
// searching from the end. Grounded on the teacher's legacy
// base/url.go helper of the same name.
func stringsReverseIndex(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// PathSplitTrackID splits a trailing "/trackID=<n>" control attribute
// off pathAndQuery, defaulting to track 0 when absent. Grounded on
// the teacher's legacy base.PathSplitControlAttribute.
func PathSplitTrackID(pathAndQuery string) (trackID int, rest string, ok bool) {
	i := stringsReverseIndex(pathAndQuery, "/trackID=")
	if i < 0 {
		return 0, pathAndQuery, true
	}
	n, err := strconv.ParseInt(pathAndQuery[i+len("/trackID="):], 10, 64)
	if err != nil || n < 0 {
		return 0, "", false
	}
	return int(n), pathAndQuery[:i], true
}

// ResolveControlURL resolves a SDP a=control: attribute against a
// session Content-Base per spec.md §4.E: an absolute control URL
// (its own scheme) is used as-is; "*" means "the base URL itself";
// anything else is appended to base, inserting a separating slash
// when base doesn't already end in one. Grounded on original_source's
// control-URL resolution helper (see DESIGN.md's original_source
// supplement note) and the teacher's legacy AddControlAttribute.
func ResolveControlURL(base *URL, control string) (*URL, error) {
	if control == "" || control == "*" {
		return base, nil
	}
	if strings.Contains(control, "://") {
		return ParseURL(control)
	}

	s := base.String()
	if strings.HasSuffix(s, "/") || strings.HasPrefix(control, "?") {
		s += control
	} else {
		s += "/" + control
	}
	return ParseURL(s)
}
