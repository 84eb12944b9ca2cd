package rtspclient

import "github.com/bkataru-workshop/vdkio/pkg/rtspurl"

// URL, ParseURL, ResolveControlURL and PathSplitTrackID live in
// pkg/rtspurl so pkg/sdp can resolve a=control: attributes without
// importing this package. Re-exported here under the names the rest
// of pkg/rtspclient already uses.
type URL = rtspurl.URL

// ParseURL parses s as a RTSP URL. See rtspurl.ParseURL.
func ParseURL(s string) (*URL, error) {
	return rtspurl.ParseURL(s)
}

// ResolveControlURL resolves a SDP a=control: attribute. See
// rtspurl.ResolveControlURL.
func ResolveControlURL(base *URL, control string) (*URL, error) {
	return rtspurl.ResolveControlURL(base, control)
}

// PathSplitTrackID splits a trailing "/trackID=<n>" attribute off
// pathAndQuery. See rtspurl.PathSplitTrackID.
func PathSplitTrackID(pathAndQuery string) (int, string, bool) {
	return rtspurl.PathSplitTrackID(pathAndQuery)
}
