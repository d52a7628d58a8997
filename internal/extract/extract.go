// Package extract turns history URLs and free-form log lines into video
// identifiers and canonical URLs.
package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// VideoID is a YouTube video identifier: a non-empty run of [A-Za-z0-9_-].
type VideoID string

// String returns the identifier as a plain string.
func (id VideoID) String() string { return string(id) }

// Valid reports whether id is non-empty and contains only identifier characters.
func (id VideoID) Valid() bool {
	return id != "" && idRe.MatchString(string(id))
}

var (
	idRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]+`)
)

// parseYouTube parses rawURL, adding an https scheme when none is given,
// and returns it only when the host is youtube.com, a subdomain of it, or
// youtu.be.
func parseYouTube(rawURL string) (*url.URL, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be", host == "youtube.com", strings.HasSuffix(host, ".youtube.com"):
		return u, true
	}
	return nil, false
}

// ExtractID finds the video identifier in a YouTube URL: /shorts/<id>,
// /embed/<id>, /watch?v=<id> or youtu.be/<id>. It never panics and returns
// false for other hosts, other paths and empty identifiers.
func ExtractID(rawURL string) (VideoID, bool) {
	u, ok := parseYouTube(rawURL)
	if !ok {
		return "", false
	}

	var tok string
	segs := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		tok = segs[0]
	case len(segs) >= 2 && (segs[0] == "shorts" || segs[0] == "embed"):
		tok = segs[1]
	case segs[0] == "watch":
		tok = u.Query().Get("v")
	}

	tok = tokenRe.FindString(tok)
	if tok == "" {
		return "", false
	}
	return VideoID(tok), true
}

// CanonicalURL returns the Shorts URL for id.
func CanonicalURL(id VideoID) string {
	return "https://www.youtube.com/shorts/" + string(id)
}

// IsShorts reports whether rawURL is a YouTube Shorts link with a usable
// identifier.
func IsShorts(rawURL string) bool {
	u, ok := parseYouTube(rawURL)
	if !ok || !strings.HasPrefix(u.Path, "/shorts/") {
		return false
	}
	_, ok = ExtractID(rawURL)
	return ok
}
