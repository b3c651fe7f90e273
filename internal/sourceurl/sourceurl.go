// Package sourceurl validates and normalizes remote media URLs before they are
// handed to the fetcher.
package sourceurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// Host aliases. Key: input host. Value: canonical domain. Only hosts that are
// the same source from a listener's point of view are aliased.
var canonicalDomainByHost = map[string]string{
	"youtube.com":       "youtube.com",
	"www.youtube.com":   "youtube.com",
	"m.youtube.com":     "youtube.com",
	"music.youtube.com": "youtube.com",
	"youtu.be":          "youtube.com",

	"soundcloud.com":     "soundcloud.com",
	"www.soundcloud.com": "soundcloud.com",
	"m.soundcloud.com":   "soundcloud.com",

	"vimeo.com":        "vimeo.com",
	"www.vimeo.com":    "vimeo.com",
	"player.vimeo.com": "vimeo.com",
}

// Source is a normalized remote reference.
type Source struct {
	URL             string
	CanonicalDomain string
	// VideoID is set for YouTube links.
	VideoID string
}

// ResolveCanonicalDomain returns the canonical domain for host (without port).
func ResolveCanonicalDomain(host string) string {
	h := normalizeHost(host)
	if h == "" {
		return ""
	}
	if c, ok := canonicalDomainByHost[h]; ok {
		return c
	}
	return h
}

// Normalize validates raw and rewrites it into a stable form:
//   - a missing scheme is treated as https, http is upgraded to https;
//   - fragments and userinfo are dropped;
//   - youtube.com links become https://youtube.com/watch?v={id};
//   - soundcloud.com and vimeo.com links lose their query string.
//
// Anything other than an http(s) URL with a host is a BadRequest, as is a
// value that the fetcher could mistake for a command-line flag.
func Normalize(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, faults.BadRequest("sourceurl", "url is required")
	}
	if strings.HasPrefix(raw, "-") {
		return Source{}, faults.BadRequest("sourceurl", "url must not start with '-'")
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
	}
	if err != nil {
		return Source{}, faults.Wrap(faults.ErrBadRequest, "sourceurl", "parse", "invalid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Source{}, faults.BadRequest("sourceurl", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if normalizeHost(u.Host) == "" {
		return Source{}, faults.BadRequest("sourceurl", "url has no host")
	}

	u.Scheme = "https"
	u.Fragment = ""
	u.User = nil

	canon := ResolveCanonicalDomain(u.Host)

	// Shortlinks carry the id in the path, so extract before the host changes.
	youtubeID := ""
	if canon == "youtube.com" {
		if id, err := ExtractYouTubeVideoID(u.String()); err == nil {
			youtubeID = id
		}
	}

	if _, aliased := canonicalDomainByHost[normalizeHost(u.Host)]; aliased {
		u.Host = canon
	} else {
		u.Host = strings.ToLower(strings.TrimSuffix(u.Host, "."))
	}
	u.Path = trimTrailingSlash(u.Path)

	switch canon {
	case "youtube.com":
		if youtubeID != "" {
			u.Path = "/watch"
			u.RawQuery = "v=" + url.QueryEscape(youtubeID)
		}
	case "soundcloud.com", "vimeo.com":
		u.RawQuery = ""
	}

	return Source{URL: u.String(), CanonicalDomain: canon, VideoID: youtubeID}, nil
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil && parsed.Hostname() != "" {
			h = parsed.Hostname()
		}
	}
	return strings.TrimSuffix(h, ".")
}

func trimTrailingSlash(p string) string {
	if p == "" || p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}

// ExtractYouTubeVideoID extracts the video id from a YouTube URL.
func ExtractYouTubeVideoID(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", errors.New("empty url")
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	host := normalizeHost(u.Host)
	if host == "youtu.be" {
		if id := firstPathSegment(u.Path); id != "" {
			return id, nil
		}
		return "", errors.New("not a youtube url or video id not found")
	}

	if ResolveCanonicalDomain(host) == "youtube.com" {
		if q := u.Query().Get("v"); q != "" {
			return q, nil
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				if id := firstPathSegment(strings.TrimPrefix(u.Path, prefix)); id != "" {
					return id, nil
				}
			}
		}
	}

	return "", errors.New("not a youtube url or video id not found")
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	seg, _, _ := strings.Cut(p, "/")
	return strings.TrimSpace(seg)
}
