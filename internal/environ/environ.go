// Package environ probes the participant's client environment: user agent,
// locale, platform, and viewport. The device gate consumes the mobile
// classification; everything else is copied into the session descriptor.
package environ

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/term"
	"golang.org/x/text/language"
)

// Client describes the environment a session ran in.
type Client struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	Locale    string `json:"locale"`
	Mobile    bool   `json:"mobile"`
	ViewportW int    `json:"viewport_w,omitempty"`
	ViewportH int    `json:"viewport_h,omitempty"`
}

var mobilePattern = regexp.MustCompile(`(?i)Mobi|Android|iPhone|iPad`)

// IsMobileUserAgent classifies a user agent string as mobile or not.
func IsMobileUserAgent(ua string) bool {
	return mobilePattern.MatchString(ua)
}

// Probe builds a Client descriptor. userAgent may be empty, in which case a
// synthetic agent string describing the host runtime is used. version is the
// running binary's version string.
func Probe(userAgent, version string) Client {
	if userAgent == "" {
		userAgent = fmt.Sprintf("dilemma/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
	}

	c := Client{
		UserAgent: userAgent,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Locale:    hostLocale(),
		Mobile:    IsMobileUserAgent(userAgent),
	}

	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		c.ViewportW = w
		c.ViewportH = h
	}

	return c
}

// hostLocale derives a BCP 47 locale tag from the process environment.
// Unparseable or missing values fall back to "und" (undetermined).
func hostLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		raw := os.Getenv(key)
		if raw == "" || raw == "C" || raw == "POSIX" {
			continue
		}
		// "en_US.UTF-8" -> "en_US"
		if i := strings.IndexByte(raw, '.'); i >= 0 {
			raw = raw[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
		if err != nil {
			continue
		}
		return tag.String()
	}
	return language.Und.String()
}
