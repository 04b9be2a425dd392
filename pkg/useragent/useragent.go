// Package useragent decides from the User-Agent header whether a client
// can take a streamed response. Crawlers and unknown browsers get the
// synchronous page.
package useragent

import (
	"strconv"
	"strings"

	uaparser "github.com/mssola/useragent"
)

// Browser identifies a browser family.
type Browser string

const (
	Unknown Browser = ""
	Firefox Browser = "firefox"
	Opera   Browser = "opera"
	IE      Browser = "ie"
	Chrome  Browser = "chrome"
)

// Agent is the parsed form of a User-Agent header.
type Agent struct {
	Browser Browser
	// Version is the major version, 0 when unknown.
	Version int
}

// families maps browser names reported by the parser to a Browser.
// Chromium Edge is a Chrome build.
var families = map[string]Browser{
	"Firefox":           Firefox,
	"Opera":             Opera,
	"Internet Explorer": IE,
	"Chrome":            Chrome,
	"Chromium":          Chrome,
}

// Parse extracts the browser family and major version from ua.
func Parse(ua string) Agent {
	if ua == "" {
		return Agent{}
	}
	parsed := uaparser.New(ua)
	name, version := parsed.Browser()

	family, ok := families[name]
	if name == "Edge" {
		engine, _ := parsed.Engine()
		family, ok = Chrome, engine == "AppleWebKit"
	}
	if !ok {
		return Agent{}
	}

	// Presto Opera 10+ freezes its product token at 9.80.
	if family == Opera && version == "9.80" {
		if _, v, found := strings.Cut(ua, "Version/"); found {
			version = v
		}
	}
	return Agent{Browser: family, Version: major(version)}
}

func major(version string) int {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

// botSignatures are matched case-insensitively anywhere in the header.
var botSignatures = []string{
	"google", "bot",
	"yahoo", "spider",
	"archiver", "curl",
	"python", "nambu",
	"twitt", "perl",
	"sphere", "pear",
	"java", "wordpress",
	"radian", "crawl",
	"yandex", "eventbox",
	"monitor", "mechanize",
	"facebookexternal",
}

// IsBot reports whether ua looks automated. An empty header counts as a
// bot.
func IsBot(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	ua = strings.ToLower(ua)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
