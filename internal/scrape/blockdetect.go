package scrape

import (
	"bytes"
	"net/http"
	"strings"
)

// BlockType names the bot wall in front of a restaurant site.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockAkamai     BlockType = "akamai"
	BlockDataDome   BlockType = "datadome"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// jsShellMaxBytes bounds the body size at which a noscript notice or meta
// refresh is treated as an empty client-rendered shell.
const jsShellMaxBytes = 2048

type bodyMarker struct {
	needles  []string // all must appear
	block    BlockType
	maxBytes int      // 0 means any size
}

// Checked in order; the first match wins.
var bodyMarkers = []bodyMarker{
	{needles: []string{"checking your browser"}, block: BlockCloudflare},
	{needles: []string{"cf-browser-verification"}, block: BlockCloudflare},
	{needles: []string{"cloudflare", "challenge"}, block: BlockCloudflare},
	{needles: []string{"just a moment"}, block: BlockCloudflare, maxBytes: 16 << 10},
	{needles: []string{"captcha-delivery.com"}, block: BlockDataDome},
	{needles: []string{"access denied", "reference #"}, block: BlockAkamai},
	// Full menu pages often embed reCAPTCHA for reservation forms.
	{needles: []string{"captcha"}, block: BlockCaptcha, maxBytes: 16 << 10},
}

// DetectBlock inspects a response for anti-bot walls. It takes the raw
// status, headers and body so net/http and colly responses share it.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if bt := blockFromHeaders(statusCode, header); bt != BlockNone {
		return true, bt
	}

	lower := bytes.ToLower(body)
	for _, m := range bodyMarkers {
		if m.maxBytes > 0 && len(body) > m.maxBytes {
			continue
		}
		if containsAll(lower, m.needles) {
			return true, m.block
		}
	}

	if len(body) < jsShellMaxBytes {
		if containsAll(lower, []string{"<noscript", "javascript"}) ||
			bytes.Contains(lower, []byte(`http-equiv="refresh"`)) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}

func blockFromHeaders(statusCode int, header http.Header) BlockType {
	if header == nil {
		return BlockNone
	}
	if header.Get("x-datadome") != "" {
		return BlockDataDome
	}
	if statusCode != http.StatusForbidden && statusCode != http.StatusServiceUnavailable {
		return BlockNone
	}
	switch {
	case header.Get("cf-ray") != "", header.Get("cf-mitigated") != "",
		strings.EqualFold(header.Get("server"), "cloudflare"):
		return BlockCloudflare
	case strings.HasPrefix(strings.ToLower(header.Get("server")), "akamaighost"):
		return BlockAkamai
	}
	return BlockNone
}

func containsAll(haystack []byte, needles []string) bool {
	for _, n := range needles {
		if !bytes.Contains(haystack, []byte(n)) {
			return false
		}
	}
	return true
}
