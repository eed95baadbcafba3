// Package detector recognizes bot walls, CAPTCHA pages and script-only
// shells in fetched responses.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// BlockType describes why a response is unusable.
type BlockType string

// Block types.
const (
	BlockNone         BlockType = ""
	BlockCloudflare   BlockType = "cloudflare"
	BlockCaptcha      BlockType = "captcha"
	BlockAccessDenied BlockType = "access_denied"
	BlockEmpty        BlockType = "empty"
	BlockJSShell      BlockType = "js_shell"
)

const (
	minUsableBytes      = 300
	captchaWindowBytes  = 5000
	deniedWindowBytes   = 2000
	defaultJSShellBytes = 2048
)

var captchaKeywords = []string{
	"captcha", "recaptcha", "hcaptcha", "cloudflare",
	"verify you are human", "checking your browser", "cf-browser-verification",
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// Heuristic implements rule-based block detection.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector. threshold bounds the body size considered
// for the script-only shell check.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultJSShellBytes
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Detect classifies a plain fetch response.
func (h *Heuristic) Detect(resp leadership.FetchResponse) BlockType {
	return h.detect(resp, true)
}

// DetectRendered classifies browser-rendered markup, where script-heavy
// output is expected and not itself a block.
func (h *Heuristic) DetectRendered(resp leadership.FetchResponse) BlockType {
	return h.detect(resp, false)
}

// Blocked is shorthand for Detect(resp) != BlockNone.
func (h *Heuristic) Blocked(resp leadership.FetchResponse) bool {
	return h.Detect(resp) != BlockNone
}

func (h *Heuristic) detect(resp leadership.FetchResponse, checkShell bool) BlockType {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		if cloudflareHeaders(resp.Headers) {
			return BlockCloudflare
		}
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return BlockAccessDenied
	}
	if resp.StatusCode >= 400 {
		return BlockNone
	}

	body := resp.Body
	if len(bytes.TrimSpace(body)) < minUsableBytes {
		return BlockEmpty
	}
	lower := strings.ToLower(string(body))
	if len(body) < captchaWindowBytes {
		for _, kw := range captchaKeywords {
			if strings.Contains(lower, kw) {
				if strings.Contains(kw, "cloudflare") || strings.Contains(kw, "browser") {
					return BlockCloudflare
				}
				return BlockCaptcha
			}
		}
	}
	if len(body) < deniedWindowBytes && strings.Contains(lower, "access denied") {
		return BlockAccessDenied
	}
	if checkShell && len(body) < h.BodyLengthThreshold && jsShell(body, lower) {
		return BlockJSShell
	}
	return BlockNone
}

func cloudflareHeaders(hdr http.Header) bool {
	if hdr == nil {
		return false
	}
	return hdr.Get("cf-ray") != "" ||
		hdr.Get("cf-cache-status") != "" ||
		strings.EqualFold(hdr.Get("server"), "cloudflare")
}

func jsShell(body []byte, lower string) bool {
	if scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript")
}

func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1
		relEnd := strings.Index(lower[contentStart:], closeTag)
		next := total
		if relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
