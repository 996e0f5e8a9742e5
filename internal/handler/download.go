package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultDownloadName = "download"

// DownloadHandler proxies a stored file back to the browser as an
// attachment, so cross-origin storage URLs can be saved under a chosen
// name.
//
// The route is unauthenticated and, unless AllowHosts is called, fetches
// from any http(s) host the server can reach, including private and
// link-local addresses. Deployments reachable from untrusted networks
// should restrict it to their storage hosts.
//
// Routes handled:
// - GET /api/download?url=&fileName= -> Download
type DownloadHandler struct {
	client  *http.Client
	baseURL *url.URL
	logger  *slog.Logger

	// allowedHosts is empty when any host may be fetched.
	allowedHosts []string
}

var errHostNotAllowed = errors.New("host is not allowed")

// NewDownloadHandler creates a DownloadHandler. Relative url parameters
// (local storage paths) are resolved against baseURL.
func NewDownloadHandler(client *http.Client, baseURL string, logger *slog.Logger) (*DownloadHandler, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DownloadHandler{client: client, baseURL: base, logger: logger}, nil
}

// AllowHosts restricts downloads, redirects included, to the given hosts.
// Entries match the URL's host with or without its port. The base URL's
// host is always allowed so relative URLs keep working.
func (h *DownloadHandler) AllowHosts(hosts ...string) {
	if len(hosts) == 0 {
		return
	}
	h.allowedHosts = append(h.allowedHosts, strings.ToLower(h.baseURL.Host))
	for _, host := range hosts {
		h.allowedHosts = append(h.allowedHosts, strings.ToLower(strings.TrimSpace(host)))
	}

	client := *h.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if !h.hostAllowed(req.URL) {
			return fmt.Errorf("redirect to %s: %w", req.URL.Host, errHostNotAllowed)
		}
		return nil
	}
	h.client = &client
}

func (h *DownloadHandler) hostAllowed(u *url.URL) bool {
	if len(h.allowedHosts) == 0 {
		return true
	}
	host := strings.ToLower(u.Host)
	name := strings.ToLower(u.Hostname())
	for _, allowed := range h.allowedHosts {
		if allowed == host || allowed == name {
			return true
		}
	}
	return false
}

// Download fetches ?url= and streams it back with a Content-Disposition
// of attachment named ?fileName= (default "download").
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeText(w, http.StatusBadRequest, "Missing url parameter")
		return
	}
	fileName := r.URL.Query().Get("fileName")
	if fileName == "" {
		fileName = defaultDownloadName
	}

	target, err := h.resolve(rawURL)
	if err != nil {
		h.logger.Info("download refused", "url", rawURL, "error", err)
		writeText(w, http.StatusBadRequest, "Invalid url parameter")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		h.downloadFailed(w, target, err)
		return
	}
	res, err := h.client.Do(req)
	if err != nil {
		h.downloadFailed(w, target, err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		h.logger.Info("download upstream refused", "url", target, "status", res.StatusCode)
		writeText(w, res.StatusCode, fmt.Sprintf("Failed to fetch file: %d", res.StatusCode))
		return
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", ContentDisposition(fileName))
	if res.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, res.Body); err != nil {
		// Headers are gone; the client sees a truncated body.
		h.logger.Warn("download interrupted", "url", target, "error", err)
	}
}

func (h *DownloadHandler) downloadFailed(w http.ResponseWriter, target string, err error) {
	h.logger.Error("download failed", "url", target, "error", err)
	writeText(w, http.StatusInternalServerError, "Download failed: "+err.Error())
}

// resolve makes rawURL absolute and refuses anything but http(s) on an
// allowed host.
func (h *DownloadHandler) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		u = h.baseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !h.hostAllowed(u) {
		return "", fmt.Errorf("%s: %w", u.Host, errHostNotAllowed)
	}
	return u.String(), nil
}

// RegisterRoutes registers the download route.
func (h *DownloadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/download", h.Download)
}

// =============================================================================
// Content-Disposition
// =============================================================================

// ContentDisposition builds an attachment header carrying both an ASCII
// filename and the UTF-8 original as filename* (RFC 6266).
func ContentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiFileName(name), encodeRFC5987(name))
}

// asciiFileName strips accents and replaces whatever is left outside
// printable ASCII, plus quotes and backslashes, with underscores.
func asciiFileName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	out := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, folded)
	if strings.Trim(out, "_ ") == "" {
		return defaultDownloadName
	}
	return out
}

// encodeRFC5987 percent-encodes everything outside attr-char.
func encodeRFC5987(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
