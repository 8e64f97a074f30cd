package scrape

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// lazyAttrs is the ordered attribute preference for image sources: the
// direct src first, then the lazy-load data attributes the site uses.
var lazyAttrs = []string{"src", "data-src", "data-original", "data-imageurl"}

// ExtractImageRefs scans a content block's HTML for img elements and
// resolves each one's source using the attribute preference order, falling
// back to the first candidate of a srcset. Unresolvable imgs are skipped.
func ExtractImageRefs(blockHTML string) []string {
	if strings.TrimSpace(blockHTML) == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(blockHTML))
	if err != nil {
		return nil
	}

	var refs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if src := imgSource(n); src != "" {
				refs = append(refs, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs
}

func imgSource(n *html.Node) string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	for _, key := range lazyAttrs {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			return v
		}
	}
	if srcset := attrs["srcset"]; srcset != "" {
		first := strings.TrimSpace(strings.SplitN(srcset, ",", 2)[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// imageSaver persists discovered image references to the local images
// directory. One failed image is logged and skipped; it never aborts the
// batch.
type imageSaver struct {
	dir      string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger
}

func newImageSaver(dir string, timeout time.Duration, maxBytes int64, logger *slog.Logger) *imageSaver {
	return &imageSaver{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
	}
}

// SaveAll persists each reference under img_<stamp>_<ordinal>.<ext> and
// returns the paths that were written, in input order.
func (s *imageSaver) SaveAll(ctx context.Context, refs []string, pageURL string, stamp int64) []string {
	if len(refs) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("scrape: create images dir failed", "dir", s.dir, "error", err)
		return nil
	}

	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	var saved []string
	for i, ref := range refs {
		path, err := s.saveOne(ctx, ref, base, stamp, i)
		if err != nil {
			s.logger.Warn("scrape: image save failed", "ordinal", i, "error", err)
			continue
		}
		saved = append(saved, path)
	}
	return saved
}

func (s *imageSaver) saveOne(ctx context.Context, ref string, base *url.URL, stamp int64, ordinal int) (string, error) {
	if strings.HasPrefix(ref, "data:") {
		data, ext, err := decodeDataURI(ref)
		if err != nil {
			return "", err
		}
		return s.write(stamp, ordinal, ext, data)
	}

	src := ref
	if base != nil {
		if parsed, err := url.Parse(ref); err == nil {
			src = base.ResolveReference(parsed).String()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: http %d", src, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	ext := extFromMIME(resp.Header.Get("Content-Type"), "jpg")
	return s.write(stamp, ordinal, ext, data)
}

func (s *imageSaver) write(stamp int64, ordinal int, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("img_%d_%d.%s", stamp, ordinal, ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// decodeDataURI decodes an inline base64 image of the form
// data:<mime>;base64,<payload>.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q", meta)
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, extFromMIME(mime, "bin"), nil
}

// extFromMIME maps a MIME type or Content-Type header value to a file
// extension, normalizing jpeg to jpg.
func extFromMIME(mime, fallback string) string {
	if _, sub, ok := strings.Cut(mime, "/"); ok {
		ext := strings.TrimSpace(strings.SplitN(sub, ";", 2)[0])
		if ext == "jpeg" {
			return "jpg"
		}
		if ext != "" {
			return ext
		}
	}
	return fallback
}
