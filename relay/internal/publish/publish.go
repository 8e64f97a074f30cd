// Package publish posts extracted content to a Facebook page through the
// Graph API.
//
// The publish protocol branches on image count: none means a plain feed
// post, one means a combined photo post, several mean uploading each photo
// unpublished and then one feed post referencing them all as attached media.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMissingCredentials means the page ID or access token is absent. The
// process must refuse to start without them.
var ErrMissingCredentials = errors.New("publish: missing facebook page id or access token")

// Config configures the publisher.
type Config struct {
	// PageID is the Facebook page to post to. Required.
	PageID string `yaml:"page_id"`
	// AccessToken is the page access token. Required. Usually supplied via
	// environment rather than the config file.
	AccessToken string `yaml:"access_token"`
	// BaseURL of the Graph API. Default: https://graph.facebook.com/v18.0.
	// Overridable for tests.
	BaseURL string `yaml:"base_url"`
	// Timeout per API call. Default: 60s (photo uploads carry binaries).
	Timeout time.Duration `yaml:"timeout"`
	// MaxBodyChars caps the body portion of the message. Default: 5000.
	MaxBodyChars int `yaml:"max_body_chars"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://graph.facebook.com/v18.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBodyChars <= 0 {
		c.MaxBodyChars = 5000
	}
}

// Content is the input to a publish call.
type Content struct {
	Title     string
	Body      string
	SourceURL string
	// Images are local file paths, in presentation order.
	Images []string
}

// Publisher posts content to one Facebook page.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Publisher. Missing credentials are a configuration error.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	cfg.defaults()
	if cfg.PageID == "" || cfg.AccessToken == "" {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Publish composes the message and runs the image-count branch. Individual
// pre-upload failures are tolerated; a failed publish call is terminal and
// propagates. Returns the platform-assigned post ID.
func (p *Publisher) Publish(ctx context.Context, c Content) (string, error) {
	msg := ComposeMessage(c.Title, c.Body, c.SourceURL, p.cfg.MaxBodyChars)

	switch len(c.Images) {
	case 0:
		return p.postText(ctx, msg)
	case 1:
		return p.postPhoto(ctx, msg, c.Images[0])
	default:
		ids := p.uploadAll(ctx, c.Images)
		if len(ids) == 0 {
			p.logger.Warn("publish: every photo upload failed, posting text only")
			return p.postText(ctx, msg)
		}
		return p.postAlbum(ctx, msg, ids)
	}
}

// postText publishes a text-only feed post.
func (p *Publisher) postText(ctx context.Context, msg string) (string, error) {
	form := url.Values{}
	form.Set("message", msg)
	form.Set("access_token", p.cfg.AccessToken)

	id, err := p.call(ctx, "/feed", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("publish: feed post: %w", err)
	}
	p.logger.Info("publish: posted text", "post_id", id)
	return id, nil
}

// postPhoto publishes the message and one image in a single photo post.
func (p *Publisher) postPhoto(ctx context.Context, msg, imagePath string) (string, error) {
	body, contentType, err := photoForm(imagePath, map[string]string{
		"message":      msg,
		"access_token": p.cfg.AccessToken,
	})
	if err != nil {
		return "", fmt.Errorf("publish: photo post: %w", err)
	}
	id, err := p.call(ctx, "/photos", contentType, body)
	if err != nil {
		return "", fmt.Errorf("publish: photo post: %w", err)
	}
	p.logger.Info("publish: posted with image", "post_id", id)
	return id, nil
}

// uploadAll uploads each image as an unpublished asset, collecting the IDs
// that succeed. Missing files and failed uploads are logged and skipped.
func (p *Publisher) uploadAll(ctx context.Context, paths []string) []string {
	var ids []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			p.logger.Warn("publish: image file missing, skipping", "path", path)
			continue
		}
		id, err := p.uploadPhoto(ctx, path)
		if err != nil {
			p.logger.Warn("publish: photo upload failed, skipping", "path", path, "error", err)
			continue
		}
		p.logger.Info("publish: uploaded photo", "file", filepath.Base(path), "photo_id", id)
		ids = append(ids, id)
	}
	return ids
}

// uploadPhoto uploads one image with published=false and returns its asset
// ID.
func (p *Publisher) uploadPhoto(ctx context.Context, imagePath string) (string, error) {
	body, contentType, err := photoForm(imagePath, map[string]string{
		"published":    "false",
		"access_token": p.cfg.AccessToken,
	})
	if err != nil {
		return "", err
	}
	return p.call(ctx, "/photos", contentType, body)
}

// postAlbum publishes one feed post referencing the uploaded assets.
func (p *Publisher) postAlbum(ctx context.Context, msg string, photoIDs []string) (string, error) {
	attached := make([]map[string]string, 0, len(photoIDs))
	for _, id := range photoIDs {
		attached = append(attached, map[string]string{"media_fbid": id})
	}
	attachedJSON, err := json.Marshal(attached)
	if err != nil {
		return "", fmt.Errorf("publish: encode attached media: %w", err)
	}

	form := url.Values{}
	form.Set("message", msg)
	form.Set("attached_media", string(attachedJSON))
	form.Set("access_token", p.cfg.AccessToken)

	id, err := p.call(ctx, "/feed", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("publish: album post: %w", err)
	}
	p.logger.Info("publish: posted album", "post_id", id, "photos", len(photoIDs))
	return id, nil
}

// call POSTs to the page edge and returns the id field of the response.
func (p *Publisher) call(ctx context.Context, edge, contentType string, body io.Reader) (string, error) {
	endpoint := p.cfg.BaseURL + "/" + p.cfg.PageID + edge
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", graphError(resp.StatusCode, data)
	}

	var parsed struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.PostID != "" {
		return parsed.PostID, nil
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("response carries no id")
	}
	return parsed.ID, nil
}

// graphError extracts the API error message when present.
func graphError(status int, data []byte) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return fmt.Errorf("graph api %d: %s (code %d)", status, parsed.Error.Message, parsed.Error.Code)
	}
	return fmt.Errorf("graph api %d", status)
}

// photoForm builds a multipart body with the image under the "source" field
// plus the given form values.
func photoForm(imagePath string, fields map[string]string) (io.Reader, string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("source", filepath.Base(imagePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
