// Command reposter discovers question links from keyword searches, extracts
// their content with a stealth browser, and republishes it to a Facebook
// page on a schedule. An administrative HTTP API drives discovery and
// exposes the queues.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mahfuzr/reposter/relay"
)

func main() {
	configPath := flag.String("config", "", "path to reposter.yaml config file")
	flag.Parse()

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &relay.Config{}
	if *configPath != "" {
		loaded, err := relay.LoadConfigFile(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyEnv(cfg)

	if cfg.Facebook.PageID == "" || cfg.Facebook.AccessToken == "" {
		slog.Error("FACEBOOK_PAGE_ID and FACEBOOK_ACCESS_TOKEN are required")
		os.Exit(1)
	}

	svc, err := relay.New(cfg, logger)
	if err != nil {
		slog.Error("init service", "error", err)
		os.Exit(1)
	}

	svc.Start(ctx)

	port := env("PORT", "3000")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(svc, time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
		// Discovery runs synchronously inside a request and waits between
		// keywords, so writes stay open for a long time.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	if err := svc.Close(); err != nil {
		slog.Error("close service", "error", err)
	}
	slog.Info("server stopped")
}

// applyEnv overlays environment variables onto the config. The environment
// wins over the file.
func applyEnv(cfg *relay.Config) {
	cfg.LinksFile = env("LINKS_FILE", cfg.LinksFile)
	cfg.KeywordsFile = env("KEYWORDS_FILE", cfg.KeywordsFile)
	cfg.HistoryFile = env("HISTORY_DB", defaultStr(cfg.HistoryFile, "data/posts.db"))
	cfg.FilterMode = env("FILTER_MODE", cfg.FilterMode)
	cfg.Browser.CookieFile = env("COOKIES_FILE", cfg.Browser.CookieFile)
	cfg.Scrape.ImagesDir = env("IMAGES_DIR", cfg.Scrape.ImagesDir)
	cfg.Facebook.PageID = env("FACEBOOK_PAGE_ID", cfg.Facebook.PageID)
	cfg.Facebook.AccessToken = env("FACEBOOK_ACCESS_TOKEN", cfg.Facebook.AccessToken)

	if v := os.Getenv("POST_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("POST_INTERVAL invalid", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Scheduler.Interval = d
	}
}

func newRouter(svc *relay.Service, started time.Time) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(started).Truncate(time.Second).String(),
		})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"service": "reposter",
			"endpoints": []string{
				"GET /health",
				"POST /api/keywords/scrape",
				"POST /api/keywords/scrape/all",
				"GET /api/keywords",
				"POST /api/keywords",
				"DELETE /api/keywords/{keyword}",
				"GET /api/links?page&limit&isUsed",
				"GET /api/links/unused",
				"GET /api/links/used",
				"GET /api/links/stats",
				"PUT /api/links/{id}/mark-used",
				"DELETE /api/links/{id}",
				"POST /api/links/reset-all",
				"GET /api/posts?limit",
			},
		})
	})

	r.Route("/api/keywords", func(r chi.Router) {
		r.Post("/scrape", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Keyword  string   `json:"keyword"`
				Keywords []string `json:"keywords"`
				Locale   string   `json:"locale"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, 400, err)
				return
			}
			keywords := body.Keywords
			if len(keywords) == 0 && body.Keyword != "" {
				keywords = []string{body.Keyword}
			}
			summary, err := svc.Discover(req.Context(), keywords, body.Locale)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, summary)
		})

		r.Post("/scrape/all", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Locale string `json:"locale"`
			}
			// Body is optional.
			_ = json.NewDecoder(req.Body).Decode(&body)
			summary, err := svc.DiscoverAllUnused(req.Context(), body.Locale)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, summary)
		})

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			keywords, err := svc.Keywords()
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]any{"count": len(keywords), "keywords": keywords})
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Keyword string `json:"keyword"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, 400, err)
				return
			}
			if body.Keyword == "" {
				writeError(w, 400, errors.New("keyword is required"))
				return
			}
			existed, err := svc.AddKeyword(body.Keyword)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			code := 201
			if existed {
				code = 200
			}
			writeJSON(w, code, map[string]any{"keyword": body.Keyword, "existed": existed})
		})

		r.Delete("/{keyword}", func(w http.ResponseWriter, req *http.Request) {
			keyword := chi.URLParam(req, "keyword")
			if err := svc.DeleteKeyword(keyword); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"keyword": keyword, "status": "deleted"})
		})
	})

	r.Route("/api/links", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			var (
				links []relay.Link
				err   error
			)
			switch req.URL.Query().Get("isUsed") {
			case "true":
				links, err = svc.UsedLinks()
			case "false":
				links, err = svc.UnusedLinks()
			default:
				links, err = svc.Links()
			}
			if err != nil {
				writeError(w, 500, err)
				return
			}

			page := queryInt(req, "page", 1)
			limit := queryInt(req, "limit", 50)
			if page < 1 {
				page = 1
			}
			if limit < 1 {
				limit = 50
			}
			total := len(links)
			start := (page - 1) * limit
			if start > total {
				start = total
			}
			end := start + limit
			if end > total {
				end = total
			}
			writeJSON(w, 200, map[string]any{
				"page":  page,
				"limit": limit,
				"total": total,
				"links": links[start:end],
			})
		})

		r.Get("/unused", func(w http.ResponseWriter, _ *http.Request) {
			writeLinks(w, svc.UnusedLinks)
		})
		r.Get("/used", func(w http.ResponseWriter, _ *http.Request) {
			writeLinks(w, svc.UsedLinks)
		})

		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			stats, err := svc.LinkStats()
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, stats)
		})

		r.Put("/{id}/mark-used", func(w http.ResponseWriter, req *http.Request) {
			link, err := svc.MarkLinkUsed(chi.URLParam(req, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, link)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			link, remaining, err := svc.DeleteLink(chi.URLParam(req, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]any{"deleted": link, "remaining": remaining})
		})

		r.Post("/reset-all", func(w http.ResponseWriter, _ *http.Request) {
			n, err := svc.ResetAllLinks()
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]any{"reset": n})
		})
	})

	r.Get("/api/posts", func(w http.ResponseWriter, req *http.Request) {
		entries, err := svc.History(req.Context(), queryInt(req, "limit", 50))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if entries == nil {
			entries = []*relay.HistoryEntry{}
		}
		writeJSON(w, 200, map[string]any{"count": len(entries), "posts": entries})
	})

	return r
}

func writeLinks(w http.ResponseWriter, load func() ([]relay.Link, error)) {
	links, err := load()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if links == nil {
		links = []relay.Link{}
	}
	writeJSON(w, 200, map[string]any{"count": len(links), "links": links})
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, relay.ErrInvalidInput):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
