package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/store"
	"github.com/sells-group/sitecheck/internal/validator"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for validation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Validation outlives the webhook request; run it on the server's
		// context.
		enqueue := func(b model.Business, opts validator.RunOptions) {
			go func() {
				stats, err := env.Runner.ProcessBatch(ctx, []model.Business{b}, opts)
				if err != nil {
					zap.L().Error("webhook validation failed",
						zap.String("business_id", b.ID),
						zap.Error(err),
					)
					return
				}
				zap.L().Info("webhook validation complete",
					zap.String("business_id", b.ID),
					zap.Int("valid", stats.Valid),
				)
			}()
		}
		r.Post("/webhook/validate", webhookValidateHandler(env.Store, enqueue))

		r.Get("/businesses/{id}/results", func(w http.ResponseWriter, req *http.Request) {
			results, err := env.Store.ListResults(req.Context(), chi.URLParam(req, "id"), 20)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store failure"})
				return
			}
			writeJSON(w, http.StatusOK, results)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			gracefulShutdown(srv, 10*time.Second)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// webhookValidateHandler accepts {business_id, url?, force?}: the optional url
// overrides the stored candidate for this run without persisting it up front.
func webhookValidateHandler(st store.Store, enqueue func(b model.Business, opts validator.RunOptions)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			BusinessID string `json:"business_id"`
			URL        string `json:"url"`
			Force      bool   `json:"force"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.BusinessID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "business_id is required"})
			return
		}

		b, err := st.GetBusiness(req.Context(), body.BusinessID)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown business"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store failure"})
			return
		}

		if body.URL != "" {
			b.URL = body.URL
			b.URLSource = model.URLSourceManual
		}

		enqueue(*b, validator.RunOptions{Force: body.Force})

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"business_id": body.BusinessID,
		})
	}
}

// gracefulShutdown drains in-flight requests on its own deadline; the server
// context is already cancelled by the time shutdown starts.
func gracefulShutdown(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
