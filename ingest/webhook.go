package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"vigil/config"
	"vigil/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Signature headers accepted on webhook requests. FortiGate Automation
// Stitches send the first; the second is the generic fallback.
const (
	headerFortigateSignature = "X-Fortigate-Signature"
	headerWebhookSignature   = "X-Webhook-Signature"
)

// WebhookListener exposes the signed HTTP ingestion endpoint. Requests are
// verified against the shared secret before they reach the pipeline;
// rejected payloads are never persisted.
type WebhookListener struct {
	host        string
	port        int
	secret      string
	maxBodySize int64
	limiter     *rate.Limiter
	ingestor    *Ingestor
	server      *http.Server
	logger      *zap.SugaredLogger
	wg          sync.WaitGroup
}

// NewWebhookListener creates a new webhook listener from configuration.
func NewWebhookListener(cfg *config.Config, ingestor *Ingestor, logger *zap.SugaredLogger) *WebhookListener {
	rateLimit := cfg.Listeners.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5000
	}
	return &WebhookListener{
		host:        cfg.Listeners.Webhook.Host,
		port:        cfg.Listeners.Webhook.Port,
		secret:      cfg.Listeners.Webhook.Secret,
		maxBodySize: cfg.Listeners.Webhook.MaxBodySize,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		ingestor:    ingestor,
		logger:      logger,
	}
}

// Start starts the HTTP server.
func (l *WebhookListener) Start() error {
	r := mux.NewRouter()
	r.HandleFunc("/ingest/webhook", l.handleWebhook).Methods("POST")

	addr := fmt.Sprintf("%s:%d", l.host, l.port)
	l.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	l.logger.Infof("Webhook HTTP listener started on %s", addr)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.logger.Errorf("Webhook server error: %v", err)
		}
	}()
	return nil
}

func (l *WebhookListener) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !l.limiter.Allow() {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, l.maxBodySize+1))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > l.maxBodySize {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	sender := hostOnly(r.RemoteAddr)

	signature := r.Header.Get(headerFortigateSignature)
	if signature == "" {
		signature = r.Header.Get(headerWebhookSignature)
	}
	if signature == "" {
		l.logger.Warnf("Webhook from %s rejected: missing signature header", sender)
		metrics.WebhookRejections.WithLabelValues("missing_signature").Inc()
		l.respondError(w, http.StatusUnauthorized, "Missing webhook signature")
		return
	}
	if !VerifySignature(body, l.secret, signature) {
		l.logger.Warnf("Webhook from %s rejected: invalid signature", sender)
		metrics.WebhookRejections.WithLabelValues("invalid_signature").Inc()
		l.respondError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		l.logger.Warnf("Webhook from %s rejected: body is not a JSON object: %v", sender, err)
		metrics.WebhookRejections.WithLabelValues("invalid_json").Inc()
		l.respondError(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}

	eventID, err := l.ingestor.IngestWebhook(r.Context(), body, decoded, sender, signature)
	if err != nil {
		// Surfaced as 5xx so the producer can retry; the payload is
		// already preserved in the pipeline's failure log.
		l.respondError(w, http.StatusInternalServerError, "Failed to store webhook event")
		return
	}

	l.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Webhook received and processed",
		"eventId": eventID,
	})
}

func (l *WebhookListener) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		l.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (l *WebhookListener) respondError(w http.ResponseWriter, status int, msg string) {
	l.respondJSON(w, status, map[string]string{"error": msg})
}

// Stop shuts the HTTP server down gracefully.
func (l *WebhookListener) Stop() {
	if l.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.server.Shutdown(ctx); err != nil {
			l.logger.Errorw("Failed to shutdown webhook server gracefully", "error", err)
		}
	}
	l.wg.Wait()
}
