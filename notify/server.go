package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/telemetry"
	"github.com/rgabriel/mcp-gmail/tools"
)

// Source is the mailbox a Server reads changes from.
type Source interface {
	mailbox.Watcher
	GetMessage(ctx context.Context, id string) (*mailbox.Email, error)
	Address() string
}

// Server handles Pub/Sub push requests for one account.
type Server struct {
	source   Source
	sink     Sink
	token    string
	counters *telemetry.Counters
	logger   *slog.Logger
	engine   *gin.Engine

	// busy serializes notifications; mu guards the fields below and is
	// never held across a call to the source or sink.
	busy        sync.Mutex
	mu          sync.Mutex
	lastHistory uint64
	expiration  time.Time
	received    int64
	delivered   int64
	duplicates  int64
	failures    int64
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires push requests to carry ?token=<token>.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithCounters exposes tool counters on /healthz.
func WithCounters(c *telemetry.Counters) Option {
	return func(s *Server) { s.counters = c }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the push endpoint.
func NewServer(source Source, sink Sink, opts ...Option) *Server {
	s := &Server{source: source, sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.engine.POST("/gmail/push", s.handlePush)
	s.engine.GET("/healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler serving the push and health routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Watched records a fresh watch. The first history id becomes the baseline
// for later notifications.
func (s *Server) Watched(historyID uint64, expiration time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHistory == 0 {
		s.lastHistory = historyID
	}
	s.expiration = expiration
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func respondWithError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func (s *Server) handlePush(c *gin.Context) {
	if s.token != "" && c.Query("token") != s.token {
		respondWithError(c, http.StatusUnauthorized, "invalid token")
		return
	}

	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid request")
		return
	}
	n, err := env.Decode()
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	account := s.source.Address()
	if n.EmailAddress != "" && !strings.EqualFold(n.EmailAddress, account) {
		// Acknowledge so Pub/Sub stops redelivering.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	status, count, err := s.process(c.Request.Context(), account, uint64(n.HistoryID))
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.logger.Error("push processing failed", "history_id", uint64(n.HistoryID), "error", err)
		// A non-2xx answer makes Pub/Sub redeliver.
		respondWithError(c, http.StatusInternalServerError, "failed to process notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "mails": count})
}

// process serializes notifications so each history range is read once.
func (s *Server) process(ctx context.Context, account string, historyID uint64) (string, int, error) {
	s.busy.Lock()
	defer s.busy.Unlock()

	s.mu.Lock()
	s.received++
	last := s.lastHistory
	switch {
	case last == 0:
		s.lastHistory = historyID
		s.mu.Unlock()
		return "baseline", 0, nil
	case historyID <= last:
		s.duplicates++
		s.mu.Unlock()
		return "duplicate", 0, nil
	}
	s.mu.Unlock()

	ids, latest, err := s.source.History(ctx, last)
	if err != nil {
		return "", 0, err
	}

	mails := make([]tools.MailDetails, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		m, err := s.source.GetMessage(ctx, id)
		if errors.Is(err, mailbox.ErrNotFound) {
			// Deleted before we got to it.
			continue
		}
		if err != nil {
			return "", 0, err
		}
		mails = append(mails, tools.Details(*m, true))
	}

	next := max(latest, historyID)
	if len(mails) > 0 {
		if err := s.sink.Deliver(ctx, Delivery{Account: account, HistoryID: next, Mails: mails}); err != nil {
			return "", 0, err
		}
	}

	s.mu.Lock()
	s.delivered += int64(len(mails))
	s.lastHistory = next
	s.mu.Unlock()

	if len(mails) == 0 {
		return "no_changes", 0, nil
	}
	return "delivered", len(mails), nil
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	body := gin.H{
		"status":        "ok",
		"account":       s.source.Address(),
		"lastHistoryId": s.lastHistory,
		"received":      s.received,
		"delivered":     s.delivered,
		"duplicates":    s.duplicates,
		"failures":      s.failures,
	}
	if !s.expiration.IsZero() {
		body["watchExpiration"] = s.expiration.UTC().Format(time.RFC3339)
	}
	s.mu.Unlock()

	if s.counters != nil {
		body["tools"] = s.counters.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("push endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
