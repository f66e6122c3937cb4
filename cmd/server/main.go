package main // Entry point package

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/echo/v4"         // Echo web framework
	"github.com/labstack/gommon/bytes"    // size parsing for BODY_LIMIT
	glog "github.com/labstack/gommon/log" // Echo's logger levels

	"github.com/iliyamo/form-store/internal/config"     // Internal config loader
	"github.com/iliyamo/form-store/internal/handler"    // HTTP handlers
	"github.com/iliyamo/form-store/internal/middleware" // Redis-backed cache and rate limit
	"github.com/iliyamo/form-store/internal/queue"      // submission log consumer
	"github.com/iliyamo/form-store/internal/router"     // Internal router setup
	queue_publisher "github.com/iliyamo/form-store/internal/service"
	"github.com/iliyamo/form-store/internal/store" // collection + backing file
)

func main() {
	cfg := config.Load() // Load environment config
	if _, err := bytes.Parse(cfg.BodyLimit); err != nil {
		log.Fatalf("invalid BODY_LIMIT %q: %v", cfg.BodyLimit, err)
	}

	st, err := store.Open(cfg.DataFile) // a corrupt backing file aborts startup
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %d records from %s", st.Len(), st.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb == nil {
		log.Printf("redis unavailable; response cache and rate limit disabled")
	} else {
		defer rdb.Close()
	}

	qcfg := config.LoadQueueConfig()
	var pub handler.SubmissionPublisher
	if qcfg.Enabled {
		pub = queue_publisher.New(qcfg)
	}
	if qcfg.Consume {
		go func() {
			if err := queue.StartSubmissionConsumer(ctx, qcfg); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("submission-consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	router.Setup(e)
	router.RegisterRoutes(e,
		&handler.PageHandler{IndexFile: cfg.IndexFile},
		handler.NewDataHandler(st, pub),
		router.Middleware{
			BodyLimit: cfg.BodyLimit,
			RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
			Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, st),
		},
	) // Register application routes

	addr := ":" + cfg.Port // Address string with port
	log.Printf("listening on http://localhost%s (env=%s, data=%s)", addr, cfg.Env, cfg.DataFile)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func logLevel(s string) glog.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	default:
		return glog.INFO
	}
}
