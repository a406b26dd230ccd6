package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/config"
	"github.com/omegabingo/card-reservation/internal/database"
	"github.com/omegabingo/card-reservation/internal/handler"
	"github.com/omegabingo/card-reservation/internal/livecache"
	appmw "github.com/omegabingo/card-reservation/internal/middleware"
	"github.com/omegabingo/card-reservation/internal/queue"
	"github.com/omegabingo/card-reservation/internal/repository"
	"github.com/omegabingo/card-reservation/internal/resolver"
	"github.com/omegabingo/card-reservation/internal/router"
	"github.com/omegabingo/card-reservation/internal/session"
	"github.com/omegabingo/card-reservation/internal/store"
	"github.com/omegabingo/card-reservation/internal/upload"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()

	// Document store. The memory backend is for dev and tests; mysql is
	// the production backend, optionally fanning change events out over
	// RabbitMQ so multiple instances converge.
	var docs store.Store
	switch cfg.StoreBackend {
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBMaxConns)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		var broker *store.Broker
		if cfg.AMQPURL != "" {
			broker, err = store.NewBroker(cfg.AMQPURL)
			if err != nil {
				log.Printf("broker unavailable, running single-instance: %v", err)
				broker = nil
			}
		}
		mysqlStore, err := store.NewMySQL(db, broker)
		if err != nil {
			log.Fatalf("init store: %v", err)
		}
		if broker != nil {
			go broker.StartForwarding(mysqlStore)
		}
		docs = mysqlStore
	default:
		docs = store.NewMemory()
	}

	cache := livecache.New(cfg.TotalCards)
	cache.Wire(docs)
	configRepo := repository.NewConfigRepo(docs)

	// Session persistence: Redis when reachable, in-process otherwise.
	var kv session.KV = session.NewMemoryKV()
	rdb := config.NewRedisClient()
	if rdb != nil {
		kv = session.NewRedisKV(rdb, 0)
	} else {
		log.Printf("redis unavailable, sessions are in-process only")
	}

	window := time.Duration(cfg.CountdownSec) * time.Second
	sessions := session.NewManager(kv, cache, docs, window, cfg.CardPrice)
	confirm := resolver.New(docs, cache, cfg.CardPrice)

	reservations := repository.NewReservationRepo(docs)
	sales := repository.NewSaleRepo(docs)

	var uploader upload.Uploader
	if cfg.UploadURL != "" {
		uploader = upload.NewHTTPUploader(cfg.UploadURL, cfg.UploadPreset)
	}

	public := handler.NewPublicHandler(cache, sessions, configRepo, reservations, sales)
	selection := handler.NewSelectionHandler(sessions, configRepo, uploader)
	auth := handler.NewAuthHandler(cfg)
	admin := handler.NewAdminHandler(confirm, reservations, sales, configRepo, cfg.CardPrice, cfg.AMQPURL)

	limiter := appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterPublic(e, public, selection, limiter)
	router.RegisterAdmin(e, auth, admin, cfg.JWTSecret)

	if cfg.AMQPURL != "" {
		go func() {
			if err := queue.StartSaleConsumer(cfg.AMQPURL); err != nil {
				log.Printf("sale consumer stopped: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, backend=%s, cards=%d)", addr, cfg.Env, cfg.StoreBackend, cfg.TotalCards)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
