package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"chat-relay/internal/auth"
	"chat-relay/internal/bots"
	"chat-relay/internal/chat"
	"chat-relay/internal/completion"
	"chat-relay/internal/config"
	"chat-relay/internal/llm"
	"chat-relay/internal/server"
	"chat-relay/internal/tools"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache chat.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		cache = chat.NewRedisCache(rdb)
		log.Printf("✅ Using redis cache at %s", cfg.RedisAddr)
	} else {
		cache = chat.NewMemoryCache()
		log.Printf("Using in-memory cache (REDIS_ADDR not set)")
	}

	archive, err := chat.NewFileArchive(cfg.ArchiveFilePath)
	if err != nil {
		log.Fatalf("failed to init archive: %v", err)
	}
	store := chat.NewStore(cache, archive)

	botsRepo, err := bots.NewFileRepository(cfg.BotsFilePath)
	if err != nil {
		log.Fatalf("failed to init bots repo: %v", err)
	}
	botsSvc, err := bots.NewWithRepo(botsRepo)
	if err != nil {
		log.Fatalf("failed to init bots: %v", err)
	}

	var tokenRepo auth.Repository
	if cfg.TokensFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.TokensFilePath)
		if err != nil {
			log.Printf("failed to init tokens repo: %v", err)
		} else {
			tokenRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(tokenRepo, cfg.AuthToken)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	registry := tools.NewRegistry()
	var servers []tools.ServerConfig
	for _, entry := range cfg.MCPServers {
		sc, err := tools.ParseServerConfig(entry)
		if err != nil {
			log.Printf("skipping tool server: %v", err)
			continue
		}
		servers = append(servers, sc)
	}
	registry.Connect(ctx, servers)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Printf("failed to close tool registry: %v", err)
		}
	}()

	factory := llm.NewFactory(cfg)
	orch := completion.NewOrchestrator(store, botsSvc, factory)
	bridge := completion.NewToolBridge(registry)

	c := cron.New()
	if _, err := c.AddFunc(cfg.CompactSchedule, func() {
		if err := archive.Compact(); err != nil {
			log.Printf("⚠️ archive compaction failed: %v", err)
		} else {
			log.Printf("🧹 archive compacted")
		}
	}); err != nil {
		log.Fatalf("invalid compaction schedule %q: %v", cfg.CompactSchedule, err)
	}
	c.Start()
	defer c.Stop()

	srv := server.New(cfg.Port, store, botsSvc, authSvc, orch, bridge)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	if err := srv.Stop(); err != nil {
		log.Printf("failed to stop server: %v", err)
	}
}
