package bootstrap

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/config"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/controller"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/grounding"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/realtime"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/audit"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/database"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/embedding"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/identity"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/search"

	pktNats "github.com/maisumh/aisearch-openai-rag-audio/pkg/nats"
)

type Container struct {
	// Controllers
	RealtimeController controller.IRealtimeController

	// Session lifecycle (exposed for main.go's graceful shutdown)
	Manager *realtime.Manager
	Relay   audit.Relay
	Logger  logger.ILogger

	natsPub *pktNats.Publisher
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// 2. Identity
	// One keyless credential covers every Azure collaborator, same as a
	// managed identity would.
	var tokenProvider identity.TokenProvider
	needToken := cfg.Realtime.APIKey == "" ||
		(cfg.Search.Backend != "postgres" && cfg.Search.APIKey == "")
	if needToken {
		provider, err := identity.NewClientCredentials(
			cfg.Identity.TenantID,
			cfg.Identity.TokenURL,
			cfg.Identity.ClientID,
			cfg.Identity.ClientSecret,
			cfg.Identity.Scope,
		)
		if err != nil {
			log.Fatalf("[FATAL] No API keys and no usable identity credentials: %v", err)
		}
		if err := provider.Warm(context.Background()); err != nil {
			log.Printf("[WARN] Token warm-up failed, first session pays the cost: %v", err)
		}
		tokenProvider = provider
	}

	// 3. Retrieval Backend
	var retriever search.Retriever
	if cfg.Search.Backend == "postgres" {
		gormDB, err := database.NewGormDBFromDSN(cfg.Search.PostgresConnection)
		if err != nil {
			log.Fatalf("[FATAL] Unable to connect to retrieval DB: %v", err)
		}
		embeddingProvider := embedding.NewGeminiProvider(cfg.Search.EmbeddingAPIKey)
		retriever = search.NewPgStore(gormDB, embeddingProvider)
		log.Printf("[INFO] Using Retrieval Backend: POSTGRES (pgvector)")
	} else {
		retriever = search.NewClient(search.ClientConfig{
			Endpoint:      cfg.Search.Endpoint,
			Index:         cfg.Search.Index,
			APIVersion:    cfg.Search.APIVersion,
			APIKey:        cfg.Search.APIKey,
			TokenProvider: tokenProvider,
		}, sysLogger)
		log.Printf("[INFO] Using Retrieval Backend: REST (%s)", cfg.Search.Index)
	}

	// 4. Audit Relay
	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)

	var mirror audit.Mirror
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			mirror = pub
			natsPub = pub
		}
	}

	relay := audit.NewRelay(cfg.Audit.Endpoint, cfg.Audit.APIKey, mirror, auditLogger)

	// 5. Grounding Tools
	resolver := grounding.NewResolver(relay, sysLogger)
	grounding.AttachRagTools(resolver, retriever, grounding.RagToolConfig{
		Fields: search.FieldMapping{
			Identifier: cfg.Search.IdentifierField,
			Content:    cfg.Search.ContentField,
			Embedding:  cfg.Search.EmbeddingField,
			Title:      cfg.Search.TitleField,
		},
		SemanticConfiguration: cfg.Search.SemanticConfiguration,
		UseVectorQuery:        cfg.Search.UseVectorQuery,
	})
	grounding.AttachActivityTool(resolver, cfg.Audit.Endpoint, cfg.Audit.APIKey)

	// 6. Redis (session presence; optional)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
	}

	// 7. Session Manager
	manager := realtime.NewManager(realtime.SessionConfig{
		Upstream: realtime.UpstreamConfig{
			Endpoint:      cfg.Realtime.Endpoint,
			Deployment:    cfg.Realtime.Deployment,
			APIVersion:    cfg.Realtime.APIVersion,
			APIKey:        cfg.Realtime.APIKey,
			TokenProvider: tokenProvider,
		},
		VoiceChoice:   cfg.Realtime.VoiceChoice,
		SystemMessage: cfg.Realtime.SystemMessage,
		Temperature:   cfg.Realtime.Temperature,
		MaxTokens:     cfg.Realtime.MaxTokens,
	}, resolver, relay, sysLogger, rdb)

	return &Container{
		RealtimeController: controller.NewRealtimeController(manager, sysLogger),
		Manager:            manager,
		Relay:              relay,
		Logger:             sysLogger,
		natsPub:            natsPub,
	}
}

// Close releases container-owned resources after the manager has drained.
func (c *Container) Close() {
	c.Relay.Close()
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	_ = c.Logger.Sync()
}
