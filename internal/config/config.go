package config

import (
	"log"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Realtime RealtimeConfig
	Search   SearchConfig
	Storage  StorageConfig
	Audit    AuditConfig
	Identity IdentityConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	AuditLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

// RealtimeConfig selects and authenticates the upstream realtime session.
type RealtimeConfig struct {
	Endpoint      string `validate:"required,url"`
	APIKey        string
	Deployment    string `validate:"required"`
	VoiceChoice   string
	APIVersion    string
	SystemMessage string
	Temperature   *float64
	MaxTokens     *int
}

const defaultSystemMessage = "You are a helpful assistant. Only answer questions based on information you searched in the knowledge base, " +
	"accessible with the 'search' tool. The user is listening to answers with audio, so it's *super* important that answers are as short as possible, " +
	"a single sentence if at all possible. " +
	"Never read file names or source names or keys out loud. " +
	"Always use the following step by step instructions to respond: \n" +
	"1. Always use the 'search' tool to check the knowledge base before answering a question. \n" +
	"2. Always use the 'report_grounding' tool to report the source of information from the knowledge base. \n" +
	"3. Produce an answer that's as short as possible. If the answer isn't in the knowledge base, say you don't know."

type SearchConfig struct {
	Backend               string // "rest" or "postgres"
	Endpoint              string
	APIKey                string
	Index                 string
	APIVersion            string
	SemanticConfiguration string
	IdentifierField       string
	ContentField          string
	EmbeddingField        string
	TitleField            string
	UseVectorQuery        bool
	PostgresConnection    string
	EmbeddingAPIKey       string
}

// StorageConfig is passed through to the blob storage collaborator; the
// gateway itself never reads or writes the container.
type StorageConfig struct {
	Endpoint         string
	ConnectionString string
	Container        string
}

type AuditConfig struct {
	Endpoint string
	APIKey   string
}

// IdentityConfig drives bearer token acquisition when API keys are absent.
type IdentityConfig struct {
	TenantID     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

func Load() *Config {
	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("Note: .env file not found, usage system environment")
		}
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8765"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/voicerag.log"),
			AuditLogFilePath:   getEnv("AUDIT_LOG_FILE_PATH", "logs/audit.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Realtime: RealtimeConfig{
			Endpoint:    getEnv("AZURE_OPENAI_ENDPOINT", ""),
			APIKey:      getEnv("AZURE_OPENAI_API_KEY", ""),
			Deployment:  getEnv("AZURE_OPENAI_REALTIME_DEPLOYMENT", ""),
			VoiceChoice:   getEnv("AZURE_OPENAI_REALTIME_VOICE_CHOICE", "alloy"),
			APIVersion:    getEnv("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
			SystemMessage: getEnv("AZURE_OPENAI_SYSTEM_MESSAGE", defaultSystemMessage),
			Temperature:   getEnvAsFloatPtr("REALTIME_TEMPERATURE"),
			MaxTokens:     getEnvAsIntPtr("REALTIME_MAX_RESPONSE_TOKENS"),
		},
		Search: SearchConfig{
			Backend:               getEnv("SEARCH_BACKEND", "rest"),
			Endpoint:              getEnv("AZURE_SEARCH_ENDPOINT", ""),
			APIKey:                getEnv("AZURE_SEARCH_API_KEY", ""),
			Index:                 getEnv("AZURE_SEARCH_INDEX", ""),
			APIVersion:            getEnv("AZURE_SEARCH_API_VERSION", "2024-07-01"),
			SemanticConfiguration: getEnv("AZURE_SEARCH_SEMANTIC_CONFIGURATION", ""),
			IdentifierField:       getEnv("AZURE_SEARCH_IDENTIFIER_FIELD", "chunk_id"),
			ContentField:          getEnv("AZURE_SEARCH_CONTENT_FIELD", "chunk"),
			EmbeddingField:        getEnv("AZURE_SEARCH_EMBEDDING_FIELD", "text_vector"),
			TitleField:            getEnv("AZURE_SEARCH_TITLE_FIELD", "title"),
			UseVectorQuery:        getEnvAsBool("AZURE_SEARCH_USE_VECTOR_QUERY", true),
			PostgresConnection:    getEnv("SEARCH_DB_CONNECTION_STRING", ""),
			EmbeddingAPIKey:       getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		Storage: StorageConfig{
			Endpoint:         getEnv("AZURE_STORAGE_ENDPOINT", ""),
			ConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			Container:        getEnv("AZURE_STORAGE_CONTAINER", ""),
		},
		Audit: AuditConfig{
			Endpoint: getEnv("AUTH0_LOGS_ENDPOINT", ""),
			APIKey:   getEnv("AUTH0_LOGS_API_KEY", ""),
		},
		Identity: IdentityConfig{
			TenantID:     getEnv("AZURE_TENANT_ID", ""),
			TokenURL:     getEnv("AZURE_TOKEN_URL", ""),
			ClientID:     getEnv("AZURE_CLIENT_ID", ""),
			ClientSecret: getEnv("AZURE_CLIENT_SECRET", ""),
			Scope:        getEnv("AZURE_TOKEN_SCOPE", "https://cognitiveservices.azure.com/.default"),
		},
	}
}

// Validate checks the fields the gateway cannot start without.
func (c *Config) Validate() error {
	v := validator.New()
	return v.Struct(c.Realtime)
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || os.Getenv("RUNNING_IN_PRODUCTION") != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloatPtr(key string) *float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return &value
	}
	return nil
}

func getEnvAsIntPtr(key string) *int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return &value
	}
	return nil
}
