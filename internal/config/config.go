// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Store         StoreConfig         `mapstructure:"store"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorIndex   VectorIndexConfig   `mapstructure:"vector_index"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Query         QueryConfig         `mapstructure:"query"`
	Theme         ThemeConfig         `mapstructure:"theme"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Inbox         InboxConfig         `mapstructure:"inbox"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`
	MaxUploadMB   int64  `mapstructure:"max_upload_mb"`
	QueryParallel int    `mapstructure:"query_parallel"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用向量缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SQLiteConfig 存储嵌入式 SQLite 的配置。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig 选择文档状态存储的实现：sqlite 或 mysql。
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// StorageConfig 选择对象存储的实现：local 或 minio。
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// QueueConfig 选择摄取队列的实现：memory 或 kafka。
type QueueConfig struct {
	Driver   string `mapstructure:"driver"`
	Capacity int    `mapstructure:"capacity"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	OCRLanguage string        `mapstructure:"ocr_language"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig 控制文本抽取与切块。
type ExtractionConfig struct {
	MinContentChars int `mapstructure:"min_content_chars"`
	ChunkSize       int `mapstructure:"chunk_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Concurrency       int           `mapstructure:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// VectorIndexConfig 选择向量检索引擎：memory 或 elasticsearch。
type VectorIndexConfig struct {
	Engine string `mapstructure:"engine"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// QueryConfig 单文档问答参数。
type QueryConfig struct {
	TopK int `mapstructure:"top_k"`
}

// ThemeConfig 跨文档主题综合参数。
type ThemeConfig struct {
	TopN           int     `mapstructure:"top_n"`
	ExpandK        int     `mapstructure:"expand_k"`
	ExpandMinScore float64 `mapstructure:"expand_min_score"` // 大于 0 时丢弃低于该分数的扩展命中
}

// JWTConfig 存储 JWT 相关的配置。Secret 为空时 API 不做鉴权。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// InboxConfig 配置启动导入目录与目录监听。
type InboxConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 16)
	v.SetDefault("server.query_parallel", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.sqlite.path", "./data/docqa.db")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./data/objects")
	v.SetDefault("minio.bucket_name", "docqa")
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.capacity", 256)
	v.SetDefault("kafka.topic", "docqa-ingest")
	v.SetDefault("kafka.group_id", "docqa-ingest-worker")
	v.SetDefault("tika.server_url", "http://localhost:9998")
	v.SetDefault("tika.ocr_language", "eng")
	v.SetDefault("tika.timeout", 2*time.Minute)
	v.SetDefault("extraction.min_content_chars", 100)
	v.SetDefault("extraction.chunk_size", 1000)
	v.SetDefault("extraction.chunk_overlap", 200)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)
	v.SetDefault("vector_index.engine", "memory")
	v.SetDefault("elasticsearch.index_name", "docqa_vectors")
	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("query.top_k", 3)
	v.SetDefault("theme.top_n", 5)
	v.SetDefault("theme.expand_k", 10)
	v.SetDefault("theme.expand_min_score", 0.0)
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("inbox.dir", "initfile")
}

// Load 读取 YAML 配置并叠加默认值与 DOCQA_ 前缀的环境变量。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，结果存入全局 Conf。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
