package config

import (
	"flag"
	"log"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer HTTPServer `yaml:"http_server" env-required:"true"`
	PGSQL      PQSQL      `yaml:"pgsql" env-required:"true"`
	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio" env-required:"true"`
	Media      Media      `yaml:"media"`
	Upload     Upload     `yaml:"upload"`
	Push       Push       `yaml:"push"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

type HTTPServer struct {
	Address string `yaml:"address" env-default:"localhost:8080"`
	// MaxBodyBytes bounds proxied request bodies. Anything bigger must take
	// the direct upload path.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env-default:"33554432"`
}

type PQSQL struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-default:"postgres"`
	Password string `yaml:"password" env-default:"password"`
	DBName   string `yaml:"dbname" env-default:"strand_db"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" env-default:"0"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env-required:"true"`
	AccessKeyID     string `yaml:"access_key_id" env-required:"true"`
	SecretAccessKey string `yaml:"secret_access_key" env-required:"true"`
	UseSSL          bool   `yaml:"use_ssl" env-default:"false"`
	BucketName      string `yaml:"bucket_name" env-default:"strand-media"`
	PresignedURLTTL int    `yaml:"presigned_url_ttl" env-default:"900"`
}

type Media struct {
	// Images over the soft limit are compressed, never rejected.
	ImageSoftLimitBytes int64 `yaml:"image_soft_limit_bytes" env-default:"4194304"`
	// Videos and audio over the hard ceiling are rejected before upload.
	VideoMaxBytes int64 `yaml:"video_max_bytes" env-default:"268435456"`
	// Files over the proxy threshold go direct to object storage.
	ProxyThresholdBytes int64 `yaml:"proxy_threshold_bytes" env-default:"8388608"`
}

type Upload struct {
	TransferTimeoutSeconds int `yaml:"transfer_timeout_seconds" env-default:"300"`
	MetadataTimeoutSeconds int `yaml:"metadata_timeout_seconds" env-default:"15"`
	MaxRetries             int `yaml:"max_retries" env-default:"2"`
	RetryDelayMillis       int `yaml:"retry_delay_millis" env-default:"1000"`
	MaxConcurrent          int `yaml:"max_concurrent" env-default:"4"`
}

type Push struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env-default:"10"`
	MaxRetries     int `yaml:"max_retries" env-default:"1"`
	TTLSeconds     int `yaml:"ttl_seconds" env-default:"86400"`
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags

		if configPath == "" {
			log.Fatal("config path must be provided")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist at path: %s", configPath)
	}

	var cfg Config

	err := cleanenv.ReadConfig(configPath, &cfg)

	if err != nil {
		log.Fatalf("failed to read config: %s", err)
	}

	return &cfg
}
