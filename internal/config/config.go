package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server Server `yaml:"server"`
	Media  Media  `yaml:"media"`
	Upload Upload `yaml:"upload"`
}

type Server struct {
	Port          int      `yaml:"port"`
	PostgresDsn   string   `yaml:"postgresDsn"`
	RedisAddr     string   `yaml:"redisAddr"`
	RedisPassword string   `yaml:"redisPassword"`
	RedisDB       int      `yaml:"redisDB"`
	MemcachedAddr string   `yaml:"memcachedAddr"`
	EnableTrace   bool     `yaml:"enableTrace"`
	TraceEndpoint string   `yaml:"traceEndpoint"`
	AllowOrigins  []string `yaml:"allowOrigins"`
}

type Media struct {
	Provider   string     `yaml:"provider"` // cloudinary, gcs
	Folder     string     `yaml:"folder"`
	Cloudinary Cloudinary `yaml:"cloudinary"`
	GCS        GCS        `yaml:"gcs"`
}

type Cloudinary struct {
	CloudName string `yaml:"cloudName"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

type GCS struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentialsFile"`
	PublicBaseURL   string `yaml:"publicBaseURL"`
	Endpoint        string `yaml:"endpoint"`
}

type Upload struct {
	MaxBytes          int64 `yaml:"maxBytes"`
	MaxTitleLength    int   `yaml:"maxTitleLength"`
	MaxUploaderLength int   `yaml:"maxUploaderLength"`
}

// Load reads a YAML config file. ${VAR} references are expanded from the
// environment before decoding.
func Load(path string) (Config, error) {

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return Parse(raw)
}

func Parse(raw []byte) (Config, error) {
	var config Config
	err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &config)
	if err != nil {
		return Config{}, err
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Media.Provider == "" {
		c.Media.Provider = "cloudinary"
	}
	if c.Media.Folder == "" {
		c.Media.Folder = "humayat"
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if c.Upload.MaxTitleLength == 0 {
		c.Upload.MaxTitleLength = 200
	}
	if c.Upload.MaxUploaderLength == 0 {
		c.Upload.MaxUploaderLength = 100
	}
}
