package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Transfer TransferConfig `yaml:"transfer"`
	Intake   IntakeConfig   `yaml:"intake"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ExportCompletedTopicName string `yaml:"export_completed_topic_name"`
	ConsumerGroup            string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransferConfig struct {
	Mode           string `yaml:"mode"` // "sftp" | "http" | "gcs" | "fake"
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	RemoteDir      string `yaml:"remote_dir"`
	HostKey        string `yaml:"host_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	BaseURL        string `yaml:"base_url"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
}

type IntakeConfig struct {
	StationID           string `yaml:"station_id"`
	SessionKey          string `yaml:"session_key"`
	SessionTTLSeconds   int    `yaml:"session_ttl_seconds"`
	IncludeDropLocation bool   `yaml:"include_drop_location"`
	// nil означает значение по умолчанию (true)
	RequireUniformPartner *bool  `yaml:"require_uniform_partner"`
	Timezone              string `yaml:"timezone"`
	RescanCooldownMs      *int   `yaml:"rescan_cooldown_ms"`
	NoticeDismissSeconds  int    `yaml:"notice_dismiss_seconds"`

	HTTPAddr        string `yaml:"http_addr"`
	JournalHTTPAddr string `yaml:"journal_http_addr"`
	DownloadDir     string `yaml:"download_dir"`
	RelayEnabled    bool   `yaml:"relay_enabled"`
}

func (c IntakeConfig) UniformPartnerRequired() bool {
	return c.RequireUniformPartner == nil || *c.RequireUniformPartner
}

// LoadConfig reads the YAML file and then overlays SFTP credentials from the environment
// and from envFiles (".env" when none given). Real environment variables win over the file.
func LoadConfig(filename string, envFiles ...string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := config.applyEnv(envFiles); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv(envFiles []string) error {
	fileVals := map[string]string{}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		vals, err := godotenv.Read(f)
		if err != nil {
			return fmt.Errorf("failed to read env file %s: %w", f, err)
		}
		for k, v := range vals {
			if _, ok := fileVals[k]; !ok {
				fileVals[k] = v
			}
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}

	if v, ok := lookup("SFTP_HOST"); ok && v != "" {
		c.Transfer.Host = v
	}
	if v, ok := lookup("SFTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SFTP_PORT %q: %w", v, err)
		}
		c.Transfer.Port = port
	}
	if v, ok := lookup("SFTP_USERNAME"); ok && v != "" {
		c.Transfer.Username = v
	}
	if v, ok := lookup("SFTP_PASSWORD"); ok && v != "" {
		c.Transfer.Password = v
	}
	return nil
}
