package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Media struct {
		AnswersDir string
		CatalogDir string
		ModelsDir  string
	}
	Auth struct {
		SessionSecret     string
		SessionTTLMinutes int
		CookieName        string
	}
	CORS struct {
		Origin string
	}
	Answers struct {
		MaxQuestion int
	}
	Analysis struct {
		Python         string
		ScriptsDir     string
		MaxConcurrent  int
		TimeoutSeconds int
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("PREPDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("database.path", "data/users.db")
	v.SetDefault("media.answersdir", "answers")
	v.SetDefault("media.catalogdir", "videos")
	v.SetDefault("media.modelsdir", "models")
	v.SetDefault("auth.sessionsecret", "")
	v.SetDefault("auth.sessionttlminutes", 720)
	v.SetDefault("auth.cookiename", "prepdeck_session")
	v.SetDefault("cors.origin", "http://localhost:3000")
	v.SetDefault("answers.maxquestion", 100)
	v.SetDefault("analysis.python", "python")
	v.SetDefault("analysis.scriptsdir", "Scripts")
	v.SetDefault("analysis.maxconcurrent", 2)
	v.SetDefault("analysis.timeoutseconds", 120)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "prepdeck-answers")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
