package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"option_go/internal/domain"
)

const (
	// DefaultUserAgent is sent on the price feed handshake.
	DefaultUserAgent = "option-go/1.0 (+settlement-engine)"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 운영 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine struct {
		Principal string `yaml:"principal" validate:"required"`
		InboxSize int    `yaml:"inbox_size" validate:"gte=0"`
	} `yaml:"engine"`

	Storage struct {
		DBPath string `yaml:"db_path"` // empty: OS user config dir
	} `yaml:"storage"`

	Oracle struct {
		Principal     string   `yaml:"principal"`
		WindowSeconds int64    `yaml:"window_seconds" validate:"gte=0"`
		FeedURL       string   `yaml:"feed_url" validate:"omitempty,url"`
		PollURL       string   `yaml:"poll_url" validate:"omitempty,url"`
		PollSec       int      `yaml:"poll_interval_sec" validate:"gte=0"`
		Symbol        string   `yaml:"symbol"`
		Market        string   `yaml:"market"` // quote market code on the feed
		Decimals      int32    `yaml:"decimals" validate:"gte=0,lte=18"`
		Instances     []string `yaml:"instances" validate:"dive,required"`
	} `yaml:"oracle"`

	Keeper struct {
		Enabled         bool     `yaml:"enabled"`
		Principal       string   `yaml:"principal"`
		PollIntervalSec int      `yaml:"poll_interval_sec" validate:"gt=0"`
		Instances       []string `yaml:"instances" validate:"dive,required"`
	} `yaml:"keeper"`

	Logging struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "option-go"
	cfg.App.Version = "1.0.0"
	cfg.Engine.Principal = "ENGINE"
	cfg.Engine.InboxSize = 256
	cfg.Oracle.Symbol = "XLM"
	cfg.Oracle.Market = "USDC"
	cfg.Oracle.Decimals = 6
	cfg.Keeper.Principal = "KEEPER"
	cfg.Keeper.PollIntervalSec = 30
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 파일에 없는 값은 DefaultConfig를 따릅니다.
// An empty path skips the file and uses defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &domain.ConfigError{Field: path, Err: domain.ErrConfigNotFound}
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &domain.ConfigError{Field: verrs[0].Namespace(), Err: err}
		}
		return err
	}

	if c.Oracle.FeedURL != "" && !strings.HasPrefix(c.Oracle.FeedURL, "ws://") && !strings.HasPrefix(c.Oracle.FeedURL, "wss://") {
		return &domain.ConfigError{Field: "oracle.feed_url", Err: fmt.Errorf("not a websocket url: %s", c.Oracle.FeedURL)}
	}
	if c.Oracle.PollURL != "" && !strings.HasPrefix(c.Oracle.PollURL, "http://") && !strings.HasPrefix(c.Oracle.PollURL, "https://") {
		return &domain.ConfigError{Field: "oracle.poll_url", Err: fmt.Errorf("not an http url: %s", c.Oracle.PollURL)}
	}
	if len(c.Oracle.Instances) > 0 && c.Oracle.Principal == "" {
		return &domain.ConfigError{Field: "oracle.principal", Err: errors.New("required when oracle instances are configured")}
	}
	if c.Oracle.Principal != "" && c.Oracle.Principal == c.Engine.Principal {
		return &domain.ConfigError{Field: "oracle.principal", Err: errors.New("must differ from engine principal")}
	}
	if c.Keeper.Enabled && c.Keeper.Principal == "" {
		return &domain.ConfigError{Field: "keeper.principal", Err: errors.New("required when keeper is enabled")}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("OPTION_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("OPTION_ENGINE_PRINCIPAL"); v != "" {
		cfg.Engine.Principal = v
	}
	if v := os.Getenv("OPTION_ORACLE_PRINCIPAL"); v != "" {
		cfg.Oracle.Principal = v
	}
	if v := os.Getenv("OPTION_FEED_URL"); v != "" {
		cfg.Oracle.FeedURL = v
	}
	if v := os.Getenv("OPTION_ORACLE_WINDOW"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: "OPTION_ORACLE_WINDOW", Err: err}
		}
		cfg.Oracle.WindowSeconds = n
	}
	if v := os.Getenv("OPTION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return nil
}
