package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"`
	} `yaml:"jwt"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		Enabled      bool   `yaml:"enabled"`
	} `yaml:"email"`

	Payments struct {
		ProcessorBaseURL string `yaml:"processor_base_url"`
		ProcessorAPIKey  string `yaml:"processor_api_key"`

		MerchantName string `yaml:"merchant_name" validate:"required"`
		MerchantCity string `yaml:"merchant_city" validate:"required"`
		PayeeKey     string `yaml:"payee_key" validate:"required,paycode_key"`

		PrepayPercentage int `yaml:"prepay_percentage"` // доля предоплаты, %

		PendingTTLMinutes    int `yaml:"pending_ttl_minutes"`    // срок жизни pending-записи
		PollIntervalSeconds  int `yaml:"poll_interval_seconds"`  // интервал опроса открытого экрана
		HeartbeatSeconds     int `yaml:"heartbeat_seconds"`      // резервный таймер
		MinSearchSpacingMS   int `yaml:"min_search_spacing_ms"`  // минимальный зазор между запросами к процессингу
		LookbackMinutes      int `yaml:"lookback_minutes"`       // окно поиска назад
		ForwardSkewSeconds   int `yaml:"forward_skew_seconds"`   // допуск расхождения часов вперед
		MonitorIntervalSec   int `yaml:"monitor_interval_sec"`   // фоновый монитор аккаунта
		SearchPageLimit      int `yaml:"search_page_limit"`      // размер страницы поиска
	} `yaml:"payments"`
}

var AppConfig *Config

func LoadConfig() {
	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		log.Println("Загрузка из config.yaml (режим НЕ-тест)")

		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}

		applyPaymentDefaults(&cfg)
		AppConfig = &cfg
		return
	}

	log.Println("Загрузка конфигурации из переменных окружения (режим теста)")

	cfg.Database.DSN = dbURL
	cfg.Server.Env = os.Getenv("SERVER_ENV")
	cfg.Server.Port, _ = strconv.Atoi(os.Getenv("SERVER_PORT"))
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	cfg.JWT.TTL = 60

	cfg.Payments.ProcessorBaseURL = os.Getenv("PROCESSOR_BASE_URL")
	cfg.Payments.ProcessorAPIKey = os.Getenv("PROCESSOR_API_KEY")
	cfg.Payments.MerchantName = "Agenda Test"
	cfg.Payments.MerchantCity = "Sao Paulo"
	cfg.Payments.PayeeKey = "pay@agenda.test"

	applyPaymentDefaults(&cfg)
	AppConfig = &cfg
}

// applyPaymentDefaults проставляет значения по умолчанию для настроек сверки.
func applyPaymentDefaults(cfg *Config) {
	p := &cfg.Payments
	if p.PrepayPercentage == 0 {
		p.PrepayPercentage = 30
	}
	if p.PendingTTLMinutes == 0 {
		p.PendingTTLMinutes = 30
	}
	if p.PollIntervalSeconds == 0 {
		p.PollIntervalSeconds = 2
	}
	if p.HeartbeatSeconds == 0 {
		p.HeartbeatSeconds = 5
	}
	if p.MinSearchSpacingMS == 0 {
		p.MinSearchSpacingMS = 1500
	}
	if p.LookbackMinutes == 0 {
		p.LookbackMinutes = 10
	}
	if p.ForwardSkewSeconds == 0 {
		p.ForwardSkewSeconds = 60
	}
	if p.MonitorIntervalSec == 0 {
		p.MonitorIntervalSec = 30
	}
	if p.SearchPageLimit == 0 {
		p.SearchPageLimit = 50
	}
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}

// PendingTTL возвращает срок жизни pending-записи как Duration.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Payments.PendingTTLMinutes) * time.Minute
}
