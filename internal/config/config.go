package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Quota struct {
	PerRun     int `yaml:"per_run"`
	PerDay     int `yaml:"per_day"`
	MinDelayMs int `yaml:"min_delay_ms"`
	MaxDelayMs int `yaml:"max_delay_ms"`
}

func (q Quota) MinDelay() time.Duration { return time.Duration(q.MinDelayMs) * time.Millisecond }
func (q Quota) MaxDelay() time.Duration { return time.Duration(q.MaxDelayMs) * time.Millisecond }

type Config struct {
	Platform struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"platform"`
	Targeting struct {
		Companies       []string `yaml:"companies"`
		Role            string   `yaml:"role"`
		Location        string   `yaml:"location"`
		PerCompanyLimit int      `yaml:"per_company_limit"`
		CompaniesPerRun int      `yaml:"companies_per_run"`
		CompanyHopMinMs int      `yaml:"company_hop_min_ms"`
		CompanyHopMaxMs int      `yaml:"company_hop_max_ms"`
	} `yaml:"targeting"`
	Quotas struct {
		Connect Quota `yaml:"connect"`
		Message Quota `yaml:"message"`
		View    Quota `yaml:"view"`
	} `yaml:"quotas"`
	LLM struct {
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		Temperature    float64 `yaml:"temperature"`
		MaxTokens      int     `yaml:"max_tokens"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Stealth struct {
		Headless          bool   `yaml:"headless"`
		UserAgent         string `yaml:"user_agent"`
		TypeMinDelayMs    int    `yaml:"type_min_delay_ms"`
		TypeMaxDelayMs    int    `yaml:"type_max_delay_ms"`
		ViewportWidthMin  int    `yaml:"viewport_width_min"`
		ViewportWidthMax  int    `yaml:"viewport_width_max"`
		ViewportHeightMin int    `yaml:"viewport_height_min"`
		ViewportHeightMax int    `yaml:"viewport_height_max"`
		ActiveStart       string `yaml:"active_start"`
		ActiveEnd         string `yaml:"active_end"`
	} `yaml:"stealth"`
	Templates struct {
		ConnectionNote string `yaml:"connection_note"`
		Acknowledgment string `yaml:"acknowledgment"`
		Persona        string `yaml:"persona"`
		Signature      string `yaml:"signature"`
	} `yaml:"templates"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Sessions struct {
		Dir string `yaml:"dir"`
	} `yaml:"sessions"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaultConfig()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Identity names the account whose session and quotas this process owns.
func (c *Config) Identity() string {
	return os.Getenv("LINKEDIN_EMAIL")
}

func defaultConfig() Config {
	var cfg Config
	cfg.Platform.BaseURL = "https://www.linkedin.com/"

	cfg.Targeting.Role = "HR"
	cfg.Targeting.Location = "India"
	cfg.Targeting.PerCompanyLimit = 2
	cfg.Targeting.CompaniesPerRun = 3
	cfg.Targeting.CompanyHopMinMs = 60000
	cfg.Targeting.CompanyHopMaxMs = 180000

	cfg.Quotas.Connect = Quota{PerRun: 15, PerDay: 25, MinDelayMs: 45000, MaxDelayMs: 90000}
	cfg.Quotas.Message = Quota{PerRun: 20, PerDay: 50, MinDelayMs: 30000, MaxDelayMs: 60000}
	cfg.Quotas.View = Quota{PerRun: 60, PerDay: 200, MinDelayMs: 3000, MaxDelayMs: 8000}

	cfg.LLM.BaseURL = "http://127.0.0.1:1234"
	cfg.LLM.Model = "local-model"
	cfg.LLM.Temperature = 0.3
	cfg.LLM.MaxTokens = 300
	cfg.LLM.TimeoutSeconds = 60

	cfg.Stealth.Headless = false
	cfg.Stealth.TypeMinDelayMs = 120
	cfg.Stealth.TypeMaxDelayMs = 900
	cfg.Stealth.ViewportWidthMin = 1280
	cfg.Stealth.ViewportWidthMax = 1680
	cfg.Stealth.ViewportHeightMin = 720
	cfg.Stealth.ViewportHeightMax = 1050
	cfg.Stealth.ActiveStart = "09:00"
	cfg.Stealth.ActiveEnd = "18:00"

	cfg.Templates.ConnectionNote = "Hi {{Name}}, came across your work at {{Company}} as {{Title}} and would love to connect."
	cfg.Templates.Acknowledgment = "Thank you for showing an interest in us. A career counseling expert will be contacting you shortly!"
	cfg.Templates.Persona = "You are a friendly career coach reaching out on a professional network."
	cfg.Templates.Signature = "Best Regards"

	cfg.Database.Path = "leadflow.db"
	cfg.Sessions.Dir = ".cache/sessions"
	cfg.Output.Dir = "output"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEADFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LEADFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEADFLOW_LLM_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LEADFLOW_HEADLESS"); v == "1" || v == "true" {
		cfg.Stealth.Headless = true
	}
}

func validate(cfg *Config) error {
	if cfg.Platform.BaseURL == "" {
		return errors.New("platform.base_url is required")
	}
	if cfg.LLM.BaseURL == "" {
		return errors.New("llm.base_url is required")
	}
	for name, q := range map[string]Quota{
		"quotas.connect": cfg.Quotas.Connect,
		"quotas.message": cfg.Quotas.Message,
		"quotas.view":    cfg.Quotas.View,
	} {
		if q.PerRun <= 0 {
			return fmt.Errorf("%s.per_run must be > 0", name)
		}
		if q.PerDay <= 0 {
			return fmt.Errorf("%s.per_day must be > 0", name)
		}
		if q.MinDelayMs < 0 || q.MaxDelayMs < q.MinDelayMs {
			return fmt.Errorf("%s delay range is invalid", name)
		}
	}
	if os.Getenv("LINKEDIN_EMAIL") == "" {
		return errors.New("LINKEDIN_EMAIL is required in env")
	}
	if os.Getenv("LINKEDIN_PASSWORD") == "" {
		return errors.New("LINKEDIN_PASSWORD is required in env")
	}
	return nil
}
