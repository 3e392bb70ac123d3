package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Addr string `yaml:"-"` // 不从配置文件读取，而是在加载后计算
	} `yaml:"server"`
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Output   string `yaml:"output"`
		FilePath string `yaml:"file_path"`
	} `yaml:"log"`

	DB struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		Database        string `yaml:"database"`
		Charset         string `yaml:"charset"`
		ParseTime       bool   `yaml:"parse_time"`
		DSN             string `yaml:"-"`                 // 不从配置文件读取，而是在加载后计算
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（分钟）
	} `yaml:"database"`

	Scoring struct {
		DecayFactor    float64            `yaml:"decay_factor"`    // 时间衰减因子
		WindowDays     int                `yaml:"window_days"`     // 聚合时间窗口（天）
		InactivityDays int                `yaml:"inactivity_days"` // 不活跃判定子窗口（天）
		MaxRetries     int                `yaml:"max_retries"`     // 写入失败重试次数
		Concurrency    int                `yaml:"concurrency"`     // 用户分数更新并发数
		Weights        map[string]float64 `yaml:"weights"`         // 交互类型基础权重表
	} `yaml:"scoring"`

	Analyzer struct {
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSec     int    `yaml:"timeout_sec"`     // 请求超时时间,单位:秒
		MaxConcurrency int    `yaml:"max_concurrency"` // LLM并发请求数
	} `yaml:"analyzer"`

	Scheduler struct {
		CheckIntervalSec int `yaml:"check_interval_sec"` // 调度器检查间隔（秒）
		UpdateHour       int `yaml:"update_hour"`        // 每天执行分数更新的小时（0-23）
		UpdateMin        int `yaml:"update_min"`         // 每天执行分数更新的分钟（0-59）
		DefaultHour      int `yaml:"default_hour"`       // 默认执行小时
		DefaultMinute    int `yaml:"default_minute"`     // 默认执行分钟
	} `yaml:"scheduler"`

	Debug struct {
		Enabled       bool `yaml:"enabled"`         // 是否启用debug模式
		UpdateFreqSec int  `yaml:"update_freq_sec"` // debug模式下分数更新频率，单位：秒
	} `yaml:"debug"`
}

// DefaultWeights 默认交互类型权重表，配置缺失时使用
var DefaultWeights = map[string]float64{
	"view":           1.0,
	"like":           1.5,
	"comment":        2.5,
	"add_to_cart":    2.0,
	"purchase":       3.0,
	"collect":        2.0,
	"no_interaction": -5.0,
}

func Load() *Config {
	// 首先尝试加载.env文件中的环境变量
	_ = godotenv.Load() // 忽略错误，如果.env文件不存在，继续使用系统环境变量

	var cfg Config

	// 尝试从config.yaml文件加载配置
	if data, err := os.ReadFile("config.yaml"); err == nil {
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			log.Printf("Error loading config.yaml: %v, falling back to environment variables", err)
			return loadFromEnv()
		}
		log.Println("Loading configuration from config.yaml")

		// 计算 Server.Addr 字段
		cfg.Server.Addr = fmt.Sprintf(":%d", cfg.Server.Port)

		// 从环境变量中加载敏感信息和用户名
		// 数据库用户名和密码
		if envUsername := os.Getenv("DATABASE_USERNAME"); envUsername != "" {
			cfg.DB.Username = envUsername
		}
		if envPassword := os.Getenv("DATABASE_PASSWORD"); envPassword != "" {
			cfg.DB.Password = envPassword
		}

		// 行为分析LLM API密钥
		if envAPIKey := os.Getenv("ANALYZER_API_KEY"); envAPIKey != "" {
			cfg.Analyzer.APIKey = envAPIKey
		}

		// 计算 DB.DSN 字段
		if cfg.DB.DSN == "" {
			// 设置默认值
			if cfg.DB.Charset == "" {
				cfg.DB.Charset = "utf8mb4"
			}

			// 构建DSN
			parseTime := ""
			if cfg.DB.ParseTime {
				parseTime = "&parseTime=true"
			}

			cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
				cfg.DB.Username,
				cfg.DB.Password,
				cfg.DB.Host,
				cfg.DB.Port,
				cfg.DB.Database,
				cfg.DB.Charset,
				parseTime)
		}

		applyScoringDefaults(&cfg)
		return &cfg
	}

	// 如果config.yaml不存在，则完全从环境变量加载配置
	return loadFromEnv()
}

// applyScoringDefaults 补全分数计算相关的默认参数
func applyScoringDefaults(cfg *Config) {
	if cfg.Scoring.DecayFactor <= 0 {
		cfg.Scoring.DecayFactor = 0.1
	}
	if cfg.Scoring.WindowDays <= 0 {
		cfg.Scoring.WindowDays = 30
	}
	if cfg.Scoring.InactivityDays <= 0 {
		cfg.Scoring.InactivityDays = 7
	}
	if cfg.Scoring.MaxRetries <= 0 {
		cfg.Scoring.MaxRetries = 3
	}
	if len(cfg.Scoring.Weights) == 0 {
		cfg.Scoring.Weights = DefaultWeights
	}
}

func loadFromEnv() *Config {
	// 当config.yaml加载失败时，创建一个最小配置
	var cfg Config

	// 设置服务器地址
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.Server.Addr = fmt.Sprintf(":%d", cfg.Server.Port)

	// 只从环境变量中加载敏感信息
	// 数据库配置
	if username := os.Getenv("DATABASE_USERNAME"); username != "" {
		cfg.DB.Username = username
	}
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	} else if cfg.DB.Host != "" {
		// 只有在没有直接提供DSN且有主机信息时才构建DSN
		parseTime := ""
		if cfg.DB.ParseTime {
			parseTime = "&parseTime=true"
		}
		cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
			cfg.DB.Username,
			cfg.DB.Password,
			cfg.DB.Host,
			cfg.DB.Port,
			cfg.DB.Database,
			cfg.DB.Charset,
			parseTime)
	}

	// 行为分析LLM API密钥
	if apiKey := os.Getenv("ANALYZER_API_KEY"); apiKey != "" {
		cfg.Analyzer.APIKey = apiKey
	}

	applyScoringDefaults(&cfg)

	log.Println("配置从环境变量加载，部分配置可能缺失")
	return &cfg
}
