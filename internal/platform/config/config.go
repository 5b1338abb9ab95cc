package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Spin     SpinConfig     `mapstructure:"spin"`
	Submit   SubmitConfig   `mapstructure:"submit"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`

	// TrustedProxies 为空时不信任任何代理头
	TrustedProxies []string `mapstructure:"trustedProxies"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // postgres | sqlite
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 描述外部身份提供方签发的JWT的校验参数
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
	// AdminUserIDs 启动时被授予管理员角色的用户
	AdminUserIDs []string `mapstructure:"adminUserIDs"`
}

// SpinConfig 定义了抽奖流程的参数
type SpinConfig struct {
	LockTTL       time.Duration `mapstructure:"lockTTL"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

// SubmitConfig 定义了公开表单提交的参数
type SubmitConfig struct {
	RateLimit     int           `mapstructure:"rateLimit"`
	RateWindow    time.Duration `mapstructure:"rateWindow"`
	ZipLookupURL  string        `mapstructure:"zipLookupURL"`
	ZipLookupWait time.Duration `mapstructure:"zipLookupTimeout"`
}

// LogConfig 定义了日志输出
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.trustedProxies", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "sparkle.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("auth.adminUserIDs", []string{})
	v.SetDefault("spin.lockTTL", 120*time.Second)
	v.SetDefault("spin.sweepInterval", 30*time.Second)
	v.SetDefault("submit.rateLimit", 20)
	v.SetDefault("submit.rateWindow", time.Hour)
	v.SetDefault("submit.zipLookupURL", "https://api.zippopotam.us/us/")
	v.SetDefault("submit.zipLookupTimeout", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 7)
	v.SetDefault("log.maxAgeDays", 14)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 配置文件不存在时只使用默认值和环境变量
func LoadConfig() (*Config, error) {
	// .env 中的变量不会覆盖已经存在的环境变量
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 允许通过环境变量覆盖配置，例如 SPIN_LOCKTTL=90s
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	// AutomaticEnv 只对已知的key生效，密钥没有默认值，需要显式绑定
	_ = v.BindEnv("auth.jwtSecret", "AUTH_JWTSECRET", "SUPABASE_JWT_SECRET")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwtSecret 未配置")
	}

	Cfg = &cfg

	return Cfg, nil
}
