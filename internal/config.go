package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服務器配置
type Config struct {
	// HTTP 服務配置
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	// 日誌配置
	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`

	// Deathroll 遊戲配置
	Deathroll struct {
		// 首擲上限（來源固定為 1000）
		StartingMax int `yaml:"starting_max"`
	} `yaml:"deathroll"`

	// WebSocket 心跳配置
	WebSocket struct {
		// Ping 間隔（避開代理的 60 秒超時，留 6 秒余量）
		PingInterval time.Duration `yaml:"ping_interval"`

		// 讀取超時（未收到 Pong 即視為死連接）
		PongWait time.Duration `yaml:"pong_wait"`

		// 單次寫入超時
		WriteWait time.Duration `yaml:"write_wait"`

		// 每連接發送緩衝（滿了丟消息，不拖累整個房間）
		SendBuffer int `yaml:"send_buffer"`
	} `yaml:"websocket"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Deathroll.StartingMax = 1000
	cfg.WebSocket.PingInterval = 54 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.SendBuffer = 256
	return cfg
}

// LoadConfig 從 YAML 文件載入配置
//
// 文件中未出現的欄位保留預設值，所以配置文件只需要寫出想覆蓋的部分。
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return config, nil
}
