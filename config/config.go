/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config holds the settings for the noodl command and the
// services it runs.
package config

import (
	"errors"
	"time"
)

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// LogFile, if not empty, gets JSON logs with rotation.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ChainConfig struct {
	// TimeoutDelay is the default per-action timeout.
	TimeoutDelay time.Duration `mapstructure:"timeout_delay" yaml:"timeout_delay"`

	// ExecuteTimeout is the per-step watchdog.
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout" yaml:"execute_timeout"`

	// NoActionSniffing disables treating map results with an
	// actionType as injected actions.
	NoActionSniffing bool `mapstructure:"no_action_sniffing" yaml:"no_action_sniffing"`

	// Libraries is the directory for JavaScript libraries.
	Libraries string `mapstructure:"libraries" yaml:"libraries"`
}

type StoreConfig struct {
	// Path is the bbolt database file.  Empty means no
	// persistence.
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type MQTTConfig struct {
	Broker       string        `mapstructure:"broker" yaml:"broker"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	InTopic      string        `mapstructure:"in_topic" yaml:"in_topic"`
	OutTopic     string        `mapstructure:"out_topic" yaml:"out_topic"`
	QoS          byte          `mapstructure:"qos" yaml:"qos"`
	KeepAlive    time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	CleanSession bool          `mapstructure:"clean_session" yaml:"clean_session"`
}

type WebSocketConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// Config is everything.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Chain     ChainConfig     `mapstructure:"chain" yaml:"chain"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
}

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "noodl",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
		},
		Chain: ChainConfig{
			TimeoutDelay:   8 * time.Second,
			ExecuteTimeout: 10 * time.Second,
			Libraries:      ".",
		},
		Store: StoreConfig{
			Timeout: time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:     "noodl",
			InTopic:      "noodl/in",
			OutTopic:     "noodl/out",
			KeepAlive:    30 * time.Second,
			CleanSession: true,
		},
		WebSocket: WebSocketConfig{
			Listen: ":8080",
			Path:   "/chains",
		},
	}
}

var (
	ErrBadTimeout = errors.New("chain timeouts must be positive")
	ErrBadQoS     = errors.New("mqtt qos must be 0, 1, or 2")
)

// Validate checks the values that the services depend on.
func (c *Config) Validate() error {
	if c.Chain.TimeoutDelay <= 0 || c.Chain.ExecuteTimeout <= 0 {
		return ErrBadTimeout
	}
	if 2 < c.MQTT.QoS {
		return ErrBadQoS
	}
	return nil
}
