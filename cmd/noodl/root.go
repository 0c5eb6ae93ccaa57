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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Comcast/noodl/config"
	"github.com/Comcast/noodl/util"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time.
var Version = "dev"

// app is what the subcommands share.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// newRootCmd makes a fresh command tree.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{
		v:      viper.New(),
		cfg:    config.Default(),
		logger: zap.NewNop(),
	}

	root := &cobra.Command{
		Use:     "noodl",
		Short:   "noodl runs action chains from page documents.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(); err != nil {
				return err
			}
			a.logger = util.InitLogger(a.cfg.Logger, zapcore.Lock(os.Stderr))
			a.logger.Debug("starting", zap.String("version", Version))
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./noodl.yaml)")
	pf.String("log-level", a.cfg.Logger.Level, "log level")
	pf.Duration("timeout", a.cfg.Chain.TimeoutDelay, "default per-action timeout")
	pf.Duration("execute-timeout", a.cfg.Chain.ExecuteTimeout, "per-step watchdog")
	pf.Bool("no-sniffing", a.cfg.Chain.NoActionSniffing, "don't treat action-like results as injected actions")
	pf.String("libraries", a.cfg.Chain.Libraries, "directory for JavaScript libraries")
	pf.String("store", a.cfg.Store.Path, "root data file (.json for JSON, otherwise bbolt)")

	a.v.BindPFlag("logger.level", pf.Lookup("log-level"))
	a.v.BindPFlag("chain.timeout_delay", pf.Lookup("timeout"))
	a.v.BindPFlag("chain.execute_timeout", pf.Lookup("execute-timeout"))
	a.v.BindPFlag("chain.no_action_sniffing", pf.Lookup("no-sniffing"))
	a.v.BindPFlag("chain.libraries", pf.Lookup("libraries"))
	a.v.BindPFlag("store.path", pf.Lookup("store"))

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newRenderCmd(a),
		newMatchCmd(a),
		newExpectCmd(a),
	)

	return root, a
}

// setDefaults tells viper about every key so that environment
// variables work for keys that aren't in a config file.
func setDefaults(v *viper.Viper, c *config.Config) {
	v.SetDefault("logger.level", c.Logger.Level)
	v.SetDefault("logger.format", c.Logger.Format)
	v.SetDefault("logger.service_name", c.Logger.ServiceName)
	v.SetDefault("logger.add_source", c.Logger.AddSource)
	v.SetDefault("logger.log_file", c.Logger.LogFile)
	v.SetDefault("logger.max_size", c.Logger.MaxSize)
	v.SetDefault("logger.max_backups", c.Logger.MaxBackups)
	v.SetDefault("logger.max_age", c.Logger.MaxAge)
	v.SetDefault("logger.compress", c.Logger.Compress)

	v.SetDefault("chain.timeout_delay", c.Chain.TimeoutDelay)
	v.SetDefault("chain.execute_timeout", c.Chain.ExecuteTimeout)
	v.SetDefault("chain.no_action_sniffing", c.Chain.NoActionSniffing)
	v.SetDefault("chain.libraries", c.Chain.Libraries)

	v.SetDefault("store.path", c.Store.Path)
	v.SetDefault("store.timeout", c.Store.Timeout)

	v.SetDefault("mqtt.broker", c.MQTT.Broker)
	v.SetDefault("mqtt.client_id", c.MQTT.ClientID)
	v.SetDefault("mqtt.in_topic", c.MQTT.InTopic)
	v.SetDefault("mqtt.out_topic", c.MQTT.OutTopic)
	v.SetDefault("mqtt.qos", c.MQTT.QoS)
	v.SetDefault("mqtt.keep_alive", c.MQTT.KeepAlive)
	v.SetDefault("mqtt.clean_session", c.MQTT.CleanSession)

	v.SetDefault("websocket.listen", c.WebSocket.Listen)
	v.SetDefault("websocket.path", c.WebSocket.Path)
}

// initConfig reads the config file (if any) and NOODL_ environment
// variables.
func (a *app) initConfig() error {
	v := a.v
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("noodl")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("NOODL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config.Default())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
