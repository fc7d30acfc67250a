/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package serverconf reads the server.conf key table (§6) through
// spf13/viper, with spf13/pflag-bound defaults so every key is also
// reachable as a command-line flag.
package serverconf

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved server configuration.
type Config struct {
	KeepAliveTimeout time.Duration
	HeadersTimeout   time.Duration
	ServerStatus     bool

	HTTPPort           string
	QueuedConnections  int
	MaxConnPerIP       int
	WorkloadBalancing  bool

	HTTPSPort         string
	HTTPSCertificate  string
	HTTPSKey          string
	HTTPSServerName   string

	AcceptTimeout  time.Duration
	ShutdownTimeout time.Duration

	PrivilegesUser  string
	PrivilegesGroup string

	LoggingLevel string
	LoggingFile  string

	DevicesEnabled  bool
	DevicesBasePath string

	DiagEnabled bool

	S3StaticEnabled   bool
	S3StaticBasePath  string
	S3StaticBucket    string
	S3StaticRegion    string
	S3StaticEndpoint  string
	S3StaticPathStyle bool
	S3StaticAccessKey string
	S3StaticSecretKey string
}

// keys lists every viper key this package binds, paired with its default.
var defaults = map[string]interface{}{
	"keepalive_timeout":      15 * time.Second,
	"headers_timeout":        5 * time.Second,
	"server_status":          true,
	"http_port":              ":8080",
	"queued_connections":     1024,
	"max_connections_per_ip": 0,
	"workload_balancing":     true,
	"https.port":             "",
	"https.certificate":      "",
	"https.key":              "",
	"https.server_name":      "",
	"accept_timeout":         30 * time.Second,
	"shutdown_timeout":       10 * time.Second,
	"privileges.user":        "",
	"privileges.group":       "",
	"logging.level":          "info",
	"logging.file":           "",

	"plugins.devices.enabled":   false,
	"plugins.devices.base_path": "/devices",

	"plugins.diag.enabled": false,

	"plugins.s3static.enabled":           false,
	"plugins.s3static.base_path":         "/static",
	"plugins.s3static.bucket":            "",
	"plugins.s3static.region":            "",
	"plugins.s3static.endpoint":          "",
	"plugins.s3static.path_style":        false,
	"plugins.s3static.access_key_id":     "",
	"plugins.s3static.secret_access_key": "",
}

// New returns a viper.Viper pre-seeded with this package's defaults,
// named server.conf and searched for in confDir.
func New(confDir string) *viper.Viper {
	v := viper.New()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName("server")
	v.SetConfigType("toml")
	v.AddConfigPath(confDir)
	v.SetEnvPrefix("dracon")
	v.AutomaticEnv()

	return v
}

// Load reads and validates the configuration carried by v.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ErrorReadConfig.Error(err)
		}
	}

	cfg := &Config{
		KeepAliveTimeout:  v.GetDuration("keepalive_timeout"),
		HeadersTimeout:    v.GetDuration("headers_timeout"),
		ServerStatus:      v.GetBool("server_status"),
		HTTPPort:          v.GetString("http_port"),
		QueuedConnections: v.GetInt("queued_connections"),
		MaxConnPerIP:      v.GetInt("max_connections_per_ip"),
		WorkloadBalancing: v.GetBool("workload_balancing"),
		HTTPSPort:         v.GetString("https.port"),
		HTTPSCertificate:  v.GetString("https.certificate"),
		HTTPSKey:          v.GetString("https.key"),
		HTTPSServerName:   v.GetString("https.server_name"),
		AcceptTimeout:     v.GetDuration("accept_timeout"),
		ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
		PrivilegesUser:    v.GetString("privileges.user"),
		PrivilegesGroup:   v.GetString("privileges.group"),
		LoggingLevel:      v.GetString("logging.level"),
		LoggingFile:       v.GetString("logging.file"),

		DevicesEnabled:  v.GetBool("plugins.devices.enabled"),
		DevicesBasePath: v.GetString("plugins.devices.base_path"),

		DiagEnabled: v.GetBool("plugins.diag.enabled"),

		S3StaticEnabled:   v.GetBool("plugins.s3static.enabled"),
		S3StaticBasePath:  v.GetString("plugins.s3static.base_path"),
		S3StaticBucket:    v.GetString("plugins.s3static.bucket"),
		S3StaticRegion:    v.GetString("plugins.s3static.region"),
		S3StaticEndpoint:  v.GetString("plugins.s3static.endpoint"),
		S3StaticPathStyle: v.GetBool("plugins.s3static.path_style"),
		S3StaticAccessKey: v.GetString("plugins.s3static.access_key_id"),
		S3StaticSecretKey: v.GetString("plugins.s3static.secret_access_key"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.KeepAliveTimeout < 0 {
		return ErrorInvalidKeepAlive.Error()
	}

	if c.HTTPPort == "" && c.HTTPSPort == "" {
		return ErrorInvalidListener.Error()
	}

	return nil
}
