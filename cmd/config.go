// Copyright © 2019 Marcus Mengs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const DEFAULT_CONFIG_FILE = ".fotaflash.toml"

const (
	LINES_CP210X = "cp210x"
	LINES_MODEM  = "modem"
	LINES_NONE   = "none"
)

// BuildConfig holds defaults for the make command.
type BuildConfig struct {
	Key       string `toml:"key"`
	ServiceID string `toml:"service_id"`
	Name      string `toml:"name"`
	DeviceID  string `toml:"device_id"`
}

type Config struct {
	Port      string `toml:"port"`
	Adapter   string `toml:"adapter"`
	Baud      int    `toml:"baud"`
	TimeoutMS int    `toml:"timeout_ms"`
	Retries   int    `toml:"retries"`
	Lines     string `toml:"lines"`
	LogLevel  string `toml:"log_level"`

	Build BuildConfig `toml:"build"`

	// keys present in the config file
	defined map[string]bool
}

func defaultConfig() Config {
	return Config{
		Baud:      1000000,
		TimeoutMS: 100,
		Retries:   2,
		Lines:     LINES_CP210X,
		LogLevel:  "info",
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, DEFAULT_CONFIG_FILE)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// loadConfig decodes a TOML config file. A missing file is only an error
// if it was requested explicitly.
func loadConfig(path string, required bool) (Config, error) {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) && !required {
			return Config{}, nil
		}
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("load config %s: unknown key %s", path, undecoded[0])
	}

	raw.defined = map[string]bool{}
	for _, key := range meta.Keys() {
		raw.defined[key.String()] = true
	}
	raw.Lines = strings.ToLower(strings.TrimSpace(raw.Lines))
	return raw, nil
}

// merge applies the values defined in the config file f, unless the
// matching flag was set on the command line.
func (c *Config) merge(f Config, flagChanged func(name string) bool) {
	set := func(key, flag string) bool {
		return f.defined[key] && (flag == "" || !flagChanged(flag))
	}
	if set("port", "") {
		c.Port = f.Port
	}
	if set("adapter", "") {
		c.Adapter = f.Adapter
	}
	if set("baud", "baud") {
		c.Baud = f.Baud
	}
	if set("timeout_ms", "timeout") {
		c.TimeoutMS = f.TimeoutMS
	}
	if set("retries", "retries") {
		c.Retries = f.Retries
	}
	if set("lines", "lines") {
		c.Lines = f.Lines
	}
	if set("log_level", "") {
		c.LogLevel = f.LogLevel
	}
	if set("build.key", "") {
		c.Build.Key = f.Build.Key
	}
	if set("build.service_id", "") {
		c.Build.ServiceID = f.Build.ServiceID
	}
	if set("build.name", "") {
		c.Build.Name = f.Build.Name
	}
	if set("build.device_id", "") {
		c.Build.DeviceID = f.Build.DeviceID
	}
}

func (c *Config) validate() error {
	switch c.Lines {
	case LINES_CP210X, LINES_MODEM, LINES_NONE:
	default:
		return errors.Errorf("unknown line driver %q", c.Lines)
	}
	if c.Baud <= 0 {
		return errors.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.TimeoutMS <= 0 {
		return errors.Errorf("invalid timeout %d ms", c.TimeoutMS)
	}
	if c.Retries < 0 {
		return errors.Errorf("invalid retry count %d", c.Retries)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
