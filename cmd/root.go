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
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const VERSION = "2.0.0"

var (
	cfgFile  string
	logLevel string
	cfg      = defaultConfig()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "fotaflash",
	Short:   "Build and flash signed FOTA images for RSL10 devices",
	Version: VERSION,
	Long: `fotaflash composes signed FOTA images from a FOTA stack and an
application sub-image and downloads images to the RSL10 bootloader over
its UART.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+DEFAULT_CONFIG_FILE+")")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.IntVar(&cfg.Baud, "baud", cfg.Baud, "UART baud rate")
	pf.IntVar(&cfg.TimeoutMS, "timeout", cfg.TimeoutMS, "UART read timeout in ms")
	pf.IntVar(&cfg.Retries, "retries", cfg.Retries, "additional update attempts after a protocol error")
	pf.StringVar(&cfg.Lines, "lines", cfg.Lines, "reset/update line driver (cp210x, modem, none)")
}

// initConfig merges the config file below the flags given on the command
// line and configures logging.
func initConfig(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		fileCfg, err := loadConfig(path, cfgFile != "")
		if err != nil {
			return err
		}
		cfg.merge(fileCfg, cmd.Flags().Changed)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)
	log.WithField("config", fmt.Sprintf("%+v", cfg)).Debug("configuration")

	return cfg.validate()
}
