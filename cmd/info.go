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
	"github.com/spf13/cobra"
)

func runInfo(portName string) error {
	d, err := openDevice(portName)
	if err != nil {
		return err
	}
	defer d.Close()

	hello, err := d.session.Info()
	if err != nil {
		return err
	}
	printHello(hello)
	return nil
}

var infoCmd = &cobra.Command{
	Use:   "info [PORT]",
	Short: "Print the versions installed on the device",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portName := cfg.Port
		if len(args) > 0 {
			portName = args[0]
		}
		return runInfo(portName)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
