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
	"io/ioutil"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"zappem.net/pub/debug/xxd"

	"github.com/mame82/fotaflash/updater"
)

var readOutFile string

func parseNumber(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid number %q", s)
	}
	return v, nil
}

func runRead(portName string, addr uint32, length int) error {
	d, err := openDevice(portName, updater.WithProgressCallback(progressMarks))
	if err != nil {
		return err
	}
	defer d.Close()

	if err = d.session.ResetToBootloader(); err != nil {
		return err
	}
	data, err := d.session.Read(addr, length)
	if err != nil {
		return err
	}
	if err = d.session.Restart(); err != nil {
		return err
	}

	if readOutFile != "" && readOutFile != "-" {
		return ioutil.WriteFile(readOutFile, data, os.FileMode(0644))
	}
	xxd.Print(int(addr), data)
	return nil
}

var readCmd = &cobra.Command{
	Use:   "read PORT ADDR LEN",
	Short: "Read device memory through the bootloader",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseNumber(args[1], 32)
		if err != nil {
			return err
		}
		length, err := parseNumber(args[2], 31)
		if err != nil {
			return err
		}
		return runRead(args[0], uint32(addr), int(length))
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVarP(&readOutFile, "out", "o", "-", "output file, - for a hex dump on stdout")
}
