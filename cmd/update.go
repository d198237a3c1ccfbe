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
	"io/ioutil"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mame82/fotaflash/fota"
	"github.com/mame82/fotaflash/updater"
)

var updateForce bool

func loadImageFile(path string) (*fota.Image, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := fota.LoadImage(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return img, nil
}

func runUpdate(portName, path string, force bool) error {
	img, err := loadImageFile(path)
	if err != nil {
		return err
	}
	printVersions("Image", img.Versions)

	// ask before the port is opened, nothing may reach the device if the
	// overwrite is refused
	if err = updater.CheckOverwrite(img, force, confirm); err != nil {
		return err
	}
	approved := func(string) bool { return true }

	d, err := openDevice(portName,
		updater.WithProgressCallback(progressMarks),
		updater.WithConfirmer(approved),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.session.Update(img, force)
	if err != nil {
		return err
	}
	printHello(res.Hello)
	log.WithFields(log.Fields{"attempts": res.Attempts, "recoveries": res.Recoveries}).Debug("update result")
	fmt.Printf("Update done (%.1f kB/s)\n", res.Rate/1024)
	return nil
}

var updateCmd = &cobra.Command{
	Use:   "update PORT [FILE]",
	Short: "Download an image file to the device",
	Long: `Download an image file (.bin or .fota) to the device over its UART.
Without FILE the installed versions are printed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runInfo(args[0])
		}
		return runUpdate(args[0], args[1], updateForce)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "force overwrite of the bootloader")
}
