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

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mame82/fotaflash/fota"
)

var (
	makeDeviceID  string
	makeKeyFile   string
	makeServiceID string
	makeName      string
	makeOutFile   string
)

// flagOrBuild returns the flag value if given, the [build] default otherwise.
func flagOrBuild(cmd *cobra.Command, flag, value, def string) string {
	if cmd.Flags().Changed(flag) {
		return value
	}
	return def
}

func composeOptions(cmd *cobra.Command) (opts fota.ComposeOptions, err error) {
	opts.Logger = log.StandardLogger()

	if s := flagOrBuild(cmd, "devid", makeDeviceID, cfg.Build.DeviceID); s != "" {
		id, err := fota.ParseUUID(s)
		if err != nil {
			return opts, errors.Wrap(err, "device id")
		}
		opts.DeviceID = &id
	}
	if s := flagOrBuild(cmd, "srvid", makeServiceID, cfg.Build.ServiceID); s != "" {
		id, err := fota.ParseUUID(s)
		if err != nil {
			return opts, errors.Wrap(err, "service id")
		}
		opts.ServiceID = &id
	}
	if s := flagOrBuild(cmd, "name", makeName, cfg.Build.Name); s != "" {
		opts.Name = []byte(s)
	}

	var signer *fota.Signer
	if path := flagOrBuild(cmd, "sign", makeKeyFile, cfg.Build.Key); path != "" {
		pemBytes, err := ioutil.ReadFile(path)
		if err != nil {
			return opts, err
		}
		priv, err := fota.LoadSigningKey(pemBytes)
		if err != nil {
			return opts, errors.Wrap(err, path)
		}
		if signer, err = fota.NewSigner(priv); err != nil {
			return opts, err
		}
	}
	opts.Signer = signer
	return opts, nil
}

func runMake(cmd *cobra.Command, fotaFile, appFile string) error {
	opts, err := composeOptions(cmd)
	if err != nil {
		return err
	}
	fotaImg, err := ioutil.ReadFile(fotaFile)
	if err != nil {
		return err
	}
	appImg, err := ioutil.ReadFile(appFile)
	if err != nil {
		return err
	}

	res, err := fota.Make(fotaImg, appImg, opts)
	if err != nil {
		return err
	}

	out := makeOutFile
	if out == "" {
		out = appFile + ".fota"
	}
	if err = ioutil.WriteFile(out, res, os.FileMode(0644)); err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": out, "size": len(res), "signed": opts.Signer.IsSigning()}).Info("FOTA image written")
	return nil
}

var makeCmd = &cobra.Command{
	Use:   "make FOTA-IMG APP-IMG",
	Short: "Build a FOTA image file",
	Long: `Build a FOTA image file from the FOTA stack sub-image (BLE stack and
DFU component) and the application sub-image. Both sub-images have to
originate from the same build.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMake(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(makeCmd)
	makeCmd.Flags().StringVarP(&makeDeviceID, "devid", "d", "", "device UUID to embed in the image (default: no ID)")
	makeCmd.Flags().StringVarP(&makeKeyFile, "sign", "s", "", "name of signing key PEM file (default: no signing)")
	makeCmd.Flags().StringVarP(&makeServiceID, "srvid", "i", "", "advertised UUID to embed in the image (default: as shipped)")
	makeCmd.Flags().StringVarP(&makeName, "name", "n", "", "advertised name to embed in the image (default: as shipped)")
	makeCmd.Flags().StringVarP(&makeOutFile, "out", "o", "", "name of output image file (default: <APP-IMG>.fota)")
}
