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
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mame82/fotaflash/fota"
)

var checkPubKey string

func signatureState(s *fota.Section, pub *ecdsa.PublicKey) (string, error) {
	switch {
	case !s.Signed():
		return "unsigned", nil
	case pub == nil:
		return "signed (not verified)", nil
	case s.Verify(pub):
		return "signature ok", nil
	default:
		return "", errors.Errorf("section at %#08x: signature invalid", s.Start)
	}
}

func runCheck(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	img, err := fota.LoadImage(data)
	if err != nil {
		return errors.Wrap(err, path)
	}
	printVersions("Image", img.Versions)

	var pub *ecdsa.PublicKey
	if checkPubKey != "" {
		pemBytes, err := ioutil.ReadFile(checkPubKey)
		if err != nil {
			return err
		}
		if pub, err = fota.LoadVerifyingKey(pemBytes); err != nil {
			return errors.Wrap(err, checkPubKey)
		}
	}

	sections, err := fota.Sections(data)
	if err != nil {
		return err
	}
	// the FOTA stack verifies the application with its embedded key
	var embedded *ecdsa.PublicKey
	for _, s := range sections {
		key := pub
		if key == nil {
			key = embedded
		}
		state, err := signatureState(s, key)
		if err != nil {
			return err
		}
		fmt.Printf("%-11s: %s, %s\n", s.Version.ID[:], s, state)
		if s.Config != nil {
			fmt.Printf("%-11s  name %q, service id %s\n", "", s.Config.DeviceName(), fota.FormatUUID(s.Config.ServiceID))
			embedded = s.VerifyingKey()
		}
	}
	return nil
}

var checkCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Validate an image file without a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPubKey, "pubkey", "", "PEM file of the verifying key (public or private key)")
}
