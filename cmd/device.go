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

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mame82/fotaflash/fota"
	"github.com/mame82/fotaflash/serial"
	"github.com/mame82/fotaflash/updater"
)

// device is an open bootloader connection.
type device struct {
	port    *serial.Port
	adapter *serial.CP210x
	session *updater.Session
}

func openDevice(portName string, opts ...updater.Option) (d *device, err error) {
	if portName == "" {
		return nil, errors.New("no port given")
	}
	d = &device{}
	if d.port, err = serial.Open(portName, cfg.Baud, cfg.Timeout()); err != nil {
		return nil, err
	}

	var lines updater.LineDriver
	switch cfg.Lines {
	case LINES_CP210X:
		d.adapter, err = serial.OpenCP210x(cfg.Adapter)
		if err != nil {
			// continue without reset lines, the device has to be put into
			// its bootloader by hand
			log.WithError(err).Warn("reset and update lines not available")
		} else {
			lines = d.adapter
		}
	case LINES_MODEM:
		lines = d.port.ModemLines()
	}

	opts = append([]updater.Option{
		updater.WithLogger(log.StandardLogger()),
		updater.WithRetries(cfg.Retries),
	}, opts...)
	d.session = updater.NewSession(d.port, lines, opts...)
	return d, nil
}

func (d *device) Close() {
	if d.adapter != nil {
		d.adapter.Close()
	}
	d.port.Close()
}

func printVersions(kind string, list []fota.VersionRecord) {
	fmt.Printf("%-11s: %s\n", kind, fota.FormatVersions(list))
}

func printHello(hello *updater.HelloResponse) {
	printVersions("Application", hello.Applications())
	printVersions("Bootloader", []fota.VersionRecord{hello.Bootloader})
}

// progressMarks prints one mark per transferred chunk.
func progressMarks(p updater.Progress) {
	fmt.Print("*")
	if p.Done >= p.Total {
		fmt.Println()
	}
}
