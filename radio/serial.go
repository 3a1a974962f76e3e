package radio

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// serialBaudRate matches the robot's serial-profile bridge.
const serialBaudRate = 115200

// openSerialPort opens a tty already bound to the robot, for setups where the
// serial-profile channel is exposed as an rfcomm device node instead of being
// dialed by hardware address.
func openSerialPort(path string) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: serialBaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", path, err)
	}
	return port, nil
}
