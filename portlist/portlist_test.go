package portlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func withFakes(t *testing.T, glob func(string) ([]string, error), detect func() ([]string, error)) {
	t.Helper()
	origGlob, origDetect := globFunc, detectFunc
	globFunc, detectFunc = glob, detect
	t.Cleanup(func() { globFunc, detectFunc = origGlob, origDetect })
}

func TestListSerialPortsClassifiesUSBByDetector(t *testing.T) {
	withFakes(t,
		func(pattern string) ([]string, error) {
			if pattern == "/dev/ttyS*" {
				return []string{"/dev/ttyS0"}, nil
			}
			return nil, nil
		},
		func() ([]string, error) { return []string{"/dev/ttyS0"}, nil },
	)

	ports, err := ListSerialPorts()
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, "/dev/ttyS0", ports[0].Path)
	require.Equal(t, PortTypeUSB, ports[0].Type)
}

func TestListSerialPortsClassifiesUSBByNamingConvention(t *testing.T) {
	withFakes(t,
		func(pattern string) ([]string, error) {
			if pattern == "/dev/ttyUSB*" {
				return []string{"/dev/ttyUSB0"}, nil
			}
			return nil, nil
		},
		func() ([]string, error) { return nil, nil },
	)

	ports, err := ListSerialPorts()
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, PortTypeUSB, ports[0].Type)
}

func TestListSerialPortsBuiltin(t *testing.T) {
	withFakes(t,
		func(pattern string) ([]string, error) {
			if pattern == "/dev/ttyS*" {
				return []string{"/dev/ttyS1"}, nil
			}
			return nil, nil
		},
		func() ([]string, error) { return nil, nil },
	)

	ports, err := ListSerialPorts()
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, PortTypeBuiltin, ports[0].Type)
}

func TestListSerialPortsSortedAndDeduplicated(t *testing.T) {
	withFakes(t,
		func(pattern string) ([]string, error) {
			switch pattern {
			case "/dev/ttyUSB*":
				return []string{"/dev/ttyUSB1", "/dev/ttyUSB0"}, nil
			case "/dev/ttyACM*":
				return []string{"/dev/ttyUSB0"}, nil // duplicate across globs
			}
			return nil, nil
		},
		func() ([]string, error) { return nil, nil },
	)

	ports, err := ListSerialPorts()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	require.Equal(t, "/dev/ttyUSB0", ports[0].Path)
	require.Equal(t, "/dev/ttyUSB1", ports[1].Path)
}
