package ddlio

import (
	"fmt"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

const gpioIOCMagic = 0xB4

// gpiohandleRequest mirrors linux/gpio.h's struct gpiohandle_request.
type gpiohandleRequest struct {
	lineOffsets   [64]uint32
	flags         uint32
	defaultValues [64]uint8
	consumerLabel [32]byte
	lines         uint32
	fd            int32
}

// gpiohandleData mirrors struct gpiohandle_data.
type gpiohandleData struct {
	values [64]uint8
}

const (
	gpiohandleRequestInput  = 1 << 0
	gpiohandleRequestOutput = 1 << 1
)

var (
	gpioGetLineHandleIOCTL        = ioctl.IOWR(gpioIOCMagic, 0x03, unsafe.Sizeof(gpiohandleRequest{}))
	gpiohandleGetLineValuesIOCTL  = ioctl.IOWR(gpioIOCMagic, 0x08, unsafe.Sizeof(gpiohandleData{}))
	gpiohandleSetLineValuesIOCTL  = ioctl.IOWR(gpioIOCMagic, 0x09, unsafe.Sizeof(gpiohandleData{}))
)

// Line is one requested GPIO line handle on a gpiochip.
type Line struct {
	fd int
}

// OpenInput requests line offset as an input on chipPath (e.g.
// "/dev/gpiochip0"). The fixed srcpd line numbers (CTS=3, DSR=2, DCC
// ack=22, MFX RDS qual/clk/dat=23/24/25) are all inputs.
func OpenInput(chipPath string, offset uint32, label string) (*Line, error) {
	return requestLine(chipPath, offset, label, gpiohandleRequestInput, 0)
}

// OpenOutput requests line offset as an output (RTS=27, DTR=4, and the
// configurable oscilloscope-trigger line).
func OpenOutput(chipPath string, offset uint32, label string, initial uint8) (*Line, error) {
	return requestLine(chipPath, offset, label, gpiohandleRequestOutput, initial)
}

func requestLine(chipPath string, offset uint32, label string, flags uint32, initial uint8) (*Line, error) {
	chipFd, err := syscall.Open(chipPath, syscall.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer syscall.Close(chipFd)

	req := &gpiohandleRequest{flags: flags, lines: 1}
	req.lineOffsets[0] = offset
	req.defaultValues[0] = initial
	copy(req.consumerLabel[:], label)

	if err := ioctl.Ioctl(chipFd, gpioGetLineHandleIOCTL, uintptr(unsafe.Pointer(req))); err != nil {
		return nil, fmt.Errorf("gpio line %d request: %w", offset, err)
	}
	return &Line{fd: int(req.fd)}, nil
}

// Read returns the current line value (0 or 1).
func (l *Line) Read() (int, error) {
	var data gpiohandleData
	if err := ioctl.Ioctl(l.fd, gpiohandleGetLineValuesIOCTL, uintptr(unsafe.Pointer(&data))); err != nil {
		return 0, err
	}
	return int(data.values[0]), nil
}

// Write sets an output line's value.
func (l *Line) Write(v int) error {
	var data gpiohandleData
	if v != 0 {
		data.values[0] = 1
	}
	return ioctl.Ioctl(l.fd, gpiohandleSetLineValuesIOCTL, uintptr(unsafe.Pointer(&data)))
}

func (l *Line) Close() error { return syscall.Close(l.fd) }

// Fixed line offsets on /dev/gpiochip0 (spec.md §6 GPIO).
const (
	LineDSR    = 2
	LineCTS    = 3
	LineDTR    = 4
	LineRTS    = 27
	LineDCCAck = 22
	LineMFXQual = 23
	LineMFXClk  = 24
	LineMFXDat  = 25
)
