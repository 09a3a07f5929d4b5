// Package ddlio is the Linux character-device boundary between a bus
// scheduler and its hardware: SPI telegram transmission and GPIO line
// access, both via ioctl on /dev nodes (no kernel modules assumed beyond
// spidev and gpio-cdev).
package ddlio

import (
	"reflect"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

const spiIOCMagic = 'k'

type spiIOCTransfer struct {
	txBuf uint64
	rxBuf uint64

	len     uint32
	speedHz uint32

	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

var (
	spiIOCWrMaxSpeedHz  = ioctl.IOW(spiIOCMagic, 4, 4)
	spiIOCWrBitsPerWord = ioctl.IOW(spiIOCMagic, 3, 1)
	spiIOCWrMode32      = ioctl.IOW(spiIOCMagic, 5, 4)
	spiIOCMessage       = ioctl.IOW(spiIOCMagic, 0, unsafe.Sizeof(spiIOCTransfer{}))
)

// SPIConfig mirrors the spidev ioctl fields a bus actually varies per
// telegram: mode is fixed per bus (CPOL=0, CPHA=1 for DDL; mode 1 or 2 for
// S88) but clock speed changes with the protocol being sent.
type SPIConfig struct {
	Mode  uint32
	Bits  uint8
	Speed uint32
}

// SPI is one open spidev device node.
type SPI struct {
	fd  int
	cfg SPIConfig
}

// OpenSPI opens path (e.g. "/dev/spidev0.0") and applies cfg.
func OpenSPI(path string, cfg SPIConfig) (*SPI, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := ioctl.Ioctl(fd, spiIOCWrMaxSpeedHz, uintptr(unsafe.Pointer(&cfg.Speed))); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := ioctl.Ioctl(fd, spiIOCWrBitsPerWord, uintptr(unsafe.Pointer(&cfg.Bits))); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := ioctl.Ioctl(fd, spiIOCWrMode32, uintptr(unsafe.Pointer(&cfg.Mode))); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &SPI{fd: fd, cfg: cfg}, nil
}

// Transfer does one spidev ioctl transaction at speedHz. If readLen equals
// len(data), it is a full-duplex transfer and the captured bytes are
// returned; otherwise it is write-only and the return value is nil (the
// MISO capture rule from spec.md §4.4.4: "only when the buffer length
// equals the frame length").
func (s *SPI) Transfer(data []byte, speedHz uint32, readLen int) ([]byte, error) {
	var read []byte
	var rxPtr uintptr
	if readLen == len(data) {
		read = make([]byte, len(data))
		rxPtr = uintptr((*reflect.SliceHeader)(unsafe.Pointer(&read)).Data)
	}
	txPtr := uintptr((*reflect.SliceHeader)(unsafe.Pointer(&data)).Data)

	xfer := &spiIOCTransfer{
		txBuf:       uint64(txPtr),
		rxBuf:       uint64(rxPtr),
		len:         uint32(len(data)),
		speedHz:     speedHz,
		bitsPerWord: s.cfg.Bits,
	}
	if err := ioctl.Ioctl(s.fd, spiIOCMessage, uintptr(unsafe.Pointer(xfer))); err != nil {
		return nil, err
	}
	return read, nil
}

func (s *SPI) Close() error { return syscall.Close(s.fd) }
