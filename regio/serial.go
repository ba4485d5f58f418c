/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package regio

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Debug UART bridge protocol
const (
	cmdRead     string = "{rd,%s,%x}"
	cmdWrite    string = "{wr,%s,%x,%x,%x}"
	ansOk       string = "[=1]"
	ansValue    string = "[=%x]"
	ansErrorPfx string = "[!"

	serialBaudRate    = 115200
	serialReadTimeout = time.Second
)

// Serial accesses registers through the board management UART bridge
type Serial struct {
	device string
	port   io.ReadWriteCloser
}

// OpenSerial opens serial device and returns the bridge
func OpenSerial(device string) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: serialBaudRate,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return &Serial{device: device, port: port}, nil
}

// NewSerial returns the bridge on top of an already open stream
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{device: "stream", port: port}
}

// Close is to close serial port
func (s *Serial) Close() error {
	return s.port.Close()
}

func (s *Serial) readResult() (string, error) {
	var r int
	buff := make([]byte, 256)
	for {
		if r == len(buff) {
			return "", fmt.Errorf("answer too long from %s", s.device)
		}
		n, err := s.port.Read(buff[r:])
		if err != nil {
			return "", err
		}

		if n == 0 {
			break
		}
		r += n

		if r >= 2 && bytes.Equal(buff[r-2:r], []byte("\r\n")) {
			break
		}
	}
	if r < 2 {
		return "", fmt.Errorf("no answer from %s", s.device)
	}
	return string(buff[:r-2]), nil
}

func (s *Serial) cmdResult(cmd string) (string, error) {
	_, err := s.port.Write([]byte(cmd))
	if err != nil {
		return "", err
	}
	res, err := s.readResult()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(res, ansErrorPfx) {
		return "", fmt.Errorf("bridge rejected %s: %s", cmd, res)
	}
	return res, nil
}

// Read implements Access
func (s *Serial) Read(bus Bus, addr uint32) (uint64, error) {
	res, err := s.cmdResult(fmt.Sprintf(cmdRead, bus, addr))
	if err != nil {
		return 0, ioErr("read", bus, addr, err)
	}
	var v uint64
	if _, err := fmt.Sscanf(res, ansValue, &v); err != nil {
		return 0, ioErr("read", bus, addr, fmt.Errorf("wrong answer format %q: %w", res, err))
	}
	return v & bus.Mask(), nil
}

// Write implements Access
func (s *Serial) Write(bus Bus, addr uint32, value, mask uint64) error {
	if mask == 0 {
		mask = bus.Mask()
	}
	res, err := s.cmdResult(fmt.Sprintf(cmdWrite, bus, addr, value&bus.Mask(), mask))
	if err != nil {
		return ioErr("write", bus, addr, err)
	}
	if res != ansOk {
		return ioErr("write", bus, addr, fmt.Errorf("write command fail, the result is %s", res))
	}
	return nil
}
