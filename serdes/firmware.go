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

package serdes

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cespare/xxhash"
	version "github.com/hashicorp/go-version"
)

// Firmware images carry their version in the file name, e.g. fw_octet_3.08.bin
var fwVersionRe = regexp.MustCompile(`_(\d+(?:\.\d+)+)\.bin$`)

// Stack sizes and image CRCs of the known microcode builds
const (
	StackSizeQuad  = 0x13E4
	StackSizeOctet = 0x13F2
	crcQuad        = 0xA744
	crcOctet       = 0x39AA
)

// ExpectedCRC returns the CRC the microcontroller reports for an image built with stackSize
func ExpectedCRC(stackSize uint16) (uint16, error) {
	switch stackSize {
	case StackSizeQuad:
		return crcQuad, nil
	case StackSizeOctet:
		return crcOctet, nil
	}
	return 0, fmt.Errorf("unknown stack size 0x%x: %w", stackSize, ErrFirmware)
}

// Firmware is a microcode image
type Firmware struct {
	Name    string
	Version *version.Version
	Words   []uint32
	Hash    uint64
}

// ParseFirmware validates a raw image. The image is a sequence of little endian 32 bit words.
func ParseFirmware(name string, data []byte) (*Firmware, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("image %s size %d is not word aligned: %w", name, len(data), ErrFirmware)
	}
	fw := &Firmware{
		Name:  filepath.Base(name),
		Words: make([]uint32, 0, len(data)/4),
		Hash:  xxhash.Sum64(data),
	}
	for i := 0; i < len(data); i += 4 {
		fw.Words = append(fw.Words, binary.LittleEndian.Uint32(data[i:]))
	}
	if m := fwVersionRe.FindStringSubmatch(fw.Name); m != nil {
		v, err := version.NewVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("image %s version: %w", name, err)
		}
		fw.Version = v
	}
	return fw, nil
}

// LoadFirmware reads an image from disk
func LoadFirmware(path string) (*Firmware, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFirmware(path, data)
}

// CheckVersion fails when the image is older than minimum. Empty minimum disables the check.
func (f *Firmware) CheckVersion(minimum string) error {
	if minimum == "" {
		return nil
	}
	min, err := version.NewVersion(minimum)
	if err != nil {
		return fmt.Errorf("bad minimum firmware version %q: %w", minimum, err)
	}
	if f.Version == nil {
		return fmt.Errorf("image %s has no version: %w", f.Name, ErrFirmware)
	}
	if f.Version.LessThan(min) {
		return fmt.Errorf("image %s version %s is older than %s: %w", f.Name, f.Version, min, ErrFirmware)
	}
	return nil
}

// Firmware info block layout in microcontroller RAM
const (
	fwInfoAddr            = 0x100
	fwInfoSize            = 128
	fwInfoSignature       = 0x464E49
	fwInfoLaneCountOff    = 0x0C
	fwInfoLaneMemSizeOff  = 0x08
	fwInfoLaneMemPtrOff   = 0x1C
	fwInfoNumMicrosOff    = 0x60
	fwInfoGrpRAMSizeOff   = 0x68
	fwInfoStaticVarRAMOff = 0x74
)

// FwInfo describes the running microcode
type FwInfo struct {
	Signature        uint32 `json:"signature"`
	Version          uint8  `json:"version"`
	NumMicros        uint8  `json:"num_micros"`
	LaneVarRAMBase   uint32 `json:"lane_var_ram_base"`
	LaneVarRAMSize   uint16 `json:"lane_var_ram_size"`
	GrpRAMSize       uint16 `json:"grp_ram_size"`
	LaneCount        uint8  `json:"lane_count"`
	StaticVarRAMBase uint32 `json:"static_var_ram_base"`
}

// ParseFwInfo decodes the info block read from microcontroller RAM
func ParseFwInfo(b []byte) (FwInfo, error) {
	var info FwInfo
	if len(b) < fwInfoSize {
		return info, fmt.Errorf("short info block (%d bytes): %w", len(b), ErrFirmware)
	}
	w := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	info.Signature = w(0) & 0xFFFFFF
	info.Version = uint8(w(0) >> 24)
	if info.Signature != fwInfoSignature {
		return info, fmt.Errorf("invalid signature 0x%X: %w", info.Signature, ErrFirmware)
	}
	info.NumMicros = uint8(w(fwInfoNumMicrosOff) & 0xF)
	info.LaneVarRAMBase = w(fwInfoLaneMemPtrOff)
	info.LaneVarRAMSize = uint16(w(fwInfoLaneMemSizeOff) >> 16)
	info.GrpRAMSize = uint16(w(fwInfoGrpRAMSizeOff))
	info.LaneCount = uint8(w(fwInfoLaneCountOff))
	info.StaticVarRAMBase = w(fwInfoStaticVarRAMOff)
	if info.LaneCount == 0 {
		return info, fmt.Errorf("zero lane count: %w", ErrFirmware)
	}
	return info, nil
}

// LaneVarAddr returns microcontroller RAM address of a per lane variable
func (i FwInfo) LaneVarAddr(lane uint8, v uint32) uint32 {
	return i.LaneVarRAMBase + v +
		uint32(lane%i.LaneCount)*uint32(i.LaneVarRAMSize) +
		uint32(i.GrpRAMSize)*uint32(lane>>1)
}
