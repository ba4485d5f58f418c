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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFirmware(t *testing.T) {
	fw, err := ParseFirmware("/lib/firmware/serdes_octet_3.08.bin", []byte{1, 0, 0, 0, 0xef, 0xbe, 0xad, 0xde})
	require.NoError(t, err)
	require.Equal(t, "serdes_octet_3.08.bin", fw.Name)
	require.Equal(t, []uint32{1, 0xdeadbeef}, fw.Words)
	require.Equal(t, "3.8.0", fw.Version.String())
	require.NotZero(t, fw.Hash)

	_, err = ParseFirmware("x.bin", []byte{1, 2, 3})
	require.True(t, errors.Is(err, ErrFirmware))
	_, err = ParseFirmware("x.bin", nil)
	require.True(t, errors.Is(err, ErrFirmware))
}

func TestFirmwareCheckVersion(t *testing.T) {
	fw, err := ParseFirmware("serdes_3.08.bin", make([]byte, 4))
	require.NoError(t, err)
	require.NoError(t, fw.CheckVersion(""))
	require.NoError(t, fw.CheckVersion("3.8"))
	require.NoError(t, fw.CheckVersion("3.1"))
	require.True(t, errors.Is(fw.CheckVersion("3.10"), ErrFirmware))
	require.Error(t, fw.CheckVersion("not a version"))

	fw, err = ParseFirmware("serdes.bin", make([]byte, 4))
	require.NoError(t, err)
	require.Nil(t, fw.Version)
	require.True(t, errors.Is(fw.CheckVersion("1.0"), ErrFirmware))
}

func TestLoadFirmware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw_1.2.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0644))
	fw, err := LoadFirmware(path)
	require.NoError(t, err)
	require.Equal(t, []uint32{0x04030201}, fw.Words)

	other, err := ParseFirmware(path, []byte{1, 2, 3, 5})
	require.NoError(t, err)
	require.NotEqual(t, fw.Hash, other.Hash)
}

func TestExpectedCRC(t *testing.T) {
	crc, err := ExpectedCRC(StackSizeQuad)
	require.NoError(t, err)
	require.Equal(t, uint16(0xA744), crc)
	crc, err = ExpectedCRC(StackSizeOctet)
	require.NoError(t, err)
	require.Equal(t, uint16(0x39AA), crc)
	_, err = ExpectedCRC(1)
	require.Error(t, err)
}

func TestParseFwInfo(t *testing.T) {
	info, err := ParseFwInfo(simInfoBlock())
	require.NoError(t, err)
	require.Equal(t, uint32(fwInfoSignature), info.Signature)
	require.Equal(t, uint8(2), info.Version)
	require.Equal(t, uint8(2), info.NumMicros)
	require.Equal(t, uint8(MaxSerdesLanes), info.LaneCount)
	require.Equal(t, uint32(simLaneVarBase+3*simLaneVarSize+varEyeLower), info.LaneVarAddr(3, varEyeLower))

	b := simInfoBlock()
	b[0] = 0
	_, err = ParseFwInfo(b)
	require.True(t, errors.Is(err, ErrFirmware))
	_, err = ParseFwInfo(b[:10])
	require.True(t, errors.Is(err, ErrFirmware))
}
