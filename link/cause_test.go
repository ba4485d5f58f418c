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

package link

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDownCauseString(t *testing.T) {
	require.Equal(t, "none", CauseNone.String())
	require.Equal(t, "ucw", CauseUCW.String())
	require.Equal(t, "ucw,up-tries,serdes-signal", (CauseUCW | CauseUpTries | CauseSerdesSignal).String())
	require.Equal(t, "0x40000000", DownCause(1<<30).String())
	require.Equal(t, []DownCause{CauseBadEye, CauseCommand}, (CauseCommand | CauseBadEye).Bits())
}

func TestDownCauseHistoricalBits(t *testing.T) {
	require.Equal(t, DownCause(0x4), CauseUCW)
	require.Equal(t, DownCause(0x200), CauseUpTries)
	require.Equal(t, DownCause(0x10000), CauseUnsupportedCable)
	require.Equal(t, DownCause(0x100000), CauseUpshiftFailed)
}

func TestParseDownCause(t *testing.T) {
	for _, c := range []DownCause{CauseNone, CauseCCW, CauseLocalFault | CauseTimeout, CauseLLRStarved | CauseSerdesConfig} {
		got, err := ParseDownCause(c.String())
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
	_, err := ParseDownCause("ucw,bogus")
	require.Error(t, err)
}

func TestDownCauseFatal(t *testing.T) {
	for _, c := range []DownCause{CauseConfig, CauseUnsupportedCable, CauseAutonegNoMatch, CauseAutonegFail,
		CauseIntrEnable, CauseUCW, CauseDownshiftFailed, CauseUpshiftFailed} {
		require.True(t, c.Fatal(), c.String())
		require.True(t, (c | CauseTimeout).Fatal(), c.String())
	}
	for _, c := range []DownCause{CauseNone, CauseCCW, CauseTimeout, CauseSerdesSignal, CauseSerdesQuality,
		CauseSerdesConfig, CauseAlign, CauseBadEye, CauseCanceled} {
		require.False(t, c.Fatal(), c.String())
	}
}

func TestDownCauseJSON(t *testing.T) {
	b, err := json.Marshal(map[string]DownCause{"cause": CauseLocalFault | CauseDown})
	require.NoError(t, err)
	require.JSONEq(t, `{"cause":"local-fault,down"}`, string(b))

	b, err = json.Marshal(map[DownCause]uint64{CauseUCW: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"ucw":2}`, string(b))
}

func TestInfoMapString(t *testing.T) {
	require.Equal(t, "none", InfoMap(0).String())
	require.Equal(t, "serdes-ok,link-up", (InfoSerdesOK | InfoLinkUp).String())
	require.Equal(t, "mac-ok", InfoMACOK.String())
}

func TestDecodeFault(t *testing.T) {
	tests := []struct {
		name   string
		status uint64
		cause  DownCause
		info   InfoMap
	}{
		{"clear", 0, CauseNone, 0},
		{"link down", FaultBits(2, true, false, false, false, false), CauseDown, InfoPCSLinkDown},
		{"remote over down", FaultBits(2, true, true, false, false, false), CauseRemoteFault, InfoPCSRemoteFault},
		{"local over remote", FaultBits(2, true, true, true, false, false), CauseLocalFault, InfoPCSLocalFault},
		{"replay over local", FaultBits(2, false, true, true, true, false), CauseLLRReplayMax, InfoLLRReplayMax},
		{"starved first", FaultBits(2, true, true, true, true, true), CauseLLRStarved, InfoLLRStarved},
		{"other link", FaultBits(1, true, true, true, true, true) | FaultBits(3, true, false, false, false, false), CauseNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause, info := DecodeFault(2, tt.status)
			require.Equal(t, tt.cause, cause)
			require.Equal(t, tt.info, info)
		})
	}
}
