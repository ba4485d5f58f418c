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

package llr

import (
	"github.com/facebook/linkmgr/regio"
)

// Simulate makes m answer as the LLR block of link num in port group port, with a partner loopNs away
func Simulate(m *regio.Memory, port, num uint8, loopNs uint64) {
	h := NewRegHardware(m, port, num)
	m.OnRead(regio.BusStatus, h.base+regStsLoopTime, func(_ int, _ uint64) uint64 {
		if m.Get(regio.BusStatus, h.base+regCfgSubport)&subportLoopTiming == 0 {
			return 0
		}
		return loopNs & stsLoopTime
	})
	m.OnRead(regio.BusStatus, h.base+regStsLLR, func(_ int, _ uint64) uint64 {
		if m.Get(regio.BusStatus, h.base+regCfgSubport)&subportMode == uint64(ModeOff) {
			return uint64(HWOff)
		}
		return uint64(HWAdvance)
	})
}
