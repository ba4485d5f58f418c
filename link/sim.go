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
	"github.com/facebook/linkmgr/regio"
)

// SimulatePCS makes m answer as a healthy PCS and an echoing autoneg partner for link num of port group port
func SimulatePCS(m *regio.Memory, port, num uint8) {
	base := uint32(port)*pcsPortStride + pcsBase + uint32(num)*pcsLinkStride
	m.Set(regio.BusStatus, base+regPCSSts, pcsStsLock|pcsStsAlign)
	m.OnWrite(regio.BusStatus, base+regANAdv, func(m *regio.Memory, v uint64) {
		m.Set(regio.BusStatus, base+regANLP, v)
	})
	m.OnWrite(regio.BusConfig, base+regANAdvNP, func(m *regio.Memory, v uint64) {
		m.Set(regio.BusConfig, base+regANLPNP, v)
	})
	m.OnWrite(regio.BusStatus, base+regANCtl, func(m *regio.Memory, v uint64) {
		if v&anCtlStart != 0 {
			m.Set(regio.BusStatus, base+regANCtl, v|anCtlDone)
		}
	})
}
