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
	"time"

	"github.com/facebook/linkmgr/regio"
)

func newSim(dev uint8) *Sim {
	return NewSim(regio.NewMemory(), dev, 0, 1)
}

func (s *Sim) pmi(lane uint8, addr uint16) uint32 {
	return PMIAddr(s.dev, lane, 0, addr)
}

func fastTiming() Timing {
	return Timing{
		TxCheckTries:         3,
		RxCheckTriesPAM4:     5,
		RxCheckTriesNRZ:      2,
		QualityCheckTries:    3,
		CoreInitTries:        3,
		RAMInitTries:         3,
		MicroActiveTries:     3,
		QualityCheckInterval: time.Microsecond,
	}
}
