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
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage categories. Every stage failure wraps exactly one of them.
var (
	ErrConfig  = errors.New("serdes config failed")
	ErrSignal  = errors.New("serdes signal check failed")
	ErrQuality = errors.New("serdes quality check failed")
)

// ErrTimeout is returned when a bounded poll loop exhausts its tries
var ErrTimeout = errors.New("timed out")

// ErrCanceled is returned when cancellation was observed in a poll loop
var ErrCanceled = errors.New("canceled")

// ErrNoLane is returned when a lane is missing from the swizzle table
var ErrNoLane = errors.New("lane not found")

// ErrFirmware is returned when firmware image is invalid or failed verification
var ErrFirmware = errors.New("firmware invalid")

// Stage names a step of lane bring up
type Stage string

// Stages
const (
	StageSetup        Stage = "setup"
	StageConfig       Stage = "config"
	StageStart        Stage = "start"
	StageStop         Stage = "stop"
	StageClockAlign   Stage = "clock_align"
	StageCheck        Stage = "check"
	StageQualityCheck Stage = "quality_check"
	StagePLL          Stage = "pll"
	StageCoreInit     Stage = "core_init"
)

func (s Stage) category() error {
	switch s {
	case StageCheck:
		return ErrSignal
	case StageQualityCheck:
		return ErrQuality
	}
	return ErrConfig
}

// StageError is a failure of one lane stage
type StageError struct {
	Lane  uint8
	Dir   Dir
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("lane %d %s %s: %v", e.Lane, e.Dir, e.Stage, e.Err)
}

// Unwrap returns stage category along with the cause
func (e *StageError) Unwrap() []error {
	return []error{e.Stage.category(), e.Err}
}

func stageErr(lane uint8, dir Dir, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Lane: lane, Dir: dir, Stage: stage, Err: err}
}

// poll calls cond up to tries times, sleeping interval before every call.
// Cancellation is observed at every iteration.
func poll(ctx context.Context, tries int, interval time.Duration, cond func() (bool, error)) error {
	for i := 0; i < tries; i++ {
		if ctx.Err() != nil {
			return ErrCanceled
		}
		if interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return ErrCanceled
			case <-t.C:
			}
		}
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrTimeout
}

// sleep waits for d unless ctx is done first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrCanceled
	case <-t.C:
		return nil
	}
}
