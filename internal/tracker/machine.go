package tracker

import (
	"context"

	"github.com/looplab/fsm"

	"bus-tracker/internal/log"
)

const (
	StateUninitialized       = "uninitialized"
	StateAcquiringPermission = "acquiring_permission"
	StateReporting           = "reporting"
	StateSampling            = "sampling"
	StateSending             = "sending"
	StateHalted              = "halted"
)

const (
	eventStart  = "start"
	eventGrant  = "grant"
	eventDeny   = "deny"
	eventTick   = "tick"
	eventSkip   = "skip"
	eventSample = "sample"
	eventDone   = "done"
	eventFail   = "fail"
	eventHalt   = "halt"
)

func newMachine(logger log.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: eventStart, Src: []string{StateUninitialized}, Dst: StateAcquiringPermission},
			{Name: eventGrant, Src: []string{StateAcquiringPermission}, Dst: StateReporting},
			{Name: eventDeny, Src: []string{StateAcquiringPermission}, Dst: StateHalted},
			{Name: eventTick, Src: []string{StateReporting}, Dst: StateSampling},
			{Name: eventSkip, Src: []string{StateSampling}, Dst: StateReporting},
			{Name: eventSample, Src: []string{StateSampling}, Dst: StateSending},
			{Name: eventDone, Src: []string{StateSending}, Dst: StateReporting},
			{Name: eventFail, Src: []string{StateSampling, StateSending}, Dst: StateReporting},
			{Name: eventHalt, Src: []string{
				StateUninitialized, StateAcquiringPermission, StateReporting, StateSampling, StateSending,
			}, Dst: StateHalted},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}
