// Package join retries joining rooms the bot was invited to, backing off
// exponentially until it succeeds or gives up.
package join

import (
	"context"
	"log/slog"
	"time"

	"tipbot/pkg/logger"
)

const (
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 3600 * time.Second
)

type State int

const (
	StateInvited State = iota
	StateJoining
	StateJoined
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateInvited:
		return "invited"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Result summarises one supervised join.
type Result struct {
	State    State
	Attempts int
	Waited   time.Duration
}

// Room is the invite being handled.
type Room interface {
	Join(ctx context.Context) error
	// Welcome posts the greeting after a successful join.
	Welcome(ctx context.Context) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Supervisor drives Invited → Joining → Joined, or GivenUp once the next
// backoff delay would exceed MaxDelay.
type Supervisor struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Sleep        SleepFunc

	log *slog.Logger
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Sleep:        sleepContext,
		log:          logger.Component(log, "join.supervisor"),
	}
}

// Run joins room, retrying after failures. A failed welcome is logged and
// does not undo the join. Cancelling ctx gives up early.
func (s *Supervisor) Run(ctx context.Context, roomID string, room Room) Result {
	res := Result{State: StateInvited}
	delay := s.InitialDelay
	log := s.log.With("room_id", roomID)

	for {
		res.State = StateJoining
		res.Attempts++

		err := room.Join(ctx)
		if err == nil {
			res.State = StateJoined
			log.Info("Joined room", "attempts", res.Attempts)
			if err := room.Welcome(ctx); err != nil {
				log.Warn("Failed to send welcome message", "error", err)
			}
			return res
		}

		log.Warn("Join failed, backing off", "attempt", res.Attempts, "delay", delay, "error", err)
		if err := s.Sleep(ctx, delay); err != nil {
			res.State = StateGivenUp
			log.Info("Join abandoned", "attempts", res.Attempts, "error", err)
			return res
		}
		res.Waited += delay

		delay *= 2
		if delay > s.MaxDelay {
			res.State = StateGivenUp
			log.Error("Giving up joining room", "attempts", res.Attempts, "waited", res.Waited)
			return res
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
