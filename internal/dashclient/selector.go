// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package dashclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fixpoint/internal/hub"
	"github.com/tomtom215/fixpoint/internal/logging"
	"github.com/tomtom215/fixpoint/internal/models"
)

// Defaults for the selector cadence, matching the dashboard's behavior: a
// 5 second pull interval and a single fixed 8 second reconnect delay with
// no exponential growth.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultReconnectDelay = 8 * time.Second
)

// PushSession is one open push subscription. Events delivers decoded
// events; Errs delivers the terminal transport error. Close releases the
// connection.
type PushSession interface {
	Events() <-chan hub.Event
	Errs() <-chan error
	Close() error
}

// DialFunc opens a push subscription attempt.
type DialFunc func(ctx context.Context) (PushSession, error)

// PollFunc performs one latest-state pull.
type PollFunc func(ctx context.Context) (models.LatestState, error)

// Config wires the selector's transports and cadence.
type Config struct {
	Dial DialFunc
	Poll PollFunc

	// OnUpdate receives every latest state observed, from either transport.
	OnUpdate func(models.LatestState)

	// OnOffline is invoked when a pull fails; the poll loop keeps running.
	OnOffline func()

	PollInterval   time.Duration
	ReconnectDelay time.Duration
}

// Selector drives the dashboard's transport selection at runtime. It owns
// a Machine and executes its actions: dialing the push channel, running
// the poll loop, and arming the single reconnect timer.
type Selector struct {
	cfg     Config
	machine *Machine
	logger  zerolog.Logger
}

// NewSelector creates a Selector. Dial and Poll are required; zero
// intervals take the defaults.
func NewSelector(cfg Config) *Selector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Selector{
		cfg:     cfg,
		machine: NewMachine(),
		logger:  logging.WithComponent("dashclient"),
	}
}

// Mode returns the current driving transport.
func (s *Selector) Mode() Mode {
	return s.machine.Mode()
}

// Run drives the selector until the context is canceled. The first act is
// a push dial plus one immediate pull, so the dashboard has data even
// before the subscription is confirmed.
func (s *Selector) Run(ctx context.Context) error {
	var (
		session    PushSession
		pushEvents <-chan hub.Event
		pushErrs   <-chan error
		reconnect  <-chan time.Time
	)

	closeSession := func() {
		if session != nil {
			_ = session.Close()
			session = nil
			pushEvents, pushErrs = nil, nil
		}
	}
	defer closeSession()

	var execute func(actions []Action)

	dial := func() {
		closeSession()
		opened, err := s.cfg.Dial(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("push dial failed")
			execute(s.machine.Apply(SignalPushFailed))
			return
		}
		session = opened
		pushEvents = opened.Events()
		pushErrs = opened.Errs()
	}

	execute = func(actions []Action) {
		for _, action := range actions {
			switch action {
			case ActionStartPoll:
				s.pollOnce(ctx)
			case ActionStopPoll:
				// The ticker keeps firing; polls are gated on mode.
			case ActionScheduleReconnect:
				reconnect = time.After(s.cfg.ReconnectDelay)
			case ActionDial:
				dial()
			}
		}
	}

	dial()
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, open := <-pushEvents:
			if !open {
				closeSession()
				execute(s.machine.Apply(SignalPushFailed))
				continue
			}
			s.handlePushEvent(event, execute)

		case err := <-pushErrs:
			s.logger.Warn().Err(err).Msg("push channel failed")
			closeSession()
			execute(s.machine.Apply(SignalPushFailed))

		case <-reconnect:
			reconnect = nil
			execute(s.machine.Apply(SignalReconnectDue))

		case <-ticker.C:
			if s.machine.Mode() == ModePolling {
				s.pollOnce(ctx)
			}
		}
	}
}

// handlePushEvent routes one push event: the confirmation flips the
// machine to pushing, location events surface state, heartbeats and
// unknown events are ignored.
func (s *Selector) handlePushEvent(event hub.Event, execute func([]Action)) {
	switch event.Name {
	case hub.EventConnected:
		execute(s.machine.Apply(SignalPushConfirmed))
		s.logger.Info().Msg("push subscription confirmed")

	case hub.EventLocation:
		state, ok := event.Payload.(models.LatestState)
		if !ok {
			// A malformed event is dropped, never fatal to the stream.
			s.logger.Warn().Str("event", event.Name).Msg("dropping malformed push event")
			return
		}
		if s.cfg.OnUpdate != nil {
			s.cfg.OnUpdate(state)
		}
	}
}

func (s *Selector) pollOnce(ctx context.Context) {
	state, err := s.cfg.Poll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("poll failed")
		if s.cfg.OnOffline != nil {
			s.cfg.OnOffline()
		}
		return
	}
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(state)
	}
}
