package service

import (
	"sync/atomic"
	"time"
)

// State — готовность сервиса для админки: прогрев закончен, стрим живой.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	streamConnected atomic.Bool
	lastCloseUnix   atomic.Int64 // unix seconds последнего закрытия свечи
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetStreamConnected(v bool) { s.streamConnected.Store(v) }
func (s *State) StreamConnected() bool     { return s.streamConnected.Load() }

func (s *State) TouchClose(t time.Time) { s.lastCloseUnix.Store(t.Unix()) }
func (s *State) LastClose() time.Time {
	u := s.lastCloseUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
