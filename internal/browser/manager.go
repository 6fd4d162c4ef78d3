package browser

import (
	"context"
	"fmt"
	"time"

	"stayscraper/internal/logger"
)

// LaunchFunc starts a session for one engine. On error it must leave
// nothing running.
type LaunchFunc func(ctx context.Context, opts Options) (Session, error)

// Source hands out sessions and takes them back.
type Source interface {
	Acquire(ctx context.Context) (Session, error)
	Release(s Session)
}

type Manager struct {
	opts   Options
	launch map[Engine]LaunchFunc
	log    *logger.Logger
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts: opts.withDefaults(),
		launch: map[Engine]LaunchFunc{
			EngineChromedp:   launchChromedp,
			EnginePlaywright: launchPlaywright,
			EngineStealth:    launchStealth,
		},
		log: logger.New("BrowserManager"),
	}
}

// Register installs or replaces the launcher for engine.
func (m *Manager) Register(engine Engine, fn LaunchFunc) {
	m.launch[engine] = fn
}

// strategies lists engines in the order they are tried.
func (m *Manager) strategies() []Engine {
	var out []Engine
	if m.opts.Stealth || m.opts.Engine == EngineStealth {
		out = append(out, EngineStealth)
	}
	if m.opts.Engine != EngineStealth {
		out = append(out, m.opts.Engine)
	} else {
		out = append(out, EngineChromedp)
	}
	return out
}

// Acquire starts a session with the stealth strategy when enabled, falling
// back to the standard engine. The returned error is an *AcquisitionError
// when every strategy failed.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	failure := &AcquisitionError{}
	engines := m.strategies()
	for i, engine := range engines {
		if err := ctx.Err(); err != nil {
			failure.add(engine, err)
			break
		}
		fn, ok := m.launch[engine]
		if !ok {
			failure.add(engine, fmt.Errorf("unknown browser engine %q", engine))
			continue
		}
		start := time.Now()
		s, err := fn(ctx, m.opts)
		if err == nil {
			m.log.LogInfof("%s session ready in %v", engine, time.Since(start).Round(time.Millisecond))
			return s, nil
		}
		failure.add(engine, err)
		if i < len(engines)-1 {
			m.log.LogWarnf("%s browser failed, falling back to %s: %v", engine, engines[i+1], err)
		}
	}
	m.log.LogErrorf("no browser session: %v", failure)
	return nil, failure
}

// Release closes s. Close errors are logged, never returned.
func (m *Manager) Release(s Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		m.log.LogWarnf("closing browser session: %v", err)
	}
}

// WithSession acquires a session, runs fn and releases the session on
// every exit path, panics included.
func WithSession(ctx context.Context, src Source, fn func(Session) error) error {
	s, err := src.Acquire(ctx)
	if err != nil {
		return err
	}
	defer src.Release(s)
	return fn(s)
}
