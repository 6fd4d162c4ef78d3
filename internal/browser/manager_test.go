package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSession struct {
	closes int
}

func (c *countingSession) Navigate(context.Context, string) error    { return nil }
func (c *countingSession) URL(context.Context) (string, error)       { return "", nil }
func (c *countingSession) Document(context.Context) (string, error)  { return "", nil }
func (c *countingSession) ScrollHeight(context.Context) (int, error) { return 0, nil }
func (c *countingSession) ScrollToBottom(context.Context) error      { return nil }
func (c *countingSession) Close() error {
	c.closes++
	return nil
}
func (c *countingSession) QueryAll(context.Context, string) ([]Element, error) {
	return nil, nil
}
func (c *countingSession) WaitAll(context.Context, string, time.Duration) ([]Element, error) {
	return nil, ErrNoElement
}

func launcherOf(s Session, err error, calls *[]Engine, engine Engine) LaunchFunc {
	return func(context.Context, Options) (Session, error) {
		*calls = append(*calls, engine)
		return s, err
	}
}

func TestStealthFailureFallsBackToStandard(t *testing.T) {
	var calls []Engine
	want := &countingSession{}
	m := NewManager(Options{Engine: EngineChromedp, Stealth: true})
	m.Register(EngineStealth, launcherOf(nil, errors.New("no chrome for rod"), &calls, EngineStealth))
	m.Register(EngineChromedp, launcherOf(want, nil, &calls, EngineChromedp))

	s, err := m.Acquire(context.Background())

	require.NoError(t, err)
	assert.Same(t, want, s)
	assert.Equal(t, []Engine{EngineStealth, EngineChromedp}, calls)
}

func TestStandardOnlyWhenStealthDisabled(t *testing.T) {
	var calls []Engine
	m := NewManager(Options{Engine: EnginePlaywright})
	m.Register(EngineStealth, launcherOf(&countingSession{}, nil, &calls, EngineStealth))
	m.Register(EnginePlaywright, launcherOf(&countingSession{}, nil, &calls, EnginePlaywright))

	_, err := m.Acquire(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Engine{EnginePlaywright}, calls)
}

func TestAcquisitionErrorWhenAllStrategiesFail(t *testing.T) {
	var calls []Engine
	m := NewManager(Options{Engine: EngineChromedp, Stealth: true})
	m.Register(EngineStealth, launcherOf(nil, errors.New("rod: exec not found"), &calls, EngineStealth))
	m.Register(EngineChromedp, launcherOf(nil, errors.New("chrome: exec not found"), &calls, EngineChromedp))

	s, err := m.Acquire(context.Background())

	assert.Nil(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionAcquisition)
	var acq *AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Len(t, acq.Attempts, 2)
	assert.Contains(t, err.Error(), "rod: exec not found")
	assert.Contains(t, err.Error(), "chrome: exec not found")
}

func TestUnknownEngine(t *testing.T) {
	m := NewManager(Options{Engine: "firefox"})
	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrSessionAcquisition)
}

func TestWithSessionReleasesOnEveryPath(t *testing.T) {
	s := &countingSession{}
	m := NewManager(Options{Engine: EngineSnapshot})
	m.Register(EngineSnapshot, func(context.Context, Options) (Session, error) { return s, nil })

	err := WithSession(context.Background(), m, func(Session) error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, s.closes)

	assert.Panics(t, func() {
		_ = WithSession(context.Background(), m, func(Session) error { panic("crash") })
	})
	assert.Equal(t, 2, s.closes)

	require.NoError(t, WithSession(context.Background(), m, func(Session) error { return nil }))
	assert.Equal(t, 3, s.closes)
}

func TestWithSessionSkipsBodyWhenAcquireFails(t *testing.T) {
	m := NewManager(Options{Engine: EngineSnapshot})
	m.Register(EngineSnapshot, func(context.Context, Options) (Session, error) { return nil, errors.New("nope") })

	called := false
	err := WithSession(context.Background(), m, func(Session) error { called = true; return nil })

	assert.ErrorIs(t, err, ErrSessionAcquisition)
	assert.False(t, called)
}
