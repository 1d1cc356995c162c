package looper

import (
	"context"

	"github.com/trickstertwo/xcaller"
)

var _ xcaller.Environment = (*Environment)(nil)

// Environment is an application handle owning a main Looper, the default
// serial execution context for decorators built from it.
type Environment struct {
	name string
	main *Looper
}

// NewEnvironment starts the main looper of a new environment.
func NewEnvironment(name string, opts ...Option) (*Environment, error) {
	cfg := Defaults()
	if name != "" {
		cfg.Name = name + "/main"
	}
	main, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Environment{name: name, main: main}, nil
}

// Name returns the environment name.
func (e *Environment) Name() string { return e.name }

// MainLooper returns the main looper.
func (e *Environment) MainLooper() *Looper { return e.main }

// MainExecutor implements xcaller.Environment.
func (e *Environment) MainExecutor() xcaller.Executor { return e.main }

// Close shuts the main looper down.
func (e *Environment) Close(ctx context.Context) error {
	return e.main.Close(ctx)
}
