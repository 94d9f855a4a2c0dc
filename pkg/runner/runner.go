// Package runner hosts the process lifecycle: banner, state machine
// and bounded drain on shutdown.
package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks fire around the running phase. OnStart runs after the banner,
// OnStop after draining completes.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer is given a bounded window to finish in-flight calls before
// the process exits.
type Drainer interface {
	Drain() error
}

const EngineVersion = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"EARSHOT\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
