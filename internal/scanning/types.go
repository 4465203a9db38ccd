package scanning

import (
	"context"
)

//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks . Engine

// Engine is the external scanner the orchestrator drives. Scan blocks until
// the engine has a complete answer or fails.
type Engine interface {
	// Check reports whether the engine can be launched at all.
	Check(ctx context.Context) error

	// Scan runs the engine against the requested targets.
	Scan(ctx context.Context, req Request) (*Report, error)
}

// Request is what one scan asks of the engine.
type Request struct {
	Targets          []string
	Ports            string
	ServiceDetection bool
	OSDetection      bool
	Timing           string
	ExtraArgs        []string
}

// Report is the engine's answer, still in engine vocabulary.
type Report struct {
	Hosts    []EngineHost
	Warnings []string
}

// EngineHost is one host as the engine reported it.
type EngineHost struct {
	IP        string
	MAC       string
	Hostname  string
	State     string
	OSGuesses []OSGuess
	Ports     []EnginePort
}

// OSGuess is one OS match with its accuracy in percent.
type OSGuess struct {
	Name       string
	Family     string
	Generation string
	Accuracy   int
}

// EnginePort is one port as the engine reported it.
type EnginePort struct {
	Number    int
	Protocol  string
	State     string
	Service   string
	Product   string
	Version   string
	ExtraInfo string
}
