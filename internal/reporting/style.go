// Package reporting renders sealed scan results as console text, JSON or XML.
package reporting

import (
	"github.com/fatih/color"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/models"
)

// Styler decorates console text. The colored and plain variants produce the
// same characters apart from escape codes.
type Styler interface {
	Enabled() bool
	Title(s string) string
	Label(s string) string
	State(state models.PortState, s string) string
	HostStatus(status models.HostStatus, s string) string
}

// NewStyler returns the colored styler when enabled is true and the plain
// one otherwise.
func NewStyler(enabled bool) Styler {
	if !enabled {
		return plainStyler{}
	}
	return newColorStyler()
}

// SelectStyler picks a styler for the console. A color request is honored
// only when the terminal supports it; otherwise the plain styler is used and
// a RenderDegraded warning is logged.
func SelectStyler(wantColor bool) Styler {
	if !wantColor {
		return plainStyler{}
	}
	if color.NoColor {
		logging.WarnDegraded("color",
			errors.ErrRenderDegraded("color", "output is not a color-capable terminal or NO_COLOR is set"))
		return plainStyler{}
	}
	return newColorStyler()
}

type plainStyler struct{}

func (plainStyler) Enabled() bool                                   { return false }
func (plainStyler) Title(s string) string                           { return s }
func (plainStyler) Label(s string) string                           { return s }
func (plainStyler) State(_ models.PortState, s string) string       { return s }
func (plainStyler) HostStatus(_ models.HostStatus, s string) string { return s }

type colorStyler struct {
	title  *color.Color
	label  *color.Color
	states map[models.PortState]*color.Color
	up     *color.Color
	down   *color.Color
}

func newColorStyler() *colorStyler {
	// EnableColor overrides the global NoColor detection for these instances.
	c := func(attrs ...color.Attribute) *color.Color {
		col := color.New(attrs...)
		col.EnableColor()
		return col
	}
	return &colorStyler{
		title: c(color.Bold, color.FgCyan),
		label: c(color.Bold),
		states: map[models.PortState]*color.Color{
			models.PortOpen:     c(color.FgGreen),
			models.PortClosed:   c(color.FgRed),
			models.PortFiltered: c(color.FgYellow),
			models.PortUnknown:  c(color.FgHiBlack),
		},
		up:   c(color.FgGreen),
		down: c(color.FgRed),
	}
}

func (s *colorStyler) Enabled() bool { return true }

func (s *colorStyler) Title(str string) string { return s.title.Sprint(str) }

func (s *colorStyler) Label(str string) string { return s.label.Sprint(str) }

func (s *colorStyler) State(state models.PortState, str string) string {
	if c, ok := s.states[state]; ok {
		return c.Sprint(str)
	}
	return str
}

func (s *colorStyler) HostStatus(status models.HostStatus, str string) string {
	if status == models.StatusUp {
		return s.up.Sprint(str)
	}
	return s.down.Sprint(str)
}
