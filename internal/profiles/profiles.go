// Package profiles provides the scan profiles understood by hostsweep.
// A profile names a port specification and the detection features handed to
// the scan engine.
package profiles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anstrom/hostsweep/internal/errors"
)

// Profile names.
const (
	Basic  = "basic"
	Full   = "full"
	Custom = "custom"
)

// Timing templates, mapped to the engine's T2/T3/T4.
const (
	TimingPolite     = "polite"
	TimingNormal     = "normal"
	TimingAggressive = "aggressive"
)

const (
	defaultPorts           = "1-1024"
	expectedPortRangeParts = 2
	maxPort                = 65535
)

// Profile describes what one scan asks of the engine.
type Profile struct {
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description" yaml:"description"`
	Ports            string   `json:"ports" yaml:"ports"`
	ServiceDetection bool     `json:"service_detection" yaml:"service_detection"`
	OSDetection      bool     `json:"os_detection" yaml:"os_detection"`
	Timing           string   `json:"timing" yaml:"timing"`
	ExtraArgs        []string `json:"extra_args,omitempty" yaml:"extra_args,omitempty"`
}

// CustomSpec carries the user-supplied parts of the custom profile.
type CustomSpec struct {
	Ports     string
	Arguments []string
}

var builtIn = map[string]Profile{
	Basic: {
		Name:        Basic,
		Description: "TCP ports 1-1024, no service or OS detection",
		Ports:       defaultPorts,
		Timing:      TimingNormal,
	},
	Full: {
		Name:             Full,
		Description:      "TCP ports 1-1024 with service version and OS detection",
		Ports:            defaultPorts,
		ServiceDetection: true,
		OSDetection:      true,
		Timing:           TimingNormal,
	},
}

// Names returns every selectable profile name.
func Names() []string {
	return []string{Basic, Full, Custom}
}

// Get returns a built-in profile by name.
func Get(name string) (Profile, error) {
	p, ok := builtIn[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, unknownProfile(name)
	}
	p.ExtraArgs = nil
	return p, nil
}

// Resolve returns the profile to run. For the custom profile the ports and
// arguments come from spec; an empty port list falls back to 1-1024.
func Resolve(name string, spec CustomSpec) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != Custom {
		return Get(name)
	}

	ports := strings.TrimSpace(spec.Ports)
	if ports == "" {
		ports = defaultPorts
	}
	if err := ValidatePorts(ports); err != nil {
		return Profile{}, err
	}

	args := make([]string, 0, len(spec.Arguments))
	for _, a := range spec.Arguments {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}

	return Profile{
		Name:        Custom,
		Description: "User-defined ports and engine arguments",
		Ports:       ports,
		Timing:      TimingNormal,
		ExtraArgs:   args,
	}, nil
}

func unknownProfile(name string) error {
	return errors.NewScanError(errors.CodeValidation,
		fmt.Sprintf("unknown profile %q (valid: %s)", name, strings.Join(Names(), ", ")))
}

// ValidatePorts checks a port specification such as "80", "80,443",
// "1-1024" or "T:22,U:53".
func ValidatePorts(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return portError(spec, "no ports specified")
	}
	for _, part := range strings.Split(spec, ",") {
		if err := validatePortPart(strings.TrimSpace(part)); err != nil {
			return err
		}
	}
	return nil
}

func validatePortPart(part string) error {
	if len(part) > 2 && part[1] == ':' {
		switch part[0] {
		case 'T', 'U', 'S':
			part = part[2:]
		default:
			return portError(part, "unknown protocol prefix")
		}
	}
	if strings.Contains(part, "-") {
		return validatePortRange(part)
	}
	_, err := parsePort(part)
	return err
}

func validatePortRange(part string) error {
	rangeParts := strings.Split(part, "-")
	if len(rangeParts) != expectedPortRangeParts {
		return portError(part, "invalid port range format")
	}
	start, err := parsePort(rangeParts[0])
	if err != nil {
		return err
	}
	end, err := parsePort(rangeParts[1])
	if err != nil {
		return err
	}
	if start > end {
		return portError(part, "start port must not exceed end port")
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, portError(s, "not a number")
	}
	if port < 1 || port > maxPort {
		return 0, portError(s, "must be 1-65535")
	}
	return port, nil
}

func portError(spec, reason string) error {
	return errors.NewScanError(errors.CodeValidation,
		fmt.Sprintf("invalid port specification %q: %s", spec, reason))
}
