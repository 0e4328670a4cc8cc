package data

import (
	"fmt"
	"strings"
)

// AutoMode is the per-user auto-translate setting.
type AutoMode int

const (
	AutoOff AutoMode = iota
	AutoOn
	AutoForce
)

func (m AutoMode) String() string {
	switch m {
	case AutoOff:
		return "off"
	case AutoOn:
		return "on"
	case AutoForce:
		return "force"
	default:
		return fmt.Sprintf("AutoMode(%d)", int(m))
	}
}

// ParseAutoMode accepts off/on/force in any case.
func ParseAutoMode(s string) (AutoMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "false", "0":
		return AutoOff, nil
	case "on", "true", "1":
		return AutoOn, nil
	case "force", "2":
		return AutoForce, nil
	default:
		return AutoOff, fmt.Errorf("unknown auto mode %q", s)
	}
}

// NormalizeLanguage upper-cases and trims a language code such as "pt-br".
func NormalizeLanguage(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
