package contracts

import (
	"fmt"
	"strings"
)

// AssetType distinguishes stocks from funds
type AssetType string

const (
	AssetStock AssetType = "stock"
	AssetFund  AssetType = "fund"
)

// Horizon is the holding horizon a ranking is built for
type Horizon string

const (
	HorizonShort Horizon = "short"
	HorizonLong  Horizon = "long"
)

// Mode selects which horizons a recommendation run produces
type Mode string

const (
	ModeShort Mode = "short"
	ModeLong  Mode = "long"
	ModeAll   Mode = "all"
)

// ParseMode accepts short, long or all (empty = all)
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeShort:
		return ModeShort, nil
	case ModeLong:
		return ModeLong, nil
	default:
		return "", fmt.Errorf("invalid mode %q: want short, long or all", s)
	}
}

// Horizons returns the horizons the mode covers, short first
func (m Mode) Horizons() []Horizon {
	switch m {
	case ModeShort:
		return []Horizon{HorizonShort}
	case ModeLong:
		return []Horizon{HorizonLong}
	default:
		return []Horizon{HorizonShort, HorizonLong}
	}
}
