// Package pricing turns ink coverage into money. A CartridgePricing describes the
// cartridges installed in a printer and what they cost; the cost model amortizes each
// cartridge's price over its rated page yield.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidPricing is returned when a pricing configuration cannot be used: an
// unknown mode, or a cartridge of the active mode with a non-positive yield or a
// negative or non-finite price.
var ErrInvalidPricing = errors.New("invalid cartridge pricing")

// Mode selects the cartridge topology.
type Mode string

const (
	// ModeSeparate uses one cartridge per channel.
	ModeSeparate Mode = "separate"
	// ModeCombined uses one tri-colour cartridge plus one black cartridge.
	ModeCombined Mode = "combined"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeSeparate:
		return ModeSeparate, nil
	case ModeCombined:
		return ModeCombined, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidPricing, value)
	}
}

// Cartridge is the price of one cartridge and the number of pages it is rated for.
type Cartridge struct {
	Price float64 `json:"price" toml:"price"`
	Yield int     `json:"yield" toml:"yield"`
}

// CostPerPage is the price of the cartridge spread over its yield. The cartridge must
// have been validated.
func (cartridge Cartridge) CostPerPage() float64 {
	return cartridge.Price / float64(cartridge.Yield)
}

func (cartridge Cartridge) validate(name string) error {
	if cartridge.Yield <= 0 {
		return fmt.Errorf(
			"%w: %s cartridge yield must be positive, got %d",
			ErrInvalidPricing,
			name,
			cartridge.Yield,
		)
	}

	if math.IsNaN(cartridge.Price) || math.IsInf(cartridge.Price, 0) {
		return fmt.Errorf("%w: %s cartridge price must be finite", ErrInvalidPricing, name)
	}

	if cartridge.Price < 0 {
		return fmt.Errorf(
			"%w: %s cartridge price must not be negative, got %.2f",
			ErrInvalidPricing,
			name,
			cartridge.Price,
		)
	}

	return nil
}

// SeparateCartridges prices one cartridge per channel.
type SeparateCartridges struct {
	Cyan    Cartridge `json:"cyan"    toml:"cyan"`
	Magenta Cartridge `json:"magenta" toml:"magenta"`
	Yellow  Cartridge `json:"yellow"  toml:"yellow"`
	Black   Cartridge `json:"black"   toml:"black"`
}

// CombinedCartridges prices a shared colour cartridge and a black cartridge.
type CombinedCartridges struct {
	Color Cartridge `json:"color" toml:"color"`
	Key   Cartridge `json:"key"   toml:"key"`
}

// CartridgePricing is the complete pricing configuration. Only the cartridges of the
// active Mode are used or validated.
type CartridgePricing struct {
	Mode     Mode               `json:"mode"     toml:"mode"`
	Separate SeparateCartridges `json:"separate" toml:"separate"`
	Combined CombinedCartridges `json:"combined" toml:"combined"`
}

// Validate checks the cartridges of the active mode.
func (pricing CartridgePricing) Validate() error {
	switch pricing.Mode {
	case ModeSeparate:
		return validateAll(map[string]Cartridge{
			"cyan":    pricing.Separate.Cyan,
			"magenta": pricing.Separate.Magenta,
			"yellow":  pricing.Separate.Yellow,
			"black":   pricing.Separate.Black,
		}, "cyan", "magenta", "yellow", "black")
	case ModeCombined:
		return validateAll(map[string]Cartridge{
			"color": pricing.Combined.Color,
			"key":   pricing.Combined.Key,
		}, "color", "key")
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPricing, pricing.Mode)
	}
}

// validateAll checks cartridges in a fixed order so the reported error is stable.
func validateAll(cartridges map[string]Cartridge, order ...string) error {
	for _, name := range order {
		err := cartridges[name].validate(name)
		if err != nil {
			return err
		}
	}

	return nil
}
