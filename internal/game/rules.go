// internal/game/rules.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

const (
	// Digits is the size of the alphabet secret codes are drawn from.
	Digits = 10

	MaxCodeLength = 10
	MaxGuesses    = 50
)

// ValidateSettings reports whether s describes a playable puzzle.
func ValidateSettings(s models.GameSettings) error {
	switch {
	case s.CodeLength < 1 || s.CodeLength > MaxCodeLength:
		return &models.ValidationError{Field: "codeLength", Reason: fmt.Sprintf("must be between 1 and %d", MaxCodeLength)}
	case s.MaxGuesses < 1 || s.MaxGuesses > MaxGuesses:
		return &models.ValidationError{Field: "maxGuesses", Reason: fmt.Sprintf("must be between 1 and %d", MaxGuesses)}
	case s.TimeLimitSec < 0:
		return &models.ValidationError{Field: "timeLimitSec", Reason: "must be non-negative"}
	}
	return nil
}

// ApplyOverrides updates s with the recognised keys of overrides. Unknown keys
// are ignored and unset keys keep their current value.
func ApplyOverrides(s *models.GameSettings, overrides map[string]interface{}) error {
	assignBool := func(field *bool, key string) error {
		if val, exists := overrides[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return &models.ValidationError{Field: key, Reason: "must be a boolean"}
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string) error {
		if val, exists := overrides[key]; exists && val != nil {
			// JSON numbers decode as float64
			switch v := val.(type) {
			case float64:
				*field = int(v)
			case int:
				*field = v
			default:
				return &models.ValidationError{Field: key, Reason: "must be a number"}
			}
		}
		return nil
	}

	if err := assignInt(&s.CodeLength, "codeLength"); err != nil {
		return err
	}
	if err := assignInt(&s.MaxGuesses, "maxGuesses"); err != nil {
		return err
	}
	if err := assignInt(&s.TimeLimitSec, "timeLimitSec"); err != nil {
		return err
	}
	if err := assignBool(&s.AllowRepeats, "allowRepeats"); err != nil {
		return err
	}
	return ValidateSettings(*s)
}

// ParseSettings copies current, applies overrides and validates the result.
func ParseSettings(overrides map[string]interface{}, current models.GameSettings) (models.GameSettings, error) {
	s := current
	err := ApplyOverrides(&s, overrides)
	return s, err
}
