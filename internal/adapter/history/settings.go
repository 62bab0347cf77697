package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"docchat/internal/domain"
)

// Setting keys recognized by the settings table.
const (
	KeyTemperature       = "temperature"
	KeyTopP              = "top_p"
	KeySystemInstruction = "system_instruction"
	KeyChunkSize         = "chunk_size"
	KeyChunkOverlap      = "chunk_overlap"
)

const defaultInstruction = "You are an IT support assistant. Answer the user's question using only the provided context. If the context does not contain the answer, say so clearly instead of guessing."

var settingDefaults = map[string]string{
	KeyTemperature:       "0.7",
	KeyTopP:              "1.0",
	KeySystemInstruction: defaultInstruction,
	KeyChunkSize:         "512",
	KeyChunkOverlap:      "50",
}

// Setting returns the stored value for key, or its default when unset.
func (s *Store) Setting(key string) (string, error) {
	def, known := settingDefaults[key]
	if !known {
		return "", fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting validates and stores one setting. Values take effect on the
// next request.
func (s *Store) SetSetting(key, value string) error {
	if err := validateSetting(key, value); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// Settings returns every known setting with its effective value.
func (s *Store) Settings() (map[string]string, error) {
	out := make(map[string]string, len(settingDefaults))
	for key := range settingDefaults {
		value, err := s.Setting(key)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// SettingKeys lists the recognized setting keys in stable order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingDefaults))
	for key := range settingDefaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func validateSetting(key, value string) error {
	switch key {
	case KeyTemperature:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 || v > 2 {
			return fmt.Errorf("temperature must be a number in [0, 2]: %w", domain.ErrInvalidInput)
		}
	case KeyTopP:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v <= 0 || v > 1 {
			return fmt.Errorf("top_p must be a number in (0, 1]: %w", domain.ErrInvalidInput)
		}
	case KeySystemInstruction:
		if value == "" {
			return fmt.Errorf("system_instruction must not be empty: %w", domain.ErrInvalidInput)
		}
	case KeyChunkSize:
		v, err := strconv.Atoi(value)
		if err != nil || v <= 0 {
			return fmt.Errorf("chunk_size must be a positive integer: %w", domain.ErrInvalidInput)
		}
	case KeyChunkOverlap:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("chunk_overlap must be a non-negative integer: %w", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}
	return nil
}

// GenerationParams reads the sampling parameters for the next generation.
func (s *Store) GenerationParams() (temperature, topP float64, err error) {
	raw, err := s.Setting(KeyTemperature)
	if err != nil {
		return 0, 0, err
	}
	temperature, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse temperature %q: %w", raw, err)
	}

	raw, err = s.Setting(KeyTopP)
	if err != nil {
		return 0, 0, err
	}
	topP, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse top_p %q: %w", raw, err)
	}
	return temperature, topP, nil
}

// SystemInstruction reads the instruction prepended to every prompt.
func (s *Store) SystemInstruction() (string, error) {
	return s.Setting(KeySystemInstruction)
}

// ChunkingParams reads the chunk size and overlap used for the next
// ingestion. Already-indexed documents keep their original chunking.
func (s *Store) ChunkingParams() (size, overlap int, err error) {
	raw, err := s.Setting(KeyChunkSize)
	if err != nil {
		return 0, 0, err
	}
	size, err = strconv.Atoi(raw)
	if err != nil {
		return 0, 0, fmt.Errorf("parse chunk_size %q: %w", raw, err)
	}

	raw, err = s.Setting(KeyChunkOverlap)
	if err != nil {
		return 0, 0, err
	}
	overlap, err = strconv.Atoi(raw)
	if err != nil {
		return 0, 0, fmt.Errorf("parse chunk_overlap %q: %w", raw, err)
	}
	if overlap >= size {
		// A stored pair can become inconsistent when edited separately.
		overlap = size / 4
	}
	return size, overlap, nil
}
