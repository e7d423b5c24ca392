package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	minOpaqueness = 0
	maxOpaqueness = 255
	maxPosition   = 1 << 15
)

// Show holds the feature toggles.
type Show struct {
	CPU        bool
	Grid       bool
	PublicMem  bool
	VirtualMem bool
	VideoMem   bool
	Solid      bool
	Net        bool
	DragBar    bool
	// Simple starts the probe in coarse mode.
	Simple bool
	// Resize lets the user resize the window.
	Resize bool
}

// Colors are 0xAARRGGBB values. The alpha byte is not used; background
// transparency comes from Opaqueness.
type Colors struct {
	CPU        uint32
	Background uint32
	VideoMem   uint32
	PublicMem  uint32
	VirtualMem uint32
	Grid       uint32
	Upload     uint32
	Download   uint32
}

// KeyError describes one configuration entry that was skipped. The entry
// keeps its default value.
type KeyError struct {
	// Line is the tool-type line number, 0 for TOML and YAML.
	Line int
	Key  string
	Err  error
}

func (e *KeyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// DisplayConfig is the startup display configuration.
type DisplayConfig struct {
	Show       Show
	XPos       int
	YPos       int
	Opaqueness int
	Colors     Colors
}

// Default returns the configuration used when no file is given.
func Default() *DisplayConfig {
	return &DisplayConfig{
		Show: Show{
			CPU:        true,
			Grid:       true,
			PublicMem:  true,
			VirtualMem: true,
			VideoMem:   true,
			Solid:      true,
			DragBar:    true,
		},
		Opaqueness: maxOpaqueness,
		Colors: Colors{
			CPU:        0x0000A000,
			Background: 0x00000000,
			VideoMem:   0x0010C0F0,
			PublicMem:  0x00FF1010,
			VirtualMem: 0x001010FF,
			Grid:       0x00003000,
			Upload:     0x00FF1010,
			Download:   0x0000A000,
		},
	}
}

// Load reads a configuration file. Files ending in .toml are decoded as TOML,
// .yaml or .yml as YAML; anything else is read as tool types, one "key" or
// "key=value" per line. An empty path or a missing file yields the defaults.
//
// A nil configuration means the file could not be used at all. Bad values
// for individual keys are skipped instead: the configuration is returned
// together with an error joining one *KeyError per skipped entry.
func Load(path string) (*DisplayConfig, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	}
	return ParseToolTypes(data)
}

// ParseToolTypes reads tool-type text. A present file resets every feature
// toggle before the named ones are switched on; colors and positions keep
// their defaults unless named. Blank lines and lines starting with '#' or ';'
// are skipped.
func ParseToolTypes(data []byte) (*DisplayConfig, error) {
	cfg := Default()
	cfg.Show = Show{}

	var skipped []error
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		key, value, hasValue := strings.Cut(line, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		var v any
		if hasValue {
			v = strings.TrimSpace(value)
		}
		if err := cfg.apply(key, v); err != nil {
			skipped = append(skipped, &KeyError{Line: lineNo, Key: key, Err: err})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tool types: %w", err)
	}

	return finish(cfg, skipped)
}

// ParseTOML reads a flat TOML table using the tool-type keys. Integers may be
// written as TOML integers or strings, colors as hex strings or integers.
func ParseTOML(data []byte) (*DisplayConfig, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config TOML: %w", err)
	}

	return fromMap(raw)
}

// ParseYAML reads a flat YAML mapping using the tool-type keys. A key with
// no value counts as present.
func ParseYAML(data []byte) (*DisplayConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config YAML: %w", err)
	}
	return fromMap(raw)
}

func fromMap(raw map[string]any) (*DisplayConfig, error) {
	cfg := Default()
	cfg.Show = Show{}
	var skipped []error
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		lower := strings.ToLower(key)
		if err := cfg.apply(lower, raw[key]); err != nil {
			skipped = append(skipped, &KeyError{Key: lower, Err: err})
		}
	}

	return finish(cfg, skipped)
}

func finish(cfg *DisplayConfig, skipped []error) (*DisplayConfig, error) {
	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return nil, err
	}
	return sanitized, errors.Join(skipped...)
}

// NormalizeAndValidate checks ranges and returns a sanitized copy.
func NormalizeAndValidate(cfg *DisplayConfig) (*DisplayConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg
	if err := validateRange("opaqueness", sanitized.Opaqueness, minOpaqueness, maxOpaqueness); err != nil {
		return nil, err
	}
	if err := validateRange("xpos", sanitized.XPos, 0, maxPosition); err != nil {
		return nil, err
	}
	if err := validateRange("ypos", sanitized.YPos, 0, maxPosition); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

// apply sets one key. v is nil for a bare key, otherwise a string from tool
// types or a decoded TOML or YAML value. Unknown keys and negative integers
// are ignored. On error the field is left untouched.
func (c *DisplayConfig) apply(key string, v any) error {
	if b := c.toggle(key); b != nil {
		*b = boolValue(v)
		return nil
	}
	if n, limit := c.integer(key); n != nil {
		val, err := intValue(v)
		if err != nil {
			return err
		}
		if val > limit {
			return fmt.Errorf("must be between 0 and %d, got %d", limit, val)
		}
		if val >= 0 {
			*n = val
		}
		return nil
	}
	if col := c.color(key); col != nil {
		val, err := colorValue(v)
		if err != nil {
			return err
		}
		*col = val
	}
	return nil
}

func (c *DisplayConfig) toggle(key string) *bool {
	switch key {
	case "cpu":
		return &c.Show.CPU
	case "grid":
		return &c.Show.Grid
	case "pmem":
		return &c.Show.PublicMem
	case "vmem":
		return &c.Show.VirtualMem
	case "gmem":
		return &c.Show.VideoMem
	case "solid":
		return &c.Show.Solid
	case "net":
		return &c.Show.Net
	case "dragbar":
		return &c.Show.DragBar
	case "simple":
		return &c.Show.Simple
	case "resize":
		return &c.Show.Resize
	}
	return nil
}

// integer returns the field for key and its upper bound.
func (c *DisplayConfig) integer(key string) (*int, int) {
	switch key {
	case "xpos":
		return &c.XPos, maxPosition
	case "ypos":
		return &c.YPos, maxPosition
	case "opaqueness":
		return &c.Opaqueness, maxOpaqueness
	}
	return nil, 0
}

func (c *DisplayConfig) color(key string) *uint32 {
	switch key {
	case "cpucol":
		return &c.Colors.CPU
	case "bgcol":
		return &c.Colors.Background
	case "gmemcol":
		return &c.Colors.VideoMem
	case "pmemcol":
		return &c.Colors.PublicMem
	case "vmemcol":
		return &c.Colors.VirtualMem
	case "gridcol":
		return &c.Colors.Grid
	case "ulcol":
		return &c.Colors.Upload
	case "dlcol":
		return &c.Colors.Download
	}
	return nil
}

// boolValue treats presence as true. Only an explicit TOML or YAML false turns a
// toggle off.
func boolValue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func intValue(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", t)
		}
		return n, nil
	case nil:
		return 0, errors.New("needs a value")
	}
	return 0, fmt.Errorf("must be an integer, got %v", v)
}

// ParseColor parses a hex ARGB color with an optional "0x" or "#" prefix.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func colorValue(v any) (uint32, error) {
	switch t := v.(type) {
	case string:
		n, err := ParseColor(t)
		if err != nil {
			return 0, fmt.Errorf("must be a hex color, got %q", t)
		}
		return n, nil
	case int64:
		return colorInt(t)
	case int:
		return colorInt(int64(t))
	case nil:
		return 0, errors.New("needs a value")
	}
	return 0, fmt.Errorf("must be a hex color, got %v", v)
}

func colorInt(v int64) (uint32, error) {
	if v < 0 || v > 0xFFFFFFFF {
		return 0, fmt.Errorf("out of range: %d", v)
	}
	return uint32(v), nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
