package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// LoadScript reads a YAML test script. ${VAR} references are expanded from the
// environment before parsing.
func LoadScript(path string) (*domain.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return script, nil
}

// ParseScript decodes and validates a YAML test script.
func ParseScript(data []byte) (*domain.Script, error) {
	// Decode to a generic map first so request bodies keep their key case.
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var script domain.Script
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(secondsOrDurationHook),
		WeaklyTypedInput: true,
		Result:           &script,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	script.Normalize()
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsOrDurationHook accepts plain numbers as seconds and Go duration strings.
func secondsOrDurationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return d, nil
	}
	return data, nil
}
