package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/phobologic/syncsplit/internal/model"
)

// Environment keys recognized in the process environment and in .env files.
const (
	envPrimitive      = "SYNCSPLIT_PRIMITIVE"
	envEntry          = "SYNCSPLIT_ENTRY"
	envWeak           = "SYNCSPLIT_WEAK"
	envDurable        = "SYNCSPLIT_DURABLE"
	envWeakSyscall    = "SYNCSPLIT_WEAK_SYSCALL"
	envDurableSyscall = "SYNCSPLIT_DURABLE_SYSCALL"
)

const (
	defaultPrimitive      = "fsync"
	defaultEntry          = "main"
	defaultWeakSyscall    = 349
	defaultDurableSyscall = 350
)

var defaultLabels = model.Labels{Weak: "osync", Durable: "dsync"}

// config is the resolved run configuration.
type config struct {
	Primitive      string
	EntryPoint     string
	Labels         model.Labels
	WeakSyscall    int
	DurableSyscall int
}

// defaultConfig returns the built-in configuration.
func defaultConfig() config {
	return config{
		Primitive:      defaultPrimitive,
		EntryPoint:     defaultEntry,
		Labels:         defaultLabels,
		WeakSyscall:    defaultWeakSyscall,
		DurableSyscall: defaultDurableSyscall,
	}
}

// loadEnv collects configuration values. The process environment wins over
// ./.env, which wins over <root>/.env. Missing files are ignored.
func loadEnv(root string) map[string]string {
	env := make(map[string]string)
	for _, path := range []string{filepath.Join(root, ".env"), ".env"} {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range values {
			env[k] = v
		}
	}
	for _, k := range []string{envPrimitive, envEntry, envWeak, envDurable, envWeakSyscall, envDurableSyscall} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}

// applyEnv overlays env onto cfg. Keys whose flag was set explicitly are
// skipped.
func (cfg *config) applyEnv(env map[string]string, explicit map[string]bool) error {
	str := func(flagName, key string, dst *string) {
		if explicit[flagName] {
			return
		}
		if v := strings.TrimSpace(env[key]); v != "" {
			*dst = v
		}
	}
	num := func(flagName, key string, dst *int) error {
		if explicit[flagName] {
			return nil
		}
		v := strings.TrimSpace(env[key])
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("primitive", envPrimitive, &cfg.Primitive)
	str("entry", envEntry, &cfg.EntryPoint)
	str("weak", envWeak, &cfg.Labels.Weak)
	str("durable", envDurable, &cfg.Labels.Durable)
	if err := num("weak-syscall", envWeakSyscall, &cfg.WeakSyscall); err != nil {
		return err
	}
	return num("durable-syscall", envDurableSyscall, &cfg.DurableSyscall)
}

func (cfg *config) validate() error {
	for name, v := range map[string]string{
		"primitive":     cfg.Primitive,
		"entry":         cfg.EntryPoint,
		"weak label":    cfg.Labels.Weak,
		"durable label": cfg.Labels.Durable,
	} {
		if !isIdentifier(v) {
			return fmt.Errorf("%s %q is not a C identifier", name, v)
		}
	}
	if cfg.Labels.Weak == cfg.Labels.Durable {
		return fmt.Errorf("weak and durable labels must differ, both are %q", cfg.Labels.Weak)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
