package authz

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode represents an enforcement mode.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeShadow   Mode = "shadow"
	ModeEnforce  Mode = "enforce"
)

// FlagProvider supplies the enforcement mode, globally and per object.
// ModeFor falls back to Mode for objects without an override.
type FlagProvider interface {
	Mode() Mode
	ModeFor(object string) Mode
}

type staticFlagProvider struct {
	mode    Mode
	objects map[string]Mode
}

func (s staticFlagProvider) Mode() Mode {
	return s.mode
}

func (s staticFlagProvider) ModeFor(object string) Mode {
	if m, ok := s.objects[normalizeObject(object)]; ok {
		return m
	}
	return s.mode
}

// flagFile is the on-disk layout:
//
//	mode: shadow
//	objects:
//	  leads.assignments: enforce
type flagFile struct {
	Mode    string            `yaml:"mode"`
	Objects map[string]string `yaml:"objects"`
}

// FileFlagProvider reads flags from a YAML file and re-parses it only when
// its modification time changes. A file that fails to parse keeps the last
// good flags.
type FileFlagProvider struct {
	path     string
	fallback Mode

	mu      sync.Mutex
	modTime time.Time
	loaded  bool
	flags   staticFlagProvider
}

func NewFileFlagProvider(path string, fallback Mode) FlagProvider {
	fallback = sanitizeMode(fallback)
	return &FileFlagProvider{
		path:     path,
		fallback: fallback,
		flags:    staticFlagProvider{mode: fallback},
	}
}

func (p *FileFlagProvider) Mode() Mode {
	return p.current().Mode()
}

func (p *FileFlagProvider) ModeFor(object string) Mode {
	return p.current().ModeFor(object)
}

func (p *FileFlagProvider) current() staticFlagProvider {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		return p.flags
	}
	if p.loaded && info.ModTime().Equal(p.modTime) {
		return p.flags
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p.flags
	}
	var raw flagFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p.flags
	}

	next := staticFlagProvider{mode: p.fallback}
	if strings.TrimSpace(raw.Mode) != "" {
		next.mode = sanitizeMode(Mode(raw.Mode))
	}
	if len(raw.Objects) > 0 {
		next.objects = make(map[string]Mode, len(raw.Objects))
		for obj, m := range raw.Objects {
			next.objects[normalizeObject(obj)] = sanitizeMode(Mode(m))
		}
	}
	p.flags = next
	p.modTime = info.ModTime()
	p.loaded = true
	return p.flags
}

func normalizeObject(object string) string {
	return strings.ToLower(strings.TrimSpace(object))
}

func sanitizeMode(mode Mode) Mode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(ModeDisabled):
		return ModeDisabled
	case string(ModeEnforce):
		return ModeEnforce
	default:
		return ModeShadow
	}
}
