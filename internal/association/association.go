// Package association tells the editor which schema applies to which
// config file, either through the editor settings file or through a
// directive comment in each config.
package association

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Mode selects the association mechanism.
type Mode string

const (
	// ModeAuto tries the editor settings and falls back to headers.
	ModeAuto           Mode = "auto"
	ModeHeaders        Mode = "headers"
	ModeEditorSettings Mode = "editor-settings"
)

// ParseMode validates a mode name. The empty string is auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeHeaders, ModeEditorSettings:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown association mode %q (want auto, headers or editor-settings)", s)
}

// ModeFromHeaders maps the tri-state add-headers switch onto a mode: unset
// is auto, true is headers, false is editor settings.
func ModeFromHeaders(addHeaders *bool) Mode {
	switch {
	case addHeaders == nil:
		return ModeAuto
	case *addHeaders:
		return ModeHeaders
	default:
		return ModeEditorSettings
	}
}

// Pair links a config file to its schema file.
type Pair struct {
	ConfigFile string
	SchemaFile string
}

// Associator applies a mode to a set of pairs.
type Associator struct {
	RepoRoot string
	Mode     Mode
	Log      zerolog.Logger
}

// Associate links every pair and returns the mode that was applied.
func (a *Associator) Associate(pairs []Pair) (Mode, error) {
	pairs = sortedPairs(pairs)
	if a.Mode != ModeHeaders {
		err := a.useSettings(pairs)
		if err == nil {
			return ModeEditorSettings, nil
		}
		if a.Mode == ModeEditorSettings {
			return "", fmt.Errorf("update editor settings: %w", err)
		}
		a.Log.Error().Err(err).Msg("unable to write schemas in the editor settings file, falling back to config headers")
	}
	return ModeHeaders, a.useHeaders(pairs)
}

func (a *Associator) useSettings(pairs []Pair) error {
	if err := UpdateSettings(a.RepoRoot, pairs); err != nil {
		return err
	}
	a.Log.Debug().Str("file", SettingsPath(a.RepoRoot)).Int("schemas", len(pairs)).Msg("updated editor settings")
	for _, p := range pairs {
		changed, err := StripHeader(p.ConfigFile)
		if err != nil {
			return fmt.Errorf("strip header of %s: %w", p.ConfigFile, err)
		}
		if changed {
			a.Log.Debug().Str("config", p.ConfigFile).Msg("removed schema header")
		}
	}
	return nil
}

func (a *Associator) useHeaders(pairs []Pair) error {
	for _, p := range pairs {
		changed, err := AddHeader(p.ConfigFile, p.SchemaFile)
		if err != nil {
			return fmt.Errorf("add header to %s: %w", p.ConfigFile, err)
		}
		if changed {
			a.Log.Debug().Str("config", p.ConfigFile).Msg("added schema header")
		}
	}
	return nil
}

func sortedPairs(pairs []Pair) []Pair {
	out := append([]Pair(nil), pairs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigFile < out[j].ConfigFile })
	return out
}
