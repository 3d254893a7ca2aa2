package config

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Thermostat entry constants.
const (
	// EntryDomain prefixes derived entry ids.
	EntryDomain = "varmegolv_kontroll"

	// CurrentEntryVersion is the entry schema version written by this release.
	CurrentEntryVersion = 2

	// DefaultEntryName is assigned to migrated entries that had no name.
	DefaultEntryName = "Golvvärmekontroll"

	// DefaultTargetTemp is the set-point used when an entry does not specify one.
	DefaultTargetTemp = 20.0
)

// MigrateThermostat upgrades an entry to CurrentEntryVersion in place.
//
// Version 1 entries carried a thermostat_entity_id key that is no longer
// used, and could lack a name and a target temperature. A missing version
// is treated as current.
func MigrateThermostat(t *ThermostatConfig) {
	if t.Version == 0 {
		t.Version = CurrentEntryVersion
	}
	if t.Version != 1 {
		return
	}

	t.LegacyThermostatEntityID = ""
	if strings.TrimSpace(t.Name) == "" {
		t.Name = DefaultEntryName
	}
	if t.TargetTemp == nil {
		target := DefaultTargetTemp
		t.TargetTemp = &target
	}
	t.Version = CurrentEntryVersion
}

// EntryID derives the stable entry identifier from a display name.
//
// Example: "Golvvärme Hall" -> "varmegolv_kontroll_golvvarme_hall"
//
// Returns an empty string when the name has no usable characters.
func EntryID(name string) string {
	slug := Slugify(name)
	if slug == "" {
		return ""
	}
	return EntryDomain + "_" + slug
}

// Slugify lowercases name, folds diacritics to ASCII and joins the
// remaining alphanumeric runs with underscores.
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(strings.TrimSpace(name)),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
