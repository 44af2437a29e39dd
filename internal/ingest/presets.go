package ingest

import "sort"

// Presets are the scanner feeds the service knows by name.
var Presets = map[string]string{
	"portland-or": "http://relay.broadcastify.com:80/37813088?nocache=3792733",
	"miami-fl":    "http://audio2.broadcastify.com/67440258?nocache=6895748",
	"chicago-il":  "http://audio4.broadcastify.com/il_chicago_police2?nocache=8444144",
	"seattle-wa":  "http://audio10.broadcastify.com/ctvjymw580k2?nocache=9035869",
}

// DefaultPreset is used when a requested location is unknown.
const DefaultPreset = "portland-or"

// ResolvePreset maps a location name to a stream URL, falling back to fallback
// (or DefaultPreset) for unknown names. It returns the name actually used.
func ResolvePreset(name, fallback string) (string, string) {
	if u, ok := Presets[name]; ok {
		return name, u
	}
	if _, ok := Presets[fallback]; !ok {
		fallback = DefaultPreset
	}
	return fallback, Presets[fallback]
}

// PresetNames lists presets in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
