package camera

// Preset names accepted by the camera settings API.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
)

// presets in the order the dashboard lists them. "low" trades recall on
// small objects for faster uploads to a remote backend.
var presets = []struct {
	name string
	cfg  Config
}{
	{PresetDefault, DefaultConfig()},
	{PresetLow, Config{Width: 640, Height: 480, Framerate: 15, Quality: 70}},
	{Preset720p, Config{Width: 1280, Height: 720, Framerate: 15, Quality: 80}},
	{Preset1080p, Config{Width: 1920, Height: 1080, Framerate: 10, Quality: 80}},
}

// Presets returns every preset by name.
func Presets() map[string]Config {
	m := make(map[string]Config, len(presets))
	for _, p := range presets {
		m[p.name] = p.cfg
	}
	return m
}

// PresetNames lists the preset names in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// GetPreset returns the named preset, or false.
func GetPreset(name string) (Config, bool) {
	for _, p := range presets {
		if p.name == name {
			return p.cfg, true
		}
	}
	return Config{}, false
}
