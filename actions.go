package main

// ActionDefinition defines an action with its default keybindings and description.
// Navigation actions carry the canonical key the navigator understands, so
// they keep their meaning when rebound.
type ActionDefinition struct {
	Name        string
	Keys        []string
	NavKey      string
	Repeat      bool // fires repeatedly while held
	Description string
}

// actionDefinitions contains all action definitions with default keybindings and descriptions
var actionDefinitions = []ActionDefinition{
	{"exit", []string{"Escape", "KeyQ"}, "", false, "Quit application"},
	{"info", []string{"KeyI"}, "", false, "Show/hide info display"},
	{"fullscreen", []string{"Enter", "KeyZ"}, "", false, "Toggle fullscreen"},
	{"cycle_view_mode", []string{"KeyB"}, "", false, "Cycle view mode (single/dual/auto)"},
	{"toggle_reading_direction", []string{"Shift+KeyB"}, "", false, "Toggle reading direction (LTR ↔ RTL)"},
	{"toggle_continuous", []string{"KeyC"}, "", false, "Toggle continuous scrolling"},
	{"toggle_cover", []string{"Shift+KeyC"}, "", false, "Toggle cover page (first page single)"},
	{"toggle_breakpoint", []string{"KeyS"}, "", false, "Toggle single-page break at current page"},

	// Navigation
	{"pan_up", []string{"ArrowUp", "KeyK"}, "ArrowUp", true, "Pan up"},
	{"pan_down", []string{"ArrowDown", "KeyJ"}, "ArrowDown", true, "Pan down"},
	{"page_forward", []string{"Space"}, "Space", true, "Scroll forward"},
	{"previous_spread", []string{"PageUp"}, "PageUp", false, "Previous spread (previous volume at start)"},
	{"next_spread", []string{"PageDown"}, "PageDown", false, "Next spread (next volume at end)"},
	{"spread_left", []string{"ArrowLeft"}, navKeyLeft, false, "Spread to the left (follows reading direction)"},
	{"spread_right", []string{"ArrowRight"}, navKeyRight, false, "Spread to the right (follows reading direction)"},
	{"jump_first", []string{"Home", "Shift+Comma"}, "Home", false, "Jump to first spread"},
	{"jump_last", []string{"End", "Shift+Period"}, "End", false, "Jump to last spread"},
}

// Direction-relative navigation keys, resolved against the reading direction.
const (
	navKeyLeft  = "Left"
	navKeyRight = "Right"
)

// resolveNavKey maps a direction-relative key to PageUp/PageDown.
func resolveNavKey(navKey string, rightToLeft bool) string {
	switch navKey {
	case navKeyLeft:
		if rightToLeft {
			return "PageDown"
		}
		return "PageUp"
	case navKeyRight:
		if rightToLeft {
			return "PageUp"
		}
		return "PageDown"
	default:
		return navKey
	}
}

// findActionDefinition returns the definition of the named action.
func findActionDefinition(name string) (ActionDefinition, bool) {
	for _, action := range actionDefinitions {
		if action.Name == name {
			return action, true
		}
	}
	return ActionDefinition{}, false
}

// GetActionDescriptions returns a map of action names to their descriptions
func GetActionDescriptions() map[string]string {
	descriptions := make(map[string]string)
	for _, action := range actionDefinitions {
		descriptions[action.Name] = action.Description
	}
	return descriptions
}

// GetDefaultKeybindings returns a map of action names to their default keybindings
func GetDefaultKeybindings() map[string][]string {
	keybindings := make(map[string][]string)
	for _, action := range actionDefinitions {
		keybindings[action.Name] = append([]string{}, action.Keys...)
	}
	return keybindings
}
