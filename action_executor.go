package main

// ActionExecutor provides centralized action execution logic
type ActionExecutor struct{}

// NewActionExecutor creates a new ActionExecutor instance
func NewActionExecutor() *ActionExecutor {
	return &ActionExecutor{}
}

// ExecuteAction executes the given action using the InputActions interface.
// It reports false for unknown actions.
func (ae *ActionExecutor) ExecuteAction(action string, inputActions InputActions) bool {
	switch action {
	case "exit":
		inputActions.Exit()
	case "info":
		inputActions.ToggleInfo()
	case "fullscreen":
		inputActions.ToggleFullscreen()
	case "cycle_view_mode":
		inputActions.CycleViewMode()
	case "toggle_reading_direction":
		inputActions.ToggleReadingDirection()
	case "toggle_continuous":
		inputActions.ToggleContinuous()
	case "toggle_cover":
		inputActions.ToggleCover()
	case "toggle_breakpoint":
		inputActions.ToggleBreakpoint()
	default:
		def, ok := findActionDefinition(action)
		if !ok || def.NavKey == "" {
			return false
		}
		inputActions.Navigate(def.NavKey)
	}

	return true
}

// globalActionExecutor is the global instance of ActionExecutor used throughout the application
var globalActionExecutor = NewActionExecutor()
