package main

// InputHandler handles all keyboard and mouse input processing
type InputHandler struct {
	inputActions      InputActions
	keybindingManager *KeybindingManager
	mouse             *MouseHandler
}

// NewInputHandler creates a new InputHandler
func NewInputHandler(inputActions InputActions, keybindingManager *KeybindingManager, mouse *MouseHandler) *InputHandler {
	return &InputHandler{
		inputActions:      inputActions,
		keybindingManager: keybindingManager,
		mouse:             mouse,
	}
}

// HandleInput processes all input for the current frame
// Returns true if any input was processed, false otherwise
func (h *InputHandler) HandleInput() bool {
	if h.inputActions.GetTotalPagesCount() == 0 {
		// Exit still works on an empty volume
		return h.keybindingManager.ExecuteAction("exit", h.inputActions)
	}

	inputProcessed := false
	for _, def := range actionDefinitions {
		if h.keybindingManager.ExecuteAction(def.Name, h.inputActions) {
			inputProcessed = true
		}
	}

	if h.mouse != nil {
		inputProcessed = h.mouse.HandleMouse(h.inputActions) || inputProcessed
	}

	return inputProcessed
}
