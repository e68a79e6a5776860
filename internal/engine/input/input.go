// Package input turns SDL2 events into viewer actions.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// Action is a viewer command triggered from the keyboard.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionToggleWireframe
	ActionTogglePause
	ActionMoreInstances
	ActionFewerInstances
	ActionNextSubObject
	ActionNextLevel
	ActionToggleFullscreen
	ActionScreenshot
)

var actionNames = map[Action]string{
	ActionNone:             "none",
	ActionQuit:             "quit",
	ActionToggleWireframe:  "wireframe",
	ActionTogglePause:      "pause",
	ActionMoreInstances:    "more-instances",
	ActionFewerInstances:   "fewer-instances",
	ActionNextSubObject:    "next-sub-object",
	ActionNextLevel:        "next-level",
	ActionToggleFullscreen: "fullscreen",
	ActionScreenshot:       "screenshot",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// keyBindings maps scancodes to actions.
var keyBindings = map[sdl.Scancode]Action{
	sdl.SCANCODE_ESCAPE:      ActionQuit,
	sdl.SCANCODE_W:           ActionToggleWireframe,
	sdl.SCANCODE_SPACE:       ActionTogglePause,
	sdl.SCANCODE_EQUALS:      ActionMoreInstances,
	sdl.SCANCODE_KP_PLUS:     ActionMoreInstances,
	sdl.SCANCODE_MINUS:       ActionFewerInstances,
	sdl.SCANCODE_KP_MINUS:    ActionFewerInstances,
	sdl.SCANCODE_TAB:         ActionNextSubObject,
	sdl.SCANCODE_M:           ActionNextLevel,
	sdl.SCANCODE_F:           ActionToggleFullscreen,
	sdl.SCANCODE_P:           ActionScreenshot,
}

// EventType identifies a processed event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventAction
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Action Action
	Width  int
	Height int
}

// Input handles all input processing.
type Input struct {
	events []Event
}

// New creates a new input handler.
func New() *Input {
	return &Input{
		events: make([]Event, 0, 16),
	}
}

// Update polls SDL events and converts them to viewer events.
// Returns true if the viewer should quit.
func (i *Input) Update() bool {
	i.events = i.events[:0]
	quit := false

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			i.events = append(i.events, Event{Type: EventQuit})
			quit = true

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				i.events = append(i.events, Event{
					Type:   EventWindowResize,
					Width:  int(e.Data1),
					Height: int(e.Data2),
				})
			}

		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			action, ok := keyBindings[e.Keysym.Scancode]
			if !ok {
				continue
			}
			if action == ActionQuit {
				quit = true
			}
			i.events = append(i.events, Event{Type: EventAction, Action: action})
		}
	}

	return quit
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}
