package types

import (
	"encoding/json"
	"fmt"
)

// Action is the command tag carried on the wire.
type Action string

// Action constants. This set is closed: MarshalCommand and
// UnmarshalCommand handle every member and nothing else.
const (
	ActionInit           Action = "init"
	ActionInitScript     Action = "init_script"
	ActionNavigate       Action = "navigate"
	ActionEval           Action = "eval"
	ActionSetTitle       Action = "set_title"
	ActionSetSize        Action = "set_size"
	ActionSetBounds      Action = "set_bounds"
	ActionCenter         Action = "center"
	ActionMinimize       Action = "minimize"
	ActionToggleMaximize Action = "toggle_maximize"
	ActionSetProgress    Action = "set_progress"
	ActionShow           Action = "show"
	ActionHide           Action = "hide"
	ActionSetResizable   Action = "set_resizable"
	ActionSetFrameless   Action = "set_frameless"
	ActionSetIcon        Action = "set_icon"
	ActionBind           Action = "bind"
	ActionReply          Action = "reply"
	ActionClose          Action = "close"
	ActionServeData      Action = "serve_data"
	ActionUnserveData    Action = "unserve_data"
	ActionSetState       Action = "set_state"
	ActionSyncState      Action = "sync_state"
)

// Command is the closed sum of host-issued shell commands. Concrete
// variants are the *Command structs in this file; the dispatcher
// type-switches over them exhaustively.
type Command interface {
	Action() Action
	isCommand()
}

// InitCommand creates the window from a configuration record.
type InitCommand struct {
	Options WindowOptions `json:"options"`
}

// InitScriptCommand registers JS injected before every navigation.
type InitScriptCommand struct {
	JS string `json:"js"`
}

// NavigateCommand loads a URL into the rendering engine.
type NavigateCommand struct {
	URL string `json:"url"`
}

// EvalCommand evaluates JS in the current page. When ID is set the
// shell answers with a command-reply envelope carrying the evaluation
// result under the same id.
type EvalCommand struct {
	Code string `json:"code"`
	ID   string `json:"id,omitempty"`
}

// SetTitleCommand sets the window title.
type SetTitleCommand struct {
	Title string `json:"title"`
}

// SetSizeCommand resizes the window.
type SetSizeCommand struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SetBoundsCommand moves and resizes the window in one step.
type SetBoundsCommand struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CenterCommand centers the window on the primary screen.
type CenterCommand struct{}

// MinimizeCommand minimizes the window.
type MinimizeCommand struct{}

// ToggleMaximizeCommand toggles between maximized and restored.
type ToggleMaximizeCommand struct{}

// SetProgressCommand sets the taskbar progress indicator. A value of -1
// clears it regardless of mode.
type SetProgressCommand struct {
	Value float64      `json:"value"`
	Mode  ProgressMode `json:"mode"`
}

// ShowCommand makes the window visible.
type ShowCommand struct{}

// HideCommand hides the window without destroying it.
type HideCommand struct{}

// SetResizableCommand toggles user resizing.
type SetResizableCommand struct {
	Resizable bool `json:"resizable"`
}

// SetFramelessCommand toggles window chrome.
type SetFramelessCommand struct {
	Frameless bool `json:"frameless"`
}

// SetIconCommand sets the window icon from a path.
type SetIconCommand struct {
	Icon string `json:"icon"`
}

// BindCommand installs a callable stub under Name on the rendering side.
type BindCommand struct {
	Name string `json:"name"`
}

// ReplyCommand resolves or rejects a pending rendering-side call.
// Status 0 resolves with Result; any other status rejects with Result
// as the error payload.
type ReplyCommand struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// CloseCommand terminates the shell process unconditionally.
type CloseCommand struct{}

// ServeDataCommand inserts or overwrites a keyed binary asset. Data is
// base64 on the wire; the shell stores decoded bytes.
type ServeDataCommand struct {
	Key  string `json:"key"`
	Data string `json:"data"`
	MIME string `json:"mime"`
}

// UnserveDataCommand removes a keyed asset.
type UnserveDataCommand struct {
	Key string `json:"key"`
}

// SetStateCommand pushes one host state write to the shell mirror.
type SetStateCommand struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// SyncStateCommand replays the full state map. Sent once after the
// app_ready handshake, before any incremental set_state.
type SyncStateCommand struct {
	State map[string]json.RawMessage `json:"state"`
}

func (*InitCommand) Action() Action           { return ActionInit }
func (*InitScriptCommand) Action() Action     { return ActionInitScript }
func (*NavigateCommand) Action() Action       { return ActionNavigate }
func (*EvalCommand) Action() Action           { return ActionEval }
func (*SetTitleCommand) Action() Action       { return ActionSetTitle }
func (*SetSizeCommand) Action() Action        { return ActionSetSize }
func (*SetBoundsCommand) Action() Action      { return ActionSetBounds }
func (*CenterCommand) Action() Action         { return ActionCenter }
func (*MinimizeCommand) Action() Action       { return ActionMinimize }
func (*ToggleMaximizeCommand) Action() Action { return ActionToggleMaximize }
func (*SetProgressCommand) Action() Action    { return ActionSetProgress }
func (*ShowCommand) Action() Action           { return ActionShow }
func (*HideCommand) Action() Action           { return ActionHide }
func (*SetResizableCommand) Action() Action   { return ActionSetResizable }
func (*SetFramelessCommand) Action() Action   { return ActionSetFrameless }
func (*SetIconCommand) Action() Action        { return ActionSetIcon }
func (*BindCommand) Action() Action           { return ActionBind }
func (*ReplyCommand) Action() Action          { return ActionReply }
func (*CloseCommand) Action() Action          { return ActionClose }
func (*ServeDataCommand) Action() Action      { return ActionServeData }
func (*UnserveDataCommand) Action() Action    { return ActionUnserveData }
func (*SetStateCommand) Action() Action       { return ActionSetState }
func (*SyncStateCommand) Action() Action      { return ActionSyncState }

func (*InitCommand) isCommand()           {}
func (*InitScriptCommand) isCommand()     {}
func (*NavigateCommand) isCommand()       {}
func (*EvalCommand) isCommand()           {}
func (*SetTitleCommand) isCommand()       {}
func (*SetSizeCommand) isCommand()        {}
func (*SetBoundsCommand) isCommand()      {}
func (*CenterCommand) isCommand()         {}
func (*MinimizeCommand) isCommand()       {}
func (*ToggleMaximizeCommand) isCommand() {}
func (*SetProgressCommand) isCommand()    {}
func (*ShowCommand) isCommand()           {}
func (*HideCommand) isCommand()           {}
func (*SetResizableCommand) isCommand()   {}
func (*SetFramelessCommand) isCommand()   {}
func (*SetIconCommand) isCommand()        {}
func (*BindCommand) isCommand()           {}
func (*ReplyCommand) isCommand()          {}
func (*CloseCommand) isCommand()          {}
func (*ServeDataCommand) isCommand()      {}
func (*UnserveDataCommand) isCommand()    {}
func (*SetStateCommand) isCommand()       {}
func (*SyncStateCommand) isCommand()      {}

// actionProbe peeks at the action tag without a full decode.
type actionProbe struct {
	Action Action `json:"action"`
}

// MarshalCommand encodes a command as a flat JSON object with the
// action tag alongside the variant's own fields.
func MarshalCommand(c Command) ([]byte, error) {
	type tag struct {
		Action Action `json:"action"`
	}
	switch v := c.(type) {
	case *InitCommand:
		return json.Marshal(struct {
			tag
			*InitCommand
		}{tag{ActionInit}, v})
	case *InitScriptCommand:
		return json.Marshal(struct {
			tag
			*InitScriptCommand
		}{tag{ActionInitScript}, v})
	case *NavigateCommand:
		return json.Marshal(struct {
			tag
			*NavigateCommand
		}{tag{ActionNavigate}, v})
	case *EvalCommand:
		return json.Marshal(struct {
			tag
			*EvalCommand
		}{tag{ActionEval}, v})
	case *SetTitleCommand:
		return json.Marshal(struct {
			tag
			*SetTitleCommand
		}{tag{ActionSetTitle}, v})
	case *SetSizeCommand:
		return json.Marshal(struct {
			tag
			*SetSizeCommand
		}{tag{ActionSetSize}, v})
	case *SetBoundsCommand:
		return json.Marshal(struct {
			tag
			*SetBoundsCommand
		}{tag{ActionSetBounds}, v})
	case *CenterCommand:
		return json.Marshal(tag{ActionCenter})
	case *MinimizeCommand:
		return json.Marshal(tag{ActionMinimize})
	case *ToggleMaximizeCommand:
		return json.Marshal(tag{ActionToggleMaximize})
	case *SetProgressCommand:
		return json.Marshal(struct {
			tag
			*SetProgressCommand
		}{tag{ActionSetProgress}, v})
	case *ShowCommand:
		return json.Marshal(tag{ActionShow})
	case *HideCommand:
		return json.Marshal(tag{ActionHide})
	case *SetResizableCommand:
		return json.Marshal(struct {
			tag
			*SetResizableCommand
		}{tag{ActionSetResizable}, v})
	case *SetFramelessCommand:
		return json.Marshal(struct {
			tag
			*SetFramelessCommand
		}{tag{ActionSetFrameless}, v})
	case *SetIconCommand:
		return json.Marshal(struct {
			tag
			*SetIconCommand
		}{tag{ActionSetIcon}, v})
	case *BindCommand:
		return json.Marshal(struct {
			tag
			*BindCommand
		}{tag{ActionBind}, v})
	case *ReplyCommand:
		return json.Marshal(struct {
			tag
			*ReplyCommand
		}{tag{ActionReply}, v})
	case *CloseCommand:
		return json.Marshal(tag{ActionClose})
	case *ServeDataCommand:
		return json.Marshal(struct {
			tag
			*ServeDataCommand
		}{tag{ActionServeData}, v})
	case *UnserveDataCommand:
		return json.Marshal(struct {
			tag
			*UnserveDataCommand
		}{tag{ActionUnserveData}, v})
	case *SetStateCommand:
		return json.Marshal(struct {
			tag
			*SetStateCommand
		}{tag{ActionSetState}, v})
	case *SyncStateCommand:
		return json.Marshal(struct {
			tag
			*SyncStateCommand
		}{tag{ActionSyncState}, v})
	default:
		return nil, fmt.Errorf("unknown command type %T", c)
	}
}

// UnmarshalCommand decodes a flat JSON command object into its concrete
// variant. Unknown actions are a dispatch error, not a framing error:
// the connection survives them.
func UnmarshalCommand(data []byte) (Command, error) {
	var probe actionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed command object: %w", err)
	}

	var (
		cmd Command
		err error
	)
	switch probe.Action {
	case ActionInit:
		v := &InitCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionInitScript:
		v := &InitScriptCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionNavigate:
		v := &NavigateCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionEval:
		v := &EvalCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetTitle:
		v := &SetTitleCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetSize:
		v := &SetSizeCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetBounds:
		v := &SetBoundsCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionCenter:
		cmd = &CenterCommand{}
	case ActionMinimize:
		cmd = &MinimizeCommand{}
	case ActionToggleMaximize:
		cmd = &ToggleMaximizeCommand{}
	case ActionSetProgress:
		v := &SetProgressCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionShow:
		cmd = &ShowCommand{}
	case ActionHide:
		cmd = &HideCommand{}
	case ActionSetResizable:
		v := &SetResizableCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetFrameless:
		v := &SetFramelessCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetIcon:
		v := &SetIconCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionBind:
		v := &BindCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionReply:
		v := &ReplyCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionClose:
		cmd = &CloseCommand{}
	case ActionServeData:
		v := &ServeDataCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionUnserveData:
		v := &UnserveDataCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSetState:
		v := &SetStateCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	case ActionSyncState:
		v := &SyncStateCommand{}
		err = json.Unmarshal(data, v)
		cmd = v
	default:
		return nil, fmt.Errorf("unrecognized action %q", probe.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s command: %w", probe.Action, err)
	}
	return cmd, nil
}
