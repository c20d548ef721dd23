package lua

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/dispatch"
)

// DefaultOutputCapacity is the number of print records kept before the oldest is overwritten
const DefaultOutputCapacity = 100

// OutputRecord is one line produced by a script
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// ScriptError represents detailed Lua execution errors
type ScriptError struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *ScriptError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := fmt.Sprintf("Lua %s error", e.Type)
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s (%s)", prefix, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Underlying
}

// Is matches another *ScriptError of the same Type
func (e *ScriptError) Is(target error) bool {
	var other *ScriptError
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// Engine owns one Lua state. Every access to the state goes through the
// engine mutex; Go functions registered into the state run with it held.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	output *dispatch.RingChannel[OutputRecord]
}

// NewEngine creates an engine with print() captured into the output ring
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger: logger,
		output: dispatch.NewRingChannel[OutputRecord](DefaultOutputCapacity),
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrintCapture()
	return e
}

// DoWithState runs callback with exclusive access to the Lua state.
// Returns ErrClosed if the engine was closed.
func (e *Engine) DoWithState(callback func(L *lua.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return ErrClosed
	}
	return callback(e.state)
}

// ErrClosed is returned by engine calls after Close
var ErrClosed = errors.New("lua engine closed")

func (e *Engine) registerPrintCapture() {
	L := e.state
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)

		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				// tables, functions, threads, userdata go through tostring()
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		e.emit("stdout", strings.Join(parts, "\t")+"\n")
		return 0
	})
	L.SetGlobal("print")
}

func (e *Engine) emit(source, content string) {
	e.output.Send(OutputRecord{
		Content:   content,
		Timestamp: time.Now(),
		Source:    source,
	})
}

// Output returns the channel carrying captured script output
func (e *Engine) Output() <-chan OutputRecord {
	return e.output.C()
}

// DrainOutput returns every buffered output record without blocking
func (e *Engine) DrainOutput() []OutputRecord {
	var out []OutputRecord
	for {
		rec, ok := e.output.TryReceive()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

// popError converts the error message on top of the stack into a ScriptError
func popError(L *lua.State, errType, source string, cause error) *ScriptError {
	msg := "unknown Lua error"
	if L.GetTop() > 0 {
		if L.IsString(-1) {
			msg = L.ToString(-1)
		}
		L.Pop(1)
	} else if cause != nil {
		msg = cause.Error()
	}

	line := 0
	// chunk:LINE: message
	if parts := strings.SplitN(msg, ":", 3); len(parts) == 3 {
		if n, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && n == 1 {
			msg = strings.TrimSpace(parts[2])
		} else {
			line = 0
		}
	}

	return &ScriptError{Type: errType, Message: msg, Line: line, Source: source, Underlying: cause}
}

// LoadScriptFile loads and runs a Lua script from a file
func (e *Engine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content), filename)
}

// LoadScript compiles script and runs its top-level chunk, which typically
// defines handler functions as globals.
func (e *Engine) LoadScript(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &ScriptError{Type: "api", Message: "empty script", Source: name}
	}

	return e.DoWithState(func(L *lua.State) error {
		if status := L.LoadString(script); status != 0 {
			serr := popError(L, "syntax", name, nil)
			e.emit("stderr", serr.Error())
			return serr
		}
		if err := L.Call(0, 0); err != nil {
			serr := popError(L, "runtime", name, err)
			e.emit("stderr", serr.Error())
			return serr
		}
		return nil
	})
}

// HasFunction reports whether a global function with the given name exists
func (e *Engine) HasFunction(name string) bool {
	found := false
	_ = e.DoWithState(func(L *lua.State) error {
		L.GetGlobal(name)
		found = L.IsFunction(-1)
		L.Pop(1)
		return nil
	})
	return found
}

// CallFunction calls the global function name with args. A missing function
// is not an error; handled reports whether one was called. Supported argument
// types are string, int, int64, float64, bool, nil and map[string]any of those.
func (e *Engine) CallFunction(name string, args ...any) (handled bool, err error) {
	err = e.DoWithState(func(L *lua.State) error {
		top := L.GetTop()
		L.GetGlobal(name)
		if !L.IsFunction(-1) {
			L.SetTop(top)
			return nil
		}
		handled = true

		for _, a := range args {
			if perr := pushValue(L, a); perr != nil {
				L.SetTop(top)
				return &ScriptError{Type: "api", Message: perr.Error(), Source: name}
			}
		}
		if cerr := L.Call(len(args), 0); cerr != nil {
			serr := popError(L, "runtime", name, cerr)
			L.SetTop(top)
			e.emit("stderr", serr.Error())
			return serr
		}
		return nil
	})
	return handled, err
}

func pushValue(L *lua.State, v any) error {
	switch val := v.(type) {
	case nil:
		L.PushNil()
	case string:
		L.PushString(val)
	case int:
		L.PushInteger(int64(val))
	case int64:
		L.PushInteger(val)
	case float64:
		L.PushNumber(val)
	case bool:
		L.PushBoolean(val)
	case map[string]any:
		L.NewTable()
		for k, item := range val {
			L.PushString(k)
			if err := pushValue(L, item); err != nil {
				L.Pop(2)
				return err
			}
			L.SetTable(-3)
		}
	case []string:
		L.NewTable()
		for i, item := range val {
			L.PushInteger(int64(i + 1))
			L.PushString(item)
			L.SetTable(-3)
		}
	default:
		return fmt.Errorf("unsupported Lua argument type %T", v)
	}
	return nil
}

// SetGlobal sets a global variable in the Lua state
func (e *Engine) SetGlobal(name string, value any) error {
	return e.DoWithState(func(L *lua.State) error {
		if err := pushValue(L, value); err != nil {
			return fmt.Errorf("global %s: %w", name, err)
		}
		L.SetGlobal(name)
		return nil
	})
}

// GetGlobal returns a string, number or boolean global; anything else is nil
func (e *Engine) GetGlobal(name string) any {
	var result any
	_ = e.DoWithState(func(L *lua.State) error {
		L.GetGlobal(name)
		defer L.Pop(1)

		switch L.Type(-1) {
		case lua.LUA_TNUMBER:
			result = L.ToNumber(-1)
		case lua.LUA_TSTRING:
			result = L.ToString(-1)
		case lua.LUA_TBOOLEAN:
			result = L.ToBoolean(-1)
		}
		return nil
	})
	return result
}

// Close releases the Lua state and the output channel
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
		e.output.Close()
	}
}
