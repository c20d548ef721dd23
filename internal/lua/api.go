package lua

import (
	"github.com/aarzilli/golua/lua"
	"github.com/srg/blelink/internal/device"
)

// Controller is the command surface exposed to scripts as the global
// "blelink" table. *manager.Manager satisfies it.
type Controller interface {
	StartScan() error
	StopScan() error
	Connect(address string) error
	Disconnect() error
	DiscoverServices() error
	State() device.ConnectionState
	ActiveAddress() (string, bool)
	Peripherals() []device.Peripheral
	Services() []device.Service
	SetNameFilter(prefix string)
	ClearNameFilter()
}

// RegisterAPI installs the blelink table. Commands return true on success
// or nil plus an error message, following the Lua io library convention.
//
// Commands must not be called from a handler running synchronously on the
// manager's notifying goroutine; wrap the ScriptObserver in a
// dispatch.QueuedObserver when scripts issue commands.
func RegisterAPI(e *Engine, ctl Controller) error {
	return e.DoWithState(func(L *lua.State) error {
		L.NewTable()

		pushCommand(L, "scan", func(L *lua.State) error { return ctl.StartScan() })
		pushCommand(L, "stop", func(L *lua.State) error { return ctl.StopScan() })
		pushCommand(L, "disconnect", func(L *lua.State) error { return ctl.Disconnect() })
		pushCommand(L, "discover", func(L *lua.State) error { return ctl.DiscoverServices() })
		pushCommand(L, "connect", func(L *lua.State) error {
			if L.Type(1) != lua.LUA_TSTRING {
				L.RaiseError("connect() expects an address string")
			}
			return ctl.Connect(L.ToString(1))
		})
		pushCommand(L, "filter", func(L *lua.State) error {
			if L.GetTop() == 0 || L.IsNil(1) {
				ctl.ClearNameFilter()
				return nil
			}
			if L.Type(1) != lua.LUA_TSTRING {
				L.RaiseError("filter() expects a prefix string or nil")
			}
			ctl.SetNameFilter(L.ToString(1))
			return nil
		})

		L.PushString("state")
		L.PushGoFunction(func(L *lua.State) int {
			L.PushString(ctl.State().String())
			if addr, ok := ctl.ActiveAddress(); ok {
				L.PushString(addr)
				return 2
			}
			return 1
		})
		L.SetTable(-3)

		// devices() -> { {address=..., name=..., rssi=...}, ... } in admission order
		L.PushString("devices")
		L.PushGoFunction(func(L *lua.State) int {
			L.NewTable()
			for i, p := range ctl.Peripherals() {
				L.PushInteger(int64(i + 1))
				pushPeripheral(L, p)
				L.SetTable(-3)
			}
			return 1
		})
		L.SetTable(-3)

		// services() -> { {id=..., attributes={...}}, ... } in discovery order
		L.PushString("services")
		L.PushGoFunction(func(L *lua.State) int {
			L.NewTable()
			for i, svc := range ctl.Services() {
				L.PushInteger(int64(i + 1))
				L.NewTable()

				L.PushString("id")
				L.PushString(svc.ID)
				L.SetTable(-3)

				L.PushString("attributes")
				L.NewTable()
				for j, attr := range svc.Attributes {
					L.PushInteger(int64(j + 1))
					L.PushString(attr.ID)
					L.SetTable(-3)
				}
				L.SetTable(-3)

				L.SetTable(-3)
			}
			return 1
		})
		L.SetTable(-3)

		L.SetGlobal("blelink")
		return nil
	})
}

// pushCommand adds name to the table on top of the stack
func pushCommand(L *lua.State, name string, fn func(L *lua.State) error) {
	L.PushString(name)
	L.PushGoFunction(func(L *lua.State) int {
		if err := fn(L); err != nil {
			L.PushNil()
			L.PushString(err.Error())
			return 2
		}
		L.PushBoolean(true)
		return 1
	})
	L.SetTable(-3)
}

func pushPeripheral(L *lua.State, p device.Peripheral) {
	L.NewTable()

	L.PushString("address")
	L.PushString(p.Address)
	L.SetTable(-3)

	if p.Name != "" {
		L.PushString("name")
		L.PushString(p.Name)
		L.SetTable(-3)
	}

	L.PushString("rssi")
	L.PushInteger(int64(p.RSSI))
	L.SetTable(-3)
}
