package shell

// State is the lifecycle state of the application window.
type State int

const (
	Uninitialized State = iota
	LoadingDev
	LoadingProd
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case LoadingDev:
		return "loading(dev)"
	case LoadingProd:
		return "loading(prod)"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Open reports whether a window exists in this state.
func (s State) Open() bool {
	return s == LoadingDev || s == LoadingProd || s == Ready
}
