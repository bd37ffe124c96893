package stage

// Stage names in dependency order. Each stage consumes the artifact of the
// one before it; capture consumes the work item itself.
const (
	Capture = "capture"
	Reduce  = "reduce"
	Meta    = "meta"
	Claims  = "claims"
	Merge   = "merge"
	Publish = "publish"
)

var order = []string{Capture, Reduce, Meta, Claims, Merge, Publish}

// Order returns the pipeline stages in topological order.
func Order() []string {
	cp := make([]string, len(order))
	copy(cp, order)
	return cp
}

// Upstream returns the stage whose artifact feeds the given stage. The empty
// string means the stage has no upstream artifact (capture).
func Upstream(name string) string {
	for i, stage := range order {
		if stage == name {
			if i == 0 {
				return ""
			}
			return order[i-1]
		}
	}
	return ""
}

// Valid reports whether name is a known pipeline stage.
func Valid(name string) bool {
	for _, stage := range order {
		if stage == name {
			return true
		}
	}
	return false
}
