// Package lifecycle defines the fixed, ordered list of SDLC governance stages
// a project moves through.
package lifecycle

// Stages is the canonical stage order. Position in this slice is the stage's
// index; the status transition gate does not enforce forward-only movement,
// it only records direction.
var Stages = []string{
	"Initiative Submitted",
	"Business Case Approved",
	"Kick Off",
	"Requirements Sign-Off",
	"Design Approved",
	"Build Complete",
	"UAT Sign-Off",
	"Go Live",
}

// Initial returns the stage every new project starts in.
func Initial() string {
	return Stages[0]
}

// IsValid reports whether name is a known stage.
func IsValid(name string) bool {
	return IndexOf(name) >= 0
}

// IndexOf returns the position of a stage in the lifecycle, or -1 when the
// stage is unknown.
func IndexOf(name string) int {
	for i, s := range Stages {
		if s == name {
			return i
		}
	}
	return -1
}

// IsForward reports whether moving from one stage to another advances the
// lifecycle. Unknown stages are never forward.
func IsForward(from, to string) bool {
	fi, ti := IndexOf(from), IndexOf(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti > fi
}

// Next returns the stage after the given one, or "" when the stage is last or
// unknown.
func Next(name string) string {
	i := IndexOf(name)
	if i < 0 || i == len(Stages)-1 {
		return ""
	}
	return Stages[i+1]
}
