// Package mission turns world snapshots into per-entity commands. It runs
// the drone lifecycle (search, service, return home, done) and the victim
// random walk, one tick at a time on a single goroutine.
package mission

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/kinematics"
)

// Entity tags.
const (
	TagDrone  = "drone"
	TagVictim = "victim"
	TagBase   = "base"
)

// Sensor names.
const (
	SensorCamera = "camera"
	SensorBLE    = "ble"
	SensorVision = "vision"
)

// Entity is the per-tick view of one drone, victim or base.
type Entity struct {
	ID       string              `json:"id"`
	Tags     []string            `json:"tags"`
	Location orb.Point           `json:"location"`
	Speed    float64             `json:"speed"`
	Fuel     float64             `json:"fuel"` // Fraction remaining, 0–1
	Active   bool                `json:"active"`
	Sensors  map[string][]string `json:"sensors,omitempty"` // sensor → detected entity ids
}

// HasTag reports whether the entity carries tag.
func (e Entity) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// Subjects returns every entity id perceived by any of e's sensors. Sensors
// are visited in name order.
func (e Entity) Subjects() []string {
	names := make([]string, 0, len(e.Sensors))
	for name := range e.Sensors {
		names = append(names, name)
	}
	slices.Sort(names)
	var out []string
	for _, name := range names {
		out = append(out, e.Sensors[name]...)
	}
	return out
}

// Snapshot is the immutable world state for one tick.
type Snapshot struct {
	Tick     int      `json:"tick"`
	Time     float64  `json:"time"`
	Entities []Entity `json:"entities"`
}

// Tagged returns the entities carrying tag, sorted by id.
func (s Snapshot) Tagged(tag string) []Entity {
	var out []Entity
	for _, e := range s.Entities {
		if e.HasTag(tag) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// CommandKind enumerates the commands the runtime understands.
type CommandKind uint8

const (
	None CommandKind = iota
	GoTo
	Move
	Steer
	Stop
	GoHome
	ActivateAllSensors
	DeactivateAllSensors
	Done
)

var commandNames = [...]string{
	None:                 "None",
	GoTo:                 "GoTo",
	Move:                 "Move",
	Steer:                "Steer",
	Stop:                 "Stop",
	GoHome:               "GoHome",
	ActivateAllSensors:   "ActivateAllSensors",
	DeactivateAllSensors: "DeactivateAllSensors",
	Done:                 "Done",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", k)
}

// Command is one instruction for one entity.
type Command struct {
	Kind    CommandKind       `json:"kind"`
	Target  orb.Point         `json:"target,omitempty"`  // GoTo
	Limits  kinematics.Limits `json:"limits,omitempty"`  // GoTo; zero means the entity's own limits
	Vector  orb.Point         `json:"vector,omitempty"`  // Move: velocity vector
	Heading float64           `json:"heading,omitempty"` // Steer: radians
}

func (c Command) String() string {
	switch c.Kind {
	case GoTo:
		return fmt.Sprintf("GoTo(%.2f,%.2f)", c.Target[0], c.Target[1])
	case Move:
		return fmt.Sprintf("Move(%.2f,%.2f)", c.Vector[0], c.Vector[1])
	case Steer:
		return fmt.Sprintf("Steer(%.3f)", c.Heading)
	default:
		return c.Kind.String()
	}
}

// GoToCmd builds a bounded GoTo command.
func GoToCmd(target orb.Point, limits kinematics.Limits) Command {
	return Command{Kind: GoTo, Target: target, Limits: limits}
}

// CommandSet maps entity ids to the ordered commands for this tick.
type CommandSet map[string][]Command

func (cs CommandSet) add(id string, cmds ...Command) {
	cs[id] = append(cs[id], cmds...)
}

func (cs CommandSet) addKinds(id string, kinds ...CommandKind) {
	for _, k := range kinds {
		cs[id] = append(cs[id], Command{Kind: k})
	}
}

// Kinds returns the command kinds queued for id.
func (cs CommandSet) Kinds(id string) []CommandKind {
	out := make([]CommandKind, 0, len(cs[id]))
	for _, c := range cs[id] {
		out = append(out, c.Kind)
	}
	return out
}

// Event is a notable mission occurrence.
type Event struct {
	Tick        int     `json:"tick" db:"tick"`
	Time        float64 `json:"time" db:"time"`
	Entity      string  `json:"entity" db:"entity"`
	Category    string  `json:"category" db:"category"`
	Description string  `json:"description" db:"description"`
}

// Event categories.
const (
	EventReturn  = "return"
	EventDone    = "done"
	EventRescue  = "rescue"
	EventService = "service"
)
