// Package config loads sweep scenarios from TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/alloc"
	"github.com/talgya/rescue-sweep/internal/engine"
	"github.com/talgya/rescue-sweep/internal/kinematics"
	"github.com/talgya/rescue-sweep/internal/mission"
	"github.com/talgya/rescue-sweep/internal/sandbox"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// ErrInvalid reports a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid config")

// DBPathEnv overrides Storage.DBPath when set.
const DBPathEnv = "RESCUE_DB_PATH"

type Config struct {
	Scenario ScenarioConfig    `toml:"scenario"`
	Grid     GridConfig        `toml:"grid"`
	Mission  MissionConfig     `toml:"mission"`
	Drone    DroneConfig       `toml:"drone"`
	Victim   kinematics.Limits `toml:"victim"`
	Sensors  sandbox.Sensors   `toml:"sensors"`
	Sweep    SweepConfig       `toml:"sweep"`
	Storage  StorageConfig     `toml:"storage"`
	Watch    WatchConfig       `toml:"watch"`
	Path     string            `toml:"-"`
}

type ScenarioConfig struct {
	ID      string `toml:"id"`
	Policy  string `toml:"policy"`
	Drones  int    `toml:"drones"`
	Victims int    `toml:"victims"`
}

type GridConfig struct {
	Rows            int     `toml:"rows"`
	Cols            int     `toml:"cols"`
	ZoneSize        float64 `toml:"zone_size"`
	HomeX           float64 `toml:"home_x"`
	HomeY           float64 `toml:"home_y"`
	Mask            string  `toml:"mask"`
	NoiseSeed       int64   `toml:"noise_seed"`
	BlockedFraction float64 `toml:"blocked_fraction"`
}

type MissionConfig struct {
	Turns      int     `toml:"turns"`
	TurnLength float64 `toml:"turn_length"`
	SubStep    float64 `toml:"sub_step"`
}

type DroneConfig struct {
	MaxSpeed     float64 `toml:"max_speed"`
	MaxAccel     float64 `toml:"max_accel"`
	ScanSpeed    float64 `toml:"scan_speed"`
	ScanAccel    float64 `toml:"scan_accel"`
	ServiceTicks int     `toml:"service_ticks"`
	Proximity    float64 `toml:"proximity"`
	FuelUsage    float64 `toml:"fuel_usage"`
}

type SweepConfig struct {
	Alpha     trial.Range `toml:"alpha"`
	Beta      trial.Range `toml:"beta"`
	Gamma     trial.Range `toml:"gamma"`
	Repeats   int         `toml:"repeats"`
	Shards    int         `toml:"shards"`
	Seed      int64       `toml:"seed"`
	SeedsFile string      `toml:"seeds_file"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type WatchConfig struct {
	Addr       string `toml:"addr"` // empty disables the websocket stream
	IntervalMS int    `toml:"interval_ms"`
}

// Default returns the 64x64 zone-14 scenario with 32 drones and 1024
// victims, sweeping alpha over [0, 1] in steps of 0.1.
func Default() Config {
	return Config{
		Scenario: ScenarioConfig{ID: "tracking", Policy: string(alloc.GlobalPriority), Drones: 32, Victims: 1024},
		Grid:     GridConfig{Rows: 64, Cols: 64, ZoneSize: 14, HomeX: 448, HomeY: 448},
		Mission:  MissionConfig{Turns: 81, TurnLength: 20, SubStep: 1},
		Drone: DroneConfig{
			MaxSpeed:     20,
			MaxAccel:     3,
			ScanSpeed:    6.7,
			ScanAccel:    1.4,
			ServiceTicks: 6,
			Proximity:    0.00001,
			FuelUsage:    0.0001,
		},
		Victim: kinematics.Limits{MaxSpeed: 1.4, MaxAccel: 2.5},
		Sensors: sandbox.Sensors{
			CameraRange: 10,
			BLERange:    10,
			VisionRange: 20,
			CameraUsage: 0.0002,
			BLEUsage:    0.0001,
		},
		Sweep: SweepConfig{
			Alpha:   trial.Range{Start: 0, Step: 0.1, End: 1, Inclusive: true},
			Beta:    trial.Fixed(0.6),
			Gamma:   trial.Fixed(0.6),
			Repeats: 12,
			Shards:  4,
		},
		Storage: StorageConfig{DBPath: "sweep.db"},
	}
}

// Load overlays the TOML file at path on Default, applies the environment
// override and validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		resolved, err := resolve(path)
		if err != nil {
			return Config{}, err
		}
		bytes, err := os.ReadFile(resolved)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
		}
		md, err := toml.Decode(string(bytes), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
		}
		cfg.Path = resolved
	}

	if v := os.Getenv(DBPathEnv); v != "" {
		cfg.Storage.DBPath = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(path, "~")
		trimmed = strings.TrimPrefix(trimmed, "/")
		path = filepath.Join(home, trimmed)
	}
	return filepath.Clean(path), nil
}

// Validate checks every value the sweep depends on.
func (c Config) Validate() error {
	if _, err := alloc.ParsePolicy(c.Scenario.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Scenario.Drones > 0, "scenario.drones must be positive"},
		{c.Scenario.Victims >= 0, "scenario.victims must not be negative"},
		{c.Grid.Rows > 0 && c.Grid.Cols > 0, "grid.rows and grid.cols must be positive"},
		{c.Grid.ZoneSize > 0, "grid.zone_size must be positive"},
		{c.Grid.HomeX >= 0 && c.Grid.HomeX <= float64(c.Grid.Cols)*c.Grid.ZoneSize &&
			c.Grid.HomeY >= 0 && c.Grid.HomeY <= float64(c.Grid.Rows)*c.Grid.ZoneSize, "grid home must lie inside the area"},
		{c.Grid.BlockedFraction >= 0 && c.Grid.BlockedFraction < 1, "grid.blocked_fraction must be in [0, 1)"},
		{c.Mission.Turns > 0, "mission.turns must be positive"},
		{c.Mission.TurnLength > 0, "mission.turn_length must be positive"},
		{c.Mission.SubStep >= 0, "mission.sub_step must not be negative"},
		{c.Drone.MaxSpeed > 0 && c.Drone.MaxAccel > 0, "drone max speed and acceleration must be positive"},
		{c.Drone.ScanSpeed > 0 && c.Drone.ScanAccel > 0, "drone scan speed and acceleration must be positive"},
		{c.Drone.ServiceTicks >= 0, "drone.service_ticks must not be negative"},
		{c.Drone.Proximity > 0, "drone.proximity must be positive"},
		{c.Drone.FuelUsage >= 0, "drone.fuel_usage must not be negative"},
		{c.Victim.MaxSpeed >= 0 && c.Victim.MaxAccel >= 0, "victim limits must not be negative"},
		{c.Sweep.Repeats > 0, "sweep.repeats must be positive"},
		{c.Sweep.Shards > 0, "sweep.shards must be positive"},
		{c.Watch.IntervalMS >= 0, "watch.interval_ms must not be negative"},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, ch.msg)
		}
	}
	ranges := []struct {
		name string
		r    trial.Range
	}{{"alpha", c.Sweep.Alpha}, {"beta", c.Sweep.Beta}, {"gamma", c.Sweep.Gamma}}
	for _, nr := range ranges {
		if err := nr.r.Validate(); err != nil {
			return fmt.Errorf("%w: sweep.%s: %v", ErrInvalid, nr.name, err)
		}
	}
	if total := c.Space().Total(); total < c.Sweep.Shards {
		return fmt.Errorf("%w: %d trials cannot fill %d shards", ErrInvalid, total, c.Sweep.Shards)
	}
	return nil
}

// Deadline is the mission length in simulated time.
func (c Config) Deadline() float64 {
	return float64(c.Mission.Turns) * c.Mission.TurnLength
}

// Space returns the parameter sweep.
func (c Config) Space() trial.Sweep {
	return trial.Sweep{
		Alpha:   c.Sweep.Alpha,
		Beta:    c.Sweep.Beta,
		Gamma:   c.Sweep.Gamma,
		Repeats: c.Sweep.Repeats,
	}
}

// EngineScenario converts the config into the scenario the sweep runner builds
// trials from. The policy must already be validated.
func (c Config) EngineScenario() engine.Scenario {
	policy, _ := alloc.ParsePolicy(c.Scenario.Policy)
	cruise := kinematics.Limits{MaxSpeed: c.Drone.MaxSpeed, MaxAccel: c.Drone.MaxAccel}
	return engine.Scenario{
		ID:        c.Scenario.ID,
		Policy:    policy,
		Rows:      c.Grid.Rows,
		Cols:      c.Grid.Cols,
		ZoneSize:  c.Grid.ZoneSize,
		Home:      orb.Point{c.Grid.HomeX, c.Grid.HomeY},
		MaskPath:  c.Grid.Mask,
		Blocked:   c.Grid.BlockedFraction,
		NoiseSeed: c.Grid.NoiseSeed,
		Mission: mission.Params{
			Deadline:     c.Deadline(),
			TickLength:   c.Mission.TurnLength,
			Cruise:       cruise,
			Scan:         kinematics.Limits{MaxSpeed: c.Drone.ScanSpeed, MaxAccel: c.Drone.ScanAccel},
			Victim:       c.Victim,
			ServiceTicks: c.Drone.ServiceTicks,
			Proximity:    c.Drone.Proximity,
		},
		World: sandbox.Config{
			Drones:     c.Scenario.Drones,
			Victims:    c.Scenario.Victims,
			Drone:      cruise,
			Victim:     c.Victim,
			FuelUsage:  c.Drone.FuelUsage,
			Sensors:    c.Sensors,
			TickLength: c.Mission.TurnLength,
			SubStep:    c.Mission.SubStep,
		},
	}
}

// Encode renders the config as TOML, for storing alongside a run.
func (c Config) Encode() (string, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return sb.String(), nil
}
