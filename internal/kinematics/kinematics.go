// Package kinematics estimates travel times under bounded acceleration and
// decides whether a drone can still afford a trip before the mission ends.
package kinematics

import "math"

// Limits bounds a vehicle's motion.
type Limits struct {
	MaxSpeed float64 `toml:"max_speed"`
	MaxAccel float64 `toml:"max_accel"`
}

// TimeToCross returns the time needed to cover distance starting at speed
// and ending at rest, using a trapezoidal velocity profile: accelerate
// toward maxSpeed, cruise, brake at maxAccel. Speeds above maxSpeed are
// treated as maxSpeed.
//
// When the vehicle is already too fast to stop inside distance, the braking
// time is returned.
func TimeToCross(distance, speed, maxSpeed, maxAccel float64) float64 {
	if distance < 0 {
		distance = -distance
	}
	if speed < 0 {
		speed = 0
	}
	if maxSpeed <= 0 || maxAccel <= 0 {
		if distance == 0 {
			return 0
		}
		return math.Inf(1)
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}

	brakeTime := speed / maxAccel
	brakeDist := speed*brakeTime - 0.5*maxAccel*brakeTime*brakeTime
	if brakeDist >= distance {
		return brakeTime
	}

	accelTime := (maxSpeed - speed) / maxAccel
	accelDist := speed*accelTime + 0.5*maxAccel*accelTime*accelTime
	fullBrakeTime := maxSpeed / maxAccel
	fullBrakeDist := 0.5 * maxSpeed * fullBrakeTime

	if accelDist+fullBrakeDist > distance {
		// Triangular profile: accelerate for tau, then brake to rest.
		tau := (math.Sqrt(speed*speed+maxAccel*(distance-brakeDist)) - speed) / maxAccel
		return 2*tau + brakeTime
	}

	cruise := (distance - accelDist - fullBrakeDist) / maxSpeed
	return accelTime + cruise + fullBrakeTime
}

// Time is TimeToCross under l.
func (l Limits) Time(distance, speed float64) float64 {
	return TimeToCross(distance, speed, l.MaxSpeed, l.MaxAccel)
}
