package motion

import "math"

// Settings tunes the fusion algorithm. Defaults match typical console
// gamepad IMUs.
type Settings struct {
	// Stillness-based auto-calibration.
	MinStillnessSamples              int
	MinStillnessCollectionTime       float64 // seconds
	MinStillnessCorrectionTime       float64 // seconds
	MaxStillnessErrorDeg             float64
	StillnessSampleDeteriorationRate float64
	StillnessErrorClimbRate          float64
	StillnessErrorDropOnRecalibrate  float64
	StillnessCalibrationEaseInTime   float64
	StillnessCalibrationHalfTime     float64
	StillnessGyroDelta               float64 // deg/s
	StillnessAccelDelta              float64 // g

	// Sensor-fusion bias correction (cross product of consecutive accel
	// directions), substituted for the stillness bias on axes the
	// accelerometer can actually observe.
	SensorFusionEnabled                      bool
	SensorFusionCalibrationSmoothingStrength float64
	SensorFusionAngularAccelerationThreshold float64
	SensorFusionCalibrationEaseInTime        float64
	SensorFusionCalibrationHalfTime          float64
	SensorFusionMinAngularSpeed              float64

	// Gravity-vector correction (State.tick).
	GravityCorrectionShakinessMaxThreshold float64
	GravityCorrectionShakinessMinThreshold float64
	GravityCorrectionStillSpeed            float64 // rad/s
	GravityCorrectionShakySpeed            float64 // rad/s
	GravityCorrectionGyroFactor            float64
	GravityCorrectionGyroMinThreshold      float64 // deg/s
	GravityCorrectionGyroMaxThreshold      float64 // deg/s
	GravityCorrectionMinimumSpeed          float64 // rad/s

	SmoothAccelHalfLife float64 // seconds, decay of the shakiness tracker
}

// DefaultSettings returns the tuning used when a device type doesn't
// override it.
func DefaultSettings() Settings {
	return Settings{
		MinStillnessSamples:              10,
		MinStillnessCollectionTime:       0.5,
		MinStillnessCorrectionTime:       0.1,
		MaxStillnessErrorDeg:             3.0,
		StillnessSampleDeteriorationRate: 0.1,
		StillnessErrorClimbRate:          0.1,
		StillnessErrorDropOnRecalibrate:  0.5,
		StillnessCalibrationEaseInTime:   0.1,
		StillnessCalibrationHalfTime:     0.1,
		StillnessGyroDelta:               1.2,
		StillnessAccelDelta:              0.1,

		SensorFusionEnabled:                      true,
		SensorFusionCalibrationSmoothingStrength: 4.0,
		SensorFusionAngularAccelerationThreshold: 30.0,
		SensorFusionCalibrationEaseInTime:        0.1,
		SensorFusionCalibrationHalfTime:          0.1,
		SensorFusionMinAngularSpeed:              1.0,

		GravityCorrectionShakinessMaxThreshold: 0.4,
		GravityCorrectionShakinessMinThreshold: 0.01,
		GravityCorrectionStillSpeed:            0.5,
		GravityCorrectionShakySpeed:            0.1,
		GravityCorrectionGyroFactor:            0.1,
		GravityCorrectionGyroMinThreshold:      0.0,
		GravityCorrectionGyroMaxThreshold:      75.0,
		GravityCorrectionMinimumSpeed:          0.01,

		SmoothAccelHalfLife: 0.25,
	}
}

// GravityLength is the magnitude of gravity in accelerometer units (1g).
const GravityLength = 1.0

// Calibration accumulates gyro-bias samples while a device is known to be
// at rest (manual calibration mode). Call AddSample while still, then
// Bias to get the offset to subtract from live gyro readings.
type Calibration struct {
	gyroSum     V3
	accelMagSum float64
	numSamples  uint32
}

func (c *Calibration) AddSample(gyro V3, accel V3) {
	c.gyroSum = c.gyroSum.Add(gyro)
	c.accelMagSum += accel.Len()
	c.numSamples++
}

func (c *Calibration) Reset() { *c = Calibration{} }

// Bias returns the averaged gyro offset and accelerometer magnitude
// collected so far. With no samples it returns a zero offset and a unit
// accel magnitude, matching an uncalibrated device reporting 1g at rest.
func (c *Calibration) Bias() (offset V3, accelMagnitude float64) {
	if c.numSamples == 0 {
		return V3{}, 1.0
	}
	n := float64(c.numSamples)
	return c.gyroSum.Scale(1 / n), c.accelMagSum / n
}

// stillnessWindow tracks min/max/mean gyro and accel over a short rolling
// collection period, using Welford's online algorithm for the running
// means so no sample buffer is kept.
type stillnessWindow struct {
	minGyro, maxGyro, meanGyro    V3
	minAccel, maxAccel, meanAccel V3
	startAccel                    V3
	numSamples                    int
	timeSampled                   float64
}

func newStillnessWindow() stillnessWindow {
	return stillnessWindow{}
}

func (w *stillnessWindow) reset(remainder float64) {
	*w = stillnessWindow{timeSampled: remainder}
}

func (w *stillnessWindow) addSample(gyro, accel V3, dt float64) {
	if w.numSamples == 0 {
		w.minGyro, w.maxGyro, w.meanGyro = gyro, gyro, gyro
		w.minAccel, w.maxAccel, w.meanAccel = accel, accel, accel
		w.startAccel = accel
	} else {
		w.minGyro = w.minGyro.Min(gyro)
		w.maxGyro = w.maxGyro.Max(gyro)
		w.minAccel = w.minAccel.Min(accel)
		w.maxAccel = w.maxAccel.Max(accel)
	}
	w.numSamples++
	n := float64(w.numSamples)
	w.meanGyro = w.meanGyro.Add(gyro.Sub(w.meanGyro).Scale(1 / n))
	w.meanAccel = w.meanAccel.Add(accel.Sub(w.meanAccel).Scale(1 / n))
	w.timeSampled += dt
}

func (w *stillnessWindow) gyroDelta() float64 {
	return w.maxGyro.Sub(w.minGyro).Len()
}

func (w *stillnessWindow) accelDelta() float64 {
	return w.maxAccel.Sub(w.minAccel).Len()
}

// autoCalibration drives stillness-window based recalibration: while the
// controller reports low gyro/accel variance over a long enough window,
// the window's mean gyro reading is treated as the current bias.
type autoCalibration struct {
	window               stillnessWindow
	recalibrateThreshold float64
	timeSteadyStillness  float64
}

func newAutoCalibration(settings Settings) autoCalibration {
	return autoCalibration{
		window:               newStillnessWindow(),
		recalibrateThreshold: settings.StillnessGyroDelta,
	}
}

// addSample feeds one tick of raw sensor data and reports whether the
// window just produced a fresh calibration (in which case bias is valid
// and sampled is the window length that produced it).
func (a *autoCalibration) addSample(gyro, accel V3, dt float64, settings Settings) (bias V3, sampled float64, recalibrated bool) {
	a.window.addSample(gyro, accel, dt)

	longEnough := a.window.timeSampled >= settings.MinStillnessCollectionTime &&
		a.window.numSamples >= settings.MinStillnessSamples
	if !longEnough {
		return V3{}, 0, false
	}

	still := a.window.gyroDelta() <= a.recalibrateThreshold &&
		a.window.accelDelta() <= settings.StillnessAccelDelta

	if !still {
		a.timeSteadyStillness = 0
		a.recalibrateThreshold = math.Min(
			a.recalibrateThreshold+settings.StillnessErrorClimbRate*dt,
			settings.MaxStillnessErrorDeg,
		)
		a.window.reset(0)
		return V3{}, 0, false
	}

	sampled = a.window.timeSampled
	a.timeSteadyStillness += sampled
	bias = a.window.meanGyro
	if settings.SensorFusionEnabled {
		bias = sensorFusionBias(bias, a.window.startAccel, accel, sampled)
	}
	a.window.reset(0)

	if a.timeSteadyStillness < settings.MinStillnessCorrectionTime {
		return V3{}, 0, false
	}

	a.recalibrateThreshold = math.Max(
		a.recalibrateThreshold-settings.StillnessErrorDropOnRecalibrate,
		settings.StillnessGyroDelta,
	)
	return bias, sampled, true
}

// sensorFusionAxisStrengthThreshold is the per-axis accel-direction weight
// at or below which the stillness bias on that axis is corrected by the
// sensor-fusion estimate.
const sensorFusionAxisStrengthThreshold = 0.7

// sensorFusionBias estimates the angular velocity implied by the rotation
// of the accelerometer's direction between the start and end of the
// stillness window and subtracts it from stillnessBias on each axis
// where the current accel direction has too little weight to be trusted,
// i.e. the axis gravity's tilt is actually observable around.
func sensorFusionBias(stillnessBias, startAccel, currentAccel V3, timeSampled float64) V3 {
	if startAccel == (V3{}) || currentAccel == (V3{}) || timeSampled <= 0 {
		return stillnessBias
	}
	prevNormal := startAccel.Normalize()
	thisNormal := currentAccel.Normalize()

	angularVel := thisNormal.Cross(prevNormal)
	if angularVel.Len() > 0 {
		dot := clamp(thisNormal.Dot(prevNormal), -1, 1)
		angleDeg := math.Acos(dot) * 180 / math.Pi
		anglePerSecond := angleDeg / timeSampled
		angularVel = angularVel.Normalize().Scale(anglePerSecond)
	}

	axisStrength := thisNormal.Abs()
	fused := stillnessBias.Sub(angularVel)

	result := stillnessBias
	if axisStrength.X <= sensorFusionAxisStrengthThreshold {
		result.X = fused.X
	}
	if axisStrength.Y <= sensorFusionAxisStrengthThreshold {
		result.Y = fused.Y
	}
	if axisStrength.Z <= sensorFusionAxisStrengthThreshold {
		result.Z = fused.Z
	}
	return result
}

// State is the current fused orientation, gravity, and acceleration
// estimate for one motion-capable input component.
type State struct {
	Orientation Quat
	Accel       V3 // linear acceleration, device frame
	Gravity     V3 // gravity direction * GravityLength, device frame
	SmoothAccel V3 // decayed accel, used to measure shakiness
	Shakiness   float64

	calibration Calibration
	auto        autoCalibration
	manual      bool
}

// NewState returns a motion state with identity orientation and gravity
// pointing straight down, ready to integrate samples.
func NewState(settings Settings) *State {
	return &State{
		Orientation: Identity,
		Gravity:     V3{Y: -GravityLength},
		auto:        newAutoCalibration(settings),
	}
}

// BeginManualCalibration switches to manual bias accumulation: subsequent
// Process calls add their sample to the running average instead of
// fusing motion, until EndManualCalibration is called.
func (s *State) BeginManualCalibration() { s.manual = true }

// EndManualCalibration stops accumulating and keeps the averaged bias.
func (s *State) EndManualCalibration() { s.manual = false }

func (s *State) ResetCalibration() {
	s.calibration.Reset()
	s.auto = newAutoCalibration(DefaultSettings())
}

// Process fuses one gyro+accel sample (deg/s, g) over dt seconds,
// updating Orientation/Accel/Gravity/Shakiness in place, using
// auto-calibration via stillness detection unless manual calibration is
// active.
func (s *State) Process(settings Settings, gyroDegPerSec, accel V3, dt float64) {
	if dt <= 0 {
		return
	}
	if s.manual {
		s.calibration.AddSample(gyroDegPerSec, accel)
		return
	}

	if bias, sampled, ok := s.auto.addSample(gyroDegPerSec, accel, dt, settings); ok {
		// Lerp the fresh window bias into the current estimate by the
		// configured half-life, rather than replacing it outright.
		old, _ := s.calibration.Bias()
		blend := 1.0
		if settings.StillnessCalibrationHalfTime > 0 {
			blend = 1 - math.Exp2(-sampled/settings.StillnessCalibrationHalfTime)
		}
		s.calibration.gyroSum = old.Lerp(bias, blend)
		s.calibration.numSamples = 1
		s.calibration.accelMagSum = accel.Len()
	}

	offset, _ := s.calibration.Bias()
	gyro := gyroDegPerSec.Sub(offset)
	s.tick(settings, gyro, accel, dt)
}

// tick performs the per-sample integration: rotate orientation by the
// gyro reading, decay the shakiness tracker, pull gravity toward the
// accelerometer's inferred direction, and correct residual orientation
// error against that corrected gravity.
func (s *State) tick(settings Settings, gyroDegPerSec, accel V3, dt float64) {
	gyroRad := gyroDegPerSec.Scale(math.Pi / 180)
	delta := FromAngularVelocity(gyroRad, dt)
	s.Orientation = s.Orientation.Mul(delta).Normalize()

	invDelta := delta.Conjugate()

	rotatedSmooth := invDelta.RotateVector(s.SmoothAccel)
	smoothFactor := math.Exp2(-dt / settings.SmoothAccelHalfLife)
	s.SmoothAccel = rotatedSmooth.Lerp(accel, 1-smoothFactor)
	instantShake := accel.Sub(s.SmoothAccel).Len()
	s.Shakiness = math.Max(s.Shakiness*smoothFactor, instantShake)

	grav := invDelta.RotateVector(s.Gravity)

	if accel == (V3{}) {
		// No accelerometer signal: gravity just follows the gyro frame,
		// there is nothing to correct orientation against, and linear
		// acceleration is whatever the (absent) accelerometer reported.
		s.Gravity = grav
		s.Accel = accel
		return
	}

	accelDir := accel.Normalize()
	target := accelDir.Scale(-GravityLength)

	shakiness := clamp(
		invLerp(settings.GravityCorrectionShakinessMinThreshold,
			settings.GravityCorrectionShakinessMaxThreshold, s.Shakiness),
		0, 1)
	correctionSpeed := lerp(
		settings.GravityCorrectionStillSpeed,
		settings.GravityCorrectionShakySpeed,
		shakiness,
	)

	gyroSpeedDeg := gyroDegPerSec.Len()
	gyroFactor := clamp(
		invLerp(settings.GravityCorrectionGyroMinThreshold,
			settings.GravityCorrectionGyroMaxThreshold, gyroSpeedDeg),
		0, 1)
	maxSpeed := lerp(correctionSpeed, settings.GravityCorrectionMinimumSpeed,
		gyroFactor*settings.GravityCorrectionGyroFactor)
	if maxSpeed < settings.GravityCorrectionMinimumSpeed {
		maxSpeed = settings.GravityCorrectionMinimumSpeed
	}

	diff := target.Sub(grav)
	maxStep := maxSpeed * dt
	if diff.Len() <= maxStep || maxStep <= 0 {
		grav = target
	} else {
		grav = grav.Add(diff.Normalize().Scale(maxStep))
	}
	s.Gravity = grav

	// Correct the residual orientation error between world-space down and
	// the device-frame gravity estimate.
	worldDown := s.Orientation.Conjugate().RotateVector(s.Gravity).Normalize()
	down := V3{Y: -1}
	cosErr := clamp(down.Dot(worldDown), -1, 1)
	errAngle := math.Acos(cosErr)
	if errAngle > Epsilon {
		axis := down.Cross(worldDown)
		if axis.Len() > Epsilon {
			correction := FromAxisAngle(axis, errAngle)
			s.Orientation = s.Orientation.Mul(correction).Normalize()
		}
	}

	s.Accel = accel.Add(s.Gravity)
}
