// Package fusion smooths raw positioning samples into the authoritative
// WorldState. A constant-velocity Kalman filter tracks latitude, longitude
// and their rates; an optional pedestrian dead-reckoning side channel counts
// steps from vertical acceleration.
package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bpriyal/s2sGeoAdapter/internal/sensor"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

const (
	// DefaultProcessNoise is the q used for the process noise covariance.
	DefaultProcessNoise = 0.1

	// initialCovariance dominates the zero prior so the first measurement
	// effectively overwrites it; no dedicated first-sample branch needed.
	initialCovariance = 1e6

	// dt clamp bounds, seconds. Stalled sensors and coarse timestamps must
	// not blow up the prediction step.
	minDT = 0.01
	maxDT = 1.0

	// minMeasurementVar floors the adaptive measurement noise.
	minMeasurementVar = 100.0

	// movingVelocityThreshold separates stationary jitter from motion, in
	// degrees/s on either axis.
	movingVelocityThreshold = 0.1

	// Step detector calibration.
	stepAccelThreshold = 15.0 // m/s^2, upward crossing on accel-Z
	stepMinIntervalMS  = 300

	// DefaultStepLengthM converts step count into estimated distance.
	DefaultStepLengthM = 0.7

	// maxPlausibleAccuracyM rejects absurd fixes outright.
	maxPlausibleAccuracyM = 1e4
)

// Filter is a 2D constant-velocity Kalman filter with adaptive measurement
// noise. State vector: (lat, lon, vlat, vlon). Not safe for concurrent use;
// the daemon owns one instance on its fusion thread.
type Filter struct {
	x *mat.VecDense // 4x1 state
	p *mat.Dense    // 4x4 covariance

	q           float64
	usePDR      bool
	stepLengthM float64

	stepCount    uint32
	lastStepMS   int64
	lastAccelZ   float64
	lastUpdateMS int64
	lastAltitude float64
}

// NewFilter returns a filter at the uncertainty-dominated initial state.
func NewFilter() *Filter {
	f := &Filter{
		q:           DefaultProcessNoise,
		stepLengthM: DefaultStepLengthM,
	}
	f.Reset()
	return f
}

// EnablePDR toggles the step-detection side channel.
func (f *Filter) EnablePDR(on bool) { f.usePDR = on }

// SetProcessNoise retunes q at runtime.
func (f *Filter) SetProcessNoise(q float64) { f.q = q }

// SetStepLength sets the mean step length used for distance estimation.
func (f *Filter) SetStepLength(m float64) { f.stepLengthM = m }

// Update runs one predict/correct cycle with the sample. Degenerate samples
// (non-finite coordinates or accuracy, out-of-range position, absurd
// accuracy) are dropped without touching the filter; Update reports whether
// the sample was accepted.
func (f *Filter) Update(s sensor.Sample) bool {
	if !validSample(s) {
		return false
	}

	dt := 0.1
	if f.lastUpdateMS > 0 {
		dt = float64(s.TimestampMS-f.lastUpdateMS) / 1000.0
	}
	if dt < minDT {
		dt = minDT
	}
	if dt > maxDT {
		dt = maxDT
	}
	f.lastUpdateMS = s.TimestampMS

	f.predict(dt)

	// Adapt measurement noise: a poor fix widens R so the filter leans on
	// its own motion model instead.
	r := math.Max(minMeasurementVar, s.Accuracy*s.Accuracy)
	f.correct(s.Latitude, s.Longitude, r)

	if f.usePDR && f.detectStep(s) {
		f.stepCount++
	}
	f.lastAltitude = s.Altitude
	return true
}

func validSample(s sensor.Sample) bool {
	for _, v := range [...]float64{s.Latitude, s.Longitude, s.Accuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return false
	}
	if s.Accuracy < 0 || s.Accuracy > maxPlausibleAccuracyM {
		return false
	}
	return true
}

// predict advances the state by the constant-velocity transition and grows
// the covariance by the process noise.
func (f *Filter) predict(dt float64) {
	a := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var ax mat.VecDense
	ax.MulVec(a, f.x)
	f.x.CopyVec(&ax)

	// Q = q*I with the position diagonals scaled down: position is trusted
	// more than velocity as an evolution model.
	q := mat.NewDiagDense(4, []float64{f.q * 1e-3, f.q * 1e-3, f.q, f.q})

	var ap, apat mat.Dense
	ap.Mul(a, f.p)
	apat.Mul(&ap, a.T())
	apat.Add(&apat, q)
	f.p.Copy(&apat)
}

// correct folds one (lat, lon) measurement with variance r into the state.
func (f *Filter) correct(lat, lon, r float64) {
	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	y := mat.NewVecDense(2, []float64{
		lat - f.x.AtVec(0),
		lon - f.x.AtVec(1),
	})

	var hp, s mat.Dense
	hp.Mul(h, f.p)
	s.Mul(&hp, h.T())
	s.Add(&s, mat.NewDiagDense(2, []float64{r, r}))

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return // singular innovation covariance, skip the correction
	}

	var pht, k mat.Dense
	pht.Mul(f.p, h.T())
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, y)
	f.x.AddVec(f.x, &ky)

	var kh mat.Dense
	kh.Mul(&k, h)
	ikh := identity4()
	ikh.Sub(ikh, &kh)
	var np mat.Dense
	np.Mul(ikh, f.p)
	f.p.Copy(&np)
}

func identity4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// detectStep is a threshold-and-interval peak detector on vertical
// acceleration. It never touches the filter state or covariance.
func (f *Filter) detectStep(s sensor.Sample) bool {
	crossed := f.lastAccelZ < stepAccelThreshold && s.AccelZ >= stepAccelThreshold
	f.lastAccelZ = s.AccelZ
	if !crossed {
		return false
	}
	if f.lastStepMS > 0 && s.TimestampMS-f.lastStepMS < stepMinIntervalMS {
		return false
	}
	f.lastStepMS = s.TimestampMS
	return true
}

// SmoothedState packages the filtered position as a WorldState. Altitude is
// not part of the 2D model and passes through from the latest accepted
// sample. Cell fields are left for the caller to assign.
func (f *Filter) SmoothedState() shm.WorldState {
	return shm.WorldState{
		SmoothedLat:        f.x.AtVec(0),
		SmoothedLon:        f.x.AtVec(1),
		SmoothedAlt:        f.lastAltitude,
		LastUpdateMS:       f.lastUpdateMS,
		IsMoving:           math.Abs(f.x.AtVec(2)) > movingVelocityThreshold || math.Abs(f.x.AtVec(3)) > movingVelocityThreshold,
		StepCount:          f.stepCount,
		EstimatedDistanceM: float64(f.stepCount) * f.stepLengthM,
	}
}

// StepCount returns the accumulated step count.
func (f *Filter) StepCount() uint32 { return f.stepCount }

// Reset restores the initial state: zero position and velocity, covariance
// back to the uncertainty-dominated prior, step count cleared. Used after a
// long GPS outage.
func (f *Filter) Reset() {
	f.x = mat.NewVecDense(4, nil)
	f.p = mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		f.p.Set(i, i, initialCovariance)
	}
	f.stepCount = 0
	f.lastStepMS = 0
	f.lastAccelZ = 0
	f.lastUpdateMS = 0
	f.lastAltitude = 0
}
