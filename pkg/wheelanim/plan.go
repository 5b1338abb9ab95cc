// Package wheelanim computes the deterministic spin animation that every
// client renders for a spin. The winner is chosen server-side before the
// animation starts; the plan only decides how the wheel gets there, and the
// same spin id always produces the same plan.
package wheelanim

import (
	"errors"
	"hash/fnv"
	"math"
	"time"
)

const (
	// PointerAngle is the fixed pointer position (12 o'clock, canvas coordinates).
	PointerAngle = -math.Pi / 2

	fullTurn = 2 * math.Pi

	minTurns      = 7
	maxTurns      = 11
	jitterRatio   = 0.16
	minDurationMs = 4200
	maxDurationMs = 6800
)

var ErrInvalidWinner = errors.New("winner index out of range")

// Plan describes a single spin animation.
type Plan struct {
	SpinID         string  `json:"spinId"`
	EntryCount     int     `json:"entryCount"`
	WinnerIndex    int     `json:"winnerIndex"`
	SegmentAngle   float64 `json:"segmentAngle"`
	PointerAngle   float64 `json:"pointerAngle"`
	Jitter         float64 `json:"jitter"`
	Turns          int     `json:"turns"`
	FromRotation   float64 `json:"fromRotation"`
	TargetRotation float64 `json:"targetRotation"`
	DurationMs     int64   `json:"durationMs"`
	Easing         string  `json:"easing"`
}

// HashToRange maps input onto [min, max) with FNV-1a, in steps of 1/10000.
func HashToRange(input string, min, max float64) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(input))
	normalized := float64(h.Sum32()%10000) / 10000
	return min + normalized*(max-min)
}

// EaseOutCubic is the easing curve clients apply to normalized time t.
func EaseOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// NewPlan builds the animation that lands segment winnerIndex of n under the
// pointer, starting from the wheel's current rotation.
func NewPlan(spinID string, winnerIndex, n int, fromRotation float64) (Plan, error) {
	if n <= 0 || winnerIndex < 0 || winnerIndex >= n {
		return Plan{}, ErrInvalidWinner
	}

	segment := fullTurn / float64(n)
	winnerCenter := (float64(winnerIndex) + 0.5) * segment
	jitter := HashToRange(spinID, -segment*jitterRatio, segment*jitterRatio)
	turns := int(math.Floor(HashToRange(spinID+"turns", minTurns, maxTurns)))

	target := float64(turns)*fullTurn + (PointerAngle - (winnerCenter + jitter))
	if target <= fromRotation {
		delta := fromRotation - target
		target += (math.Floor(delta/fullTurn) + 1) * fullTurn
	}

	return Plan{
		SpinID:         spinID,
		EntryCount:     n,
		WinnerIndex:    winnerIndex,
		SegmentAngle:   segment,
		PointerAngle:   PointerAngle,
		Jitter:         jitter,
		Turns:          turns,
		FromRotation:   fromRotation,
		TargetRotation: target,
		DurationMs:     int64(math.Round(HashToRange(spinID+"dur", minDurationMs, maxDurationMs))),
		Easing:         "easeOutCubic",
	}, nil
}

// Duration returns the animation length.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationMs) * time.Millisecond
}

// Rotation returns the wheel rotation after elapsed time. A reconnecting
// client uses it to resume at the same frame as everyone else.
func (p Plan) Rotation(elapsed time.Duration) float64 {
	if p.DurationMs <= 0 || elapsed >= p.Duration() {
		return p.TargetRotation
	}
	t := math.Max(0, float64(elapsed)/float64(p.Duration()))
	return p.FromRotation + (p.TargetRotation-p.FromRotation)*EaseOutCubic(t)
}

// SegmentAt returns the index of the segment under the pointer at the given rotation.
func SegmentAt(rotation float64, n int) int {
	if n <= 0 {
		return -1
	}
	local := math.Mod(PointerAngle-rotation, fullTurn)
	if local < 0 {
		local += fullTurn
	}
	idx := int(local / (fullTurn / float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx
}
