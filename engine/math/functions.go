package math

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief An approximate representation of PI divided by 2. */
	K_HALF_PI float32 = 0.5 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

/**
 * @brief Converts provided degrees to radians.
 */
func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

/**
 * @brief Converts provided radians to degrees.
 */
func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG_MULTIPLIER
}

/**
 * @brief Converts value from the "old" range to the "new" range.
 *
 * @param value The value to be converted.
 * @param fromMin The minimum value of the old range.
 * @param fromMax The maximum value of the old range.
 * @param toMin The minimum value of the new range.
 * @param toMax The maximum value of the new range.
 * @return The converted value.
 */
func RangeConvert[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (((value - fromMin) * (toMax - toMin)) / (fromMax - fromMin)) + toMin
}

// Clamp limits f to [low, high].
func Clamp[T constraints.Ordered](f, low, high T) T {
	return min(max(f, low), high)
}

// Random is a seeded generator, so a scene built from it can be replayed.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Int32InRange returns a value in [min, max].
func (r *Random) Int32InRange(min, max int32) int32 {
	if max <= min {
		return min
	}
	return r.rng.Int31n(max-min+1) + min
}

// Float32InRange returns a value in [min, max).
func (r *Random) Float32InRange(min, max float32) float32 {
	return min + r.rng.Float32()*(max-min)
}
