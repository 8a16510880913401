//go:build release

package descriptor

const validateWrites = false
