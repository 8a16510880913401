//go:build !release

package descriptor

// Set writes are checked against their layout unless built with -tags release.
const validateWrites = true
