// Package pattern synthesizes the point-to-point phases of the four
// collective patterns: all-to-all, hypercube, tensor-parallel ring and
// pipeline-parallel pairing. Every function is pure apart from the random
// source handed to Hypercube.
package pattern
