// Package calibration implements the guided throttle calibration workflow.
// It contains:
//
//   - Step: the discrete steps of the calibration state machine
//   - Machine: the validity-checked transition functions
//   - Result / Status: the JSON contracts returned by the HTTP APIs and
//     printed by the CLI
//
// These types are shared across engine, daemon and client code to avoid
// duplicate definitions and keep JSON contracts consistent.
package calibration
