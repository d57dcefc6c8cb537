// Package calibration defines the types used by the tracking motor PWM
// calibration workflow. It contains:
//
//   - Mode: the device-reported motor state carried in every status line
//   - StatusLine: one parsed status report from the motor controller
//   - Bounds: the low/high PWM pair measured at 0.5x and 1.5x the nominal rate
//   - Phase and Status: the view model returned by the daemon HTTP API
//
// These types are shared across the protocol, calibrator, daemon, client and
// CLI code to keep JSON contracts consistent.
package calibration
