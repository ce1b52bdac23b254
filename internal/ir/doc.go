// Package ir provides the literal value types shared by every nestql layer.
//
// ir imports nothing internal. Request models, the SQL compiler and the
// execution store all exchange filter operands and batch keys as IRValue.
//
// Key design constraints:
//   - NO float types (use int64); literals must compare exactly
//   - canonical JSON (RFC 8785, NFC strings) is the only encoding used for fingerprints
package ir
