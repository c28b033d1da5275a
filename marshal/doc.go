// Package marshal converts values between the host's dynamic representation
// and the engine's statically typed field values.
//
// Every conversion site names its expected type explicitly; the layer never
// infers a target type from the runtime shape of a host value. Integer
// conversions honor the field's declared bit width and fail with
// range_error instead of silently wrapping. Dates are normalized to UTC.
// Multi-valued fields are ordered sequences and preserve order end-to-end.
package marshal
