package tenancy

import "context"

type ctxKey string

const hospitalKey ctxKey = "carelink.hospital_id"

// WithHospitalID stores the hospital id in context.
func WithHospitalID(ctx context.Context, hospitalID string) context.Context {
	return context.WithValue(ctx, hospitalKey, hospitalID)
}

// HospitalIDFromContext extracts the hospital id if present.
func HospitalIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(hospitalKey)
	if val == nil {
		return "", false
	}
	hospitalID, ok := val.(string)
	return hospitalID, ok && hospitalID != ""
}
