package model

import "strings"

// Identity names a party by either its email or its 10-digit phone number.
// Exactly one of the two fields is set.
type Identity struct {
	Email string
	Phone string
}

// IsEmail reports whether the identity is email based.
func (i Identity) IsEmail() bool { return i.Email != "" }

// Value returns whichever of email or phone is set.
func (i Identity) Value() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Phone
}

// Masked renders the identity for log lines without exposing it in full.
func (i Identity) Masked() string {
	v := i.Value()
	if i.IsEmail() {
		at := strings.IndexByte(v, '@')
		if at <= 1 {
			return "*" + v[at:]
		}
		return v[:1] + strings.Repeat("*", at-1) + v[at:]
	}
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// Matches reports whether the entry belongs to this identity.
func (i Identity) Matches(e WaitlistEntry) bool {
	if i.IsEmail() {
		return strings.EqualFold(e.HolderEmail, i.Email)
	}
	return e.HolderPhone == i.Phone
}
