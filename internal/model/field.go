package model

import "github.com/rotisserie/eris"

// FieldName identifies one of the reconciled provider fields.
type FieldName string

const (
	FieldPhone         FieldName = "phone"
	FieldAddress       FieldName = "address"
	FieldSpecialty     FieldName = "specialty"
	FieldLicenseNo     FieldName = "license_no"
	FieldLicenseExpiry FieldName = "license_expiry"
)

// FieldAccessor binds a FieldName to typed accessors on Provider.
type FieldAccessor struct {
	Name FieldName
	Get  func(p *Provider) string
	Set  func(p *Provider, v string)
}

// fieldRegistry lists the reconciled fields in reconciliation order.
var fieldRegistry = []FieldAccessor{
	{
		Name: FieldPhone,
		Get:  func(p *Provider) string { return p.Phone },
		Set:  func(p *Provider, v string) { p.Phone = v },
	},
	{
		Name: FieldAddress,
		Get:  func(p *Provider) string { return p.Address },
		Set:  func(p *Provider, v string) { p.Address = v },
	},
	{
		Name: FieldSpecialty,
		Get:  func(p *Provider) string { return p.Specialty },
		Set:  func(p *Provider, v string) { p.Specialty = v },
	},
	{
		Name: FieldLicenseNo,
		Get:  func(p *Provider) string { return p.LicenseNo },
		Set:  func(p *Provider, v string) { p.LicenseNo = v },
	},
	{
		Name: FieldLicenseExpiry,
		Get:  func(p *Provider) string { return p.LicenseExpiry },
		Set:  func(p *Provider, v string) { p.LicenseExpiry = v },
	},
}

var fieldsByName = func() map[FieldName]*FieldAccessor {
	m := make(map[FieldName]*FieldAccessor, len(fieldRegistry))
	for i := range fieldRegistry {
		m[fieldRegistry[i].Name] = &fieldRegistry[i]
	}
	return m
}()

// Fields returns the reconciled fields in reconciliation order.
func Fields() []FieldAccessor {
	out := make([]FieldAccessor, len(fieldRegistry))
	copy(out, fieldRegistry)
	return out
}

// Accessor returns the accessor for name, or nil if name is not reconciled.
func Accessor(name FieldName) *FieldAccessor {
	return fieldsByName[name]
}

// Valid reports whether f is one of the reconciled fields.
func (f FieldName) Valid() bool {
	_, ok := fieldsByName[f]
	return ok
}

// ParseFieldName validates s as a reconciled field name.
func ParseFieldName(s string) (FieldName, error) {
	f := FieldName(s)
	if !f.Valid() {
		return "", eris.Errorf("model: unknown field %q", s)
	}
	return f, nil
}

// Value reads field f from p. Unknown fields read as empty.
func (p *Provider) Value(f FieldName) string {
	if a := Accessor(f); a != nil {
		return a.Get(p)
	}
	return ""
}

// SetValue writes v into field f of p.
func (p *Provider) SetValue(f FieldName, v string) error {
	a := Accessor(f)
	if a == nil {
		return eris.Errorf("model: unknown field %q", f)
	}
	a.Set(p, v)
	return nil
}
