package reconcile

import (
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// convertField applies the column type overrides to a source column
// definition before it is created in the destination.
func (r *reconciler) convertField(fd vector.FieldDefn) vector.FieldDefn {
	name := fd.Type.String()
	if r.req.FieldTypesToString != nil {
		for _, s := range r.req.FieldTypesToString {
			if strings.EqualFold(s, name) || strings.EqualFold(s, "All") {
				fd.Type = vector.String
				fd.Width = 0
				break
			}
		}
	} else if r.req.MapFieldType != nil {
		target, ok := lookupFold(r.req.MapFieldType, name)
		if !ok {
			target, ok = lookupFold(r.req.MapFieldType, "All")
		}
		if ok {
			if t, err := vector.ParseFieldType(target); err == nil {
				fd.Type = t
				if t == vector.Integer {
					fd.Width = 0
				}
			} else {
				r.warnf("ignoring type mapping for field %q: %v", fd.Name, err)
			}
		}
	}

	if r.req.UnsetFieldWidth {
		fd.Width, fd.Precision = 0, 0
	}
	if r.req.ForceNullable {
		fd.Nullable = true
	}
	if r.req.UnsetDefault {
		fd.Default = nil
	}

	if caps := r.ds.Capabilities(); !caps.CanCreateFieldType(fd.Type) {
		switch {
		case fd.Type == vector.Integer64 && caps.CanCreateFieldType(vector.Real):
			r.warnf("the destination does not natively support Integer64 for field %q, converting it to Real", fd.Name)
			fd.Type = vector.Real
		default:
			r.warnf("the destination does not natively support %s for field %q, converting it to String", fd.Type, fd.Name)
			fd.Type = vector.String
		}
	}
	return fd
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
