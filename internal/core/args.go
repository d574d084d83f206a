package core

// Args is a tool argument map as received from the model layer.
type Args map[string]any

// Clone copies the map one level deep. Nested map values are copied as
// well so canonicalization never mutates the caller's submaps; deeper
// structures are shared, which is safe because the engine only rewrites
// at the top two levels.
func (a Args) Clone() Args {
	if a == nil {
		return Args{}
	}
	out := make(Args, len(a))
	for k, v := range a {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the value under key if it is a string.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Map returns the value under key if it is a map.
func (a Args) Map(key string) (map[string]any, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Bool returns the value under key if it is a bool.
func (a Args) Bool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Flag reports whether key holds boolean true.
func (a Args) Flag(key string) bool {
	b, ok := a.Bool(key)
	return ok && b
}
