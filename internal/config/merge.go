package config

// DeepMerge overlays b on top of a without mutating either. Nested maps
// merge recursively; any other value, including slices, is replaced
// wholesale by the overlay.
func DeepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, bv := range b {
		av, ok := out[k]
		if !ok {
			out[k] = bv
			continue
		}
		am, aIsMap := asMap(av)
		bm, bIsMap := asMap(bv)
		if aIsMap && bIsMap {
			out[k] = DeepMerge(am, bm)
			continue
		}
		out[k] = bv
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		// TOML decoders sometimes produce interface-keyed maps.
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
