package mbql

// RewriteFields replaces every field reference id in the tree through the
// mapping. References absent from the mapping are left untouched (schema
// drift is tolerated, never invented around) and reported back so callers
// can log them. By-name references are skipped entirely.
func RewriteFields(n Node, fields map[int]int) (unresolved []int) {
	Walk(n, func(node Node) {
		ref, ok := node.(*FieldRef)
		if !ok {
			return
		}
		if !ref.ByName {
			if mapped, ok := fields[ref.ID]; ok {
				ref.ID = mapped
			} else {
				unresolved = append(unresolved, ref.ID)
			}
		}
		if ref.Options == nil {
			return
		}
		// A foreign-key hop rides on the reference as a source-field option.
		if src, ok := ref.Options.Get("source-field"); ok {
			if scalar, ok := src.(*Scalar); ok {
				if id, ok := AsInt(scalar.Val); ok {
					if mapped, ok := fields[id]; ok {
						scalar.Val = mapped
					} else {
						unresolved = append(unresolved, id)
					}
				}
			}
		}
	})
	return unresolved
}
