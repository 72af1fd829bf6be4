package expression

import "fmt"

type templatePart struct {
	text string
	expr bool
}

// parseTemplate splits s into literal text and {expr} fragments. Braces inside
// quoted strings and nested map literals do not close a fragment.
func parseTemplate(s string) ([]templatePart, error) {
	var parts []templatePart
	var lit []rune
	runes := []rune(s)

	flush := func() {
		if len(lit) > 0 {
			parts = append(parts, templatePart{text: string(lit)})
			lit = lit[:0]
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				lit = append(lit, '{')
				i++
				continue
			}
			end, err := fragmentEnd(runes, i+1)
			if err != nil {
				return nil, err
			}
			flush()
			parts = append(parts, templatePart{text: string(runes[i+1 : end]), expr: true})
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				lit = append(lit, '}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit = append(lit, r)
		}
	}
	flush()
	return parts, nil
}

// fragmentEnd returns the index of the brace closing the fragment that starts
// at start.
func fragmentEnd(runes []rune, start int) (int, error) {
	depth := 0
	var quote rune
	for i := start; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			switch r {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '{':
			depth++
		case '}':
			if depth == 0 {
				if i == start {
					return 0, fmt.Errorf("empty expression at offset %d", start-1)
				}
				return i, nil
			}
			depth--
		}
	}
	return 0, fmt.Errorf("unterminated expression starting at offset %d", start-1)
}
