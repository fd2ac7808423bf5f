package vecna

import (
	"math/rand"
)

// homoglyphs is the fixed substitution table: each entry is visually close to
// the original glyph. Only letters and digits appear here; everything else is
// never touched.
var homoglyphs = map[rune][]rune{
	'a': {'а', '4', '@'}, 'A': {'А', '4'},
	'b': {'Ь', '6'}, 'B': {'В', '8'},
	'c': {'с', '('}, 'C': {'С', '('},
	'd': {'ԁ'}, 'D': {'Ɗ'},
	'e': {'е', '3'}, 'E': {'Е', '3'},
	'g': {'ɡ', '9'}, 'G': {'Ԍ', '6'},
	'h': {'һ'}, 'H': {'Н'},
	'i': {'і', '1', '!'}, 'I': {'І', '1'},
	'k': {'к'}, 'K': {'К'},
	'l': {'ӏ', '1'}, 'L': {'Ꮮ'},
	'm': {'м'}, 'M': {'М'},
	'n': {'п'}, 'N': {'И'},
	'o': {'о', '0'}, 'O': {'О', '0'},
	'p': {'р'}, 'P': {'Р'},
	'r': {'г'}, 'R': {'Я'},
	's': {'ѕ', '5', '$'}, 'S': {'Ѕ', '5'},
	't': {'т', '7'}, 'T': {'Т', '7'},
	'u': {'ц'}, 'U': {'Ц'},
	'v': {'ѵ'}, 'V': {'Ѵ'},
	'w': {'ш'}, 'W': {'Ш'},
	'x': {'х'}, 'X': {'Х'},
	'y': {'у'}, 'Y': {'У'},
	'z': {'2'}, 'Z': {'2'},
	'0': {'О'}, '1': {'l'}, '3': {'E'}, '5': {'S'}, '7': {'T'},
}

// Corrupt substitutes visually-similar glyphs into text. Guarantees, for any
// level in [0,1]:
//   - the output has the same rune count as the input
//   - at least half of the original characters are left unmodified
//   - whitespace and punctuation are never touched
//   - identical (text, level, seed) always produces identical output
func Corrupt(text string, level float64, seed int64) string {
	if text == "" {
		return text
	}
	level = clamp01(level)
	runes := []rune(text)

	// Indices eligible for substitution: only glyphs with a homoglyph entry.
	var eligible []int
	for i, r := range runes {
		if _, ok := homoglyphs[r]; ok {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return text
	}

	target := int(level*float64(len(eligible)) + 0.5)
	// Readability floor: never modify more than half of all characters.
	if floor := len(runes) / 2; target > floor {
		target = floor
	}
	if target > len(eligible) {
		target = len(eligible)
	}
	if target == 0 {
		return text
	}

	rng := rand.New(rand.NewSource(seed))
	for _, k := range rng.Perm(len(eligible))[:target] {
		i := eligible[k]
		alts := homoglyphs[runes[i]]
		runes[i] = alts[rng.Intn(len(alts))]
	}
	return string(runes)
}
