package humanize

import (
	"strings"
	"time"
	"unicode"
)

type keystroke struct {
	r         rune
	backspace bool
	delay     time.Duration
}

func (e *Emulator) planKeystrokes(text string) []keystroke {
	plan := make([]keystroke, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) && e.chance(e.profile.TypoChance) {
			if typo, ok := adjacentKey(r, e.randomInt); ok {
				plan = append(plan,
					keystroke{r: typo, delay: e.keyDelay(typo)},
					keystroke{backspace: true, delay: e.randomDuration(e.profile.TypoFixMin, e.profile.TypoFixMax)},
				)
			}
		}
		plan = append(plan, keystroke{r: r, delay: e.keyDelay(r)})
	}
	return plan
}

func (e *Emulator) keyDelay(r rune) time.Duration {
	d := e.randomDuration(e.profile.KeyDelayMin, e.profile.KeyDelayMax)
	if unicode.IsSpace(r) || strings.ContainsRune(".,;:!?@", r) {
		d += e.randomDuration(0, e.profile.PunctuationPause)
	}
	return d
}

var qwertyNeighbors = map[rune][]rune{
	'a': {'q', 'w', 's', 'z'},
	'b': {'v', 'g', 'h', 'n'},
	'c': {'x', 'd', 'f', 'v'},
	'd': {'s', 'e', 'r', 'f', 'c', 'x'},
	'e': {'w', 's', 'd', 'r'},
	'f': {'d', 'r', 't', 'g', 'v', 'c'},
	'g': {'f', 't', 'y', 'h', 'b', 'v'},
	'h': {'g', 'y', 'u', 'j', 'n', 'b'},
	'i': {'u', 'j', 'k', 'o'},
	'j': {'h', 'u', 'i', 'k', 'm', 'n'},
	'k': {'j', 'i', 'o', 'l', 'm'},
	'l': {'k', 'o', 'p'},
	'm': {'n', 'j', 'k'},
	'n': {'b', 'h', 'j', 'm'},
	'o': {'i', 'k', 'l', 'p'},
	'p': {'o', 'l'},
	'q': {'w', 'a'},
	'r': {'e', 'd', 'f', 't'},
	's': {'a', 'w', 'e', 'd', 'x', 'z'},
	't': {'r', 'f', 'g', 'y'},
	'u': {'y', 'h', 'j', 'i'},
	'v': {'c', 'f', 'g', 'b'},
	'w': {'q', 'a', 's', 'e'},
	'x': {'z', 's', 'd', 'c'},
	'y': {'t', 'g', 'h', 'u'},
	'z': {'a', 's', 'x'},
}

// adjacentKey returns a neighbouring key on a QWERTY layout, preserving case.
func adjacentKey(r rune, intn func(lo, hi int) int) (rune, bool) {
	neighbors, ok := qwertyNeighbors[unicode.ToLower(r)]
	if !ok || len(neighbors) == 0 {
		return 0, false
	}
	choice := neighbors[intn(0, len(neighbors)-1)]
	if unicode.IsUpper(r) {
		choice = unicode.ToUpper(choice)
	}
	return choice, true
}
