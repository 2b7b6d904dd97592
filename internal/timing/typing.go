package timing

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// KeyEvent is the kind of a typing trace step.
type KeyEvent string

const (
	KeyType      KeyEvent = "type"
	KeyBackspace KeyEvent = "backspace"
	KeyPause     KeyEvent = "pause"
)

// TypingStep is one point of a typing trace: wait Delay, perform Event,
// after which the field contains Text.
type TypingStep struct {
	Event KeyEvent      `json:"event"`
	Char  string        `json:"char,omitempty"`
	Text  string        `json:"text"`
	Delay time.Duration `json:"delay"`
}

const (
	retypeProbability     = 0.02
	hesitationProbability = 0.7
)

var (
	typoHold        = Range{Min: 150 * time.Millisecond, Max: 400 * time.Millisecond}
	backspaceDelay  = Range{Min: 80 * time.Millisecond, Max: 160 * time.Millisecond}
	wordPause       = Range{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond}
	sentencePause   = Range{Min: 300 * time.Millisecond, Max: 900 * time.Millisecond}
	hesitationPause = Range{Min: 800 * time.Millisecond, Max: 2500 * time.Millisecond}
	retypeThink     = Range{Min: 400 * time.Millisecond, Max: 1200 * time.Millisecond}
	hesitationEvery = IntRange{Min: 8, Max: 12}
)

// SimulateTyping returns the keystroke trace for text using the session
// persona. The last step's Text always equals text.
func (m *Model) SimulateTyping(text string) []TypingStep {
	p := m.Persona()
	t := &typist{
		src:      m.fast,
		interval: charInterval(p.TypingWPM),
		typoRate: p.TypoRate,
	}
	t.nextHesitation = hesitationEvery.Draw(t.src)

	runes := []rune(text)
	for i, r := range runes {
		if !unicode.IsSpace(r) && chance(t.src, t.typoRate) {
			t.typo(r)
		}
		t.key(r)

		if unicode.IsSpace(r) && i > 0 && !unicode.IsSpace(runes[i-1]) {
			t.words++
			t.pause(wordPause)
			if t.words >= t.nextHesitation {
				if chance(t.src, hesitationProbability) {
					t.pause(hesitationPause)
				}
				t.nextHesitation = t.words + hesitationEvery.Draw(t.src)
			}
			if chance(t.src, retypeProbability) {
				t.retype(IntRange{Min: 1, Max: 3}.Draw(t.src))
			}
		}
		if r == '.' || r == '!' || r == '?' {
			t.pause(sentencePause)
		}
	}
	return t.steps
}

// charInterval converts words per minute into a per-character interval,
// using the conventional five characters per word.
func charInterval(wpm float64) time.Duration {
	if wpm <= 0 {
		wpm = 40
	}
	return time.Duration(float64(time.Minute) / (wpm * 5))
}

type typist struct {
	src            Source
	interval       time.Duration
	typoRate       float64
	buf            []rune
	steps          []TypingStep
	words          int
	nextHesitation int
}

func (t *typist) keyDelay() time.Duration {
	return time.Duration(float64(t.interval) * between(t.src, 0.7, 1.3))
}

func (t *typist) key(r rune) {
	t.buf = append(t.buf, r)
	t.steps = append(t.steps, TypingStep{Event: KeyType, Char: string(r), Text: string(t.buf), Delay: t.keyDelay()})
}

func (t *typist) backspace() {
	if len(t.buf) == 0 {
		return
	}
	t.buf = t.buf[:len(t.buf)-1]
	t.steps = append(t.steps, TypingStep{Event: KeyBackspace, Text: string(t.buf), Delay: backspaceDelay.Draw(t.src)})
}

func (t *typist) pause(r Range) {
	t.steps = append(t.steps, TypingStep{Event: KeyPause, Text: string(t.buf), Delay: r.Draw(t.src)})
}

// typo types a neighboring key, notices it, and deletes it.
func (t *typist) typo(intended rune) {
	t.key(neighborKey(intended, t.src))
	t.pause(typoHold)
	t.backspace()
}

// retype deletes the last n words and types them again.
func (t *typist) retype(n int) {
	typed := string(t.buf)
	trimmed := strings.TrimRightFunc(typed, unicode.IsSpace)
	cut := len(trimmed)
	for i := 0; i < n && cut > 0; i++ {
		idx := strings.LastIndexFunc(trimmed[:cut], unicode.IsSpace)
		if idx < 0 {
			cut = 0
			break
		}
		_, size := utf8.DecodeRuneInString(trimmed[idx:])
		cut = idx + size
		if i < n-1 {
			cut = len(strings.TrimRightFunc(trimmed[:cut], unicode.IsSpace))
		}
	}
	removed := []rune(typed[cut:])
	if len(removed) == 0 {
		return
	}
	t.pause(retypeThink)
	for range removed {
		t.backspace()
	}
	for _, r := range removed {
		t.key(r)
	}
}

var qwertyRows = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm"}

// neighborKey returns a key adjacent to r on a QWERTY row, preserving case.
func neighborKey(r rune, src Source) rune {
	lower := unicode.ToLower(r)
	for _, row := range qwertyRows {
		idx := strings.IndexRune(row, lower)
		if idx < 0 {
			continue
		}
		var candidates []rune
		if idx > 0 {
			candidates = append(candidates, rune(row[idx-1]))
		}
		if idx < len(row)-1 {
			candidates = append(candidates, rune(row[idx+1]))
		}
		n := candidates[IntRange{Min: 0, Max: len(candidates) - 1}.Draw(src)]
		if unicode.IsUpper(r) {
			return unicode.ToUpper(n)
		}
		return n
	}
	if unicode.IsDigit(r) {
		if r == '9' {
			return '8'
		}
		return r + 1
	}
	return r
}
