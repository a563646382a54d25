package analysis

import "strings"

// Porter is the classic Porter suffix-stripping stemmer. Input must be lower case.
// Each step is exported so individual rule groups can be checked in isolation.
type Porter struct{}

// Stem runs all five steps. Words shorter than three letters are returned unchanged.
func (Porter) Stem(word string) string {
	if len(word) < 3 {
		return word
	}
	return Step5(Step4(Step3(Step2(Step1(word)))))
}

type suffixRule struct {
	suffix      string
	replacement string
	// cond, when set, must hold for the stem before the rule applies.
	cond func(stem string) bool
}

var step2Rules = []suffixRule{
	{suffix: "ational", replacement: "ate"},
	{suffix: "tional", replacement: "tion"},
	{suffix: "enci", replacement: "ence"},
	{suffix: "anci", replacement: "ance"},
	{suffix: "izer", replacement: "ize"},
	{suffix: "bli", replacement: "ble"},
	{suffix: "alli", replacement: "al"},
	{suffix: "entli", replacement: "ent"},
	{suffix: "eli", replacement: "e"},
	{suffix: "ousli", replacement: "ous"},
	{suffix: "ization", replacement: "ize"},
	{suffix: "ation", replacement: "ate"},
	{suffix: "ator", replacement: "ate"},
	{suffix: "alism", replacement: "al"},
	{suffix: "iveness", replacement: "ive"},
	{suffix: "fulness", replacement: "ful"},
	{suffix: "ousness", replacement: "ous"},
	{suffix: "aliti", replacement: "al"},
	{suffix: "iviti", replacement: "ive"},
	{suffix: "biliti", replacement: "ble"},
	{suffix: "logi", replacement: "log"},
}

var step3Rules = []suffixRule{
	{suffix: "icate", replacement: "ic"},
	{suffix: "ative"},
	{suffix: "alize", replacement: "al"},
	{suffix: "iciti", replacement: "ic"},
	{suffix: "ical", replacement: "ic"},
	{suffix: "ful"},
	{suffix: "ness"},
}

var step4Rules = []suffixRule{
	{suffix: "al"},
	{suffix: "ance"},
	{suffix: "ence"},
	{suffix: "er"},
	{suffix: "ic"},
	{suffix: "able"},
	{suffix: "ible"},
	{suffix: "ant"},
	{suffix: "ement"},
	{suffix: "ment"},
	{suffix: "ent"},
	{suffix: "ion", cond: func(stem string) bool {
		return strings.HasSuffix(stem, "s") || strings.HasSuffix(stem, "t")
	}},
	{suffix: "ou"},
	{suffix: "ism"},
	{suffix: "ate"},
	{suffix: "iti"},
	{suffix: "ous"},
	{suffix: "ive"},
	{suffix: "ize"},
}

// Step1 removes plurals and -ed/-ing, then turns a terminal y into i.
func Step1(word string) string {
	return step1c(step1b(step1a(word)))
}

func step1a(w string) string {
	switch {
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

func step1b(w string) string {
	if strings.HasSuffix(w, "eed") {
		if Measure(w[:len(w)-3]) > 0 {
			return w[:len(w)-1]
		}
		return w
	}
	if stem, ok := strings.CutSuffix(w, "ed"); ok && containsVowel(stem) {
		return step1bTidy(stem)
	}
	if stem, ok := strings.CutSuffix(w, "ing"); ok && containsVowel(stem) {
		return step1bTidy(stem)
	}
	return w
}

func step1bTidy(w string) string {
	switch {
	case strings.HasSuffix(w, "at"), strings.HasSuffix(w, "bl"), strings.HasSuffix(w, "iz"):
		return w + "e"
	case endsDoubleConsonant(w):
		if last := w[len(w)-1]; last != 'l' && last != 's' && last != 'z' {
			return w[:len(w)-1]
		}
		return w
	case Measure(w) == 1 && endsCVC(w):
		return w + "e"
	}
	return w
}

func step1c(w string) string {
	if stem, ok := strings.CutSuffix(w, "y"); ok && containsVowel(stem) {
		return stem + "i"
	}
	return w
}

// Step2 maps double suffixes to single ones when m(stem) > 0.
func Step2(word string) string {
	return applyRules(word, step2Rules, 0)
}

// Step3 handles -ic-, -full, -ness and similar when m(stem) > 0.
func Step3(word string) string {
	return applyRules(word, step3Rules, 0)
}

// Step4 strips derivational suffixes when m(stem) > 1.
func Step4(word string) string {
	return applyRules(word, step4Rules, 1)
}

// Step5 removes a final e and reduces a final ll.
func Step5(word string) string {
	return step5b(step5a(word))
}

func step5a(w string) string {
	stem, ok := strings.CutSuffix(w, "e")
	if !ok {
		return w
	}
	m := Measure(stem)
	if m > 1 || (m == 1 && !endsCVC(stem)) {
		return stem
	}
	return w
}

func step5b(w string) string {
	if strings.HasSuffix(w, "ll") && Measure(w) > 1 {
		return w[:len(w)-1]
	}
	return w
}

// applyRules applies the first rule whose suffix (and condition) matches.
// A matching rule whose stem measure is too small leaves the word unchanged.
func applyRules(w string, rules []suffixRule, minMeasure int) string {
	for _, r := range rules {
		stem, ok := strings.CutSuffix(w, r.suffix)
		if !ok {
			continue
		}
		if r.cond != nil && !r.cond(stem) {
			continue
		}
		if Measure(stem) > minMeasure {
			return stem + r.replacement
		}
		return w
	}
	return w
}

// Measure returns m, the number of vowel-group to consonant-group transitions in
// word after its leading consonants.
func Measure(word string) int {
	n, i := 0, 0
	for i < len(word) && isConsonant(word, i) {
		i++
	}
	for i < len(word) {
		for i < len(word) && !isConsonant(word, i) {
			i++
		}
		if i >= len(word) {
			break
		}
		for i < len(word) && isConsonant(word, i) {
			i++
		}
		n++
	}
	return n
}

// isConsonant reports whether word[i] is a consonant. y is a consonant at the
// start of a word or after a vowel.
func isConsonant(word string, i int) bool {
	switch word[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	case 'y':
		if i == 0 {
			return true
		}
		return !isConsonant(word, i-1)
	}
	return true
}

func containsVowel(word string) bool {
	for i := range len(word) {
		if !isConsonant(word, i) {
			return true
		}
	}
	return false
}

func endsDoubleConsonant(word string) bool {
	n := len(word)
	return n >= 2 && word[n-1] == word[n-2] && isConsonant(word, n-1)
}

// endsCVC reports consonant-vowel-consonant at the end, where the final consonant is not w, x or y.
func endsCVC(word string) bool {
	n := len(word)
	if n < 3 {
		return false
	}
	if !isConsonant(word, n-3) || isConsonant(word, n-2) || !isConsonant(word, n-1) {
		return false
	}
	switch word[n-1] {
	case 'w', 'x', 'y':
		return false
	}
	return true
}
