package analysis

import "sort"

// stopwords holds common English function words plus club and place names that
// dominate Premier League commentary without describing the play itself.
var stopwords = newSet(
	"about", "above", "after", "again", "against", "all", "am", "an", "and", "any",
	"are", "aren", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "cannot", "could", "couldn", "did", "didn",
	"do", "does", "doesn", "doing", "don", "down", "during", "each", "few", "for",
	"from", "further", "had", "hadn", "has", "hasn", "have", "haven", "having", "he",
	"her", "here", "hers", "herself", "him", "himself", "his", "how", "if", "in",
	"into", "is", "isn", "it", "its", "itself", "let", "me", "more", "most",
	"mustn", "my", "myself", "no", "nor", "not", "of", "off", "on", "once",
	"only", "or", "other", "ought", "our", "ours", "ourselves", "out", "over", "own",
	"same", "shan", "she", "should", "shouldn", "so", "some", "such", "than", "that",
	"the", "their", "theirs", "them", "themselves", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "very", "was", "wasn",
	"we", "were", "weren", "what", "when", "where", "which", "while", "who", "whom",
	"why", "with", "would", "wouldn", "you", "your", "yours", "yourself", "yourselves",
	"arsenal", "aston", "villa", "brighton", "albion", "burnley", "chelsea", "crystal",
	"palace", "everton", "fulham", "leeds", "leicester", "liverpool", "manchester", "city",
	"newcastle", "sheffield", "southampton", "tottenham", "hotspur", "west", "bromwich",
	"united", "ham", "wolverhampton", "wanderers", "brom",
)

func newSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// IsStopword reports whether term is in the stopword list.
func IsStopword(term string) bool {
	_, ok := stopwords[term]
	return ok
}

// Stopwords returns a sorted copy of the stopword list.
func Stopwords() []string {
	out := make([]string, 0, len(stopwords))
	for w := range stopwords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
