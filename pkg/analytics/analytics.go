// Package analytics turns text into weighted terms for the local search index.
package analytics

import (
	"strings"
	"unicode"
)

type Analytics struct{}

// englishStopwords are dropped from term counts.
const englishStopwords = `
a about above across after afterwards again against all almost alone along
already also although always am among an and another any anyone anything
anyway anywhere are aren't around as at back be became because become been
before behind being below beside besides between beyond both but by can can't
cannot could couldn't did didn't do does doesn't doing don't done down during
each either else enough etc even ever every everyone everything few for from
further had hadn't has hasn't have haven't having he he'd he'll he's her here
here's hers herself him himself his how however i i'd i'll i'm i've if in into
is isn't it it's its itself just keep last least less let let's like made make
many may maybe me might mine more most mostly much must my myself neither never
next no nobody none nor not nothing now nowhere of off often on once one only
onto or other others otherwise our ours ourselves out over own per perhaps
please put rather re same see seem seemed seems several she she'd she'll she's
should shouldn't since so some someone something sometimes somewhere still
such take than that that's the their theirs them themselves then there there's
therefore these they they'd they'll they're they've this those through thus to
together too toward towards under until up upon us use very via was wasn't we
we'd we'll we're we've well were weren't what what's when where where's whether
which while who who's whose why with within without won't would wouldn't yet
you you'd you'll you're you've your yours yourself yourselves
`

// siteNoise are words every walkthrough page carries: navigation, markup
// left in the dumps and the site's own name.
const siteNoise = `
click link menu page pages website site home homepage search loading
http https www com html shtml img src alt jpg png gif title amp quot lt gt
gamersky
`

var commonWords = wordSet(englishStopwords, siteNoise)

func wordSet(lists ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range strings.Fields(list) {
			set[w] = struct{}{}
		}
	}
	return set
}

// cjkStopwords are single characters too common in Chinese text to carry
// meaning on their own.
var cjkStopwords = map[rune]struct{}{
	'的': {}, '了': {}, '是': {}, '在': {}, '和': {}, '有': {}, '我': {}, '也': {},
	'就': {}, '不': {}, '都': {}, '而': {}, '及': {}, '与': {}, '着': {}, '或': {},
	'个': {}, '这': {}, '那': {}, '你': {}, '他': {}, '她': {}, '它': {}, '们': {},
	'吗': {}, '呢': {}, '吧': {}, '啊': {}, '把': {}, '被': {}, '从': {}, '对': {},
}

// IsStopword checks if a word is a common stopword that should be filtered out.
func IsStopword(word string) bool {
	_, exists := commonWords[strings.ToLower(word)]
	return exists
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// WordFrequency counts the terms of text. Latin words are lowercased and
// stopword filtered; runs of CJK characters, which carry no spaces, are split
// into overlapping bigrams (a lone character counts as itself).
func (a *Analytics) WordFrequency(text string) map[string]int {
	frequencies := make(map[string]int)

	var word []rune
	var run []rune
	flushWord := func() {
		if len(word) == 0 {
			return
		}
		w := strings.Trim(string(word), "'")
		word = word[:0]
		if _, exists := commonWords[w]; exists || w == "" {
			return
		}
		frequencies[w]++
	}
	flushRun := func() {
		switch {
		case len(run) == 1:
			if _, stop := cjkStopwords[run[0]]; !stop {
				frequencies[string(run)]++
			}
		case len(run) > 1:
			for i := 0; i+1 < len(run); i++ {
				_, s1 := cjkStopwords[run[i]]
				_, s2 := cjkStopwords[run[i+1]]
				if s1 && s2 {
					continue
				}
				frequencies[string(run[i:i+2])]++
			}
		}
		run = run[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flushWord()
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			flushRun()
			word = append(word, r)
		default:
			flushWord()
			flushRun()
		}
	}
	flushWord()
	flushRun()

	return frequencies
}

// Terms returns the distinct terms of text.
func (a *Analytics) Terms(text string) []string {
	frequencies := a.WordFrequency(text)
	terms := make([]string, 0, len(frequencies))
	for term := range frequencies {
		terms = append(terms, term)
	}
	return terms
}
