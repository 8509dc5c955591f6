package dialogue

import (
	"regexp"
	"strings"
)

// The pattern matches below are deliberately simple keyword and regex
// heuristics. Denial always wins over confirmation when both match, so
// ambiguous input never triggers a save.

var (
	confirmationKeywords = []string{
		"yes", "yeah", "yep", "sure", "ok", "okay", "please do",
		"save it", "go ahead", "definitely", "absolutely",
	}
	denialKeywords = []string{
		"no", "not", "don't", "dont", "nope", "nah",
		"cancel", "never mind", "nevermind", "skip",
	}
	completionPhrases = []string{
		"done", "no more", "that's all", "thats all", "finished", "nothing else",
	}
	saveOfferPhrases = []string{
		"save this memory", "save this story", "save it for you",
		"shall i save", "should i save", "want me to save",
		"would you like me to save", "like to save",
	}
)

// yearToken matches a four-digit year or a month name, the cheap signal
// that the user anchored the story in time.
var yearToken = regexp.MustCompile(`(?i)\b((19|20)\d{2}|january|february|march|april|may|june|july|august|september|october|november|december)\b`)

// placePhrase matches a capitalized phrase following a locative
// preposition, e.g. "in Chicago", "at Lake Tahoe".
var placePhrase = regexp.MustCompile(`\b(?:in|at|near|around)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)`)

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsDenial reports whether the message contains a denial keyword.
func IsDenial(text string) bool {
	return containsAny(text, denialKeywords)
}

// IsConfirmation reports an unambiguous confirmation: a confirmation
// keyword with no denial keyword present.
func IsConfirmation(text string) bool {
	return containsAny(text, confirmationKeywords) && !IsDenial(text)
}

// IsCompletion reports whether the message signals no more media.
func IsCompletion(text string) bool {
	return containsAny(text, completionPhrases)
}

// OffersSave reports whether a generated reply asks the user to confirm
// saving the memory.
func OffersSave(reply string) bool {
	return containsAny(reply, saveOfferPhrases)
}

// HasDateToken reports whether the message carries a date-like token.
func HasDateToken(text string) bool {
	return yearToken.MatchString(text)
}

// HasPlaceToken reports whether the message carries a location-like
// phrase.
func HasPlaceToken(text string) bool {
	return placePhrase.MatchString(text)
}

// PlaceFrom extracts the first location-like phrase, or "".
func PlaceFrom(text string) string {
	if m := placePhrase.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// DateFrom extracts the first date-like token, or "".
func DateFrom(text string) string {
	return yearToken.FindString(text)
}
