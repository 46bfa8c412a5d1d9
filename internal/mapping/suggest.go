// Package mapping proposes column to field mappings and applies confirmed ones
// to raw rows.
package mapping

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rpattn/custimport/internal/domain"
)

// fieldSynonyms lists alternate header spellings seen in real exports, keyed
// by target field. Compared after normalization, so punctuation variants are
// covered by the canonical entries.
var fieldSynonyms = map[domain.Field][]string{
	domain.FieldExternalID:  {"external id", "customer id", "subscriber id", "record id", "ref", "reference"},
	domain.FieldFirstName:   {"first name", "firstname", "fname", "first", "given name", "forename"},
	domain.FieldLastName:    {"last name", "lastname", "lname", "last", "surname", "family name"},
	domain.FieldEmail:       {"email", "e mail", "email address", "mail", "contact email"},
	domain.FieldPhone:       {"phone", "phone number", "telephone", "mobile", "cell", "contact number"},
	domain.FieldCompany:     {"company", "organisation", "organization", "employer", "business name"},
	domain.FieldAddressLine: {"address", "address line", "street", "street address", "address 1"},
	domain.FieldCity:        {"city", "town", "locality"},
	domain.FieldState:       {"state", "province", "region", "county"},
	domain.FieldPostalCode:  {"postal code", "post code", "zip", "zip code", "postcode"},
	domain.FieldCountry:     {"country", "country code", "nation"},
	domain.FieldBirthDate:   {"birth date", "date of birth", "dob", "birthday", "born"},
	domain.FieldLatitude:    {"latitude", "lat"},
	domain.FieldLongitude:   {"longitude", "lng", "lon", "long"},
	domain.FieldNotes:       {"notes", "comments", "remarks", "description"},
}

// columnKind is a strong type signature inferred from sampled values.
type columnKind int

const (
	kindUnknown columnKind = iota
	kindDate
	kindEmail
	kindNumeric
	kindPostal
	kindPhone
)

// fieldKinds gives the expected signature per field, for the confidence boost.
var fieldKinds = map[domain.Field]columnKind{
	domain.FieldEmail:      kindEmail,
	domain.FieldBirthDate:  kindDate,
	domain.FieldLatitude:   kindNumeric,
	domain.FieldLongitude:  kindNumeric,
	domain.FieldPostalCode: kindPostal,
	domain.FieldPhone:      kindPhone,
}

const (
	minSuggestionScore = 0.5
	typeBoost          = 0.15
)

// Suggest proposes, for every field in the dictionary, the best-matching
// source column with a confidence in [0,1]. Each column is assigned to at most
// one field; fields with no plausible column come back with an empty source
// and zero confidence. Purely advisory.
func Suggest(headers []string, samples map[string][]string) []domain.FieldSuggestion {
	kinds := make(map[string]columnKind, len(headers))
	for _, header := range headers {
		kinds[header] = profileSamples(samples[header])
	}

	type candidate struct {
		field  domain.Field
		column string
		score  float64
		rank   int // exactness rank for tie-breaks: 0 exact, 1 prefix, 2 fuzzy
		order  int // column position, stable final tie-break
	}

	var candidates []candidate
	for _, field := range domain.KnownFields() {
		for idx, header := range headers {
			score, rank := matchScore(field, header)
			if score <= 0 {
				continue
			}
			if expected, ok := fieldKinds[field]; ok && kinds[header] == expected {
				score += typeBoost
				if score > 1 {
					score = 1
				}
			}
			if score < minSuggestionScore {
				continue
			}
			candidates = append(candidates, candidate{field: field, column: header, score: score, rank: rank, order: idx})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].order < candidates[j].order
	})

	best := make(map[domain.Field]candidate)
	usedColumns := make(map[string]bool)
	for _, cand := range candidates {
		if _, done := best[cand.field]; done {
			continue
		}
		if usedColumns[cand.column] {
			continue
		}
		best[cand.field] = cand
		usedColumns[cand.column] = true
	}

	suggestions := make([]domain.FieldSuggestion, 0, len(domain.KnownFields()))
	for _, field := range domain.KnownFields() {
		suggestion := domain.FieldSuggestion{Field: field}
		if cand, ok := best[field]; ok {
			suggestion.SourceColumn = cand.column
			suggestion.Confidence = cand.score
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions
}

// matchScore compares a header against a field's canonical name and synonyms.
// Exact matches beat prefix matches beat fuzzy ones.
func matchScore(field domain.Field, header string) (float64, int) {
	normalized := normalizeHeader(header)
	if normalized == "" {
		return 0, 0
	}

	names := append([]string{normalizeHeader(string(field))}, normalizedSynonyms(field)...)

	bestScore, bestRank := 0.0, 2
	for _, name := range names {
		if name == "" {
			continue
		}
		switch {
		case normalized == name:
			return 1.0, 0
		case strings.HasPrefix(normalized, name) || strings.HasPrefix(name, normalized):
			if bestScore < 0.9 {
				bestScore, bestRank = 0.9, 1
			}
		default:
			dist := levenshtein.ComputeDistance(normalized, name)
			longest := len(normalized)
			if len(name) > longest {
				longest = len(name)
			}
			if longest == 0 {
				continue
			}
			score := 1.0 - float64(dist)/float64(longest)
			if score >= 0.6 && score > bestScore {
				bestScore, bestRank = score, 2
			}
		}
	}
	return bestScore, bestRank
}

func normalizedSynonyms(field domain.Field) []string {
	raw := fieldSynonyms[field]
	out := make([]string, 0, len(raw))
	for _, synonym := range raw {
		out = append(out, normalizeHeader(synonym))
	}
	return out
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeHeader case-folds, strips diacritics, and collapses punctuation so
// "E-Mail", "e_mail", and "émail" all compare equal.
func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	if stripped, _, err := transform.String(diacriticStripper, header); err == nil {
		header = stripped
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range header {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// profileSamples detects a strong type signature across non-empty samples.
func profileSamples(samples []string) columnKind {
	seen := 0
	allDate, allEmail, allNumeric, allPostal, allPhone := true, true, true, true, true

	for _, sample := range samples {
		sample = strings.TrimSpace(sample)
		if sample == "" {
			continue
		}
		seen++
		if _, err := ParseDate(sample, ""); err != nil {
			allDate = false
		}
		if !looksLikeEmail(sample) {
			allEmail = false
		}
		if _, err := ParseLocalizedNumber(sample); err != nil {
			allNumeric = false
		}
		if !looksLikePostalCode(sample) {
			allPostal = false
		}
		if !looksLikePhone(sample) {
			allPhone = false
		}
	}

	if seen == 0 {
		return kindUnknown
	}
	switch {
	case allDate:
		return kindDate
	case allEmail:
		return kindEmail
	case allPostal:
		return kindPostal
	case allNumeric:
		return kindNumeric
	case allPhone:
		return kindPhone
	default:
		return kindUnknown
	}
}

func looksLikeEmail(value string) bool {
	at := strings.LastIndex(value, "@")
	if at < 1 || at >= len(value)-3 {
		return false
	}
	return strings.Contains(value[at+1:], ".")
}

func looksLikePostalCode(value string) bool {
	if len(value) < 4 || len(value) > 10 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksLikePhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7
}
