package nanodc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// SizeMode is the size restriction of a legacy search.
type SizeMode int

const (
	SizeDontCare SizeMode = iota
	SizeAtLeast
	SizeAtMost
)

// ParseLegacySearch builds a query from a legacy search: a '$' or space
// separated term string, a size restriction and a search type. A TypeTTH
// search carries "TTH:<base32>" as its text.
func ParseLegacySearch(text string, sizeMode SizeMode, size int64, fileType SearchType) (SearchQuery, error) {
	if fileType == TypeTTH {
		encoded, ok := strings.CutPrefix(strings.TrimSpace(text), "TTH:")
		if !ok {
			return SearchQuery{}, fmt.Errorf("hash search without TTH: prefix: %q", text)
		}
		hash, err := ParseHashRef(encoded)
		if err != nil {
			return SearchQuery{}, fmt.Errorf("invalid hash search: %w", err)
		}
		return SearchQuery{Hash: &hash}, nil
	}

	q := SearchQuery{
		Include: strings.FieldsFunc(text, func(r rune) bool {
			return r == '$' || unicode.IsSpace(r)
		}),
		Type: fileType,
	}
	if fileType == TypeDirectory {
		q.DirectoriesOnly = true
		q.Type = TypeAny
	}

	switch sizeMode {
	case SizeAtLeast:
		q.MinSize = size
	case SizeAtMost:
		q.MaxSize = &size
	}
	return q, nil
}

// adcUnescaper reverses ADC parameter escaping.
var adcUnescaper = strings.NewReplacer(`\s`, " ", `\n`, "\n", `\\`, `\`)

// ParseADCSearch builds a query from the parameters of an ADC search, e.g.
// ["ANfoo", "NObar", "EXmp3", "GE1024", "TY1"]. Unknown parameters are
// ignored.
func ParseADCSearch(params []string) (SearchQuery, error) {
	var q SearchQuery
	for _, param := range params {
		if len(param) < 2 {
			continue
		}
		code, value := param[:2], adcUnescaper.Replace(param[2:])

		switch code {
		case "AN":
			q.Include = append(q.Include, value)
		case "NO":
			q.Exclude = append(q.Exclude, value)
		case "EX":
			q.Extensions = append(q.Extensions, value)
		case "GE", "LE", "EQ":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil || size < 0 {
				return SearchQuery{}, fmt.Errorf("invalid %s size %q", code, value)
			}
			switch code {
			case "GE":
				q.MinSize = size
			case "LE":
				q.MaxSize = &size
			default:
				q.MinSize, q.MaxSize = size, &size
			}
		case "TR":
			hash, err := ParseHashRef(value)
			if err != nil {
				return SearchQuery{}, fmt.Errorf("invalid TR: %w", err)
			}
			q.Hash = &hash
		case "TY":
			switch value {
			case "1":
				q.DirectoriesOnly = false
			case "2":
				q.DirectoriesOnly = true
			default:
				return SearchQuery{}, fmt.Errorf("invalid TY %q", value)
			}
		}
	}
	return q, nil
}
