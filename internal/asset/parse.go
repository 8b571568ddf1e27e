package asset

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	specialPrefix = "special_"
	unboundedTok  = "x"
)

// Parse parses an asset filename such as "01-12-23-12-[Advent].gif" into an
// Identifier. Any leading directory is ignored. Parse is pure: the same
// input always yields the same Identifier or the same error.
//
// Special-case ids are only checked for shape here; whether a resolver is
// registered for them is decided by Resolver.Resolve.
func Parse(filename string) (Identifier, error) {
	base := filepath.Base(filename)

	stem, format, err := splitFormat(base)
	if err != nil {
		return Identifier{}, err
	}

	head, label, err := splitLabel(base, stem)
	if err != nil {
		return Identifier{}, err
	}

	var id Identifier
	if strings.HasPrefix(head, specialPrefix) {
		id, err = parseSpecial(base, strings.TrimPrefix(head, specialPrefix))
	} else {
		id, err = parseDates(base, head)
	}
	if err != nil {
		return Identifier{}, err
	}

	id.Label = label
	id.Format = format
	return id, nil
}

func splitFormat(base string) (string, Format, error) {
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || strings.ContainsRune(base[dot:], ']') {
		return "", "", &ParseError{Filename: base, Reason: "missing file extension", Err: ErrBadFormat}
	}
	ext := base[dot+1:]
	format, ok := allowedFormats[ext]
	if !ok {
		return "", "", &ParseError{Filename: base, Token: ext, Reason: "extension must be gif or png", Err: ErrBadFormat}
	}
	return base[:dot], format, nil
}

// splitLabel separates "<fields>-[<label>]" into its two halves.
func splitLabel(base, stem string) (string, string, error) {
	open := strings.IndexByte(stem, '[')
	if open < 0 || !strings.HasSuffix(stem, "]") {
		return "", "", malformed(base, stem, "label must be enclosed in [ ]")
	}
	if open == 0 || stem[open-1] != '-' {
		return "", "", malformed(base, stem, "label must follow a '-' separator")
	}
	label := stem[open+1 : len(stem)-1]
	if strings.IndexFunc(label, unicode.IsPrint) < 0 {
		return "", "", malformed(base, "["+label+"]", "label must contain at least one printable character")
	}
	return stem[:open-1], label, nil
}

func parseSpecial(base, code string) (Identifier, error) {
	if len(code) != 2 || !isASCIILetter(code[0]) || !isASCIILetter(code[1]) {
		return Identifier{}, malformed(base, code, "special case id must be two letters")
	}
	return Identifier{Kind: KindSpecialCase, SpecialID: code}, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func parseDates(base, head string) (Identifier, error) {
	tokens := strings.Split(head, "-")

	switch len(tokens) {
	case 2:
		month, err := parseMonth(base, tokens[1])
		if err != nil {
			return Identifier{}, err
		}
		day, err := parseDay(base, tokens[0], month)
		if err != nil {
			return Identifier{}, err
		}
		if day == Unbounded {
			return Identifier{Kind: KindSingleMonth, StartDay: Unbounded, StartMonth: month}, nil
		}
		return Identifier{Kind: KindSingleDate, StartDay: day, StartMonth: month}, nil

	case 4:
		startMonth, err := parseMonth(base, tokens[1])
		if err != nil {
			return Identifier{}, err
		}
		endMonth, err := parseMonth(base, tokens[3])
		if err != nil {
			return Identifier{}, err
		}
		startDay, err := parseDay(base, tokens[0], startMonth)
		if err != nil {
			return Identifier{}, err
		}
		endDay, err := parseDay(base, tokens[2], endMonth)
		if err != nil {
			return Identifier{}, err
		}
		kind := KindDateSpan
		if startDay == Unbounded && endDay == Unbounded {
			kind = KindMonthSpan
		}
		return Identifier{
			Kind:       kind,
			StartDay:   startDay,
			StartMonth: startMonth,
			EndDay:     endDay,
			EndMonth:   endMonth,
		}, nil

	default:
		return Identifier{}, malformed(base, head, fmt.Sprintf("expected 2 or 4 date fields, got %d", len(tokens)))
	}
}

func parseMonth(base, tok string) (time.Month, error) {
	if tok == unboundedTok {
		return 0, malformed(base, tok, "x is not allowed as a month")
	}
	n, ok := twoDigits(tok)
	if !ok {
		return 0, malformed(base, tok, "month must be two digits")
	}
	if n < 1 || n > 12 {
		return 0, malformed(base, tok, "month must be between 01 and 12")
	}
	return time.Month(n), nil
}

// parseDay validates a day token against the largest day month can have in
// any year, so 29-02 is accepted and 30-02 is not.
func parseDay(base, tok string, month time.Month) (Day, error) {
	if tok == unboundedTok {
		return Unbounded, nil
	}
	n, ok := twoDigits(tok)
	if !ok {
		return 0, malformed(base, tok, "day must be two digits or x")
	}
	if n < 1 || n > maxDayOf(month) {
		return 0, malformed(base, tok, fmt.Sprintf("day out of range for month %02d", int(month)))
	}
	return Day(n), nil
}

func twoDigits(tok string) (int, bool) {
	if len(tok) != 2 || tok[0] < '0' || tok[0] > '9' || tok[1] < '0' || tok[1] > '9' {
		return 0, false
	}
	return int(tok[0]-'0')*10 + int(tok[1]-'0'), true
}
