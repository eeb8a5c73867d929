package privacy

import "regexp"

// patternSource is an uncompiled registry entry
type patternSource struct {
	piiType PIIType
	pattern string
}

// compiledPattern pairs a PII type with its compiled expression
type compiledPattern struct {
	piiType PIIType
	re      *regexp.Regexp
}

// defaultPatternSources lists the fixed pattern set, in AllTypes order.
// Go's regexp is RE2: no backreferences, linear-time matching.
var defaultPatternSources = []patternSource{
	// local-part@domain where the domain carries at least one dot
	{TypeEmail, `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},

	// (555) 123-4567, 555-123-4567, 555.123.4567, 555 123 4567, 5551234567
	{TypePhone, `(?:\(\d{3}\)\s?|\b\d{3}[-.\s]?)\d{3}[-.\s]?\d{4}\b`},

	{TypeSSN, `\b\d{3}-\d{2}-\d{4}\b`},

	// 13-19 digits, optionally separated by spaces or hyphens
	{TypeCreditCard, `\b(?:\d[ -]*?){13,19}\b`},
}

// compilePatterns builds the registry. The first failure aborts construction.
func compilePatterns(sources []patternSource) ([]compiledPattern, error) {
	patterns := make([]compiledPattern, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src.pattern)
		if err != nil {
			return nil, &PatternCompilationError{Type: src.piiType, Err: err}
		}
		patterns = append(patterns, compiledPattern{piiType: src.piiType, re: re})
	}
	return patterns, nil
}
