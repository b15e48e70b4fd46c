package sql

import "strings"

// Parser is a character-cursor parser over a single SQL statement, in the
// same style the rest of this engine's compiler stages use: no separate
// tokenization pass, just a position and small lookahead helpers.
type Parser struct {
	input string
	idx   int
}

var keywordSet = map[string]bool{
	"select": true, "distinct": true, "all": true, "from": true, "where": true,
	"group": true, "by": true, "having": true, "order": true, "limit": true,
	"offset": true, "insert": true, "into": true, "values": true, "update": true,
	"set": true, "delete": true, "and": true, "or": true, "not": true,
	"join": true, "inner": true, "left": true, "right": true, "on": true,
	"as": true, "asc": true, "desc": true, "null": true, "true": true, "false": true,
}

func (p *Parser) skipSpace() {
	for p.idx < len(p.input) {
		c := p.input[p.idx]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.idx++
			continue
		}
		break
	}
}

func isSymStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSym(c byte) bool {
	return isSymStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// keyword attempts to consume one of kwds (case-insensitively) at the
// current position, requiring a token boundary afterward. It returns the
// matched keyword in lowercase, or "" if none matched.
func (p *Parser) keyword(kwds ...string) string {
	p.skipSpace()
	for _, kw := range kwds {
		n := len(kw)
		if p.idx+n > len(p.input) {
			continue
		}
		if !strings.EqualFold(p.input[p.idx:p.idx+n], kw) {
			continue
		}
		if p.idx+n < len(p.input) && isSym(p.input[p.idx+n]) {
			continue
		}
		p.idx += n
		return strings.ToLower(kw)
	}
	return ""
}

// peekKeyword reports whether one of kwds matches at the current position
// without consuming it.
func (p *Parser) peekKeyword(kwds ...string) bool {
	save := p.idx
	ok := p.keyword(kwds...) != ""
	p.idx = save
	return ok
}

// ident consumes an identifier: a symbol that is not a reserved keyword.
func (p *Parser) ident() (string, bool) {
	p.skipSpace()
	if p.idx >= len(p.input) || !isSymStart(p.input[p.idx]) {
		return "", false
	}
	start := p.idx
	for p.idx < len(p.input) && isSym(p.input[p.idx]) {
		p.idx++
	}
	word := p.input[start:p.idx]
	if keywordSet[strings.ToLower(word)] {
		p.idx = start
		return "", false
	}
	return word, true
}

// mustIdent is ident but raises a ParseError on failure.
func (p *Parser) mustIdent() (string, error) {
	id, ok := p.ident()
	if !ok {
		return "", NewParseError(p.idx, "expected identifier")
	}
	return id, nil
}

// number consumes an integer or floating-point literal.
func (p *Parser) number() (isFloat bool, intVal int64, floatVal float64, ok bool) {
	p.skipSpace()
	start := p.idx
	i := p.idx
	if i < len(p.input) && p.input[i] == '-' {
		i++
	}
	digitsStart := i
	for i < len(p.input) && isDigit(p.input[i]) {
		i++
	}
	if i == digitsStart {
		return false, 0, 0, false
	}
	float := false
	if i < len(p.input) && p.input[i] == '.' {
		float = true
		i++
		for i < len(p.input) && isDigit(p.input[i]) {
			i++
		}
	}
	text := p.input[start:i]
	p.idx = i
	if float {
		var f float64
		fmtSscanFloat(text, &f)
		return true, 0, f, true
	}
	var n int64
	fmtSscanInt(text, &n)
	return false, n, 0, true
}

// str consumes a single-quoted string literal with '' as an escaped quote.
func (p *Parser) str() (string, bool) {
	p.skipSpace()
	if p.idx >= len(p.input) || p.input[p.idx] != '\'' {
		return "", false
	}
	i := p.idx + 1
	var b strings.Builder
	for i < len(p.input) {
		if p.input[i] == '\'' {
			if i+1 < len(p.input) && p.input[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			p.idx = i + 1
			return b.String(), true
		}
		b.WriteByte(p.input[i])
		i++
	}
	return "", false
}

// sym consumes an exact literal symbol (operator or punctuation) at the
// current position, e.g. "(", ",", ">=".
func (p *Parser) sym(s string) bool {
	p.skipSpace()
	n := len(s)
	if p.idx+n > len(p.input) {
		return false
	}
	if p.input[p.idx:p.idx+n] != s {
		return false
	}
	p.idx += n
	return true
}

func (p *Parser) mustSym(s string) error {
	if !p.sym(s) {
		return NewParseError(p.idx, "expected %q", s)
	}
	return nil
}

func (p *Parser) atEnd() bool {
	p.skipSpace()
	return p.idx >= len(p.input)
}

func fmtSscanInt(s string, out *int64) {
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	var v int64
	for ; i < len(s); i++ {
		v = v*10 + int64(s[i]-'0')
	}
	if neg {
		v = -v
	}
	*out = v
}

func fmtSscanFloat(s string, out *float64) {
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	var intPart float64
	for ; i < len(s) && isDigit(s[i]); i++ {
		intPart = intPart*10 + float64(s[i]-'0')
	}
	var frac float64
	var scale float64 = 1
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			frac = frac*10 + float64(s[i]-'0')
			scale *= 10
		}
	}
	v := intPart + frac/scale
	if neg {
		v = -v
	}
	*out = v
}
