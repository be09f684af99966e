package tools

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Node is an expression tree node. Kind reports the node class, which is
// what validation errors name.
type Node interface {
	Kind() string
}

// Constant is a literal: string, *big.Int, float64, bool or nil (None).
type Constant struct {
	Value any
}

type Name struct {
	ID string
}

type Call struct {
	Func     Node
	Args     []Node
	Keywords []*Keyword
}

type Keyword struct {
	Arg   string
	Value Node
}

type BinOp struct {
	Left  Node
	Op    string
	Right Node
}

type UnaryOp struct {
	Op      string
	Operand Node
}

type BoolOp struct {
	Op     string
	Values []Node
}

// Compare is a comparison chain: Left Ops[0] Comparators[0] Ops[1] ...
type Compare struct {
	Left        Node
	Ops         []string
	Comparators []Node
}

type Attribute struct {
	Value Node
	Attr  string
}

type Subscript struct {
	Value Node
	Slice Node
}

type List struct {
	Elts []Node
}

type Tuple struct {
	Elts []Node
}

func (*Constant) Kind() string  { return "Constant" }
func (*Name) Kind() string      { return "Name" }
func (*Call) Kind() string      { return "Call" }
func (*Keyword) Kind() string   { return "keyword" }
func (*BinOp) Kind() string     { return "BinOp" }
func (*UnaryOp) Kind() string   { return "UnaryOp" }
func (*BoolOp) Kind() string    { return "BoolOp" }
func (*Compare) Kind() string   { return "Compare" }
func (*Attribute) Kind() string { return "Attribute" }
func (*Subscript) Kind() string { return "Subscript" }
func (*List) Kind() string      { return "List" }
func (*Tuple) Kind() string     { return "Tuple" }

// SyntaxError reports source that is not a valid expression.
type SyntaxError struct {
	Msg    string
	Offset int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (<unknown>, line 1)", e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

// Longest operators first so the lexer is greedy.
var operators = []string{
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=",
	"+", "-", "*", "/", "%", "@", "|", "^", "&", "~",
	"<", ">", "(", ")", "[", "]", ",", "=", ".", ":",
}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "lambda": true, "for": true, "await": true,
	"yield": true, "def": true, "class": true, "import": true, "return": true,
}

// ParseExpr parses a single expression. Surrounding whitespace is ignored.
func ParseExpr(src string) (Node, error) {
	toks, err := lex(strings.TrimSpace(src))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokOp && (tok.text == ")" || tok.text == "]") {
			return nil, &SyntaxError{Msg: fmt.Sprintf("unmatched '%s'", tok.text), Offset: tok.pos}
		}
		return nil, &SyntaxError{Msg: "invalid syntax", Offset: tok.pos}
	}
	return node, nil
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f':
			i += size
		case r == '"' || r == '\'':
			tok, n, err := lexString(src, i, false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = n
		case isDigit(r) || (r == '.' && i+1 < len(src) && isDigit(rune(src[i+1]))):
			tok, n, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = n
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			word := src[start:i]
			if i < len(src) && (src[i] == '"' || src[i] == '\'') {
				switch strings.ToLower(word) {
				case "r", "u":
					tok, n, err := lexString(src, i, strings.EqualFold(word, "r"))
					if err != nil {
						return nil, err
					}
					tok.pos = start
					toks = append(toks, tok)
					i = n
					continue
				}
			}
			toks = append(toks, token{kind: tokName, text: word, pos: start})
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, &SyntaxError{Msg: fmt.Sprintf("invalid character '%c' (U+%04X)", r, r), Offset: i}
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	invalid := func() (token, int, error) {
		return token{}, 0, &SyntaxError{Msg: "invalid decimal literal", Offset: start}
	}

	if src[i] == '0' && i+1 < len(src) && strings.ContainsRune("xXoObB", rune(src[i+1])) {
		base := map[byte]int{'x': 16, 'o': 8, 'b': 2}[src[i+1]|0x20]
		i += 2
		digitsStart := i
		for i < len(src) && (isHexDigit(src[i]) || src[i] == '_') {
			i++
		}
		digits := strings.ReplaceAll(src[digitsStart:i], "_", "")
		n, ok := new(big.Int).SetString(digits, base)
		if !ok {
			return token{}, 0, &SyntaxError{Msg: "invalid " + map[int]string{16: "hexadecimal", 8: "octal", 2: "binary"}[base] + " literal", Offset: start}
		}
		return token{kind: tokNumber, text: src[start:i], value: n, pos: start}, i, nil
	}

	isFloat := false
	for i < len(src) && (isDigit(rune(src[i])) || src[i] == '_') {
		i++
	}
	if i < len(src) && src[i] == '.' {
		isFloat = true
		i++
		for i < len(src) && (isDigit(rune(src[i])) || src[i] == '_') {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(rune(src[j])) {
			isFloat = true
			i = j
			for i < len(src) && (isDigit(rune(src[i])) || src[i] == '_') {
				i++
			}
		}
	}
	if i < len(src) {
		if r, _ := utf8.DecodeRuneInString(src[i:]); r == '_' || unicode.IsLetter(r) {
			return invalid()
		}
	}

	text := src[start:i]
	clean := strings.ReplaceAll(text, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil && !isRangeError(err) {
			return invalid()
		}
		return token{kind: tokNumber, text: text, value: f, pos: start}, i, nil
	}
	if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
		return token{}, 0, &SyntaxError{
			Msg:    "leading zeros in decimal integer literals are not permitted; use an 0o prefix for octal integers",
			Offset: start,
		}
	}
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return invalid()
	}
	return token{kind: tokNumber, text: text, value: n, pos: start}, i, nil
}

func isHexDigit(c byte) bool {
	return isDigit(rune(c)) || (c|0x20 >= 'a' && c|0x20 <= 'f')
}

func isRangeError(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}

func lexString(src string, start int, raw bool) (token, int, error) {
	quote := src[start]
	triple := strings.HasPrefix(src[start:], strings.Repeat(string(quote), 3))
	delim := string(quote)
	if triple {
		delim = strings.Repeat(delim, 3)
	}
	i := start + len(delim)
	var b strings.Builder
	for {
		if i >= len(src) {
			msg := "unterminated string literal (detected at line 1)"
			if triple {
				msg = "unterminated triple-quoted string literal (detected at line 1)"
			}
			return token{}, 0, &SyntaxError{Msg: msg, Offset: start}
		}
		if strings.HasPrefix(src[i:], delim) {
			i += len(delim)
			break
		}
		c := src[i]
		if c == '\n' && !triple {
			return token{}, 0, &SyntaxError{Msg: "unterminated string literal (detected at line 1)", Offset: start}
		}
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(src) {
			i++
			continue
		}
		if raw {
			b.WriteString(src[i : i+2])
			i += 2
			continue
		}
		n, err := unescape(src, i, &b)
		if err != nil {
			return token{}, 0, err
		}
		i = n
	}
	return token{kind: tokString, text: src[start:i], value: b.String(), pos: start}, i, nil
}

func unescape(src string, i int, b *strings.Builder) (int, error) {
	c := src[i+1]
	simple := map[byte]string{
		'\\': "\\", '\'': "'", '"': "\"", 'n': "\n", 't': "\t", 'r': "\r",
		'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v", '\n': "",
	}
	if s, ok := simple[c]; ok {
		b.WriteString(s)
		return i + 2, nil
	}

	width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
	if width > 0 {
		if i+2+width > len(src) {
			return 0, &SyntaxError{Msg: fmt.Sprintf("(unicode error) truncated \\%cXX escape", c), Offset: i}
		}
		code, err := strconv.ParseUint(src[i+2:i+2+width], 16, 32)
		if err != nil {
			return 0, &SyntaxError{Msg: fmt.Sprintf("(unicode error) truncated \\%cXX escape", c), Offset: i}
		}
		b.WriteRune(rune(code))
		return i + 2 + width, nil
	}

	if c >= '0' && c <= '7' {
		j := i + 1
		for j < len(src) && j < i+4 && src[j] >= '0' && src[j] <= '7' {
			j++
		}
		code, _ := strconv.ParseUint(src[i+1:j], 8, 32)
		b.WriteRune(rune(code))
		return j, nil
	}

	// Unknown escapes are kept verbatim.
	b.WriteByte('\\')
	return i + 1, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(text string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == text
}

func (p *parser) isWord(word string) bool {
	tok := p.peek()
	return tok.kind == tokName && tok.text == word
}

func (p *parser) errorAt(tok token) error {
	return &SyntaxError{Msg: "invalid syntax", Offset: tok.pos}
}

func (p *parser) expectClose(open token, close string) error {
	if p.isOp(close) {
		p.next()
		return nil
	}
	if p.peek().kind == tokEOF {
		return &SyntaxError{Msg: fmt.Sprintf("'%s' was never closed", open.text), Offset: open.pos}
	}
	return p.errorAt(p.peek())
}

// parseExprList parses a comma separated list, producing a Tuple when a
// comma is present.
func (p *parser) parseExprList() (Node, error) {
	elts, tuple, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	if !tuple {
		return elts[0], nil
	}
	return &Tuple{Elts: elts}, nil
}

// parseSeq parses one or more comma separated expressions. A trailing
// comma is allowed; tuple reports whether any comma was seen.
func (p *parser) parseSeq() (elts []Node, tuple bool, err error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	elts = []Node{first}
	for p.isOp(",") {
		tuple = true
		p.next()
		if p.atListEnd() {
			break
		}
		node, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		elts = append(elts, node)
	}
	return elts, tuple, nil
}

func (p *parser) atListEnd() bool {
	tok := p.peek()
	return tok.kind == tokEOF || (tok.kind == tokOp && (tok.text == ")" || tok.text == "]"))
}

func (p *parser) parseExpr() (Node, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Node, error) {
	return p.parseBoolOp("or", "Or", p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseBoolOp("and", "And", p.parseNot)
}

func (p *parser) parseBoolOp(word, op string, operand func() (Node, error)) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.isWord(word) {
		return left, nil
	}
	values := []Node{left}
	for p.isWord(word) {
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	return &BoolOp{Op: op, Values: values}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.isWord("not") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "Not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]string{
	"==": "Eq", "!=": "NotEq", "<": "Lt", "<=": "LtE", ">": "Gt", ">=": "GtE",
}

func (p *parser) compareOp() (string, bool) {
	tok := p.peek()
	if tok.kind == tokOp {
		if op, ok := compareOps[tok.text]; ok {
			p.next()
			return op, true
		}
		return "", false
	}
	if tok.kind != tokName {
		return "", false
	}
	switch tok.text {
	case "in":
		p.next()
		return "In", true
	case "is":
		p.next()
		if p.isWord("not") {
			p.next()
			return "IsNot", true
		}
		return "Is", true
	case "not":
		if next := p.peekAt(1); next.kind == tokName && next.text == "in" {
			p.next()
			p.next()
			return "NotIn", true
		}
	}
	return "", false
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []Node
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &Compare{Left: left, Ops: ops, Comparators: comparators}, nil
}

// binaryLevel parses left-associative binary operators of one precedence level.
func (p *parser) binaryLevel(ops map[string]string, operand func() (Node, error)) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		op, ok := ops[tok.text]
		if tok.kind != tokOp || !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Left: left, Op: op, Right: right}
	}
}

func (p *parser) parseBitOr() (Node, error) {
	return p.binaryLevel(map[string]string{"|": "BitOr"}, p.parseBitXor)
}

func (p *parser) parseBitXor() (Node, error) {
	return p.binaryLevel(map[string]string{"^": "BitXor"}, p.parseBitAnd)
}

func (p *parser) parseBitAnd() (Node, error) {
	return p.binaryLevel(map[string]string{"&": "BitAnd"}, p.parseShift)
}

func (p *parser) parseShift() (Node, error) {
	return p.binaryLevel(map[string]string{"<<": "LShift", ">>": "RShift"}, p.parseArith)
}

func (p *parser) parseArith() (Node, error) {
	return p.binaryLevel(map[string]string{"+": "Add", "-": "Sub"}, p.parseTerm)
}

func (p *parser) parseTerm() (Node, error) {
	return p.binaryLevel(map[string]string{
		"*": "Mult", "@": "MatMult", "/": "Div", "//": "FloorDiv", "%": "Mod",
	}, p.parseFactor)
}

var unaryOps = map[string]string{"+": "UAdd", "-": "USub", "~": "Invert"}

func (p *parser) parseFactor() (Node, error) {
	tok := p.peek()
	if op, ok := unaryOps[tok.text]; ok && tok.kind == tokOp {
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exp, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &BinOp{Left: base, Op: "Pow", Right: exp}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("("):
			open := p.next()
			node, err = p.parseCall(node, open)
		case p.isOp("["):
			open := p.next()
			var index Node
			index, err = p.parseExprList()
			if err == nil {
				err = p.expectClose(open, "]")
			}
			node = &Subscript{Value: node, Slice: index}
		case p.isOp("."):
			p.next()
			tok := p.next()
			if tok.kind != tokName {
				return nil, p.errorAt(tok)
			}
			node = &Attribute{Value: node, Attr: tok.text}
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseCall(fn Node, open token) (Node, error) {
	call := &Call{Func: fn}
	for !p.isOp(")") {
		if p.peek().kind == tokEOF {
			return nil, &SyntaxError{Msg: "'(' was never closed", Offset: open.pos}
		}
		if tok := p.peek(); tok.kind == tokName && !reserved[tok.text] && p.peekAt(1).kind == tokOp && p.peekAt(1).text == "=" {
			p.next()
			p.next()
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			for _, kw := range call.Keywords {
				if kw.Arg == tok.text {
					return nil, &SyntaxError{Msg: fmt.Sprintf("keyword argument repeated: %s", tok.text), Offset: tok.pos}
				}
			}
			call.Keywords = append(call.Keywords, &Keyword{Arg: tok.text, Value: value})
		} else {
			start := p.peek()
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if len(call.Keywords) > 0 {
				return nil, &SyntaxError{Msg: "positional argument follows keyword argument", Offset: start.pos}
			}
			call.Args = append(call.Args, arg)
		}
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expectClose(open, ")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	p.next()
	return call, nil
}

func (p *parser) parseAtom() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &Constant{Value: tok.value}, nil
	case tokString:
		s := tok.value.(string)
		for p.peek().kind == tokString {
			s += p.next().value.(string)
		}
		return &Constant{Value: s}, nil
	case tokName:
		switch tok.text {
		case "True":
			return &Constant{Value: true}, nil
		case "False":
			return &Constant{Value: false}, nil
		case "None":
			return &Constant{Value: nil}, nil
		}
		if reserved[tok.text] {
			return nil, p.errorAt(tok)
		}
		return &Name{ID: tok.text}, nil
	case tokOp:
		switch tok.text {
		case "(":
			if p.isOp(")") {
				p.next()
				return &Tuple{}, nil
			}
			node, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			if err := p.expectClose(tok, ")"); err != nil {
				return nil, err
			}
			return node, nil
		case "[":
			list := &List{}
			if p.isOp("]") {
				p.next()
				return list, nil
			}
			elts, _, err := p.parseSeq()
			if err != nil {
				return nil, err
			}
			if err := p.expectClose(tok, "]"); err != nil {
				return nil, err
			}
			list.Elts = elts
			return list, nil
		case ")", "]":
			return nil, &SyntaxError{Msg: fmt.Sprintf("unmatched '%s'", tok.text), Offset: tok.pos}
		}
	}
	return nil, p.errorAt(tok)
}
