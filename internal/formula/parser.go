package formula

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokRef
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	ref  Ref
	num  float64
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\n') {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
			l.pos++
		}
		text := l.input[start:l.pos]
		num, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("invalid number %q at position %d", text, start)
		}
		return token{kind: tokNumber, text: text, num: num, pos: start}, nil

	case c == '$' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '{':
		end := strings.IndexByte(l.input[l.pos:], '}')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated reference at position %d", start)
		}
		body := l.input[l.pos+2 : l.pos+end]
		l.pos += end + 1
		ref, err := parseRefBody(body, start)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokRef, text: body, ref: ref, pos: start}, nil

	case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil

	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil

	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil

	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil

	case isIdentStart(c):
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func parseRefBody(body string, pos int) (Ref, error) {
	idx := strings.IndexByte(body, ':')
	if idx < 0 {
		return Ref{}, fmt.Errorf("reference %q at position %d missing kind prefix", body, pos)
	}
	kind := RefKind(strings.TrimSpace(body[:idx]))
	id := strings.TrimSpace(body[idx+1:])
	switch kind {
	case KindMonitor, KindWebhook, KindFunding, KindSpot:
	default:
		return Ref{}, fmt.Errorf("unknown reference kind %q at position %d", kind, pos)
	}
	if id == "" {
		return Ref{}, fmt.Errorf("reference %q at position %d has empty id", body, pos)
	}
	return Ref{Kind: kind, ID: id}, nil
}

// funcArity lists the whitelisted functions. Nothing else is callable.
var funcArity = map[string][2]int{
	"abs": {1, 1},
	"max": {2, 2},
	"min": {2, 2},
}

// parser is a small Pratt parser over the token stream.
type parser struct {
	lex  *lexer
	cur  token
	refs []Ref
	seen map[Ref]bool
}

// Parse parses a formula and returns its AST together with the set of
// references it depends on, in first-occurrence order.
func Parse(input string) (Node, []Ref, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil, fmt.Errorf("empty formula")
	}

	p := &parser{lex: &lexer{input: input}, seen: make(map[Ref]bool)}
	if err := p.advance(); err != nil {
		return nil, nil, err
	}

	node, err := p.parseExpr(0)
	if err != nil {
		return nil, nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, nil, fmt.Errorf("unexpected token %q at position %d", p.cur.text, p.cur.pos)
	}

	return node, p.refs, nil
}

// Refs returns the dependency set of a formula without keeping the AST.
func Refs(input string) ([]Ref, error) {
	_, refs, err := Parse(input)
	return refs, err
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func bindingPower(op string) int {
	switch op {
	case "+", "-":
		return 10
	case "*", "/", "%":
		return 20
	}
	return 0
}

func (p *parser) parseExpr(minBP int) (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.cur.kind == tokOp {
		op := p.cur.text
		bp := bindingPower(op)
		if bp <= minBP {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(bp)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tokNumber:
		node := &Literal{Value: p.cur.num}
		return node, p.advance()

	case tokRef:
		ref := p.cur.ref
		if !p.seen[ref] {
			p.seen[ref] = true
			p.refs = append(p.refs, ref)
		}
		node := &Var{Ref: ref}
		return node, p.advance()

	case tokOp:
		// Unary minus (and a tolerated unary plus).
		op := p.cur.text
		if op != "-" && op != "+" {
			return nil, fmt.Errorf("unexpected operator %q at position %d", op, p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return operand, nil
		}
		if lit, ok := operand.(*Literal); ok {
			return &Literal{Value: -lit.Value}, nil
		}
		return &Binary{Op: "*", Left: &Literal{Value: -1}, Right: operand}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", p.cur.pos)
		}
		return node, p.advance()

	case tokIdent:
		name := strings.ToLower(p.cur.text)
		arity, ok := funcArity[name]
		if !ok {
			return nil, fmt.Errorf("unknown function %q at position %d", p.cur.text, p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokLParen {
			return nil, fmt.Errorf("expected '(' after %q at position %d", name, p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		var args []Node
		for p.cur.kind != tokRParen {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' closing %q at position %d", name, p.cur.pos)
		}
		if len(args) < arity[0] || len(args) > arity[1] {
			return nil, fmt.Errorf("%s expects %d argument(s), got %d", name, arity[0], len(args))
		}
		return &Call{Name: name, Args: args}, p.advance()
	}

	return nil, fmt.Errorf("unexpected token at position %d", p.cur.pos)
}

// IsConstant reports whether the formula is a bare numeric literal.
func IsConstant(input string) bool {
	node, _, err := Parse(input)
	if err != nil {
		return false
	}
	_, ok := node.(*Literal)
	return ok
}

// IsAlias reports whether the formula is a single bare reference.
func IsAlias(input string) (Ref, bool) {
	node, _, err := Parse(input)
	if err != nil {
		return Ref{}, false
	}
	if v, ok := node.(*Var); ok {
		return v.Ref, true
	}
	return Ref{}, false
}
