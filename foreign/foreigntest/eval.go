package foreigntest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feather-lang/nativetcl/foreign"
)

// word is one parsed word of a command. Braced words are not substituted.
type word struct {
	text   string
	braced bool
}

func (in *interp) eval(script string) (foreign.Status, string) {
	cmds, err := parseScript(script)
	if err != nil {
		return foreign.StatusError, err.Error()
	}
	result := ""
	for _, cmd := range cmds {
		args := make([]string, len(cmd))
		for i, w := range cmd {
			if w.braced {
				args[i] = w.text
				continue
			}
			s, err := in.substitute(w.text)
			if err != nil {
				return foreign.StatusError, err.Error()
			}
			args[i] = s
		}
		status, res := in.invoke(args)
		result = res
		if status != foreign.StatusOK {
			return status, result
		}
	}
	return foreign.StatusOK, result
}

func (in *interp) invoke(args []string) (foreign.Status, string) {
	switch args[0] {
	case "set":
		switch len(args) {
		case 2:
			v, ok := in.vars[varName(args[1])]
			if !ok {
				return foreign.StatusError, fmt.Sprintf("can't read %q: no such variable", args[1])
			}
			return foreign.StatusOK, v
		case 3:
			if err := in.setVar(args[1], args[2]); err != nil {
				return foreign.StatusError, err.Error()
			}
			return foreign.StatusOK, args[2]
		}
		return foreign.StatusError, `wrong # args: should be "set varName ?newValue?"`
	case "expr":
		if len(args) < 2 {
			return foreign.StatusError, `wrong # args: should be "expr arg ?arg ...?"`
		}
		e, err := in.substitute(strings.Join(args[1:], " "))
		if err != nil {
			return foreign.StatusError, err.Error()
		}
		v, err := evalExpr(e)
		if err != nil {
			return foreign.StatusError, err.Error()
		}
		return foreign.StatusOK, v
	case "return":
		if len(args) > 1 {
			return foreign.StatusReturn, args[len(args)-1]
		}
		return foreign.StatusReturn, ""
	case "break":
		return foreign.StatusBreak, ""
	case "continue":
		return foreign.StatusContinue, ""
	case "error":
		if len(args) < 2 {
			return foreign.StatusError, `wrong # args: should be "error message ?errorInfo? ?errorCode?"`
		}
		return foreign.StatusError, args[1]
	case "exec":
		if !in.safe {
			return foreign.StatusOK, strings.Join(args[1:], " ")
		}
	}
	return foreign.StatusError, fmt.Sprintf("invalid command name %q", args[0])
}

func varName(name string) string {
	return strings.TrimPrefix(name, "::")
}

func (in *interp) setVar(name, value string) error {
	n := varName(name)
	if strings.Contains(n, "::") {
		return fmt.Errorf("can't set %q: parent namespace doesn't exist", name)
	}
	in.vars[n] = value
	return nil
}

// substitute replaces $name and ${name} references.
func (in *interp) substitute(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		c := s[pos]
		if c != '$' || pos+1 >= len(s) {
			b.WriteByte(c)
			pos++
			continue
		}
		var name string
		if s[pos+1] == '{' {
			end := strings.IndexByte(s[pos+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("missing close-brace for variable name")
			}
			name = s[pos+2 : pos+2+end]
			pos += end + 3
		} else {
			start := pos + 1
			pos = start
			for pos < len(s) && isVarChar(s[pos]) {
				pos++
			}
			name = s[start:pos]
			if name == "" {
				b.WriteByte('$')
				continue
			}
		}
		v, ok := in.vars[varName(name)]
		if !ok {
			return "", fmt.Errorf("can't read %q: no such variable", name)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func isVarChar(c byte) bool {
	return c == '_' || c == ':' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// parseScript splits a script into commands of words.
func parseScript(s string) ([][]word, error) {
	var cmds [][]word
	var cur []word
	pos := 0

	flush := func() {
		if len(cur) > 0 {
			cmds = append(cmds, cur)
			cur = nil
		}
	}

	for pos < len(s) {
		switch c := s[pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			pos++
		case c == '\n' || c == ';':
			flush()
			pos++
		case c == '#' && len(cur) == 0:
			for pos < len(s) && s[pos] != '\n' {
				pos++
			}
		case c == '{':
			// Braced element
			depth := 1
			start := pos + 1
			pos++
			for pos < len(s) && depth > 0 {
				if s[pos] == '{' {
					depth++
				} else if s[pos] == '}' {
					depth--
				}
				pos++
			}
			if depth != 0 {
				return nil, fmt.Errorf("missing close-brace")
			}
			cur = append(cur, word{text: s[start : pos-1], braced: true})
		case c == '"':
			// Quoted element
			start := pos + 1
			pos++
			for pos < len(s) && s[pos] != '"' {
				if s[pos] == '\\' && pos+1 < len(s) {
					pos++
				}
				pos++
			}
			if pos >= len(s) {
				return nil, fmt.Errorf(`missing "`)
			}
			cur = append(cur, word{text: s[start:pos]})
			pos++
		default:
			// Bare word
			start := pos
			for pos < len(s) && !strings.ContainsRune(" \t\r\n;", rune(s[pos])) {
				pos++
			}
			cur = append(cur, word{text: s[start:pos]})
		}
	}
	flush()
	return cmds, nil
}

// evalExpr evaluates integer arithmetic with + - * / and the usual
// precedence.
func evalExpr(e string) (string, error) {
	toks, err := tokenizeExpr(e)
	if err != nil {
		return "", err
	}
	if len(toks) == 0 {
		return "", fmt.Errorf("empty expression")
	}
	p := &exprParser{toks: toks, src: e}
	v, err := p.sum()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.toks) {
		return "", p.syntaxError()
	}
	return strconv.FormatInt(v, 10), nil
}

func tokenizeExpr(e string) ([]string, error) {
	var toks []string
	pos := 0
	for pos < len(e) {
		c := e[pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			pos++
		case strings.IndexByte("+-*/()", c) >= 0:
			toks = append(toks, string(c))
			pos++
		case c >= '0' && c <= '9':
			start := pos
			for pos < len(e) && e[pos] >= '0' && e[pos] <= '9' {
				pos++
			}
			toks = append(toks, e[start:pos])
		default:
			return nil, fmt.Errorf("invalid bareword %q in expression %q", string(c), e)
		}
	}
	return toks, nil
}

type exprParser struct {
	toks []string
	pos  int
	src  string
}

func (p *exprParser) syntaxError() error {
	return fmt.Errorf("syntax error in expression %q", p.src)
}

func (p *exprParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *exprParser) sum() (int64, error) {
	v, err := p.product()
	if err != nil {
		return 0, err
	}
	for op := p.peek(); op == "+" || op == "-"; op = p.peek() {
		p.pos++
		rhs, err := p.product()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			v += rhs
		} else {
			v -= rhs
		}
	}
	return v, nil
}

func (p *exprParser) product() (int64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	for op := p.peek(); op == "*" || op == "/"; op = p.peek() {
		p.pos++
		rhs, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			v *= rhs
			continue
		}
		if rhs == 0 {
			return 0, fmt.Errorf("divide by zero")
		}
		v /= rhs
	}
	return v, nil
}

func (p *exprParser) unary() (int64, error) {
	switch tok := p.peek(); tok {
	case "":
		return 0, p.syntaxError()
	case "-":
		p.pos++
		v, err := p.unary()
		return -v, err
	case "(":
		p.pos++
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, p.syntaxError()
		}
		p.pos++
		return v, nil
	default:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return 0, p.syntaxError()
		}
		p.pos++
		return v, nil
	}
}
