package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CalculatorTool evaluates basic arithmetic expressions.
type CalculatorTool struct{}

func (t *CalculatorTool) Name() string     { return "calculate" }
func (t *CalculatorTool) Category() string { return "core" }

func (t *CalculatorTool) Description() string {
	return "Evaluate an arithmetic expression with + - * / and parentheses"
}

func (t *CalculatorTool) ArgsSchema() map[string]string {
	return map[string]string{"expression": "string, e.g. \"23*7+11\""}
}

func (t *CalculatorTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	expr, ok := args["expression"].(string)
	if !ok || strings.TrimSpace(expr) == "" {
		// Some plans pass the expression under "input".
		expr, _ = args["input"].(string)
	}
	if strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("expression argument required")
	}

	result, err := evalExpression(expr)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}

	if result == float64(int64(result)) {
		return strconv.FormatInt(int64(result), 10), nil
	}
	return strconv.FormatFloat(result, 'g', -1, 64), nil
}

// evalExpression is a small recursive-descent evaluator:
//
//	expr   = term (('+'|'-') term)*
//	term   = unary (('*'|'/') unary)*
//	unary  = '-' unary | atom
//	atom   = number | '(' expr ')'
func evalExpression(input string) (float64, error) {
	p := &exprParser{src: strings.ReplaceAll(input, " ", "")}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.src[start:p.pos], 64)
}
