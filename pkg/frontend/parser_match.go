// Match statement and pattern parsing.
package frontend

import "strconv"

func (p *Parser) matchStatement() Stmt {
	p.advance() // consume 'match'

	subject := p.expression()

	if !p.consume(COLON, "expected ':'") {
		return nil
	}
	if !p.consume(NEWLINE, "expected newline") {
		return nil
	}
	if !p.consume(INDENT, "expected indent") {
		return nil
	}

	var cases []MatchCase
	for p.match(CASE) {
		p.advance() // consume 'case'

		pattern := p.parsePattern()
		if pattern == nil {
			p.error("expected pattern")
			continue
		}

		// Optional guard.
		var guard Expr
		if p.match(IF) {
			p.advance()
			guard = p.expression()
		}

		body, ok := p.block()
		if !ok {
			continue
		}

		cases = append(cases, MatchCase{
			Pattern: pattern,
			Guard:   guard,
			Body:    body,
		})
		p.skipNewlines()
	}

	if !p.consume(DEDENT, "expected dedent") {
		return nil
	}

	return &Match{Subject: subject, Cases: cases}
}

// parsePattern handles literal, capture, variant, and or-patterns. A single
// alternative folds back to itself rather than a one-element OrPattern.
func (p *Parser) parsePattern() Pattern {
	first := p.parseSinglePattern()
	if first == nil {
		return nil
	}
	if !p.match(PIPE) {
		return first
	}

	patterns := []Pattern{first}
	for p.match(PIPE) {
		p.advance()
		if pat := p.parseSinglePattern(); pat != nil {
			patterns = append(patterns, pat)
		}
	}
	return &OrPattern{Patterns: patterns}
}

func (p *Parser) parseSinglePattern() Pattern {
	if p.check(INT) {
		val, _ := strconv.ParseInt(p.current.Lexeme, 10, 64)
		p.advance()
		return &LiteralPattern{Value: &Num{Value: val}}
	}

	if p.check(TRUE) || p.check(FALSE) {
		val := p.current.Type == TRUE
		p.advance()
		return &LiteralPattern{Value: &Bool{Value: val}}
	}

	if p.check(NAME) {
		name := p.current.Lexeme
		p.advance()

		// Variant pattern: VariantName(subpatterns...).
		if p.match(LPAREN) {
			p.advance()
			var args []Pattern
			if !p.check(RPAREN) {
				for {
					arg := p.parsePattern()
					if arg == nil {
						break
					}
					args = append(args, arg)
					if !p.match(COMMA) {
						break
					}
					p.advance()
				}
			}
			if !p.consume(RPAREN, "expected ')'") {
				return nil
			}
			return &ClassPattern{Class: name, Args: args}
		}

		return &CapturePattern{Name: name}
	}

	return nil
}
