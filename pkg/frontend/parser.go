// Recursive descent parser for Lumen.
// Design: predictive parsing, clear error messages, zero backtracking.
package frontend

import (
	"fmt"
	"strconv"
)

type Parser struct {
	lexer   *Lexer
	current Token
	errors  []string
}

func NewParser(source string) *Parser {
	lexer := NewLexer(source)
	return &Parser{
		lexer:   lexer,
		current: lexer.NextToken(),
	}
}

func (p *Parser) Parse() (*Module, error) {
	module := &Module{}

	p.skipNewlines()
	for !p.check(EOF) {
		for p.match(DEDENT) {
			p.advance()
		}
		if p.check(EOF) {
			break
		}

		switch {
		case p.check(STRUCT):
			if stmt := p.structDef(); stmt != nil {
				module.Body = append(module.Body, stmt)
			}
		default:
			if stmt := p.function(); stmt != nil {
				module.Body = append(module.Body, stmt)
			}
		}
		p.skipNewlines()
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors: %v", p.errors)
	}
	return module, nil
}

// function parses `[async] fn name(params) -> type:` and its block.
func (p *Parser) function() Stmt {
	isAsync := false
	if p.match(ASYNC) {
		p.advance()
		isAsync = true
	}
	if !p.consume(FN, "expected 'fn'") {
		return nil
	}

	if !p.check(NAME) {
		p.error("expected function name")
		return nil
	}
	name := p.current.Lexeme
	p.advance()

	if !p.consume(LPAREN, "expected '('") {
		return nil
	}
	var params []Param
	if !p.check(RPAREN) {
		params = p.parameters()
	}
	if !p.consume(RPAREN, "expected ')'") {
		return nil
	}

	var returnType TypeAnnotation
	if p.match(ARROW) {
		p.advance()
		returnType = p.typeAnnotation()
	}

	body, ok := p.block()
	if !ok {
		return nil
	}

	return &FunctionDef{
		Name:    name,
		Params:  params,
		Body:    body,
		Return:  returnType,
		IsAsync: isAsync,
	}
}

// structDef parses `struct Name:` with `field = literal` defaults and
// `fn` methods in its block.
func (p *Parser) structDef() Stmt {
	p.advance() // consume 'struct'

	if !p.check(NAME) {
		p.error("expected struct name")
		return nil
	}
	name := p.current.Lexeme
	p.advance()

	if !p.consume(COLON, "expected ':'") {
		return nil
	}
	if !p.consume(NEWLINE, "expected newline") {
		return nil
	}
	if !p.consume(INDENT, "expected indent") {
		return nil
	}

	def := &ClassDef{Name: name}
	for !p.check(DEDENT) && !p.check(EOF) {
		switch {
		case p.check(FN), p.check(ASYNC):
			if m, ok := p.function().(*FunctionDef); ok {
				def.Methods = append(def.Methods, m)
			}
		case p.check(NAME):
			field := p.current.Lexeme
			p.advance()
			if !p.consume(ASSIGN, "expected '=' after field name") {
				return nil
			}
			def.Attrs = append(def.Attrs, Assign{Target: field, Value: p.expression()})
		case p.check(PASS):
			p.advance()
		default:
			p.error("expected field or method in struct body")
			p.advance()
		}
		p.skipNewlines()
	}
	p.consume(DEDENT, "expected dedent")
	return def
}

func (p *Parser) parameters() []Param {
	var params []Param
	for {
		if !p.check(NAME) {
			p.error("expected parameter name")
			break
		}
		paramName := p.current.Lexeme
		p.advance()

		var paramType TypeAnnotation
		if p.match(COLON) {
			p.advance()
			paramType = p.typeAnnotation()
		}
		params = append(params, Param{Name: paramName, Type: paramType})

		if !p.match(COMMA) {
			break
		}
		p.advance()
	}
	return params
}

// typeAnnotation parses `name`, `name[args]` generics, and `[elem n]` /
// `[elem]` array and slice forms.
func (p *Parser) typeAnnotation() TypeAnnotation {
	if p.match(LBRACKET) {
		p.advance()
		elem := p.typeAnnotation()
		ann := TypeAnnotation{IsArray: true, ArrayElem: &elem}
		if p.match(NEWLINE) {
			p.error("unterminated array type")
			return ann
		}
		if p.check(INT) {
			size, _ := strconv.Atoi(p.current.Lexeme)
			ann.ArraySize = size
			p.advance()
		}
		p.consume(RBRACKET, "expected ']'")
		return ann
	}

	if !p.check(NAME) {
		p.error("expected type name")
		return TypeAnnotation{}
	}
	ann := TypeAnnotation{Name: p.current.Lexeme}
	p.advance()

	if p.match(LBRACKET) {
		p.advance()
		for {
			ann.TypeArgs = append(ann.TypeArgs, p.typeAnnotation())
			if !p.match(COMMA) {
				break
			}
			p.advance()
		}
		p.consume(RBRACKET, "expected ']'")
	}
	return ann
}

// block parses `: NEWLINE INDENT stmts DEDENT`.
func (p *Parser) block() ([]Stmt, bool) {
	if !p.consume(COLON, "expected ':'") {
		return nil, false
	}
	if !p.consume(NEWLINE, "expected newline after ':'") {
		return nil, false
	}
	if !p.consume(INDENT, "expected indent") {
		return nil, false
	}

	var body []Stmt
	for !p.check(DEDENT) && !p.check(EOF) {
		if stmt := p.statement(); stmt != nil {
			body = append(body, stmt)
		}
		p.skipNewlines()
	}
	if !p.consume(DEDENT, "expected dedent") {
		return nil, false
	}
	return body, true
}

func (p *Parser) statement() Stmt {
	switch {
	case p.match(RETURN):
		p.advance()
		if p.match(NEWLINE) {
			p.advance()
			return &Return{}
		}
		expr := p.expression()
		p.eatNewline()
		return &Return{Value: expr}

	case p.match(IF):
		return p.ifStatement()

	case p.match(WHILE):
		p.advance()
		cond := p.expression()
		body, ok := p.block()
		if !ok {
			return nil
		}
		return &While{Cond: cond, Body: body}

	case p.match(FOR):
		p.advance()
		if !p.check(NAME) {
			p.error("expected loop variable")
			return nil
		}
		target := p.current.Lexeme
		p.advance()
		if !p.consume(IN, "expected 'in'") {
			return nil
		}
		iter := p.expression()
		body, ok := p.block()
		if !ok {
			return nil
		}
		return &For{Target: target, Iter: iter, Body: body}

	case p.match(BREAK):
		p.advance()
		p.eatNewline()
		return &Break{}

	case p.match(CONTINUE):
		p.advance()
		p.eatNewline()
		return &Continue{}

	case p.match(PASS):
		p.advance()
		p.eatNewline()
		return &Pass{}

	case p.match(MATCH):
		return p.matchStatement()
	}

	return p.assignOrExprStatement()
}

// assignOrExprStatement parses an expression and, when '=' follows, folds
// it into the assignment form matching the target shape.
func (p *Parser) assignOrExprStatement() Stmt {
	expr := p.expression()
	if expr == nil {
		p.advance() // make progress past whatever confused us
		return nil
	}

	if p.match(ASSIGN) {
		p.advance()
		value := p.expression()
		p.eatNewline()
		switch target := expr.(type) {
		case *Name:
			return &Assign{Target: target.Id, Value: value}
		case *Attribute:
			return &FieldAssign{Target: target.Value, Field: target.Attr, Value: value}
		case *Subscript:
			return &IndexAssign{Target: target.Value, Index: target.Index, Value: value}
		default:
			p.error("invalid assignment target")
			return nil
		}
	}

	p.eatNewline()
	return &ExprStmt{X: expr}
}

func (p *Parser) ifStatement() Stmt {
	p.advance() // consume 'if'
	cond := p.expression()
	then, ok := p.block()
	if !ok {
		return nil
	}

	stmt := &If{Cond: cond, Then: then}
	for p.match(ELIF) {
		p.advance()
		elifCond := p.expression()
		elifBody, ok := p.block()
		if !ok {
			return nil
		}
		stmt.Elif = append(stmt.Elif, ElifClause{Cond: elifCond, Body: elifBody})
	}
	if p.match(ELSE) {
		p.advance()
		elseBody, ok := p.block()
		if !ok {
			return nil
		}
		stmt.Else = elseBody
	}
	return stmt
}

// Expression precedence, loosest first: || , && , comparison, + -, * / %,
// unary, postfix.
func (p *Parser) expression() Expr {
	return p.orExpr()
}

func (p *Parser) orExpr() Expr {
	expr := p.andExpr()
	for p.match(OROR) {
		p.advance()
		right := p.andExpr()
		expr = &BoolOp{Left: expr, Op: Or, Right: right}
	}
	return expr
}

func (p *Parser) andExpr() Expr {
	expr := p.comparison()
	for p.match(ANDAND) {
		p.advance()
		right := p.comparison()
		expr = &BoolOp{Left: expr, Op: And, Right: right}
	}
	return expr
}

func (p *Parser) comparison() Expr {
	expr := p.additive()
	if p.match(EQ, NE, LT, LE, GT, GE) {
		op := compareFromToken(p.current.Type)
		p.advance()
		right := p.additive()
		return &Compare{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) additive() Expr {
	expr := p.multiplicative()
	for p.match(PLUS) || p.match(MINUS) {
		op := operatorFromToken(p.current.Type)
		p.advance()
		right := p.multiplicative()
		expr = &BinOp{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) multiplicative() Expr {
	expr := p.unary()
	for p.match(STAR) || p.match(SLASH) || p.match(PERCENT) {
		op := operatorFromToken(p.current.Type)
		p.advance()
		right := p.unary()
		expr = &BinOp{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *Parser) unary() Expr {
	if p.match(BANG) {
		p.advance()
		return &UnaryOp{Op: Not, Expr: p.unary()}
	}
	if p.match(MINUS) {
		p.advance()
		return &UnaryOp{Op: Sub, Expr: p.unary()}
	}
	return p.postfix()
}

// postfix chains calls, field accesses, method calls, and subscripts onto a
// primary expression.
func (p *Parser) postfix() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(LPAREN):
			name, ok := expr.(*Name)
			if !ok {
				p.error("only named functions are callable")
				return expr
			}
			p.advance()
			args := p.arguments()
			expr = &Call{Func: name.Id, Args: args}

		case p.match(DOT):
			p.advance()
			if !p.check(NAME) {
				p.error("expected field or method name after '.'")
				return expr
			}
			member := p.current.Lexeme
			p.advance()
			if p.match(LPAREN) {
				p.advance()
				args := p.arguments()
				expr = &MethodCall{Receiver: expr, Method: member, Args: args}
			} else {
				expr = &Attribute{Value: expr, Attr: member}
			}

		case p.match(LBRACKET):
			p.advance()
			index := p.expression()
			p.consume(RBRACKET, "expected ']'")
			expr = &Subscript{Value: expr, Index: index}

		default:
			return expr
		}
	}
}

// arguments parses a call's argument list; the opening paren is consumed.
func (p *Parser) arguments() []Expr {
	var args []Expr
	if !p.check(RPAREN) {
		for {
			args = append(args, p.expression())
			if !p.match(COMMA) {
				break
			}
			p.advance()
		}
	}
	p.consume(RPAREN, "expected ')'")
	return args
}

func (p *Parser) primary() Expr {
	switch {
	case p.match(INT):
		lexeme := p.current.Lexeme
		p.advance()
		val, _ := strconv.ParseInt(lexeme, 10, 64)
		return &Num{Value: val}

	case p.match(TRUE):
		p.advance()
		return &Bool{Value: true}

	case p.match(FALSE):
		p.advance()
		return &Bool{Value: false}

	case p.match(AWAIT):
		p.advance()
		return &Await{Value: p.unary()}

	case p.match(NAME):
		name := p.current.Lexeme
		p.advance()
		return &Name{Id: name}

	case p.match(LPAREN):
		p.advance()
		expr := p.expression()
		if p.match(COMMA) {
			elems := []Expr{expr}
			for p.match(COMMA) {
				p.advance()
				if p.check(RPAREN) {
					break
				}
				elems = append(elems, p.expression())
			}
			p.consume(RPAREN, "expected ')'")
			return &TupleLit{Elems: elems}
		}
		p.consume(RPAREN, "expected ')'")
		return expr

	case p.match(LBRACKET):
		p.advance()
		var elems []Expr
		if !p.check(RBRACKET) {
			for {
				elems = append(elems, p.expression())
				if !p.match(COMMA) {
					break
				}
				p.advance()
			}
		}
		p.consume(RBRACKET, "expected ']'")
		return &ArrayLit{Elems: elems}
	}

	p.error(fmt.Sprintf("unexpected token: %v", p.current))
	return nil
}

func operatorFromToken(tok TokenType) Operator {
	switch tok {
	case PLUS:
		return Add
	case MINUS:
		return Sub
	case STAR:
		return Mul
	case SLASH:
		return Div
	case PERCENT:
		return Mod
	}
	return Add
}

func compareFromToken(tok TokenType) CompareOp {
	switch tok {
	case EQ:
		return Eq
	case NE:
		return Ne
	case LT:
		return Lt
	case LE:
		return Le
	case GT:
		return Gt
	default:
		return Ge
	}
}

func (p *Parser) skipNewlines() {
	for p.match(NEWLINE) {
		p.advance()
	}
}

func (p *Parser) eatNewline() {
	if p.match(NEWLINE) {
		p.advance()
	}
}

func (p *Parser) match(types ...TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			return true
		}
	}
	return false
}

func (p *Parser) check(typ TokenType) bool {
	return p.current.Type == typ
}

func (p *Parser) advance() Token {
	prev := p.current
	p.current = p.lexer.NextToken()
	return prev
}

func (p *Parser) consume(typ TokenType, msg string) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	p.error(msg)
	return false
}

func (p *Parser) error(msg string) {
	errMsg := fmt.Sprintf("line %d, col %d: %s", p.current.Line, p.current.Col, msg)
	p.errors = append(p.errors, errMsg)
}
