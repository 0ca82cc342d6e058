package main

// Recursive-descent parser for MiniC:
//
//	cstar    := { ( 'void' ident procedure |
//	               type ident ( procedure | [ '=' [ cast ] [ '-' ] literal ] ';' ) ) }
//	procedure := '(' [ var { ',' var } ] ')' ( ';' | '{' { var ';' } { stmt } '}' )
//	stmt      := '*' ( ident | '(' expr ')' ) '=' expr ';'
//	           | ident ( '=' expr ';' | '(' args ')' ';' )
//	           | 'while' '(' expr ')' body | 'if' '(' expr ')' body [ 'else' body ]
//	           | 'return' [ expr ] ';'
//	expr      := simple [ ('=='|'!='|'<'|'>'|'<='|'>=') simple ]
//	simple    := term { ('+'|'-') term }
//	term      := factor { ('*'|'/'|'%') factor }
//	factor    := [ cast ] [ '-' ] [ '*' ]
//	             ( ident [ '(' args ')' ] | int | char | string | '(' expr ')' )
//
// Code is emitted while parsing; there is no tree.

func (c *Compiler) nextToken() {
	if c.err != nil {
		return
	}
	c.fail(c.lex.NextToken())
}

func (c *Compiler) token() TokenType {
	return c.lex.token
}

// ---------------------------------------------------------------------
// token predicates

func (c *Compiler) isNotRbraceOrEOF() bool {
	return c.token() != TOKEN_RBRACE && c.token() != TOKEN_EOF
}

func (c *Compiler) isExpression() bool {
	switch c.token() {
	case TOKEN_MINUS, TOKEN_LPAREN, TOKEN_IDENT, TOKEN_INT, TOKEN_STAR, TOKEN_STRING, TOKEN_CHAR:
		return true
	}
	return false
}

func (c *Compiler) isLiteral() bool {
	return c.token() == TOKEN_INT || c.token() == TOKEN_CHAR
}

func (c *Compiler) isStarOrDivOrModulo() bool {
	switch c.token() {
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_MOD:
		return true
	}
	return false
}

func (c *Compiler) isPlusOrMinus() bool {
	return c.token() == TOKEN_PLUS || c.token() == TOKEN_MINUS
}

func (c *Compiler) isComparison() bool {
	switch c.token() {
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_GT, TOKEN_LE, TOKEN_GE:
		return true
	}
	return false
}

// lookFor* skip tokens until the next plausible synchronization point.

func (c *Compiler) lookForFactor() bool {
	switch c.token() {
	case TOKEN_STAR, TOKEN_MINUS, TOKEN_IDENT, TOKEN_INT, TOKEN_CHAR, TOKEN_STRING, TOKEN_LPAREN, TOKEN_EOF:
		return false
	}
	return true
}

func (c *Compiler) lookForStatement() bool {
	switch c.token() {
	case TOKEN_STAR, TOKEN_IDENT, TOKEN_WHILE, TOKEN_IF, TOKEN_RETURN, TOKEN_EOF:
		return false
	}
	return true
}

func (c *Compiler) lookForType() bool {
	switch c.token() {
	case TOKEN_UINT32, TOKEN_VOID, TOKEN_EOF:
		return false
	}
	return true
}

// ---------------------------------------------------------------------
// expressions

func (c *Compiler) compileCall(procedure string) uint32 {
	// assert: n = allocated temporaries
	index := c.st.searchScoped(procedure, CLASS_PROCEDURE)

	numberOfTemporaries := c.allocatedTemporaries

	c.saveTemporaries()

	// assert: allocated temporaries == 0

	var typ uint32

	if c.isExpression() {
		c.compileExpression()

		// push first parameter onto stack
		c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))
		c.emitSW(REG_SP, 0, c.currentTemporary())

		c.tfree(1)

		for c.token() == TOKEN_COMMA {
			c.nextToken()

			c.compileExpression()

			// push more parameters onto stack
			c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))
			c.emitSW(REG_SP, 0, c.currentTemporary())

			c.tfree(1)

			if c.err != nil {
				return TYPE_UINT32
			}
		}

		if c.token() == TOKEN_RPAREN {
			c.nextToken()

			typ = c.helpCallCodegen(index, procedure)
		} else {
			c.syntaxErrorToken(TOKEN_RPAREN)

			typ = TYPE_UINT32
		}
	} else if c.token() == TOKEN_RPAREN {
		c.nextToken()

		typ = c.helpCallCodegen(index, procedure)
	} else {
		c.syntaxErrorToken(TOKEN_RPAREN)

		typ = TYPE_UINT32
	}

	// assert: allocated temporaries == 0

	c.restoreTemporaries(numberOfTemporaries)

	c.calls++

	// assert: allocated temporaries == n

	return typ
}

func (c *Compiler) compileFactor() uint32 {
	// assert: n = allocated temporaries
	for c.lookForFactor() {
		c.syntaxErrorUnexpected()

		if c.token() == TOKEN_EOF {
			c.fail(exitError(EXITCODE_PARSERERROR, "unexpected end of file"))
			return TYPE_UINT32
		}
		c.nextToken()
		if c.err != nil {
			return TYPE_UINT32
		}
	}

	hasCast := false
	var cast uint32
	var typ uint32

	// optional: [ cast ]
	if c.token() == TOKEN_LPAREN {
		c.nextToken()

		if c.token() == TOKEN_UINT32 {
			// cast: "(" "uint32_t" [ "*" ] ")"
			hasCast = true

			cast = c.compileType()

			if c.token() == TOKEN_RPAREN {
				c.nextToken()
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}
		} else {
			// not a cast: "(" expression ")"
			typ = c.compileExpression()

			if c.token() == TOKEN_RPAREN {
				c.nextToken()
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}

			// assert: allocated temporaries == n + 1

			return typ
		}
	}

	// optional: -
	negative := false
	if c.token() == TOKEN_MINUS {
		negative = true

		c.lex.integerIsSigned = true

		c.nextToken()

		c.lex.integerIsSigned = false
	}

	// optional: dereference
	dereference := false
	if c.token() == TOKEN_STAR {
		dereference = true

		c.nextToken()
	}

	switch c.token() {
	case TOKEN_IDENT:
		name := c.lex.ident

		c.nextToken()

		if c.token() == TOKEN_LPAREN {
			c.nextToken()

			// procedure call: identifier "(" ... ")"
			typ = c.compileCall(name)

			c.talloc()

			// retrieve return value
			c.emitADDI(c.currentTemporary(), REG_A0, 0)

			// reset return register to initial return value
			// for missing return expressions
			c.emitADDI(REG_A0, REG_ZR, 0)
		} else {
			// variable access: identifier
			typ = c.loadVariableOrBigInt(name, CLASS_VARIABLE)
		}

	case TOKEN_INT:
		c.loadInteger(c.lex.literal)

		c.nextToken()

		typ = TYPE_UINT32

	case TOKEN_CHAR:
		c.talloc()

		c.emitADDI(c.currentTemporary(), REG_ZR, c.lex.literal)

		c.nextToken()

		typ = TYPE_UINT32

	case TOKEN_STRING:
		c.loadString(c.lex.str)

		c.nextToken()

		typ = TYPE_UINT32STAR

	case TOKEN_LPAREN:
		c.nextToken()

		typ = c.compileExpression()

		if c.token() == TOKEN_RPAREN {
			c.nextToken()
		} else {
			c.syntaxErrorToken(TOKEN_RPAREN)
		}

	default:
		c.syntaxErrorUnexpected()

		typ = TYPE_UINT32
	}

	if dereference {
		if typ != TYPE_UINT32STAR {
			c.typeWarning(TYPE_UINT32STAR, typ)
		}

		// dereference
		c.emitLW(c.currentTemporary(), c.currentTemporary(), 0)

		typ = TYPE_UINT32
	}

	if negative {
		if typ != TYPE_UINT32 {
			c.typeWarning(TYPE_UINT32, typ)

			typ = TYPE_UINT32
		}

		c.emitSUB(c.currentTemporary(), REG_ZR, c.currentTemporary())
	}

	// assert: allocated temporaries == n + 1

	if hasCast {
		return cast
	}
	return typ
}

func (c *Compiler) compileTerm() uint32 {
	// assert: n = allocated temporaries
	ltype := c.compileFactor()

	// assert: allocated temporaries == n + 1

	for c.isStarOrDivOrModulo() {
		operator := c.token()

		c.nextToken()

		rtype := c.compileFactor()

		// assert: allocated temporaries == n + 2

		if ltype != rtype {
			c.typeWarning(ltype, rtype)
		}

		switch operator {
		case TOKEN_STAR:
			c.emitMUL(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
		case TOKEN_SLASH:
			c.emitDIVU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
		case TOKEN_MOD:
			c.emitREMU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
		}

		c.tfree(1)

		if c.err != nil {
			break
		}
	}

	// assert: allocated temporaries == n + 1

	return ltype
}

func (c *Compiler) compileSimpleExpression() uint32 {
	// assert: n = allocated temporaries
	ltype := c.compileTerm()

	// assert: allocated temporaries == n + 1

	for c.isPlusOrMinus() {
		operator := c.token()

		c.nextToken()

		rtype := c.compileTerm()

		// assert: allocated temporaries == n + 2

		if operator == TOKEN_PLUS {
			if ltype == TYPE_UINT32STAR {
				if rtype == TYPE_UINT32 {
					// uint32_t* + uint32_t
					// pointer arithmetic: scale integer operand by 2^2
					c.emitLeftShiftBy(c.currentTemporary(), 2)
				} else {
					// uint32_t* + uint32_t*
					c.syntaxErrorMessage("(uint32_t*) + (uint32_t*) is undefined")
				}
			} else if rtype == TYPE_UINT32STAR {
				// uint32_t + uint32_t*
				// pointer arithmetic: scale integer operand by 2^2
				c.emitLeftShiftBy(c.previousTemporary(), 2)

				ltype = TYPE_UINT32STAR
			}

			c.emitADD(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())

		} else if operator == TOKEN_MINUS {
			if ltype == TYPE_UINT32STAR {
				if rtype == TYPE_UINT32 {
					// uint32_t* - uint32_t
					// pointer arithmetic: scale integer operand by 2^2
					c.emitLeftShiftBy(c.currentTemporary(), 2)
					c.emitSUB(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
				} else {
					// uint32_t* - uint32_t*
					// pointer arithmetic: (left - right) / 4
					c.emitSUB(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
					c.emitADDI(c.currentTemporary(), REG_ZR, SIZEOFUINT32)
					c.emitDIVU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())

					ltype = TYPE_UINT32
				}
			} else if rtype == TYPE_UINT32STAR {
				// uint32_t - uint32_t*
				c.syntaxErrorMessage("(uint32_t) - (uint32_t*) is undefined")
			} else {
				// uint32_t - uint32_t
				c.emitSUB(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
			}
		}

		c.tfree(1)

		if c.err != nil {
			break
		}
	}

	// assert: allocated temporaries == n + 1

	return ltype
}

func (c *Compiler) compileExpression() uint32 {
	// assert: n = allocated temporaries
	ltype := c.compileSimpleExpression()

	// assert: allocated temporaries == n + 1

	// optional: ==, !=, <, >, <=, >= simple expression
	if c.isComparison() {
		operator := c.token()

		c.nextToken()

		rtype := c.compileSimpleExpression()

		// assert: allocated temporaries == n + 2

		if ltype != rtype {
			c.typeWarning(ltype, rtype)
		}

		switch operator {
		case TOKEN_EQ:
			// a == b iff unsigned b - a < 1
			c.emitSUB(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())
			c.emitADDI(c.currentTemporary(), REG_ZR, 1)
			c.emitSLTU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())

			c.tfree(1)

		case TOKEN_NE:
			// a != b iff unsigned 0 < b - a
			c.emitSUB(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())

			c.tfree(1)

			c.emitSLTU(c.currentTemporary(), REG_ZR, c.currentTemporary())

		case TOKEN_LT:
			// a < b
			c.emitSLTU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())

			c.tfree(1)

		case TOKEN_GT:
			// a > b iff b < a
			c.emitSLTU(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())

			c.tfree(1)

		case TOKEN_LE:
			// a <= b iff 1 - (b < a)
			c.emitSLTU(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())
			c.emitADDI(c.currentTemporary(), REG_ZR, 1)
			c.emitSUB(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())

			c.tfree(1)

		case TOKEN_GE:
			// a >= b iff 1 - (a < b)
			c.emitSLTU(c.previousTemporary(), c.previousTemporary(), c.currentTemporary())
			c.emitADDI(c.currentTemporary(), REG_ZR, 1)
			c.emitSUB(c.previousTemporary(), c.currentTemporary(), c.previousTemporary())

			c.tfree(1)
		}
	}

	// assert: allocated temporaries == n + 1

	return ltype
}

// ---------------------------------------------------------------------
// statements

func (c *Compiler) compileWhile() {
	// assert: allocated temporaries == 0
	jumpBackToWhile := c.b.length

	branchForwardToEnd := uint32(0)

	// while ( expression )
	if c.token() == TOKEN_WHILE {
		c.nextToken()

		if c.token() == TOKEN_LPAREN {
			c.nextToken()

			c.compileExpression()

			// we do not know where to branch, fixup later
			branchForwardToEnd = c.b.length

			c.emitBEQ(c.currentTemporary(), REG_ZR, 0)

			c.tfree(1)

			if c.token() == TOKEN_RPAREN {
				c.nextToken()

				// zero or more statements: { statement }
				if c.token() == TOKEN_LBRACE {
					c.nextToken()

					for c.isNotRbraceOrEOF() {
						c.compileStatement()
						if c.err != nil {
							return
						}
					}

					if c.token() == TOKEN_RBRACE {
						c.nextToken()
					} else {
						c.syntaxErrorToken(TOKEN_RBRACE)
						c.fail(exitError(EXITCODE_PARSERERROR, "missing }"))
						return
					}
				} else {
					// only one statement without {}
					c.compileStatement()
				}
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}
		} else {
			c.syntaxErrorToken(TOKEN_LPAREN)
		}
	} else {
		c.syntaxErrorToken(TOKEN_WHILE)
	}

	// we use JAL for the unconditional jump back to the loop condition
	// because the RISC-V doc recommends it to not disturb branch prediction
	c.emitJAL(REG_ZR, jumpBackToWhile-c.b.length)

	if branchForwardToEnd != 0 {
		// first instruction after the loop body is generated here, so we
		// have the address for the conditional branch from above
		c.fixupBFormat(branchForwardToEnd)
	}

	// assert: allocated temporaries == 0

	c.whiles++
}

func (c *Compiler) compileIf() {
	// assert: allocated temporaries == 0
	var branchForwardToElseOrEnd uint32

	// if ( expression )
	if c.token() == TOKEN_IF {
		c.nextToken()

		if c.token() == TOKEN_LPAREN {
			c.nextToken()

			c.compileExpression()

			// if the "if" case is not true branch to "else" (if provided)
			branchForwardToElseOrEnd = c.b.length

			c.emitBEQ(c.currentTemporary(), REG_ZR, 0)

			c.tfree(1)

			if c.token() == TOKEN_RPAREN {
				c.nextToken()

				// zero or more statements: { statement }
				if c.token() == TOKEN_LBRACE {
					c.nextToken()

					for c.isNotRbraceOrEOF() {
						c.compileStatement()
						if c.err != nil {
							return
						}
					}

					if c.token() == TOKEN_RBRACE {
						c.nextToken()
					} else {
						c.syntaxErrorToken(TOKEN_RBRACE)
						c.fail(exitError(EXITCODE_PARSERERROR, "missing }"))
						return
					}
				} else {
					// only one statement without {}
					c.compileStatement()
				}

				// optional: else
				if c.token() == TOKEN_ELSE {
					c.nextToken()

					// if the "if" case was true we skip the "else" case by
					// unconditionally jumping to the end
					jumpForwardToEnd := c.b.length

					c.emitJAL(REG_ZR, 0)

					// if the "if" case was not true we branch here
					c.fixupBFormat(branchForwardToElseOrEnd)

					// zero or more statements: { statement }
					if c.token() == TOKEN_LBRACE {
						c.nextToken()

						for c.isNotRbraceOrEOF() {
							c.compileStatement()
							if c.err != nil {
								return
							}
						}

						if c.token() == TOKEN_RBRACE {
							c.nextToken()
						} else {
							c.syntaxErrorToken(TOKEN_RBRACE)
							c.fail(exitError(EXITCODE_PARSERERROR, "missing }"))
							return
						}
					} else {
						// only one statement without {}
						c.compileStatement()
					}

					// if the "if" case was true we unconditionally jump here
					c.fixupJFormat(jumpForwardToEnd, c.b.length)
				} else {
					// if the "if" case was not true we branch here
					c.fixupBFormat(branchForwardToElseOrEnd)
				}
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}
		} else {
			c.syntaxErrorToken(TOKEN_LPAREN)
		}
	} else {
		c.syntaxErrorToken(TOKEN_IF)
	}

	// assert: allocated temporaries == 0

	c.ifs++
}

func (c *Compiler) compileReturn() {
	// assert: allocated temporaries == 0
	if c.token() == TOKEN_RETURN {
		c.nextToken()
	} else {
		c.syntaxErrorToken(TOKEN_RETURN)
	}

	// optional: expression
	if c.token() != TOKEN_SEMICOLON {
		typ := c.compileExpression()

		if typ != c.returnType {
			c.typeWarning(c.returnType, typ)
		}

		// save value of expression in return register
		c.emitADDI(REG_A0, c.currentTemporary(), 0)

		c.tfree(1)
	} else if c.returnType != TYPE_VOID {
		c.typeWarning(c.returnType, TYPE_VOID)
	}

	// jump to the procedure epilogue through the fixup chain using the
	// absolute address of the previous chain head
	c.emitJAL(REG_ZR, c.returnBranches)

	// new head of fixup chain
	c.returnBranches = c.b.length - INSTRUCTIONSIZE

	// assert: allocated temporaries == 0

	c.returns++
}

func (c *Compiler) compileStatement() {
	// assert: allocated temporaries == 0
	for c.lookForStatement() {
		c.syntaxErrorUnexpected()

		if c.token() == TOKEN_EOF {
			c.fail(exitError(EXITCODE_PARSERERROR, "unexpected end of file"))
			return
		}
		c.nextToken()
		if c.err != nil {
			return
		}
	}

	switch c.token() {
	case TOKEN_STAR:
		c.compileStoreThroughPointer()

	case TOKEN_IDENT:
		name := c.lex.ident

		c.nextToken()

		if c.token() == TOKEN_LPAREN {
			// procedure call
			c.nextToken()

			c.compileCall(name)

			// reset return register to initial return value
			// for missing return expressions
			c.emitADDI(REG_A0, REG_ZR, 0)

			c.expectSemicolon()
		} else if c.token() == TOKEN_ASSIGN {
			// identifier = expression
			index := c.getVariableOrBigInt(name, CLASS_VARIABLE)
			if index == noEntry {
				return
			}

			// copy the entry: compiling the expression may grow the arena
			e := *c.st.entry(index)

			c.nextToken()

			rtype := c.compileExpression()

			if e.typ != rtype {
				c.typeWarning(e.typ, rtype)
			}

			offset := e.address

			if isSignedInteger(offset, 12) {
				c.emitSW(e.scope, offset, c.currentTemporary())

				c.tfree(1)
			} else {
				c.loadUpperBaseAddress(&e)

				c.emitSW(c.currentTemporary(), signExtend(getBits(offset, 0, 12), 12), c.previousTemporary())

				c.tfree(2)
			}

			c.assignments++

			c.expectSemicolon()
		} else {
			c.syntaxErrorUnexpected()
		}

	case TOKEN_WHILE:
		c.compileWhile()

	case TOKEN_IF:
		c.compileIf()

	case TOKEN_RETURN:
		c.compileReturn()

		c.expectSemicolon()
	}
}

// compileStoreThroughPointer compiles "*" ( ident | "(" expr ")" ) "=" expr ";"
func (c *Compiler) compileStoreThroughPointer() {
	c.nextToken()

	if c.token() == TOKEN_IDENT {
		ltype := c.loadVariableOrBigInt(c.lex.ident, CLASS_VARIABLE)

		if ltype != TYPE_UINT32STAR {
			c.typeWarning(TYPE_UINT32STAR, ltype)
		}

		c.nextToken()

		if c.token() == TOKEN_ASSIGN {
			c.nextToken()

			rtype := c.compileExpression()

			if rtype != TYPE_UINT32 {
				c.typeWarning(TYPE_UINT32, rtype)
			}

			c.emitSW(c.previousTemporary(), 0, c.currentTemporary())

			c.tfree(2)

			c.assignments++
		} else {
			c.syntaxErrorToken(TOKEN_ASSIGN)

			c.tfree(1)
		}

		c.expectSemicolon()
	} else if c.token() == TOKEN_LPAREN {
		c.nextToken()

		ltype := c.compileExpression()

		if ltype != TYPE_UINT32STAR {
			c.typeWarning(TYPE_UINT32STAR, ltype)
		}

		if c.token() == TOKEN_RPAREN {
			c.nextToken()

			if c.token() == TOKEN_ASSIGN {
				c.nextToken()

				rtype := c.compileExpression()

				if rtype != TYPE_UINT32 {
					c.typeWarning(TYPE_UINT32, rtype)
				}

				c.emitSW(c.previousTemporary(), 0, c.currentTemporary())

				c.tfree(2)

				c.assignments++
			} else {
				c.syntaxErrorToken(TOKEN_ASSIGN)

				c.tfree(1)
			}

			c.expectSemicolon()
		} else {
			c.syntaxErrorToken(TOKEN_RPAREN)
		}
	} else {
		c.syntaxErrorToken(TOKEN_LPAREN)
	}
}

func (c *Compiler) expectSemicolon() {
	if c.token() == TOKEN_SEMICOLON {
		c.nextToken()
	} else {
		c.syntaxErrorToken(TOKEN_SEMICOLON)
	}
}

// ---------------------------------------------------------------------
// declarations

func (c *Compiler) compileType() uint32 {
	typ := uint32(TYPE_UINT32)

	if c.token() == TOKEN_UINT32 {
		c.nextToken()

		if c.token() == TOKEN_STAR {
			typ = TYPE_UINT32STAR

			c.nextToken()
		}
	} else {
		c.syntaxErrorToken(TOKEN_UINT32)
	}

	return typ
}

func (c *Compiler) compileVariable(offset uint32) {
	typ := c.compileType()

	if c.token() == TOKEN_IDENT {
		c.st.createEntry(LOCAL_TABLE, c.lex.ident, c.line(), CLASS_VARIABLE, typ, 0, offset)

		c.nextToken()
	} else {
		c.syntaxErrorToken(TOKEN_IDENT)

		c.st.createEntry(LOCAL_TABLE, "missing variable name", c.line(), CLASS_VARIABLE, typ, 0, offset)
	}
}

// compileInitialization parses "= [ cast ] [ - ] literal ;" and returns
// the initial value.
func (c *Compiler) compileInitialization(typ uint32) uint32 {
	initialValue := uint32(0)

	hasCast := false
	var cast uint32

	if c.token() == TOKEN_ASSIGN {
		c.nextToken()

		// optional: [ cast ]
		if c.token() == TOKEN_LPAREN {
			hasCast = true

			c.nextToken()

			cast = c.compileType()

			if c.token() == TOKEN_RPAREN {
				c.nextToken()
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}
		}

		// optional: -
		if c.token() == TOKEN_MINUS {
			c.lex.integerIsSigned = true

			c.nextToken()

			c.lex.integerIsSigned = false

			initialValue = -c.lex.literal
		} else {
			initialValue = c.lex.literal
		}

		if c.isLiteral() {
			c.nextToken()
		} else {
			c.syntaxErrorUnexpected()
		}

		c.expectSemicolon()
	} else {
		c.syntaxErrorToken(TOKEN_ASSIGN)
	}

	if hasCast {
		if typ != cast {
			c.typeWarning(typ, cast)
		}
	} else if typ != TYPE_UINT32 {
		c.typeWarning(typ, TYPE_UINT32)
	}

	return initialValue
}

func (c *Compiler) compileProcedure(procedure string, typ uint32) {
	// assuming the procedure is undefined
	isUndefined := true

	numberOfParameters := uint32(0)

	// try parsing formal parameters
	if c.token() == TOKEN_LPAREN {
		c.nextToken()

		if c.token() != TOKEN_RPAREN {
			c.compileVariable(0)

			numberOfParameters = 1

			for c.token() == TOKEN_COMMA {
				c.nextToken()

				c.compileVariable(0)

				numberOfParameters++

				if c.err != nil {
					return
				}
			}

			// parameters were prepended to the local table in reverse
			// order; assign their positive fp offsets now, skipping the
			// saved frame pointer and return address
			index := c.st.local
			for parameters := uint32(0); parameters < numberOfParameters; parameters++ {
				c.st.entry(index).address = parameters*REGISTERSIZE + 2*REGISTERSIZE
				index = c.st.entry(index).next
			}

			if c.token() == TOKEN_RPAREN {
				c.nextToken()
			} else {
				c.syntaxErrorToken(TOKEN_RPAREN)
			}
		} else {
			c.nextToken()
		}
	} else {
		c.syntaxErrorToken(TOKEN_LPAREN)
	}

	index := c.st.searchGlobal(procedure, CLASS_PROCEDURE)

	if c.token() == TOKEN_SEMICOLON {
		// this is a procedure declaration
		if index == noEntry {
			// procedure never called nor declared nor defined
			c.st.createEntry(GLOBAL_TABLE, procedure, c.line(), CLASS_PROCEDURE, typ, 0, 0)
		} else if c.st.entry(index).typ != typ {
			// procedure already called, declared, or even defined;
			// check the return type but otherwise ignore
			c.typeWarning(c.st.entry(index).typ, typ)
		}

		c.nextToken()

	} else if c.token() == TOKEN_LBRACE {
		// this is a procedure definition
		if index == noEntry {
			// procedure never called nor declared nor defined
			c.st.createEntry(GLOBAL_TABLE, procedure, c.line(), CLASS_PROCEDURE, typ, 0, c.b.length)
		} else {
			e := c.st.entry(index)

			// procedure already called or declared or defined
			if e.address != 0 {
				// procedure already called or defined
				if getOpcode(c.b.loadInstruction(e.address)) == OP_JAL {
					// procedure already called but not defined:
					// resolve the fixup chain of call sites
					c.resolveChain(e.address, c.b.length)
				} else {
					// procedure already defined
					isUndefined = false
				}
			}

			if isUndefined {
				// procedure already called or declared but not defined
				e.line = c.line()

				if e.typ != typ {
					c.typeWarning(e.typ, typ)
				}

				e.typ = typ
				e.address = c.b.length

				if procedure == "main" {
					// the first source containing a main procedure names
					// the binary
					c.b.name = c.sourceName()

					// account for the initial call to main
					c.calls++
				}
			} else {
				// procedure already defined
				warnf("%s in line %d: redefinition of procedure %s ignored", c.sourceName(), c.line(), procedure)
			}
		}

		c.nextToken()

		localVariableBytes := uint32(0)

		for c.token() == TOKEN_UINT32 {
			localVariableBytes += REGISTERSIZE

			// offset of local variables relative to frame pointer is negative
			c.compileVariable(-localVariableBytes)

			c.expectSemicolon()

			if c.err != nil {
				return
			}
		}

		c.procedurePrologue(localVariableBytes)

		// create a fixup chain for return statements
		c.returnBranches = 0

		c.returnType = typ

		for c.isNotRbraceOrEOF() {
			c.compileStatement()
			if c.err != nil {
				return
			}
		}

		c.returnType = 0

		if c.token() == TOKEN_RBRACE {
			c.nextToken()
		} else {
			c.syntaxErrorToken(TOKEN_RBRACE)
			c.fail(exitError(EXITCODE_PARSERERROR, "missing }"))
			return
		}

		c.resolveChain(c.returnBranches, c.b.length)

		c.returnBranches = 0

		c.procedureEpilogue(numberOfParameters * REGISTERSIZE)

	} else {
		c.syntaxErrorUnexpected()
	}

	c.st.dropLocals()

	// assert: allocated temporaries == 0
}

func (c *Compiler) compileCstar() {
	for c.token() != TOKEN_EOF {
		if c.err != nil {
			return
		}

		for c.lookForType() {
			c.syntaxErrorUnexpected()

			if c.token() == TOKEN_EOF {
				c.fail(exitError(EXITCODE_PARSERERROR, "unexpected end of file"))
				return
			}
			c.nextToken()
			if c.err != nil {
				return
			}
		}

		if c.token() == TOKEN_VOID {
			// void identifier ... procedure declaration or definition
			typ := uint32(TYPE_VOID)

			c.nextToken()

			if c.token() == TOKEN_IDENT {
				name := c.lex.ident

				c.nextToken()

				c.compileProcedure(name, typ)
			} else {
				c.syntaxErrorToken(TOKEN_IDENT)
			}
		} else if c.token() == TOKEN_EOF {
			return
		} else {
			typ := c.compileType()

			if c.token() == TOKEN_IDENT {
				name := c.lex.ident

				c.nextToken()

				if c.token() == TOKEN_LPAREN {
					// type identifier "(" ... procedure declaration or definition
					c.compileProcedure(name, typ)
				} else {
					currentLine := c.line()

					var initialValue uint32

					if c.token() == TOKEN_SEMICOLON {
						// type identifier ";" global variable declaration
						c.nextToken()

						initialValue = 0
					} else {
						// type identifier "=" ... global variable definition
						initialValue = c.compileInitialization(typ)
					}

					if c.st.searchGlobal(name, CLASS_VARIABLE) == noEntry {
						c.allocatedMemory += REGISTERSIZE

						c.st.createEntry(GLOBAL_TABLE, name, currentLine, CLASS_VARIABLE, typ, initialValue, -c.allocatedMemory)
					} else {
						// global variable already declared or defined
						warnf("%s in line %d: redefinition of global variable %s ignored", c.sourceName(), currentLine, name)
					}
				}
			} else {
				c.syntaxErrorToken(TOKEN_IDENT)
			}
		}
	}
}

// ---------------------------------------------------------------------
// compilation driver

// Compile compiles and links the given MiniC sources into one binary. The
// first source containing a main procedure names the binary.
func (c *Compiler) Compile(sources []string, readFile func(string) ([]byte, error)) (*Binary, error) {
	c.b.name = "library"
	c.b.entryPoint = ELF_ENTRY_POINT

	c.emitProgramEntry()

	// emit syscall wrappers; the exit wrapper must come first
	c.emitExit()
	c.emitRead()
	c.emitWrite()
	c.emitOpen()
	c.emitMalloc()
	c.emitSwitch()

	// implicitly declare the main procedure
	c.st.createEntry(GLOBAL_TABLE, "main", 0, CLASS_PROCEDURE, TYPE_UINT32, 0, 0)

	if len(sources) == 0 {
		reportf("nothing to compile, only library generated")
	}

	for _, sourceName := range sources {
		source, err := readFile(sourceName)
		if err != nil {
			errorf("could not open input file %s", sourceName)
			return nil, exitError(EXITCODE_IOERROR, "could not open input file %s", sourceName)
		}

		reportf("compiling %s", sourceName)

		c.lex = NewLexer(sourceName, source)
		c.calls = 0
		c.assignments = 0
		c.whiles = 0
		c.ifs = 0
		c.returns = 0

		c.nextToken()

		c.compileCstar()

		if c.err != nil {
			return nil, c.err
		}

		reportf("%d characters read in %d lines and %d comments",
			c.lex.charactersRead, c.lex.line, c.lex.comments)

		whole, fraction := percent(c.lex.charactersRead, c.lex.charactersRead-c.lex.charactersIgnored)
		reportf("with %d(%d.%02d%%) characters in %d actual symbols",
			c.lex.charactersRead-c.lex.charactersIgnored, whole, fraction, c.lex.symbolsScanned)
		reportf("%d global variables, %d procedures, %d string literals",
			c.st.globalVariables, c.st.procedures, c.st.strings)
		reportf("%d calls, %d assignments, %d while, %d if, %d return",
			c.calls, c.assignments, c.whiles, c.ifs, c.returns)
	}

	c.emitBootstrapping()

	c.emitDataSegment()

	if c.err != nil {
		return nil, c.err
	}

	reportf("%d bytes generated with %d instructions and %d bytes of data",
		c.b.length, c.b.instructions(), c.b.dataLength())

	return c.b, nil
}
