// Package compiler provides a tokenizer, parser and code generator for
// line-numbered BASIC that targets the JVM.
//
// Pipeline: BASIC source → Tokenize → Parse → Generate (Plan) → Emit → class file
package compiler
