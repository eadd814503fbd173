package compiler

import (
	"strconv"
	"strings"
)

// List renders prog in canonical form, one line per source line.
func List(prog *Program) string {
	var b strings.Builder
	for _, l := range prog.Lines {
		b.WriteString(FormatLine(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatLine renders "label stmt : stmt".
func FormatLine(l *Line) string {
	parts := make([]string, len(l.Stmts))
	for i, s := range l.Stmts {
		parts[i] = FormatStmt(s)
	}
	return l.Label + " " + strings.Join(parts, " : ")
}

func formatNumber(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func formatVars(vs []VarName) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatVar(v)
	}
	return strings.Join(parts, ", ")
}

func formatVar(v VarName) string {
	if !v.IsArray() {
		return v.Name
	}
	return v.Name + "(" + formatExprs(v.Indexes) + ")"
}

func formatExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = FormatExpr(e)
	}
	return strings.Join(parts, ", ")
}

// FormatStmt renders one statement.
func FormatStmt(stmt Stmt) string {
	switch s := stmt.(type) {
	case *Print:
		var b strings.Builder
		b.WriteString("PRINT")
		if len(s.Items) > 0 {
			b.WriteByte(' ')
		}
		for _, item := range s.Items {
			switch {
			case item.Expr != nil:
				b.WriteString(FormatExpr(item.Expr))
			case item.Sep == SepNone:
				b.WriteByte(';')
			case item.Sep == SepZone:
				b.WriteByte(',')
			default:
				b.WriteByte(' ')
			}
		}
		return b.String()
	case *Goto:
		return "GOTO " + s.Target
	case *Gosub:
		return "GOSUB " + s.Target
	case *Return:
		return "RETURN"
	case *OnGoto:
		return "ON " + FormatExpr(s.Expr) + " GOTO " + strings.Join(s.Targets, ", ")
	case *If:
		if g, ok := s.Then.(*Goto); ok {
			return "IF " + FormatExpr(s.Cond) + " THEN " + g.Target
		}
		return "IF " + FormatExpr(s.Cond) + " THEN " + FormatStmt(s.Then)
	case *Let:
		return "LET " + formatVar(s.Var) + " = " + FormatExpr(s.Value)
	case *Dim:
		parts := make([]string, len(s.Arrays))
		for i, a := range s.Arrays {
			parts[i] = a.Name + "(" + formatExprs(a.Sizes) + ")"
		}
		return "DIM " + strings.Join(parts, ", ")
	case *For:
		out := "FOR " + s.Var.Name + " = " + FormatExpr(s.Start) + " TO " + FormatExpr(s.End)
		if s.Step != nil {
			out += " STEP " + FormatExpr(s.Step)
		}
		return out
	case *Next:
		if len(s.Vars) == 0 {
			return "NEXT"
		}
		return "NEXT " + formatVars(s.Vars)
	case *Input:
		if s.Prompt != "" {
			return "INPUT " + strconv.Quote(s.Prompt) + "; " + formatVars(s.Vars)
		}
		return "INPUT " + formatVars(s.Vars)
	case *Data:
		return "DATA " + formatExprs(s.Values)
	case *Read:
		return "READ " + formatVars(s.Vars)
	case *Restore:
		if s.Target == "" {
			return "RESTORE"
		}
		return "RESTORE " + s.Target
	case *Rem:
		return "REM" + s.Text
	case *End:
		return "END"
	case *Stop:
		return "STOP"
	}
	return "?"
}

// FormatExpr renders an expression with the parentheses its structure
// needs and no others.
func FormatExpr(e Expr) string {
	return formatExpr(e, 0)
}

// formatExpr renders e in a context that binds at least as tight as ctx.
func formatExpr(expr Expr, ctx int) string {
	switch e := expr.(type) {
	case *NumberLit:
		return formatNumber(e.Value)
	case *StringLit:
		return `"` + e.Value + `"`
	case *VarRef:
		return formatVar(e.Var)
	case *Negate:
		s := "-" + formatExpr(e.X, unaryPrec)
		if ctx > unaryPrec {
			return "(" + s + ")"
		}
		return s
	case *Call:
		return e.Func.Name + "(" + formatExprs(e.Args) + ")"
	case *BinaryExpr:
		prec := e.Op.Precedence()
		left, right := prec, prec+1
		if e.Op.RightAssoc() {
			left, right = prec+1, prec
		}
		s := formatExpr(e.Left, left) + " " + e.Op.String() + " " + formatExpr(e.Right, right)
		if prec < ctx {
			return "(" + s + ")"
		}
		return s
	}
	return "?"
}
