// Package fortran converts free-form Fortran source into an ftree.Tree and
// back. Every logical statement becomes one node carrying its verbatim
// source text, so unparsing an unmodified tree reproduces the input
// byte-for-byte: comments, blank lines, continuations, and original token
// spelling included. Passes that synthesize statements set the text
// themselves.
//
// Node attribute conventions:
//
//	unit nodes    unit=program|module|subroutine|function, name=<name>
//	constructs    construct=if|do|where|select|interface|typedef|block|associate
//	statements    stmt=call|exec|else|else-if|contains|if-oneline|...-head|...
//	declarations  decl=var|use|implicit|parameter, type=..., names=a,b,c
//	leaves        text=<verbatim source line(s)>
package fortran

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fortree/fortree/internal/ftree"
)

// ErrParse marks malformed or unsupported input source.
var ErrParse = errors.New("fortran: parse error")

var (
	reEnd        = regexp.MustCompile(`^end(?:\s*(do|if|where|select|interface|type|block|associate|subroutine|function|module|program))?(?:\s+(\w+))?$`)
	reSubroutine = regexp.MustCompile(`^(?:(?:pure|elemental|recursive|impure)\s+)*subroutine\s+(\w+)`)
	reProgram    = regexp.MustCompile(`^program\s+(\w+)`)
	reModule     = regexp.MustCompile(`^module\s+(\w+)\s*$`)
	reFunction   = regexp.MustCompile(`^(?:(?:pure|elemental|recursive|impure)\s+|(?:integer|real|logical|complex|character|double\s+precision)(?:\s*\([^)]*\)|\s*\*\s*\d+)?\s+|type\s*\([^)]*\)\s+)*function\s+(\w+)\s*\(`)
	reCall       = regexp.MustCompile(`^call\s+(\w+)`)
	reDeclType   = regexp.MustCompile(`^(?:(?:integer|real|logical|complex|character|double\s+precision)\b|(?:type|class)\s*\([^)]+\))`)
	reUse        = regexp.MustCompile(`^use(?:\s*,\s*\w+\s*)?(?:\s+|\s*::\s*)(\w+)`)
	reTypeDef    = regexp.MustCompile(`^type(?:\s*(?:,\s*[\w()]+\s*)*::\s*|\s+)(\w+)\s*$`)
	reDoHead     = regexp.MustCompile(`^do\b`)
	reElseIf     = regexp.MustCompile(`^else\s*if\s*\(`)
	reSelect     = regexp.MustCompile(`^select\s*(?:case|type)\b`)
	reInterface  = regexp.MustCompile(`^interface(?:\s*$|\s+operator\s*\(|\s+assignment\s*\(|\s+\w+\s*$)`)
	reAssociate  = regexp.MustCompile(`^associate\s*\(`)
	reLabel      = regexp.MustCompile(`^\d+\s+`)
)

type frame struct {
	id   ftree.NodeID
	kind string // "root", "unit", or a construct name
}

type parser struct {
	tree  *ftree.Tree
	stack []frame
}

// Parse converts source text into a tree. The returned error wraps ErrParse
// for malformed input (unbalanced constructs, mismatched END).
func Parse(source []byte) (*ftree.Tree, error) {
	p := &parser{tree: ftree.New()}
	p.stack = []frame{{id: p.tree.Root(), kind: "root"}}

	lines := strings.Split(string(source), "\n")
	// A trailing newline yields one empty trailing element; drop it so it is
	// not mistaken for a blank source line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for i := 0; i < len(lines); {
		raw, logical, next := joinContinuations(lines, i)
		if err := p.statement(raw, logical, i+1); err != nil {
			return nil, err
		}
		i = next
	}

	if len(p.stack) != 1 {
		top := p.stack[len(p.stack)-1]
		return nil, fmt.Errorf("%w: unterminated %s at end of input", ErrParse, top.kind)
	}
	return p.tree, nil
}

// joinContinuations gathers one logical statement starting at line i.
// It returns the verbatim raw text (lines joined with \n), the logical text
// used for classification, and the index of the next unconsumed line.
func joinContinuations(lines []string, i int) (raw, logical string, next int) {
	var rawParts, logicalParts []string
	for {
		line := lines[i]
		rawParts = append(rawParts, line)
		part := strings.TrimSpace(line)
		part = strings.TrimPrefix(part, "&")
		cont := strings.HasSuffix(part, "&") && !isComment(part)
		if cont {
			part = strings.TrimSpace(strings.TrimSuffix(part, "&"))
		}
		logicalParts = append(logicalParts, part)
		i++
		if !cont || i >= len(lines) {
			break
		}
	}
	return strings.Join(rawParts, "\n"), strings.Join(logicalParts, " "), i
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "!")
}

func (p *parser) top() frame { return p.stack[len(p.stack)-1] }

func (p *parser) push(id ftree.NodeID, kind string) {
	p.stack = append(p.stack, frame{id: id, kind: kind})
}

func (p *parser) pop() { p.stack = p.stack[:len(p.stack)-1] }

// emit appends a new leaf node to the current container.
func (p *parser) emit(kind ftree.Kind, attrs map[string]string) (ftree.NodeID, error) {
	id := p.tree.NewNode(kind, attrs)
	if err := p.tree.AppendChild(p.top().id, id); err != nil {
		return ftree.InvalidID, err
	}
	return id, nil
}

// open appends a container node and pushes it on the construct stack.
func (p *parser) open(kind ftree.Kind, stackKind string, attrs map[string]string) (ftree.NodeID, error) {
	id, err := p.emit(kind, attrs)
	if err != nil {
		return ftree.InvalidID, err
	}
	p.push(id, stackKind)
	return id, nil
}

func (p *parser) statement(raw, logical string, lineno int) error {
	low := strings.ToLower(logical)

	switch {
	case logical == "":
		_, err := p.emit(ftree.KindComment, map[string]string{"text": raw})
		return err

	case isComment(logical):
		kind := ftree.KindComment
		if strings.HasPrefix(logical, "!$") {
			kind = ftree.KindDirective
		}
		_, err := p.emit(kind, map[string]string{"text": raw})
		return err
	}

	// Strip numeric statement labels for classification only.
	if loc := reLabel.FindString(low); loc != "" {
		low = low[len(loc):]
	}

	if m := reEnd.FindStringSubmatch(low); m != nil {
		return p.closeConstruct(raw, m[1], lineno)
	}

	if m := reProgram.FindStringSubmatch(low); m != nil {
		return p.openUnit(raw, "program", logical, m, lineno)
	}
	if m := reModule.FindStringSubmatch(low); m != nil && !strings.HasPrefix(low, "module procedure") {
		return p.openUnit(raw, "module", logical, m, lineno)
	}
	if m := reSubroutine.FindStringSubmatch(low); m != nil {
		return p.openUnit(raw, "subroutine", logical, m, lineno)
	}
	if m := reFunction.FindStringSubmatch(low); m != nil {
		return p.openUnit(raw, "function", logical, m, lineno)
	}

	switch {
	case strings.HasPrefix(low, "if") && strings.HasPrefix(strings.TrimSpace(low[2:]), "("):
		return p.ifStatement(raw, logical, lineno)

	case reElseIf.MatchString(low):
		if p.top().kind != "if" {
			return fmt.Errorf("%w: line %d: ELSE IF outside IF construct", ErrParse, lineno)
		}
		_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "else-if", "text": raw})
		return err

	case low == "else":
		if p.top().kind != "if" {
			return fmt.Errorf("%w: line %d: ELSE outside IF construct", ErrParse, lineno)
		}
		_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "else", "text": raw})
		return err

	case reDoHead.MatchString(low):
		_, err := p.open(ftree.KindStmt, "do", map[string]string{"construct": "do"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "do-head", "text": raw})
		return err

	case strings.HasPrefix(low, "where"):
		return p.whereStatement(raw, logical, lineno)

	case reSelect.MatchString(low):
		_, err := p.open(ftree.KindStmt, "select", map[string]string{"construct": "select"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "select-head", "text": raw})
		return err

	case reInterface.MatchString(low):
		_, err := p.open(ftree.KindStmt, "interface", map[string]string{"construct": "interface"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "interface-head", "text": raw})
		return err

	case low == "block":
		_, err := p.open(ftree.KindStmt, "block", map[string]string{"construct": "block"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "block-head", "text": raw})
		return err

	case reAssociate.MatchString(low):
		_, err := p.open(ftree.KindStmt, "associate", map[string]string{"construct": "associate"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "associate-head", "text": raw})
		return err

	case reTypeDef.MatchString(low) && !strings.Contains(low, "("):
		_, err := p.open(ftree.KindStmt, "typedef", map[string]string{"construct": "typedef"})
		if err != nil {
			return err
		}
		_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "typedef-head", "text": raw})
		return err

	case reCall.MatchString(low):
		_, err := p.callStatement(raw, logical, true)
		return err

	case strings.HasPrefix(low, "use ") || strings.HasPrefix(low, "use,") || strings.HasPrefix(low, "use::"):
		return p.useStatement(raw, logical)

	case strings.HasPrefix(low, "implicit"):
		_, err := p.emit(ftree.KindDecl, map[string]string{"decl": "implicit", "text": raw})
		return err

	case strings.HasPrefix(low, "parameter"):
		_, err := p.emit(ftree.KindDecl, map[string]string{"decl": "parameter", "text": raw})
		return err

	case low == "contains":
		_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "contains", "text": raw})
		return err

	case reDeclType.MatchString(low):
		return p.declStatement(raw, logical)
	}

	_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "exec", "text": raw})
	return err
}

func (p *parser) openUnit(raw, unit, logical string, m []string, lineno int) error {
	if k := p.top().kind; k != "root" && k != "unit" {
		return fmt.Errorf("%w: line %d: %s unit inside %s construct", ErrParse, lineno, unit, k)
	}
	// Recover the original-case name from the logical text.
	name := originalCase(logical, m[1])
	_, err := p.open(ftree.KindUnit, "unit", map[string]string{"unit": unit, "name": name})
	if err != nil {
		return err
	}
	_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "unit-head", "text": raw})
	return err
}

func (p *parser) closeConstruct(raw, endWhat string, lineno int) error {
	top := p.top()
	if top.kind == "root" {
		return fmt.Errorf("%w: line %d: END without open construct", ErrParse, lineno)
	}
	if endWhat != "" {
		want := endWhat
		if want == "type" {
			want = "typedef"
		}
		matches := want == top.kind
		if top.kind == "unit" {
			u, _ := p.tree.Attr(top.id, "unit")
			matches = want == u
		}
		if !matches {
			return fmt.Errorf("%w: line %d: END %s closes open %s", ErrParse, lineno, strings.ToUpper(endWhat), top.kind)
		}
	}
	stmt := "end"
	if top.kind == "unit" {
		stmt = "unit-end"
	}
	if _, err := p.emit(ftree.KindStmt, map[string]string{"stmt": stmt, "text": raw}); err != nil {
		return err
	}
	p.pop()
	return nil
}

// ifStatement handles IF construct heads and one-line logical IFs.
func (p *parser) ifStatement(raw, logical string, lineno int) error {
	after := strings.TrimSpace(logical[2:])
	cond, rest, ok := balancedParen(after)
	if !ok {
		return fmt.Errorf("%w: line %d: unbalanced parentheses in IF", ErrParse, lineno)
	}
	rest = strings.TrimSpace(rest)

	if strings.EqualFold(rest, "then") {
		if _, err := p.open(ftree.KindStmt, "if", map[string]string{"construct": "if"}); err != nil {
			return err
		}
		head, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "if-head", "cond": cond, "text": raw})
		if err != nil {
			return err
		}
		return p.attachExpr(head, "cond", cond)
	}

	if rest == "" {
		return fmt.Errorf("%w: line %d: IF without THEN or action", ErrParse, lineno)
	}

	// One-line logical IF: the container carries the verbatim text; the
	// action child is classified for queries but holds no text of its own.
	node, err := p.emit(ftree.KindStmt, map[string]string{
		"stmt": "if-oneline", "cond": cond, "action": rest, "text": raw,
	})
	if err != nil {
		return err
	}
	if err := p.attachExpr(node, "cond", cond); err != nil {
		return err
	}
	if reCall.MatchString(strings.ToLower(rest)) {
		p.push(node, "if-oneline")
		_, err = p.callStatement("", rest, false)
		p.pop()
		return err
	}
	action := p.tree.NewNode(ftree.KindStmt, map[string]string{"stmt": "exec", "src": rest})
	return p.tree.AppendChild(node, action)
}

// whereStatement handles WHERE construct heads and one-line WHERE.
func (p *parser) whereStatement(raw, logical string, lineno int) error {
	after := strings.TrimSpace(logical[len("where"):])
	if !strings.HasPrefix(after, "(") {
		_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "exec", "text": raw})
		return err
	}
	_, rest, ok := balancedParen(after)
	if !ok {
		return fmt.Errorf("%w: line %d: unbalanced parentheses in WHERE", ErrParse, lineno)
	}
	if strings.TrimSpace(rest) != "" {
		// One-line masked assignment.
		_, err := p.emit(ftree.KindStmt, map[string]string{"stmt": "exec", "text": raw})
		return err
	}
	_, err := p.open(ftree.KindStmt, "where", map[string]string{"construct": "where"})
	if err != nil {
		return err
	}
	_, err = p.emit(ftree.KindStmt, map[string]string{"stmt": "where-head", "text": raw})
	return err
}

// callStatement emits a call node. When withText is false the node is the
// action child of a one-line IF and its text lives on the container.
func (p *parser) callStatement(raw, logical string, withText bool) (ftree.NodeID, error) {
	low := strings.ToLower(logical)
	m := reCall.FindStringSubmatch(low)
	name := originalCase(logical, m[1])
	attrs := map[string]string{"stmt": "call", "name": name}
	if withText {
		attrs["text"] = raw
	}
	args := ""
	if i := strings.Index(logical, "("); i >= 0 {
		if inner, _, ok := balancedParen(logical[i:]); ok {
			args = inner
		}
	}
	if args != "" {
		attrs["args"] = args
	}
	id, err := p.emit(ftree.KindStmt, attrs)
	if err != nil {
		return ftree.InvalidID, err
	}
	if args != "" {
		if err := p.attachExpr(id, "args", args); err != nil {
			return ftree.InvalidID, err
		}
	}
	return id, nil
}

func (p *parser) useStatement(raw, logical string) error {
	attrs := map[string]string{"decl": "use", "text": raw}
	if m := reUse.FindStringSubmatch(strings.ToLower(logical)); m != nil {
		attrs["module"] = originalCase(logical, m[1])
	}
	low := strings.ToLower(logical)
	if i := strings.Index(low, "only"); i >= 0 {
		only := logical[i+len("only"):]
		only = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(only), ":"))
		attrs["only"] = only
	}
	_, err := p.emit(ftree.KindDecl, attrs)
	return err
}

// declStatement emits a variable declaration node with the parsed type spec
// and entity names.
func (p *parser) declStatement(raw, logical string) error {
	low := strings.ToLower(logical)
	typeSpec := reDeclType.FindString(low)
	attrs := map[string]string{"decl": "var", "text": raw, "type": originalCase(logical, typeSpec)}

	var entities string
	if i := strings.Index(logical, "::"); i >= 0 {
		entities = logical[i+2:]
		spec := strings.TrimSpace(logical[:i])
		attrs["type"] = spec
		if strings.Contains(strings.ToLower(spec), "intent") {
			attrs["intent"] = "true"
		}
		if strings.Contains(strings.ToLower(spec), "parameter") {
			attrs["parameter"] = "true"
		}
	} else {
		entities = logical[len(typeSpec):]
	}

	attrs["entities"] = strings.TrimSpace(entities)
	names := entityNames(entities)
	if len(names) > 0 {
		attrs["names"] = strings.Join(names, ",")
	}
	_, err := p.emit(ftree.KindDecl, attrs)
	return err
}

// entityNames extracts declared entity names from a declaration list,
// dropping dimensions, initializers, and character lengths.
func entityNames(list string) []string {
	var names []string
	for _, ent := range splitTopLevel(list, ',') {
		ent = strings.TrimSpace(ent)
		if ent == "" {
			continue
		}
		end := 0
		for end < len(ent) && (isIdentChar(ent[end])) {
			end++
		}
		if end > 0 {
			names = append(names, ent[:end])
		}
	}
	return names
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// splitTopLevel splits on sep outside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// balancedParen extracts the contents of the leading parenthesized group of
// s (which must start with '(') and returns the remainder after it.
func balancedParen(s string) (inner, rest string, ok bool) {
	if len(s) == 0 || s[0] != '(' {
		return "", "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// originalCase finds the original-case spelling of a lower-case token
// located in text.
func originalCase(text, lower string) string {
	i := strings.Index(strings.ToLower(text), lower)
	if i < 0 {
		return lower
	}
	return text[i : i+len(lower)]
}

func (p *parser) attachExpr(parent ftree.NodeID, role, text string) error {
	e := p.tree.NewNode(ftree.KindExpr, map[string]string{"role": role, "src": text})
	return p.tree.AppendChild(parent, e)
}

// SplitEntities splits a declaration entity list on top-level commas,
// keeping dimensions and initializers attached to their entity.
func SplitEntities(list string) []string {
	var out []string
	for _, e := range splitTopLevel(list, ',') {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// EntityName returns the bare identifier of one declaration entity.
func EntityName(entity string) string {
	entity = strings.TrimSpace(entity)
	end := 0
	for end < len(entity) && isIdentChar(entity[end]) {
		end++
	}
	return entity[:end]
}

// Indent returns the leading whitespace of a statement's text.
func Indent(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] != ' ' && text[i] != '\t' {
			return text[:i]
		}
	}
	return text
}
