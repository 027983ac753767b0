// Package predicate implements the record filter language: an ordered
// list of field conditions joined left to right by AND/OR with no
// operator precedence, short-circuited during evaluation, plus an
// optional time-window pre-filter evaluated before any condition.
package predicate

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opnsense-tools/fwlogstore/record"
)

// Op identifies a condition's comparison operator.
type Op string

const (
	OpEquals      Op = "eq"
	OpNotEquals   Op = "ne"
	OpContains    Op = "contains"
	OpStartsWith  Op = "starts_with"
	OpEndsWith    Op = "ends_with"
	OpRegex       Op = "regex"
	OpGreaterThan Op = "gt"
	OpLessThan    Op = "lt"
	OpGreaterEq   Op = "gte"
	OpLessEq      Op = "lte"
	// OpInCIDR matches when the field value is an IP address contained
	// in the condition value's CIDR range (e.g. "10.0.0.0/8"). A
	// condition value that isn't a valid CIDR fails Compile; a field
	// value that isn't a valid IP silently evaluates false rather than
	// erroring, the same never-error contract numeric comparisons follow.
	OpInCIDR Op = "in_cidr"
)

// Connective joins two consecutive conditions. There is no operator
// precedence: a predicate is evaluated strictly left to right.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// ConditionSpec is one uncompiled field test, the serializable unit a
// predicate is built from (spec.md §9 "Serializable predicate").
type ConditionSpec struct {
	Field         string
	Op            Op
	Value         string
	CaseSensitive bool
	Negate        bool
}

// Spec is the serializable form of a full predicate: conditions joined
// by connectives (len(Connectives) == len(Conditions)-1), plus an
// optional time window applied before any condition. TimeStart/TimeEnd
// accept RFC3339, "2006-01-02 15:04:05" or "2006-01-02"; either may be
// left empty to leave that bound open.
type Spec struct {
	Conditions  []ConditionSpec
	Connectives []Connective
	TimeStart   string
	TimeEnd     string
}

type compiledCondition struct {
	ConditionSpec
	re   *regexp.Regexp
	cidr *net.IPNet
}

type timeWindow struct {
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
}

// Predicate is a compiled, ready-to-evaluate Spec.
type Predicate struct {
	conditions  []compiledCondition
	connectives []Connective
	window      *timeWindow
}

// timeLayouts mirrors the flexible time parsing the reference CLI host
// accepts for range filters.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseFlexibleTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("predicate: %q does not match any accepted time format: %w", s, firstErr)
}

// Compile validates and compiles a Spec: connective count, operator
// names, regex patterns, and time-window bounds are all checked here so
// a bad predicate fails at the facade boundary, never mid-scan.
func Compile(spec Spec) (*Predicate, error) {
	if len(spec.Conditions) > 0 && len(spec.Connectives) != len(spec.Conditions)-1 {
		return nil, fmt.Errorf("predicate: %d conditions require %d connectives, got %d",
			len(spec.Conditions), len(spec.Conditions)-1, len(spec.Connectives))
	}

	p := &Predicate{connectives: spec.Connectives}

	for _, c := range spec.Conditions {
		switch c.Op {
		case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpRegex, OpGreaterThan, OpLessThan, OpGreaterEq, OpLessEq, OpInCIDR:
		default:
			return nil, fmt.Errorf("predicate: unknown operator %q for field %q", c.Op, c.Field)
		}

		cc := compiledCondition{ConditionSpec: c}
		if c.Op == OpRegex {
			pattern := c.Value
			if !c.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("predicate: compiling regex %q for field %q: %w", c.Value, c.Field, err)
			}
			cc.re = re
		}
		if c.Op == OpInCIDR {
			_, network, err := net.ParseCIDR(c.Value)
			if err != nil {
				return nil, fmt.Errorf("predicate: parsing CIDR %q for field %q: %w", c.Value, c.Field, err)
			}
			cc.cidr = network
		}
		p.conditions = append(p.conditions, cc)
	}

	if spec.TimeStart != "" || spec.TimeEnd != "" {
		w := &timeWindow{}
		if spec.TimeStart != "" {
			t, err := parseFlexibleTime(spec.TimeStart)
			if err != nil {
				return nil, err
			}
			w.start, w.hasStart = t, true
		}
		if spec.TimeEnd != "" {
			t, err := parseFlexibleTime(spec.TimeEnd)
			if err != nil {
				return nil, err
			}
			w.end, w.hasEnd = t, true
		}
		if w.hasStart && w.hasEnd && w.end.Before(w.start) {
			return nil, fmt.Errorf("predicate: time window end %q is before start %q", spec.TimeEnd, spec.TimeStart)
		}
		p.window = w
	}

	return p, nil
}

// LabelResolver looks up the display label for a rule identifier, the
// backing lookup for the "__label__" pseudo-field. A nil LabelResolver
// makes "__label__" always resolve to the empty string.
type LabelResolver func(ruleID string) (label string, ok bool)

// Evaluate reports whether rec satisfies the predicate. The time window,
// if any, is checked first and short-circuits the whole evaluation; the
// conditions are then folded left to right with AND/OR short-circuiting,
// exactly the order they were specified in, with no precedence.
func (p *Predicate) Evaluate(rec record.Record, resolveLabel LabelResolver) bool {
	if p.window != nil {
		ts := rec.Timestamp.Instant
		if p.window.hasStart && ts.Before(p.window.start) {
			return false
		}
		if p.window.hasEnd && ts.After(p.window.end) {
			return false
		}
	}

	if len(p.conditions) == 0 {
		return true
	}

	result := p.evalCondition(rec, p.conditions[0], resolveLabel)
	for i, conn := range p.connectives {
		cond := p.conditions[i+1]
		switch conn {
		case And:
			if result {
				result = p.evalCondition(rec, cond, resolveLabel)
			}
		case Or:
			if !result {
				result = p.evalCondition(rec, cond, resolveLabel)
			}
		}
	}
	return result
}

func (p *Predicate) evalCondition(rec record.Record, cond compiledCondition, resolveLabel LabelResolver) bool {
	var matched bool

	switch cond.Field {
	case "__label__":
		label := ""
		if resolveLabel != nil {
			if l, ok := resolveLabel(rec.Field("rid")); ok {
				label = l
			}
		}
		matched = evalValue(label, cond)
	case "interface":
		// A physical interface name and its operator-assigned display
		// name are the same logical interface; a condition on either
		// should match records indexed by one but labeled by the other.
		matched = evalValue(rec.Field("interface"), cond) || evalValue(rec.Field("interface_display"), cond)
	default:
		matched = evalValue(rec.Field(cond.Field), cond)
	}

	if cond.Negate {
		return !matched
	}
	return matched
}

func evalValue(value string, cond compiledCondition) bool {
	switch cond.Op {
	case OpRegex:
		return cond.re.MatchString(value)
	case OpInCIDR:
		ip := net.ParseIP(value)
		if ip == nil {
			return false
		}
		return cond.cidr.Contains(ip)
	case OpGreaterThan, OpLessThan, OpGreaterEq, OpLessEq:
		v, err1 := strconv.ParseFloat(value, 64)
		want, err2 := strconv.ParseFloat(cond.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch cond.Op {
		case OpGreaterThan:
			return v > want
		case OpLessThan:
			return v < want
		case OpGreaterEq:
			return v >= want
		case OpLessEq:
			return v <= want
		}
		return false
	default:
		a, b := value, cond.Value
		if !cond.CaseSensitive {
			a, b = strings.ToLower(a), strings.ToLower(b)
		}
		switch cond.Op {
		case OpEquals:
			return a == b
		case OpNotEquals:
			return a != b
		case OpContains:
			return strings.Contains(a, b)
		case OpStartsWith:
			return strings.HasPrefix(a, b)
		case OpEndsWith:
			return strings.HasSuffix(a, b)
		}
		return false
	}
}
