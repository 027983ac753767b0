package predicate

import (
	"testing"
	"time"

	"github.com/opnsense-tools/fwlogstore/record"
)

func rec(fields map[string]string, ts time.Time) record.Record {
	return record.Record{Fields: fields, Timestamp: record.Parsed(ts)}
}

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCompile_RejectsWrongConnectiveCount(t *testing.T) {
	_, err := Compile(Spec{
		Conditions:  []ConditionSpec{{Field: "action", Op: OpEquals, Value: "block"}, {Field: "dir", Op: OpEquals, Value: "in"}},
		Connectives: nil,
	})
	if err == nil {
		t.Fatalf("expected an error for mismatched connective count")
	}
}

func TestCompile_RejectsUnknownOp(t *testing.T) {
	_, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "action", Op: "bogus", Value: "x"}}})
	if err == nil {
		t.Fatalf("expected an error for an unknown operator")
	}
}

func TestCompile_RejectsBadRegex(t *testing.T) {
	_, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "src", Op: OpRegex, Value: "("}}})
	if err == nil {
		t.Fatalf("expected an error for an invalid regex")
	}
}

func TestCompile_RejectsInvertedTimeWindow(t *testing.T) {
	_, err := Compile(Spec{TimeStart: "2026-01-02", TimeEnd: "2026-01-01"})
	if err == nil {
		t.Fatalf("expected an error for end before start")
	}
}

func TestEvaluate_StartsWith(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "src", Op: OpStartsWith, Value: "10."}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	matches := rec(map[string]string{"src": "10.1.2.3"}, baseTime)
	other := rec(map[string]string{"src": "192.168.1.1"}, baseTime)

	if !p.Evaluate(matches, nil) {
		t.Errorf("expected 10.1.2.3 to match starts_with 10.")
	}
	if p.Evaluate(other, nil) {
		t.Errorf("expected 192.168.1.1 not to match starts_with 10.")
	}
}

func TestEvaluate_EndsWith(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "dst", Op: OpEndsWith, Value: ".1"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	matches := rec(map[string]string{"dst": "192.168.1.1"}, baseTime)
	other := rec(map[string]string{"dst": "192.168.1.2"}, baseTime)

	if !p.Evaluate(matches, nil) {
		t.Errorf("expected 192.168.1.1 to match ends_with .1")
	}
	if p.Evaluate(other, nil) {
		t.Errorf("expected 192.168.1.2 not to match ends_with .1")
	}
}

func TestCompile_RejectsBadCIDR(t *testing.T) {
	_, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "src", Op: OpInCIDR, Value: "not-a-cidr"}}})
	if err == nil {
		t.Fatalf("expected an error for an invalid CIDR")
	}
}

func TestEvaluate_InCIDR(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "src", Op: OpInCIDR, Value: "10.0.0.0/8"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inside := rec(map[string]string{"src": "10.1.2.3"}, baseTime)
	outside := rec(map[string]string{"src": "192.168.1.1"}, baseTime)
	invalid := rec(map[string]string{"src": "not-an-ip"}, baseTime)

	if !p.Evaluate(inside, nil) {
		t.Errorf("expected 10.1.2.3 to match 10.0.0.0/8")
	}
	if p.Evaluate(outside, nil) {
		t.Errorf("expected 192.168.1.1 not to match 10.0.0.0/8")
	}
	if p.Evaluate(invalid, nil) {
		t.Errorf("expected an unparseable field value not to match")
	}
}

func TestEvaluate_InCIDR_Negated(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "src", Op: OpInCIDR, Value: "10.0.0.0/8", Negate: true}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	outside := rec(map[string]string{"src": "192.168.1.1"}, baseTime)
	if !p.Evaluate(outside, nil) {
		t.Errorf("expected negated in_cidr to match an address outside the range")
	}
}

func TestEvaluate_SingleEquals(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "action", Op: OpEquals, Value: "block"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	blocked := rec(map[string]string{"action": "block"}, baseTime)
	passed := rec(map[string]string{"action": "pass"}, baseTime)

	if !p.Evaluate(blocked, nil) {
		t.Errorf("expected block record to match")
	}
	if p.Evaluate(passed, nil) {
		t.Errorf("expected pass record not to match")
	}
}

func TestEvaluate_NegatedCondition(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "action", Op: OpEquals, Value: "block", Negate: true}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	blocked := rec(map[string]string{"action": "block"}, baseTime)
	passed := rec(map[string]string{"action": "pass"}, baseTime)

	if p.Evaluate(blocked, nil) {
		t.Errorf("negated eq(block) should reject a block record")
	}
	if !p.Evaluate(passed, nil) {
		t.Errorf("negated eq(block) should accept a pass record")
	}
}

func TestEvaluate_LeftToRightNoPrecedence(t *testing.T) {
	// action == "block" OR action == "pass" AND dir == "out"
	// Evaluated strictly left to right: (block OR pass) AND out, NOT
	// block OR (pass AND out).
	p, err := Compile(Spec{
		Conditions: []ConditionSpec{
			{Field: "action", Op: OpEquals, Value: "block"},
			{Field: "action", Op: OpEquals, Value: "pass"},
			{Field: "dir", Op: OpEquals, Value: "out"},
		},
		Connectives: []Connective{Or, And},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	blockIn := rec(map[string]string{"action": "block", "dir": "in"}, baseTime)
	if p.Evaluate(blockIn, nil) {
		t.Errorf("block+in should fail because the final AND out is not short-circuited away")
	}

	blockOut := rec(map[string]string{"action": "block", "dir": "out"}, baseTime)
	if !p.Evaluate(blockOut, nil) {
		t.Errorf("block+out should match")
	}
}

func TestEvaluate_CaseSensitivity(t *testing.T) {
	sensitive, _ := Compile(Spec{Conditions: []ConditionSpec{{Field: "reason", Op: OpEquals, Value: "Match", CaseSensitive: true}}})
	insensitive, _ := Compile(Spec{Conditions: []ConditionSpec{{Field: "reason", Op: OpEquals, Value: "Match", CaseSensitive: false}}})

	r := rec(map[string]string{"reason": "match"}, baseTime)

	if sensitive.Evaluate(r, nil) {
		t.Errorf("case-sensitive eq should not match differing case")
	}
	if !insensitive.Evaluate(r, nil) {
		t.Errorf("case-insensitive eq should match differing case")
	}
}

func TestEvaluate_NumericComparison(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "dstport", Op: OpGreaterThan, Value: "1024"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	high := rec(map[string]string{"dstport": "8080"}, baseTime)
	low := rec(map[string]string{"dstport": "22"}, baseTime)
	bad := rec(map[string]string{"dstport": "not-a-number"}, baseTime)

	if !p.Evaluate(high, nil) {
		t.Errorf("8080 > 1024 should match")
	}
	if p.Evaluate(low, nil) {
		t.Errorf("22 > 1024 should not match")
	}
	if p.Evaluate(bad, nil) {
		t.Errorf("unparsable numeric field should silently not match, not error")
	}
}

func TestEvaluate_InterfaceORFold(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "interface", Op: OpEquals, Value: "WAN"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	byPhysical := rec(map[string]string{"interface": "WAN"}, baseTime)
	byDisplay := rec(map[string]string{"interface": "igb0", "interface_display": "WAN"}, baseTime)
	neither := rec(map[string]string{"interface": "igb1", "interface_display": "LAN"}, baseTime)

	if !p.Evaluate(byPhysical, nil) {
		t.Errorf("condition on physical interface name should match")
	}
	if !p.Evaluate(byDisplay, nil) {
		t.Errorf("condition should match via resolved display name")
	}
	if p.Evaluate(neither, nil) {
		t.Errorf("unrelated interface should not match")
	}
}

func TestEvaluate_LabelPseudoField(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "__label__", Op: OpEquals, Value: "Allow web"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	r := rec(map[string]string{"rid": "1000000103"}, baseTime)
	resolve := func(ruleID string) (string, bool) {
		if ruleID == "1000000103" {
			return "Allow web", true
		}
		return "", false
	}

	if p.Evaluate(r, resolve) != true {
		t.Errorf("expected __label__ match via resolver")
	}
	if p.Evaluate(r, nil) {
		t.Errorf("expected no match when no resolver is supplied")
	}
}

func TestEvaluate_TimeWindowPreFiltersBeforeConditions(t *testing.T) {
	p, err := Compile(Spec{
		Conditions: []ConditionSpec{{Field: "action", Op: OpEquals, Value: "block"}},
		TimeStart:  "2026-01-01 00:00:00",
		TimeEnd:    "2026-01-01 01:00:00",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	inWindow := rec(map[string]string{"action": "block"}, time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC))
	outOfWindow := rec(map[string]string{"action": "block"}, time.Date(2026, 1, 2, 0, 30, 0, 0, time.UTC))

	if !p.Evaluate(inWindow, nil) {
		t.Errorf("record inside the time window with a matching condition should match")
	}
	if p.Evaluate(outOfWindow, nil) {
		t.Errorf("record outside the time window should never match, regardless of conditions")
	}
}

func TestEvaluate_EmptyPredicateMatchesEverything(t *testing.T) {
	p, err := Compile(Spec{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Evaluate(rec(map[string]string{}, baseTime), nil) {
		t.Errorf("an empty predicate should match every record")
	}
}

func TestEvaluate_RegexCaseInsensitiveByDefault(t *testing.T) {
	p, err := Compile(Spec{Conditions: []ConditionSpec{{Field: "protoname", Op: OpRegex, Value: "^TCP$"}}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Evaluate(rec(map[string]string{"protoname": "tcp"}, baseTime), nil) {
		t.Errorf("expected case-insensitive regex to match lowercase protoname")
	}
}
