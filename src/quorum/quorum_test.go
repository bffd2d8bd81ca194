package quorum

import (
	"encoding/json"
	"testing"
)

func TestResolveFlat(t *testing.T) {
	qs := NewQuorumSet(2, Names("a", "b", "c"))

	ports := map[string]int{"a": 3300, "b": 3301, "c": 3302}

	resolved, err := qs.Resolve(ports)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if resolved.Threshold != 2 {
		t.Fatalf("threshold: %d", resolved.Threshold)
	}
	if len(resolved.Members) != 3 {
		t.Fatalf("members: %d", len(resolved.Members))
	}
	if resolved.Threshold > len(resolved.Members) {
		t.Fatalf("threshold %d exceeds %d members", resolved.Threshold, len(resolved.Members))
	}

	if resolved.Members[1].Type != "Node" {
		t.Fatalf("member type: %s", resolved.Members[1].Type)
	}
	if resolved.Members[1].Args != "localhost:3301" {
		t.Fatalf("member args: %v", resolved.Members[1].Args)
	}
}

func TestResolveNested(t *testing.T) {
	// 2-of-3 where one member is itself a nested 2-of-2
	qs := NewQuorumSet(2, []Member{
		NodeName("a"),
		NodeName("b"),
		InnerSet{Set: NewQuorumSet(2, Names("c", "d"))},
	})

	ports := map[string]int{"a": 3300, "b": 3301, "c": 3302, "d": 3303}

	resolved, err := qs.Resolve(ports)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if resolved.Members[2].Type != "InnerSet" {
		t.Fatalf("member type: %s", resolved.Members[2].Type)
	}

	inner, ok := resolved.Members[2].Args.(*ResolvedSet)
	if !ok {
		t.Fatalf("inner args type: %T", resolved.Members[2].Args)
	}
	if inner.Threshold != 2 || len(inner.Members) != 2 {
		t.Fatalf("inner set: %+v", inner)
	}
	if inner.Members[0].Args != "localhost:3302" {
		t.Fatalf("inner member args: %v", inner.Members[0].Args)
	}

	// The wire form is what the engine binary parses.
	buf, err := json.Marshal(resolved)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(buf, &wire); err != nil {
		t.Fatalf("err: %v", err)
	}
	if wire["threshold"].(float64) != 2 {
		t.Fatalf("wire threshold: %v", wire["threshold"])
	}
}

func TestResolveUnknownMember(t *testing.T) {
	qs := NewQuorumSet(1, Names("a", "ghost"))

	_, err := qs.Resolve(map[string]int{"a": 3300})
	if err == nil {
		t.Fatal("resolving an unknown member should fail")
	}
}

func TestResolveThresholdTooHigh(t *testing.T) {
	qs := NewQuorumSet(3, Names("a", "b"))

	_, err := qs.Resolve(map[string]int{"a": 3300, "b": 3301})
	if err == nil {
		t.Fatal("threshold above member count should fail")
	}
}
