package validation

import (
	"strings"
	"testing"
)

func TestValidClusterName_Valid(t *testing.T) {
	valids := []string{
		"c1",
		"cluster1",
		"Prod_Cluster_2",
		"a" + strings.Repeat("b", 47), // 48 chars
	}
	for _, v := range valids {
		if !ValidClusterName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidClusterName_Invalid(t *testing.T) {
	invalids := []string{
		"",                            // empty
		"1cluster",                    // starts with digit
		"bad-name",                    // dash would break the table name
		"bad name",                    // space
		"x;drop table shards",         // semicolon
		"a" + strings.Repeat("b", 48), // 49 chars
	}
	for _, v := range invalids {
		if ValidClusterName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestValidNodeName(t *testing.T) {
	for _, v := range []string{"shard1", "shard-1", "comp.2", "0"} {
		if !ValidNodeName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
	for _, v := range []string{"", "-shard", "sh ard", "s'1", strings.Repeat("a", 65)} {
		if ValidNodeName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestValidPort(t *testing.T) {
	if !ValidPort(3306) || !ValidPort(65535) {
		t.Fatal("expected valid ports")
	}
	if ValidPort(0) || ValidPort(-1) || ValidPort(65536) {
		t.Fatal("expected invalid ports")
	}
}
