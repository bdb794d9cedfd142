package id_test

import (
	"strings"
	"testing"

	"github.com/gaurav-seth/carenest-helper/id"
)

var constructors = []struct {
	name    string
	newFn   func() id.ID
	parseFn func(string) (id.ID, error)
	prefix  string
}{
	{"JobID", id.NewJobID, id.ParseJobID, "job_"},
	{"PatientID", id.NewPatientID, id.ParsePatientID, "pat_"},
	{"HelperID", id.NewHelperID, id.ParseHelperID, "hlp_"},
}

func TestConstructors(t *testing.T) {
	generated := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"PatientID", id.NewPatientID, "pat_"},
		{"HelperID", id.NewHelperID, "hlp_"},
		{"SubscriberID", id.NewSubscriberID, "sub_"},
		{"EventID", id.NewEventID, "evt_"},
		{"NodeID", id.NewNodeID, "node_"},
	}
	for _, tt := range generated {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, tt := range constructors {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	// Each parser is fed the next constructor's ID.
	for i, tt := range constructors {
		other := constructors[(i+1)%len(constructors)]
		t.Run(tt.name+" rejects "+other.prefix, func(t *testing.T) {
			if _, err := tt.parseFn(other.newFn().String()); err == nil {
				t.Errorf("expected error for cross-type parse into %s", tt.name)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "job_", "not an id", "JOB_01h455vb4pex5vsknk084sn02q"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestTextAndSQLRoundTrip(t *testing.T) {
	original := id.NewHelperID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var fromText id.ID
	if err := fromText.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if fromText.String() != original.String() {
		t.Errorf("text mismatch: %q != %q", fromText, original)
	}

	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var fromSQL id.ID
	if err := fromSQL.Scan(val); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if fromSQL.String() != original.String() {
		t.Errorf("sql mismatch: %q != %q", fromSQL, original)
	}

	var nilID id.ID
	if v, _ := nilID.Value(); v != nil {
		t.Errorf("expected NULL for nil ID, got %v", v)
	}
	var scanned id.ID
	if err := scanned.Scan([]byte{}); err != nil || !scanned.IsNil() {
		t.Errorf("Scan(empty) = %v, nil=%v", err, scanned.IsNil())
	}
	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestCompare(t *testing.T) {
	a, err := id.ParseJobID("job_01h455vb4pex5vsknk084sn02q")
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	b, err := id.ParseJobID("job_01h455vb4pex5vsknk084sn02r")
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 {
		t.Errorf("expected %s < %s", a, b)
	}
	if a.Compare(a) != 0 {
		t.Error("expected ID to compare equal to itself")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		s := id.NewJobID().String()
		if _, ok := seen[s]; ok {
			t.Fatalf("duplicate ID %q", s)
		}
		seen[s] = struct{}{}
	}
}
