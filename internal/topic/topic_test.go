package topic

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Topic
		wantErr error
	}{
		{"spBv1.0/plant/NBIRTH/edge-1", Node("plant", NBIRTH, "edge-1"), nil},
		{"spBv1.0/plant/DDATA/edge-1/pump", Device("plant", DDATA, "edge-1", "pump"), nil},
		{"spBv1.0/STATE/scada", State("scada"), nil},
		{"spBv2.0/plant/NDATA/edge-1", Topic{}, ErrInvalidNamespace},
		{"spBv1.0/plant/NDATA", Topic{}, ErrInvalidTopic},
		{"spBv1.0/plant/NDATA/a/b/c", Topic{}, ErrInvalidTopic},
		{"spBv1.0/plant/NPING/edge-1", Topic{}, ErrUnknownMessageType},
		{"spBv1.0/plant/DDATA/edge-1", Topic{}, ErrInvalidID},
		{"spBv1.0/plant/NDATA/edge-1/pump", Topic{}, ErrInvalidTopic},
		{"spBv1.0//NDATA/edge-1", Topic{}, ErrInvalidID},
		{"spBv1.0/plant/NDATA/+", Topic{}, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestMessageTypeClasses(t *testing.T) {
	if !DBIRTH.IsBirth() || !DBIRTH.IsDevice() || NBIRTH.IsDevice() {
		t.Error("birth classification wrong")
	}
	if !NDEATH.IsDeath() || !DDATA.IsData() || !NCMD.IsCommand() || STATE.IsCommand() {
		t.Error("message type classification wrong")
	}
}

func TestFilters(t *testing.T) {
	if got := GroupFilter("plant"); got != "spBv1.0/plant/#" {
		t.Errorf("GroupFilter() = %q", got)
	}
	got := CommandFilters("plant", "edge-1")
	want := []string{"spBv1.0/plant/NCMD/edge-1", "spBv1.0/plant/DCMD/edge-1/+"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CommandFilters() = %v, want %v", got, want)
	}
}
