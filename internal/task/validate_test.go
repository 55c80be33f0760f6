package task

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      Intent
		wantErr error
	}{
		{"ok daily", Intent{TaskName: "스트레칭", Frequency: Daily, CheckTimes: []CheckTime{Evening}}, nil},
		{"ok every n", Intent{TaskName: "물주기", Frequency: EveryNDays, Interval: ptrInt(3), CheckTimes: []CheckTime{Morning, Evening}}, nil},
		{"blank name", Intent{TaskName: "   ", Frequency: Daily, CheckTimes: []CheckTime{Evening}}, ErrEmptyTaskName},
		{"name checked before frequency", Intent{Frequency: "hourly"}, ErrEmptyTaskName},
		{"bad frequency", Intent{TaskName: "x", Frequency: "hourly", CheckTimes: []CheckTime{Evening}}, ErrInvalidFrequency},
		{"frequency checked before check times", Intent{TaskName: "x", Frequency: ""}, ErrInvalidFrequency},
		{"every n missing interval", Intent{TaskName: "x", Frequency: EveryNDays, CheckTimes: []CheckTime{Evening}}, ErrMissingOrInvalidInterval},
		{"every n zero interval", Intent{TaskName: "x", Frequency: EveryNDays, Interval: ptrInt(0), CheckTimes: []CheckTime{Evening}}, ErrMissingOrInvalidInterval},
		{"every n negative interval", Intent{TaskName: "x", Frequency: EveryNDays, Interval: ptrInt(-2), CheckTimes: []CheckTime{Evening}}, ErrMissingOrInvalidInterval},
		{"interval checked before check times", Intent{TaskName: "x", Frequency: EveryNDays}, ErrMissingOrInvalidInterval},
		{"no check times", Intent{TaskName: "x", Frequency: Daily}, ErrInvalidCheckTimes},
		{"unknown check time", Intent{TaskName: "x", Frequency: Daily, CheckTimes: []CheckTime{"night"}}, ErrInvalidCheckTimes},
		{"duplicate check time", Intent{TaskName: "x", Frequency: Daily, CheckTimes: []CheckTime{Evening, Evening}}, ErrInvalidCheckTimes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tc.in)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err %T is not *ValidationError", err)
			}
		})
	}
}

func TestNormalizeCleansIntent(t *testing.T) {
	t.Parallel()

	out, err := Normalize(Intent{TaskName: "  산책 ", Frequency: Weekly, Interval: ptrInt(4), CheckTimes: []CheckTime{Afternoon}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.TaskName != "산책" {
		t.Fatalf("name = %q", out.TaskName)
	}
	if out.Interval != nil {
		t.Fatalf("interval should be dropped for weekly, got %d", *out.Interval)
	}
}
