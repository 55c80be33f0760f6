package nlu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"remindbot/internal/task"
)

// wireResult is the model's JSON. Nullable fields are pointers so a JSON null
// and an omitted key both decode to nil.
type wireResult struct {
	Intent     *string  `json:"intent"`
	TaskName   *string  `json:"task_name"`
	Frequency  *string  `json:"frequency"`
	Interval   *int     `json:"interval"`
	CheckTimes []string `json:"check_times"`
}

// Decode parses a model response. Unknown fields, wrong types, trailing data
// and unknown intents are all errors.
func Decode(raw string) (Result, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var w wireResult
	if err := dec.Decode(&w); err != nil {
		return Result{}, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Result{}, errors.New("decode: trailing data after JSON object")
	}
	if t := bytes.TrimSpace([]byte(raw)); len(t) == 0 || t[0] != '{' {
		return Result{}, errors.New("decode: response is not a JSON object")
	}
	if w.Intent == nil {
		return Result{}, errors.New("decode: missing intent")
	}

	switch Kind(*w.Intent) {
	case KindChat:
		return Result{Kind: KindChat}, nil
	case KindRegisterTask:
	default:
		return Result{}, fmt.Errorf("decode: unknown intent %q", *w.Intent)
	}

	in := task.Intent{Interval: w.Interval}
	if w.TaskName != nil {
		in.TaskName = *w.TaskName
	}
	if w.Frequency != nil {
		in.Frequency = task.Frequency(*w.Frequency)
	}
	for _, c := range w.CheckTimes {
		in.CheckTimes = append(in.CheckTimes, task.CheckTime(strings.ToLower(strings.TrimSpace(c))))
	}
	return Result{Kind: KindRegisterTask, Intent: &in}, nil
}

func parseErr(provider, raw string, err error) error {
	return &ParseError{Provider: provider, Raw: raw, Err: err}
}
