package ai

import (
	"encoding/json"
	"testing"
)

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                          `{"a":1}`,
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		"```\n[1,2]\n```":                  `[1,2]`,
		"Sure!\n```json\n{\"a\":1}\n```\n": `{"a":1}`,
		"```json\n{\"a\":1}":               `{"a":1}`,
		"```{\"a\":1}```":                  `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFence(in); got != want {
			t.Errorf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuestionSetAcceptsBareArray(t *testing.T) {
	var set QuestionSet
	raw := `[{"question_text":"2+2?","type":"MCQ","options":["3","4"],"correct_answer":"B"}]`
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(set.Questions) != 1 || set.Questions[0].CorrectAnswer != "B" {
		t.Errorf("set = %+v", set)
	}
	if err := set.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestGradingResultValidate(t *testing.T) {
	bad := []GradingResult{
		{MarksAwarded: 1, TotalMarks: 0},
		{MarksAwarded: 5, TotalMarks: 4},
		{MarksAwarded: -1, TotalMarks: 4},
	}
	for _, g := range bad {
		if g.Validate() == nil {
			t.Errorf("%+v passed validation", g)
		}
	}
	ok := GradingResult{MarksAwarded: 2.5, TotalMarks: 4}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseJSONOutputEmpty(t *testing.T) {
	_, err := parseJSONOutput("   ", nil)
	ge, ok := err.(*GenerationError)
	if !ok || ge.Reason != ReasonEmptyResponse {
		t.Errorf("err = %v, want empty_response", err)
	}
}

func TestOptionLetter(t *testing.T) {
	opts := []string{"Newton", "Joule", "Watt", "Pascal"}
	cases := map[string]string{
		"b":        "B",
		"B)":       "B",
		"(c) Watt": "C",
		"joule":    "B",
		"Both":     "",
		"":         "",
		"42":       "",
		" D ":      "D",
		"E":        "",
	}
	for in, want := range cases {
		if got := OptionLetter(in, opts); got != want {
			t.Errorf("OptionLetter(%q) = %q, want %q", in, got, want)
		}
	}
	labelled := []string{"A) 9.8 m/s^2", "B) 1.6 m/s^2"}
	if got := OptionLetter("1.6 m/s^2", labelled); got != "B" {
		t.Errorf("labelled option text = %q, want B", got)
	}
}

func TestQuestionSetRejectsAnswerOutsideOptions(t *testing.T) {
	cases := []string{"1.2 m/s^2", "E", ""}
	for _, answer := range cases {
		set := QuestionSet{Questions: []Question{{
			Text:          "g on Earth?",
			Type:          QuestionMCQ,
			Options:       []string{"9.8 m/s^2", "1.6 m/s^2", "3.7 m/s^2", "24.8 m/s^2"},
			CorrectAnswer: answer,
		}}}
		if set.Validate() == nil {
			t.Errorf("answer %q accepted", answer)
		}
	}
	ok := QuestionSet{Questions: []Question{{
		Text:          "g on Earth?",
		Type:          QuestionMCQ,
		Options:       []string{"9.8 m/s^2", "1.6 m/s^2"},
		CorrectAnswer: "9.8 m/s^2",
	}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("option text answer rejected: %v", err)
	}
}
