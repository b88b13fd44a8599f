package ai

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const canonicalJSON = `{"concept_accuracy":3,"example_usage":2,"edge_cases":1,"clarity":1,"final_score":7,"overall_feedback":"ok","improvement_tips":"ok"}`

func TestRecoverJSONEncodingsResolveToSameObject(t *testing.T) {
	bare := canonicalJSON
	fenced := "Sure! Here is the result:\n```json\n" + canonicalJSON + "\n```\nLet me know if you need more."
	sloppy := "{'concept_accuracy':3,'example_usage':2,'edge_cases':1,'clarity':1,'final_score':7,'overall_feedback':'ok','improvement_tips':'ok',}"

	direct, step, err := RecoverJSON(bare)
	require.NoError(t, err)
	require.Equal(t, RecoveryDirect, step)

	fromFence, step, err := RecoverJSON(fenced)
	require.NoError(t, err)
	require.Equal(t, RecoveryFenced, step)

	fromSloppy, step, err := RecoverJSON(sloppy)
	require.NoError(t, err)
	require.Equal(t, RecoverySanitized, step)

	require.Equal(t, direct, fromFence)
	require.Equal(t, direct, fromSloppy)
	require.Equal(t, json.Number("3"), direct["concept_accuracy"])
}

func TestRecoverJSONUntaggedFence(t *testing.T) {
	obj, step, err := RecoverJSON("```\n" + canonicalJSON + "\n```")
	require.NoError(t, err)
	require.Equal(t, RecoveryFenced, step)
	require.Equal(t, "ok", obj["overall_feedback"])
}

func TestRecoverJSONBracesInProse(t *testing.T) {
	obj, step, err := RecoverJSON("The evaluation is " + canonicalJSON + " as requested.")
	require.NoError(t, err)
	require.Equal(t, RecoveryBraces, step)
	require.Equal(t, json.Number("7"), obj["final_score"])
}

func TestRecoverJSONIgnoresBracesOutsideTheObject(t *testing.T) {
	after := "Here is my grading: " + canonicalJSON + "\nNote: in Go, use map[string]struct{} for sets."
	obj, step, err := RecoverJSON(after)
	require.NoError(t, err)
	require.Equal(t, RecoveryBraces, step)
	require.Equal(t, json.Number("7"), obj["final_score"])

	before := "A set is map[string]struct{} in Go. Grading: " + canonicalJSON
	obj, step, err = RecoverJSON(before)
	require.NoError(t, err)
	require.Equal(t, RecoveryBraces, step)
	require.Equal(t, "ok", obj["improvement_tips"])

	sloppyAfter := "{'concept_accuracy':3,'example_usage':2,'edge_cases':1,'clarity':1,'overall_feedback':'ok','improvement_tips':'ok',} then {x}"
	obj, step, err = RecoverJSON(sloppyAfter)
	require.NoError(t, err)
	require.Equal(t, RecoverySanitized, step)
	require.Equal(t, json.Number("1"), obj["clarity"])
}

func TestRecoverJSONBracesInsideStrings(t *testing.T) {
	raw := `Result: {"concept_accuracy":3,"example_usage":2,"edge_cases":1,"clarity":1,"overall_feedback":"close the } and { pairs","improvement_tips":"say \"{}\""} done`
	obj, step, err := RecoverJSON(raw)
	require.NoError(t, err)
	require.Equal(t, RecoveryBraces, step)
	require.Equal(t, "close the } and { pairs", obj["overall_feedback"])
	require.Equal(t, `say "{}"`, obj["improvement_tips"])
}

func TestRecoverJSONStripsControlCharacters(t *testing.T) {
	raw := "Result: {\"concept_accuracy\":3,\x01\"example_usage\":2,\"edge_cases\":1,\"clarity\":1,\"overall_feedback\":\"ok\",\"improvement_tips\":\"ok\"}"
	obj, step, err := RecoverJSON(raw)
	require.NoError(t, err)
	require.Equal(t, RecoverySanitized, step)
	require.Equal(t, json.Number("2"), obj["example_usage"])
}

func TestRecoverJSONFailures(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"prose":       "I cannot grade this answer.",
		"array":       `[1, 2, 3]`,
		"broken":      `{"concept_accuracy": 3, "example_usage": }`,
		"scalar":      `42`,
		"whitespaces": "   \n\t ",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			obj, step, err := RecoverJSON(raw)
			require.Nil(t, obj)
			require.Equal(t, RecoveryNone, step)
			require.True(t, errors.Is(err, ErrMalformedOutput))
		})
	}
}
