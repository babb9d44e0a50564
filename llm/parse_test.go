package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Plain(t *testing.T) {
	raw, err := ExtractJSON(`{"business_type": "교육"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"business_type": "교육"}`, string(raw))
}

func TestExtractJSON_CodeFence(t *testing.T) {
	text := "```json\n{\"score\": 85}\n```"
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 85}`, string(raw))
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	text := "분석 결과는 다음과 같습니다:\n{\"tone\": \"정중한\", \"urgency\": \"보통\"}\n참고하세요."
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tone": "정중한", "urgency": "보통"}`, string(raw))
}

func TestExtractJSON_NestedAndBracesInStrings(t *testing.T) {
	text := `{"template_text": "안녕하세요 #{수신자명}님 {정보}", "metadata": {"a": 1}}`
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "#{수신자명}")
	assert.Contains(t, string(raw), `"metadata"`)
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := ExtractJSON("죄송합니다, 분석할 수 없습니다.")
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtractJSON_Unterminated(t *testing.T) {
	_, err := ExtractJSON(`{"truncated": "resp`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Score int `json:"compliance_score"`
	}
	err := DecodeJSON("결과: {\"compliance_score\": 92} 입니다", &out)
	require.NoError(t, err)
	assert.Equal(t, 92, out.Score)

	err = DecodeJSON(`{"compliance_score": "높음"}`, &out)
	assert.ErrorIs(t, err, ErrParse)
}
