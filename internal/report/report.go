// Package report turns a query result (or a run failure) into the narrative
// returned to the user.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/salescope/salescope/internal/completion"
	"github.com/salescope/salescope/internal/warehouse"
)

const (
	errorNarrative  = "요청을 처리하는 중 문제가 발생했습니다.\n이유: %s"
	noDataNarrative = "분석 결과, 해당 조건에 맞는 데이터가 없습니다."
)

// Reporter renders the final narrative. It never returns an error: failures
// inside rendering degrade to an apology so the pipeline always ends with a
// user-facing string.
type Reporter struct {
	client completion.Client
}

func New(client completion.Client) *Reporter {
	return &Reporter{client: client}
}

// Render produces the narrative for one run. A non-empty runErr short
// circuits to the apology branch without any completion call and without the
// SQL audit block, matching how rejected or failed runs leave nothing worth
// auditing.
func (r *Reporter) Render(ctx context.Context, question, sqlText string, rows warehouse.RowSet, runErr string) string {
	if runErr != "" {
		return fmt.Sprintf(errorNarrative, runErr)
	}

	var body string
	if rows.Empty() {
		body = noDataNarrative
	} else {
		interpreted, err := r.client.Complete(ctx, interpretationPrompt(question, rows))
		if err != nil {
			return fmt.Sprintf(errorNarrative, fmt.Sprintf("보고서 생성 실패: %v", err))
		}
		body = strings.TrimSpace(interpreted)
	}

	return fmt.Sprintf("### 분석 보고서\n%s\n\n---\n\n### 실행된 SQL 쿼리\n```sql\n%s\n```", body, sqlText)
}

func interpretationPrompt(question string, rows warehouse.RowSet) string {
	var b strings.Builder
	b.WriteString("당신은 전문 데이터 분석가이자 보고서 작성가입니다.\n")
	b.WriteString("다음은 사용자의 원본 질문과 데이터베이스에서 추출한 분석 결과입니다.\n")
	b.WriteString("이 데이터를 단순히 나열하지 말고, 사용자가 질문한 의도에 맞춰 의미 있는 인사이트를 도출하고, 비교 및 분석하여 상세한 최종 보고서를 마크다운 형식으로 작성해주세요.\n\n")
	b.WriteString("### 원본 사용자 질문:\n")
	b.WriteString(question)
	b.WriteString("\n\n### 데이터베이스 조회 결과 (JSON 형식):\n")
	b.WriteString(serializeRows(rows))
	b.WriteString("\n\n### 최종 분석 보고서 (마크다운 형식):\n")
	return b.String()
}

// serializeRows renders the result as a JSON array of objects, writing keys
// in select-list order so the text is stable across runs.
func serializeRows(rows warehouse.RowSet) string {
	var b strings.Builder
	b.WriteString("[\n")
	for i, row := range rows.Rows {
		b.WriteString("  {")
		for j, col := range rows.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			key, _ := json.Marshal(col)
			b.Write(key)
			b.WriteString(": ")
			b.Write(serializeValue(row[col]))
		}
		b.WriteString("}")
		if i < len(rows.Rows)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String()
}

// serializeValue coerces one cell to JSON text. Decimal amounts are written
// as plain integers whether the driver delivered them as floats or big ints;
// anything without a primitive JSON shape falls back to its string form.
func serializeValue(value any) []byte {
	switch typed := value.(type) {
	case nil:
		return []byte("null")
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		encoded, _ := json.Marshal(typed)
		return encoded
	case *big.Int:
		return []byte(typed.String())
	case float32:
		return []byte(fmt.Sprintf("%d", int64(typed)))
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return []byte(`"` + fmt.Sprintf("%v", typed) + `"`)
		}
		return []byte(fmt.Sprintf("%d", int64(typed)))
	case time.Time:
		encoded, _ := json.Marshal(typed.Format(time.RFC3339))
		return encoded
	default:
		encoded, _ := json.Marshal(fmt.Sprintf("%v", typed))
		return encoded
	}
}
