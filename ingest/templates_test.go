package ingest

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/space-cap/alimgen/model"
)

const catalogJSON = `{
  "templates": [
    {
      "id": "edu-1",
      "text": "안녕하세요 #{수신자명}님, #{강의명} 수강 신청이 완료되었습니다.",
      "metadata": {
        "category_1": "서비스이용",
        "category_2": "이용안내/공지",
        "business_type": "교육",
        "service_type": "신청",
        "approval_status": "approved"
      }
    },
    {
      "id": "shop-1",
      "text": "#{수신자명}님의 주문이 발송되었습니다. 운송장: #{운송장번호}",
      "metadata": {
        "category_1": "거래",
        "category_2": "배송",
        "business_type": "쇼핑몰",
        "service_type": "배송",
        "approval_status": "approved"
      }
    },
    {
      "id": "rejected-1",
      "text": "특가 할인 이벤트 안내",
      "metadata": {
        "category_1": "거래",
        "category_2": "주문/결제",
        "business_type": "쇼핑몰",
        "service_type": "주문",
        "approval_status": "rejected"
      }
    }
  ]
}`

func loadTestStore(t *testing.T) *TemplateStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0644))
	return LoadTemplates(path, slog.Default())
}

func TestLoadTemplates(t *testing.T) {
	store := loadTestStore(t)
	assert.Equal(t, 3, store.Len())

	approved := store.Approved()
	require.Len(t, approved, 2)
	assert.Equal(t, "edu-1", approved[0].ID)
	assert.Equal(t, []string{"수신자명", "강의명"}, approved[0].Variables)
	assert.Equal(t, model.BusinessEducation, approved[0].Metadata.BusinessType)
}

func TestLoadTemplates_MissingFileYieldsEmptyStore(t *testing.T) {
	store := LoadTemplates("/nonexistent/templates.json", slog.Default())
	assert.Zero(t, store.Len())
	assert.Empty(t, store.Approved())
}

func TestTemplateStore_ByBusinessType(t *testing.T) {
	store := loadTestStore(t)

	edu := store.ByBusinessType(model.BusinessEducation)
	require.Len(t, edu, 1)
	assert.Equal(t, "edu-1", edu[0].ID)
}

func TestTemplateStore_ByCategory(t *testing.T) {
	store := loadTestStore(t)

	assert.Len(t, store.ByCategory("거래", ""), 2)
	assert.Len(t, store.ByCategory("거래", "배송"), 1)
	assert.Len(t, store.ByCategory("서비스이용", "예약/신청"), 0)
}

func TestTemplateStore_FindSimilar(t *testing.T) {
	store := loadTestStore(t)

	// Matches business type OR service type, approved only.
	similar := store.FindSimilar(model.BusinessEcommerce, model.ServiceDelivery, 5)
	require.Len(t, similar, 1)
	assert.Equal(t, "shop-1", similar[0].ID)

	none := store.FindSimilar(model.BusinessFinance, model.ServiceFeedback, 5)
	assert.Empty(t, none)
}

func TestTemplateStore_Documents(t *testing.T) {
	store := loadTestStore(t)

	docs := store.Documents()
	require.Len(t, docs, 3)
	assert.Equal(t, "template_edu-1", docs[0].ID)
	assert.Equal(t, "template", docs[0].DocType)
	assert.Equal(t, "교육", docs[0].Metadata["business_type"])
}
