package model

// AnswerResult 是单文档问答的结果。
type AnswerResult struct {
	DocID      string  `json:"doc_id"`
	Filename   string  `json:"filename,omitempty"`
	Answer     string  `json:"answer"`
	Citation   string  `json:"citation"`
	Confidence float64 `json:"confidence"`
}

// Theme 是一次查询中跨文档归纳出的主题。DocIDs 与 Citations 始终等长且一一对应。
type Theme struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	DocIDs      []string `json:"doc_ids"`
	Citations   []string `json:"citations"`
}

// AddSupport 在文档尚未出现时追加支持文档及其引用。
func (t *Theme) AddSupport(docID, citation string) bool {
	for _, id := range t.DocIDs {
		if id == docID {
			return false
		}
	}
	t.DocIDs = append(t.DocIDs, docID)
	t.Citations = append(t.Citations, citation)
	return true
}

// ThemeResult 是跨文档主题综合的结果。
type ThemeResult struct {
	Themes            []Theme `json:"themes"`
	SynthesizedAnswer string  `json:"synthesized_answer"`
}

// AnalysisResult 是多文档查询的完整结果。
type AnalysisResult struct {
	Query           string         `json:"query"`
	DocumentResults []AnswerResult `json:"document_results"`
	ThemeResult
}
