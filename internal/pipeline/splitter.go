package pipeline

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize 是每个分块的目标字符数。
	DefaultChunkSize = 1000
	// DefaultChunkOverlap 是相邻分块之间的重叠字符数。
	DefaultChunkOverlap = 200
)

// DefaultSeparators 依次尝试段落、行、句子、空格边界，最后按字符硬切。
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// RecursiveSplitter 递归地寻找边界切分文本，长度以字符（rune）计。
// 分隔符保留在前一段末尾，合并时不额外插入分隔符。
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// SplitterOption 配置 RecursiveSplitter。
type SplitterOption func(*RecursiveSplitter)

// WithChunkSize 设置目标分块大小。
func WithChunkSize(size int) SplitterOption {
	return func(s *RecursiveSplitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap 设置分块重叠大小。
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *RecursiveSplitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators 设置分隔符优先级列表。
func WithSeparators(seps []string) SplitterOption {
	return func(s *RecursiveSplitter) {
		if len(seps) > 0 {
			s.separators = seps
		}
	}
}

// NewRecursiveSplitter 创建切分器。overlap 不小于 chunkSize 时退化为 chunkSize/5。
func NewRecursiveSplitter(opts ...SplitterOption) *RecursiveSplitter {
	s := &RecursiveSplitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 5
	}
	return s
}

// Split 把文本切成去除首尾空白的非空分块。
func (s *RecursiveSplitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepEnd(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, s.split(piece, next)...)
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge 把小片段拼成不超过 chunkSize 的分块，并在相邻分块间保留约 overlap 的尾部。
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		l := runeLen(p)
		if total+l > s.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+l > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepEnd 按分隔符切分并把分隔符留在前一段末尾；空分隔符按字符切分。
func splitKeepEnd(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
