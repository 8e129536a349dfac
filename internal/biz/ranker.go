package biz

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultTopComments 每个地点保留的评论数。
const DefaultTopComments = 5

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"has": {}, "him": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {}, "now": {},
	"old": {}, "see": {}, "two": {}, "way": {}, "who": {}, "did": {}, "get": {}, "let": {},
	"put": {}, "say": {}, "she": {}, "too": {}, "use": {}, "what": {}, "which": {}, "where": {},
	"when": {}, "why": {}, "with": {}, "this": {}, "that": {}, "there": {}, "their": {},
	"them": {}, "they": {}, "then": {}, "than": {}, "these": {}, "those": {}, "from": {},
	"have": {}, "here": {}, "into": {}, "just": {}, "like": {}, "more": {}, "most": {},
	"some": {}, "such": {}, "very": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"about": {}, "does": {}, "show": {}, "tell": {}, "give": {}, "find": {}, "list": {},
	"place": {}, "places": {}, "location": {}, "locations": {}, "please": {},
}

// questionKeywords 将问题切分为小写关键词，去掉停用词和长度不超过 2 的词。
// 重复的词保留：问题里反复出现的词权重更高，归一化分母也按全部关键词计。
func questionKeywords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// scoreComment 计算单条评论与关键词的相关度，范围 [0,1]。
func scoreComment(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	head := lower
	if r := []rune(lower); len(r) > 50 {
		head = string(r[:50])
	}
	var score float64
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		score += 1.0
		if strings.Contains(head, kw) {
			score += 0.5
		}
		if len([]rune(kw)) > 4 {
			score += 0.3
		}
	}
	score /= float64(len(keywords)) * 1.8
	if score > 1 {
		score = 1
	}
	return score
}

// RankComments 按与问题的相关度降序返回前 topN 条评论，同分保持原顺序。
// 无匹配的评论得分为 0 但仍可入选：这里只排序不过滤。
func RankComments(comments []Comment, question string, topN int) []Comment {
	if topN <= 0 {
		topN = DefaultTopComments
	}
	keywords := questionKeywords(question)
	ranked := make([]Comment, len(comments))
	for i, c := range comments {
		c.Score = scoreComment(c.Text, keywords)
		ranked[i] = c
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// RankPlaceComments 对集合内每个地点的评论就地排序截断。
func RankPlaceComments(set *PlaceSet, question string, topN int) {
	for _, p := range set.Places() {
		if len(p.Comments) > 0 {
			p.Comments = RankComments(p.Comments, question, topN)
		}
	}
}
