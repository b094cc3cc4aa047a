package assessment

import (
	"math"
	"sort"
)

// mergeable relationships are anonymised: too small groups are folded into RelOther.
var mergeable = []string{RelPeer, RelDirectReport, RelOther}

// groupOrder is the order in which relationship groups are reported.
var groupOrder = []string{RelManager, RelPeer, RelDirectReport, RelOther}

type (
	GroupScore struct {
		Relationship string  `json:"relationship"`
		Mean         float64 `json:"mean"`
		Raters       int     `json:"raters"`
	}

	QuestionStats struct {
		QuestionID string       `json:"question_id"`
		Text       string       `json:"text"`
		Competency string       `json:"competency"`
		Position   int          `json:"position"`
		Self       *float64     `json:"self"`
		Others     *float64     `json:"others"`
		Gap        *float64     `json:"gap"`
		Groups     []GroupScore `json:"groups"`
		Comments   []string     `json:"comments"`
	}

	CompetencyStats struct {
		Competency string       `json:"competency"`
		Self       *float64     `json:"self"`
		Others     *float64     `json:"others"`
		Gap        *float64     `json:"gap"`
		Groups     []GroupScore `json:"groups"`
	}

	Stats struct {
		Invited      int               `json:"invited"`
		Submitted    int               `json:"submitted"`
		ResponseRate float64           `json:"response_rate"`
		Self         *float64          `json:"self"`
		Others       *float64          `json:"others"`
		Gap          *float64          `json:"gap"`
		Groups       []GroupScore      `json:"groups"`
		Competencies []CompetencyStats `json:"competencies"`
		Questions    []QuestionStats   `json:"questions"`
	}
)

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(score int) {
	m.sum += float64(score)
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := round2(m.sum / float64(m.n))
	return &v
}

// scores accumulates the scores of one question, one competency or the whole assessment.
type scores struct {
	self   mean
	others mean
	groups map[string]*mean
}

func newScores() *scores {
	return &scores{groups: make(map[string]*mean)}
}

func (s *scores) add(group string, score int) {
	if group == RelSelf {
		s.self.add(score)
		return
	}
	s.others.add(score)
	g, ok := s.groups[group]
	if !ok {
		g = new(mean)
		s.groups[group] = g
	}
	g.add(score)
}

func (s *scores) groupScores(raters map[string]int, hidden map[string]bool) []GroupScore {
	gs := make([]GroupScore, 0, len(groupOrder))
	for _, rel := range groupOrder {
		g, ok := s.groups[rel]
		if !ok || hidden[rel] {
			continue
		}
		gs = append(gs, GroupScore{Relationship: rel, Mean: *g.value(), Raters: raters[rel]})
	}
	return gs
}

func gap(self, others *float64) *float64 {
	if self == nil || others == nil {
		return nil
	}
	v := round2(*self - *others)
	return &v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// anonymousGroups maps each relationship to the group its raters are reported in, and
// tells which groups stay hidden because they are still smaller than minGroupSize.
// Hidden groups still count in the "others" scores.
func anonymousGroups(raters []Rater, minGroupSize int) (groupOf map[string]string, counts map[string]int, hidden map[string]bool) {
	submitted := make(map[string]int)
	for _, r := range raters {
		if r.HasSubmitted() {
			submitted[r.Relationship]++
		}
	}

	groupOf = make(map[string]string, len(Relationships))
	counts = make(map[string]int, len(Relationships))
	for _, rel := range Relationships {
		group := rel
		if isMergeable(rel) && submitted[rel] < minGroupSize {
			group = RelOther
		}
		groupOf[rel] = group
		counts[group] += submitted[rel]
	}

	hidden = make(map[string]bool)
	if counts[RelOther] > 0 && counts[RelOther] < minGroupSize {
		hidden[RelOther] = true
	}
	return groupOf, counts, hidden
}

func isMergeable(rel string) bool {
	for _, m := range mergeable {
		if m == rel {
			return true
		}
	}
	return false
}

// ComputeStats aggregates the responses of submitted raters.
func ComputeStats(questions []Question, raters []Rater, responses []Response, minGroupSize int) Stats {
	if minGroupSize < 1 {
		minGroupSize = 1
	}
	groupOf, counts, hidden := anonymousGroups(raters, minGroupSize)

	stats := Stats{Invited: len(raters)}
	raterGroups := make(map[string]string, len(raters))
	for _, r := range raters {
		if r.HasSubmitted() {
			stats.Submitted++
			raterGroups[r.ID] = groupOf[r.Relationship]
		}
	}
	if stats.Invited > 0 {
		stats.ResponseRate = round2(float64(stats.Submitted) / float64(stats.Invited))
	}

	qs := append([]Question{}, questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })

	overall := newScores()
	byQuestion := make(map[string]*scores, len(qs))
	comments := make(map[string][]string, len(qs))
	byCompetency := make(map[string]*scores)
	competencies := make([]string, 0)
	competencyOf := make(map[string]string, len(qs))
	for _, q := range qs {
		byQuestion[q.ID] = newScores()
		competencyOf[q.ID] = q.Competency
		if _, ok := byCompetency[q.Competency]; !ok {
			byCompetency[q.Competency] = newScores()
			competencies = append(competencies, q.Competency)
		}
	}

	for _, resp := range responses {
		group, ok := raterGroups[resp.RaterID]
		if !ok {
			continue
		}
		qScores, ok := byQuestion[resp.QuestionID]
		if !ok {
			continue
		}
		qScores.add(group, resp.Score)
		byCompetency[competencyOf[resp.QuestionID]].add(group, resp.Score)
		overall.add(group, resp.Score)
		if resp.Comment != "" {
			comments[resp.QuestionID] = append(comments[resp.QuestionID], resp.Comment)
		}
	}

	stats.Self = overall.self.value()
	stats.Others = overall.others.value()
	stats.Gap = gap(stats.Self, stats.Others)
	stats.Groups = overall.groupScores(counts, hidden)

	stats.Competencies = make([]CompetencyStats, 0, len(competencies))
	for _, c := range competencies {
		s := byCompetency[c]
		cs := CompetencyStats{
			Competency: c,
			Self:       s.self.value(),
			Others:     s.others.value(),
			Groups:     s.groupScores(counts, hidden),
		}
		cs.Gap = gap(cs.Self, cs.Others)
		stats.Competencies = append(stats.Competencies, cs)
	}

	stats.Questions = make([]QuestionStats, 0, len(qs))
	for _, q := range qs {
		s := byQuestion[q.ID]
		cmts := append([]string{}, comments[q.ID]...)
		sort.Strings(cmts)
		qStats := QuestionStats{
			QuestionID: q.ID,
			Text:       q.Text,
			Competency: q.Competency,
			Position:   q.Position,
			Self:       s.self.value(),
			Others:     s.others.value(),
			Groups:     s.groupScores(counts, hidden),
			Comments:   cmts,
		}
		qStats.Gap = gap(qStats.Self, qStats.Others)
		stats.Questions = append(stats.Questions, qStats)
	}
	return stats
}
