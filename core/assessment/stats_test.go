package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsFixture() ([]Question, []Rater, []Response) {
	questions := []Question{
		{ID: "q3", Text: "Builds trust", Competency: "Trust", Position: 3},
		{ID: "q1", Text: "Shares a vision", Competency: "Vision", Position: 1},
		{ID: "q2", Text: "Explains the why", Competency: "Vision", Position: 2},
	}
	raters := []Rater{
		{ID: "s", Relationship: RelSelf, Status: RaterSubmitted},
		{ID: "m", Relationship: RelManager, Status: RaterSubmitted},
		{ID: "p1", Relationship: RelPeer, Status: RaterSubmitted},
		{ID: "p2", Relationship: RelPeer, Status: RaterSubmitted},
		{ID: "p3", Relationship: RelPeer, Status: RaterSubmitted},
		{ID: "p4", Relationship: RelPeer, Status: RaterPending},
		{ID: "d1", Relationship: RelDirectReport, Status: RaterSubmitted},
		{ID: "d2", Relationship: RelDirectReport, Status: RaterSubmitted},
	}
	scores := map[string]int{"s": 4, "m": 3, "p1": 5, "p2": 5, "p3": 5, "p4": 1, "d1": 2, "d2": 2}

	var responses []Response
	for _, r := range raters {
		for _, q := range questions {
			resp := Response{RaterID: r.ID, QuestionID: q.ID, Score: scores[r.ID]}
			if q.ID == "q1" {
				switch r.ID {
				case "d1":
					resp.Comment = "listens well"
				case "p1":
					resp.Comment = "clear goals"
				}
			}
			responses = append(responses, resp)
		}
	}
	// unknown question
	responses = append(responses, Response{RaterID: "m", QuestionID: "q9", Score: 1})
	return questions, raters, responses
}

func relationships(groups []GroupScore) []string {
	rels := make([]string, 0, len(groups))
	for _, g := range groups {
		rels = append(rels, g.Relationship)
	}
	return rels
}

func TestComputeStats_SmallGroupsAreMergedAndHidden(t *testing.T) {
	questions, raters, responses := statsFixture()
	stats := ComputeStats(questions, raters, responses, 3)

	assert.Equal(t, 8, stats.Invited)
	assert.Equal(t, 7, stats.Submitted)
	assert.Equal(t, 0.88, stats.ResponseRate)

	require.NotNil(t, stats.Self)
	require.NotNil(t, stats.Others)
	require.NotNil(t, stats.Gap)
	assert.Equal(t, 4.0, *stats.Self)
	// (3 + 3*5 + 2*2) / 6: the hidden direct reports still count
	assert.Equal(t, 3.67, *stats.Others)
	assert.Equal(t, 0.33, *stats.Gap)

	// direct reports (2) are merged into "other", which stays hidden
	assert.Equal(t, []string{RelManager, RelPeer}, relationships(stats.Groups))
	assert.Equal(t, GroupScore{Relationship: RelPeer, Mean: 5, Raters: 3}, stats.Groups[1])
	assert.Equal(t, GroupScore{Relationship: RelManager, Mean: 3, Raters: 1}, stats.Groups[0])

	require.Len(t, stats.Questions, 3)
	assert.Equal(t, []string{"q1", "q2", "q3"}, []string{stats.Questions[0].QuestionID, stats.Questions[1].QuestionID, stats.Questions[2].QuestionID})
	assert.Equal(t, []string{"clear goals", "listens well"}, stats.Questions[0].Comments)
	assert.Empty(t, stats.Questions[1].Comments)

	require.Len(t, stats.Competencies, 2)
	assert.Equal(t, "Vision", stats.Competencies[0].Competency)
	assert.Equal(t, "Trust", stats.Competencies[1].Competency)
	assert.Equal(t, 3.67, *stats.Competencies[0].Others)
}

func TestComputeStats_LargeEnoughGroupsAreShown(t *testing.T) {
	questions, raters, responses := statsFixture()
	stats := ComputeStats(questions, raters, responses, 2)

	assert.Equal(t, []string{RelManager, RelPeer, RelDirectReport}, relationships(stats.Groups))
	assert.Equal(t, GroupScore{Relationship: RelDirectReport, Mean: 2, Raters: 2}, stats.Groups[2])
}

func TestComputeStats_MergedGroupReachingThreshold(t *testing.T) {
	questions, raters, responses := statsFixture()
	raters = append(raters, Rater{ID: "o1", Relationship: RelOther, Status: RaterSubmitted})
	for _, q := range questions {
		responses = append(responses, Response{RaterID: "o1", QuestionID: q.ID, Score: 5})
	}
	stats := ComputeStats(questions, raters, responses, 3)

	// 2 direct reports + 1 other
	assert.Equal(t, []string{RelManager, RelPeer, RelOther}, relationships(stats.Groups))
	assert.Equal(t, GroupScore{Relationship: RelOther, Mean: 3, Raters: 3}, stats.Groups[2])
}

func TestComputeStats_NoResponses(t *testing.T) {
	questions, raters, _ := statsFixture()
	for i := range raters {
		raters[i].Status = RaterPending
	}
	stats := ComputeStats(questions, raters, nil, 3)

	assert.Equal(t, 0, stats.Submitted)
	assert.Equal(t, 0.0, stats.ResponseRate)
	assert.Nil(t, stats.Self)
	assert.Nil(t, stats.Others)
	assert.Nil(t, stats.Gap)
	assert.Empty(t, stats.Groups)
	require.Len(t, stats.Questions, 3)
	assert.Empty(t, stats.Questions[0].Groups)
}

func TestAllowsRelationship(t *testing.T) {
	tests := []struct {
		kind, rel string
		want      bool
	}{
		{Kind180, RelSelf, true},
		{Kind180, RelManager, true},
		{Kind180, RelPeer, false},
		{Kind360, RelPeer, true},
		{Kind360, RelDirectReport, true},
		{"90", RelSelf, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, AllowsRelationship(tt.kind, tt.rel))
		})
	}
}
