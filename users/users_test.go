package users

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *Directory {
	return FromUsers([]User{
		{ID: "1", FirstName: "Ava", LastName: "Smith", Nationality: "Canada", Hobbies: []string{"chess", "yoga"}},
		{ID: "2", FirstName: "Liam", LastName: "Avalos", Nationality: "Mexico", Hobbies: []string{"chess"}},
		{ID: "3", FirstName: "Noah", LastName: "Kim", Nationality: "canada", Hobbies: []string{"Yoga", "chess", "music"}},
		{ID: "4", FirstName: "Mia", LastName: "Lee", Nationality: "Japan", Hobbies: []string{"music"}},
		{ID: "5", FirstName: "Zara", LastName: "Patel", Nationality: "India", Hobbies: []string{"surfing"}},
	})
}

func ids(p Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, u := range p.Items {
		out = append(out, u.ID)
	}
	return out
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(50, 7)
	b := Generate(50, 7)
	require.Equal(t, a, b)
	assert.NotEqual(t, a[0].ID, Generate(1, 8)[0].ID)

	seen := map[string]bool{}
	for _, u := range a {
		assert.False(t, seen[u.ID], "duplicate id %s", u.ID)
		seen[u.ID] = true
		assert.GreaterOrEqual(t, u.Age, 18)
		assert.LessOrEqual(t, u.Age, 65)
		assert.GreaterOrEqual(t, len(u.Hobbies), 1)
		assert.LessOrEqual(t, len(u.Hobbies), 4)
		distinct := map[string]bool{}
		for _, h := range u.Hobbies {
			assert.False(t, distinct[h])
			distinct[h] = true
		}
		assert.Contains(t, u.Avatar, u.ID)
	}
}

func TestFind_SearchIsCaseInsensitiveOnEitherName(t *testing.T) {
	p := fixture().Find(Query{Page: 1, Limit: 20, Search: "AVA"})
	assert.Equal(t, []string{"1", "2"}, ids(p))
	assert.Equal(t, 2, p.Total)
	assert.False(t, p.HasMore)
}

func TestFind_NationalitiesMatchAny(t *testing.T) {
	p := fixture().Find(Query{Page: 1, Limit: 20, Nationalities: []string{"CANADA", "japan"}})
	assert.Equal(t, []string{"1", "3", "4"}, ids(p))
}

func TestFind_HobbiesMatchAll(t *testing.T) {
	p := fixture().Find(Query{Page: 1, Limit: 20, Hobbies: []string{"chess", "yoga"}})
	assert.Equal(t, []string{"1", "3"}, ids(p))
}

func TestFind_Pagination(t *testing.T) {
	d := fixture()

	p := d.Find(Query{Page: 1, Limit: 2})
	assert.Equal(t, []string{"1", "2"}, ids(p))
	assert.True(t, p.HasMore)
	assert.Equal(t, 5, p.Total)

	p = d.Find(Query{Page: 3, Limit: 2})
	assert.Equal(t, []string{"5"}, ids(p))
	assert.False(t, p.HasMore)

	p = d.Find(Query{Page: 9, Limit: 2})
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
}

func TestMetadata_OrderedByFrequency(t *testing.T) {
	m := fixture().Metadata()
	assert.Equal(t, []string{"chess", "music", "yoga", "Yoga", "surfing"}, m.Hobbies)
	assert.Equal(t, "Canada", m.Nationalities[0])
	assert.Len(t, m.Nationalities, 5)

	big := NewDirectory(DefaultCount, 1).Metadata()
	assert.Len(t, big.Hobbies, 20)
	assert.LessOrEqual(t, len(big.Nationalities), 20)
}

func TestParseQuery_Defaults(t *testing.T) {
	q, err := ParseQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, Query{Page: 1, Limit: 20}, q)
}

func TestParseQuery_Lists(t *testing.T) {
	q, err := ParseQuery(url.Values{
		"page":          {"2"},
		"limit":         {"50"},
		"search":        {"  ava  "},
		"nationalities": {" Canada , ,Japan"},
		"hobbies":       {"chess,"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, "ava", q.Search)
	assert.Equal(t, []string{"Canada", "Japan"}, q.Nationalities)
	assert.Equal(t, []string{"chess"}, q.Hobbies)
}

func TestParseQuery_Invalid(t *testing.T) {
	tooMany := strings.TrimSuffix(strings.Repeat("x,", ArrayMaxItems+1), ",")
	_, err := ParseQuery(url.Values{
		"page":    {"0"},
		"limit":   {"abc"},
		"search":  {strings.Repeat("s", SearchMaxLength+1)},
		"hobbies": {tooMany},
	})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Page must be between 1 and 1000"}, verr.Fields["page"])
	assert.Equal(t, []string{"Limit must be between 1 and 100"}, verr.Fields["limit"])
	assert.Len(t, verr.Fields["search"], 1)
	assert.Len(t, verr.Fields["hobbies"], 1)

	b, err := json.Marshal(verr.Details())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"properties":{`)
	assert.Contains(t, string(b), `"page":{"errors":["Page must be between 1 and 1000"]}`)
}

func TestParseQuery_LongListItem(t *testing.T) {
	_, err := ParseQuery(url.Values{"nationalities": {strings.Repeat("n", ArrayItemMaxLength+1)}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "nationalities")
}
