package users

import (
	"sort"
	"strings"
)

// metadataTop is the number of hobbies and nationalities Metadata reports.
const metadataTop = 20

// Page is one page of a filtered listing.
type Page struct {
	Items   []User `json:"items"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Total   int    `json:"total"`
	HasMore bool   `json:"hasMore"`
}

// Metadata lists the most common filter values.
type Metadata struct {
	Hobbies       []string `json:"hobbies"`
	Nationalities []string `json:"nationalities"`
}

// Directory is an immutable set of users. It is safe for concurrent use.
type Directory struct {
	users []User
	meta  Metadata
}

// NewDirectory generates count users from seed.
func NewDirectory(count int, seed uint64) *Directory {
	return FromUsers(Generate(count, seed))
}

// FromUsers wraps an existing slice. The directory takes ownership of users.
func FromUsers(users []User) *Directory {
	d := &Directory{users: users}
	d.meta = d.computeMetadata()
	return d
}

// Len reports the number of users.
func (d *Directory) Len() int { return len(d.users) }

// Find returns the page of users matching q. Search is a case-insensitive
// substring match on first or last name, any of q.Nationalities may match,
// and every hobby in q.Hobbies must be present.
func (d *Directory) Find(q Query) Page {
	if q.Page < PageMin {
		q.Page = PageDefault
	}
	if q.Limit < LimitMin {
		q.Limit = LimitDefault
	}
	search := strings.ToLower(q.Search)
	nats := lowerSet(q.Nationalities)
	hobbies := lowerSet(q.Hobbies)

	matched := make([]User, 0, len(d.users))
	for _, u := range d.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.FirstName), search) &&
			!strings.Contains(strings.ToLower(u.LastName), search) {
			continue
		}
		if len(nats) > 0 {
			if _, ok := nats[strings.ToLower(u.Nationality)]; !ok {
				continue
			}
		}
		if len(hobbies) > 0 && !hasAll(u.Hobbies, hobbies) {
			continue
		}
		matched = append(matched, u)
	}

	total := len(matched)
	start := min((q.Page-1)*q.Limit, total)
	end := min(start+q.Limit, total)
	return Page{
		Items:   matched[start:end],
		Page:    q.Page,
		Limit:   q.Limit,
		Total:   total,
		HasMore: q.Page*q.Limit < total,
	}
}

// Metadata returns the top hobbies and nationalities by frequency.
func (d *Directory) Metadata() Metadata {
	return Metadata{
		Hobbies:       append([]string(nil), d.meta.Hobbies...),
		Nationalities: append([]string(nil), d.meta.Nationalities...),
	}
}

func (d *Directory) computeMetadata() Metadata {
	var hobbies, nats counter
	for _, u := range d.users {
		nats.add(u.Nationality)
		for _, h := range u.Hobbies {
			hobbies.add(h)
		}
	}
	return Metadata{Hobbies: hobbies.top(metadataTop), Nationalities: nats.top(metadataTop)}
}

// counter counts occurrences and remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func (c *counter) add(key string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) top(n int) []string {
	keys := append([]string(nil), c.order...)
	sort.SliceStable(keys, func(i, j int) bool { return c.counts[keys[i]] > c.counts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

func lowerSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = struct{}{}
	}
	return set
}

func hasAll(have []string, want map[string]struct{}) bool {
	found := 0
	for _, h := range have {
		if _, ok := want[strings.ToLower(h)]; ok {
			found++
		}
	}
	return found >= len(want)
}
