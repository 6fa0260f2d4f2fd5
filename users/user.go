// Package users serves an in-memory directory of generated users with
// search, filtering and pagination.
package users

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// User is one directory entry.
type User struct {
	ID          string   `json:"id"`
	Avatar      string   `json:"avatar"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Age         int      `json:"age"`
	Nationality string   `json:"nationality"`
	Hobbies     []string `json:"hobbies"`
}

const (
	// DefaultCount is the directory size used by the server.
	DefaultCount = 1000
	minAge       = 18
	maxAge       = 65
	maxHobbies   = 4
)

// Hobbies is the closed set hobbies are drawn from.
var Hobbies = []string{
	"coding", "music", "gaming", "reading", "sports", "travel",
	"photography", "cooking", "gardening", "painting", "dancing", "yoga",
	"hiking", "cycling", "swimming", "fishing", "writing", "blogging",
	"podcasting", "woodworking", "knitting", "chess", "movies", "anime",
	"volunteering", "meditation", "running", "camping", "surfing", "skateboarding",
}

var firstNames = []string{
	"Aaliyah", "Aiden", "Alejandro", "Amara", "Anika", "Arjun", "Ava", "Benjamin",
	"Camila", "Chen", "Chloe", "Daniel", "Diego", "Elena", "Elif", "Emma",
	"Ethan", "Fatima", "Felix", "Freya", "Gabriel", "Hana", "Hiro", "Ines",
	"Isaac", "Isabella", "Jamal", "Javier", "Kai", "Kenji", "Layla", "Leo",
	"Liam", "Lucia", "Malik", "Maya", "Mateo", "Mia", "Noah", "Nora",
	"Olga", "Omar", "Priya", "Rafael", "Rosa", "Sakura", "Samuel", "Sofia",
	"Tariq", "Theo", "Valentina", "Yara", "Yusuf", "Zara",
}

var lastNames = []string{
	"Abbott", "Alvarez", "Andersson", "Becker", "Bianchi", "Chowdhury", "Costa", "Dubois",
	"Eriksen", "Fernandes", "Fischer", "Garcia", "Gonzalez", "Haddad", "Hansen", "Hernandez",
	"Ivanova", "Jansen", "Johnson", "Kaur", "Kim", "Kowalski", "Larsen", "Lee",
	"Lopez", "Martin", "Meyer", "Moreau", "Nakamura", "Nguyen", "Novak", "Okafor",
	"Olsen", "Patel", "Petrov", "Quinn", "Rossi", "Santos", "Schmidt", "Silva",
	"Smith", "Suzuki", "Tanaka", "Torres", "Vargas", "Wang", "Weber", "Williams",
	"Yilmaz", "Zhang",
}

var countries = []string{
	"Argentina", "Australia", "Austria", "Belgium", "Brazil", "Canada", "Chile",
	"China", "Colombia", "Denmark", "Egypt", "Finland", "France", "Germany",
	"Ghana", "Greece", "India", "Indonesia", "Ireland", "Israel", "Italy",
	"Japan", "Kenya", "Mexico", "Morocco", "Netherlands", "New Zealand",
	"Nigeria", "Norway", "Peru", "Philippines", "Poland", "Portugal",
	"South Africa", "South Korea", "Spain", "Sweden", "Switzerland", "Thailand",
	"Turkey", "Ukraine", "United Kingdom", "United States of America", "Vietnam",
}

// Generate returns count users drawn deterministically from seed.
func Generate(count int, seed uint64) []User {
	var key [32]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(seed >> (8 * i))
	}
	src := rand.NewChaCha8(key)
	rng := rand.New(src)

	out := make([]User, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.Must(uuid.NewRandomFromReader(src)).String()
		out = append(out, User{
			ID:          id,
			Avatar:      "https://i.pravatar.cc/150?u=" + id,
			FirstName:   pick(rng, firstNames),
			LastName:    pick(rng, lastNames),
			Age:         minAge + rng.IntN(maxAge-minAge+1),
			Nationality: pick(rng, countries),
			Hobbies:     sample(rng, Hobbies, 1+rng.IntN(maxHobbies)),
		})
	}
	return out
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}

// sample returns n distinct elements of from in random order.
func sample(rng *rand.Rand, from []string, n int) []string {
	idx := rng.Perm(len(from))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = from[j]
	}
	return out
}
