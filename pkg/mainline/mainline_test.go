package mainline

import (
	"testing"
	"time"

	"github.com/kiliankoe/threader/pkg/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func post(id, parent, author string, minute int) models.Post {
	return models.Post{
		ID:          id,
		InReplyToID: parent,
		CreatedAt:   base.Add(time.Duration(minute) * time.Minute),
		Account:     models.Account{ID: author},
	}
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func assertIDs(t *testing.T, got []models.Post, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, g)
		}
	}
}

func TestBuildAncestorsSeedAndEarliestBranch(t *testing.T) {
	seed := post("seed", "p2", "a", 2)
	ancestors := []models.Post{post("p1", "", "a", 0), post("p2", "p1", "a", 1)}
	descendants := []models.Post{
		post("d2", "seed", "a", 5),
		post("d1", "seed", "a", 3),
		post("d1a", "d1", "a", 4),
	}

	res := Build(seed, ancestors, descendants)

	assertIDs(t, res.Posts, "p1", "p2", "seed", "d1", "d1a")
	if !res.HasAlternateBranches {
		t.Fatalf("expected alternate branches to be reported")
	}
}

func TestBuildLinearHasNoBranches(t *testing.T) {
	seed := post("s", "", "a", 0)
	res := Build(seed, nil, []models.Post{post("c1", "s", "a", 1), post("c2", "c1", "a", 2)})

	assertIDs(t, res.Posts, "s", "c1", "c2")
	if res.HasAlternateBranches {
		t.Fatalf("expected no alternate branches")
	}
}

func TestBuildTieBreaksOnID(t *testing.T) {
	seed := post("s", "", "a", 0)
	res := Build(seed, nil, []models.Post{post("b", "s", "a", 1), post("a", "s", "a", 1)})

	assertIDs(t, res.Posts, "s", "a")
	if !res.HasAlternateBranches {
		t.Fatalf("expected branches with two children under the seed")
	}
}

func TestBuildTieBreaksUnparseableTimestamps(t *testing.T) {
	seed := post("s", "", "a", 0)
	x := models.Post{ID: "200", InReplyToID: "s", CreatedAt: models.ParseTimestamp("garbage"), Account: models.Account{ID: "a"}}
	y := models.Post{ID: "100", InReplyToID: "s", CreatedAt: models.ParseTimestamp(""), Account: models.Account{ID: "a"}}

	res := Build(seed, nil, []models.Post{x, y})
	assertIDs(t, res.Posts, "s", "100")
}

func TestBuildIgnoresForeignAuthors(t *testing.T) {
	seed := post("s", "", "a", 0)
	descendants := []models.Post{
		post("other", "s", "b", 1),
		post("mine", "s", "a", 2),
		post("other2", "s", "b", 3),
	}

	res := Build(seed, nil, descendants)

	assertIDs(t, res.Posts, "s", "mine")
	if res.HasAlternateBranches {
		t.Fatalf("foreign replies must not count as branches")
	}
}

func TestBuildGuardsAgainstCycles(t *testing.T) {
	seed := post("s", "x", "a", 1)
	ancestors := []models.Post{post("x", "s", "a", 0)}

	res := Build(seed, ancestors, nil)

	seen := map[string]bool{}
	for _, p := range res.Posts {
		if seen[p.ID] {
			t.Fatalf("duplicate id %s in %v", p.ID, ids(res.Posts))
		}
		seen[p.ID] = true
	}
	assertIDs(t, res.Posts, "x", "s")
}

func TestBuildDropsDuplicateCandidates(t *testing.T) {
	seed := post("s", "", "a", 0)
	child := post("c", "s", "a", 1)

	res := Build(seed, []models.Post{seed}, []models.Post{child, child})

	assertIDs(t, res.Posts, "s", "c")
	if res.HasAlternateBranches {
		t.Fatalf("duplicates must not look like branches")
	}
}

func TestBuildAdjacentPairsAreLinked(t *testing.T) {
	seed := post("s", "p", "a", 5)
	ancestors := []models.Post{post("root", "", "a", 0), post("p", "root", "a", 1)}
	descendants := []models.Post{
		post("c1", "s", "a", 6), post("c2", "c1", "a", 7), post("c2b", "c1", "a", 7),
		post("c3", "c2", "a", 8), post("dangling", "missing", "a", 9),
	}

	res := Build(seed, ancestors, descendants)

	for i := 1; i < len(res.Posts); i++ {
		if res.Posts[i].InReplyToID != res.Posts[i-1].ID {
			t.Fatalf("post %s does not reply to %s", res.Posts[i].ID, res.Posts[i-1].ID)
		}
	}
	assertIDs(t, res.Posts, "root", "p", "s", "c1", "c2", "c3")
}

func TestExtendWalksFromTailSkippingKnown(t *testing.T) {
	tail := post("t", "prev", "a", 0)
	known := map[string]struct{}{"prev": {}, "t": {}}
	candidates := []models.Post{
		post("n1", "t", "a", 1),
		post("n2", "n1", "a", 2),
		post("n2alt", "n1", "a", 3),
		post("foreign", "n2", "b", 4),
	}

	res := Extend(tail, known, candidates)

	assertIDs(t, res.Posts, "n1", "n2")
	if !res.HasAlternateBranches {
		t.Fatalf("expected branch under n1")
	}
}

func TestExtendNothingNew(t *testing.T) {
	tail := post("t", "", "a", 0)
	res := Extend(tail, map[string]struct{}{"t": {}}, nil)
	if len(res.Posts) != 0 || res.HasAlternateBranches {
		t.Fatalf("expected empty result, got %+v", res)
	}
}
