// Package mainline picks a single linear same-author path through a branching
// reply tree. Everything here is pure and deterministic; both platform adapters
// feed it the posts they collected and get the same ordering rules.
package mainline

import (
	"sort"

	"github.com/kiliankoe/threader/pkg/models"
)

// Result is the linear sequence chosen by Build.
type Result struct {
	Posts                []models.Post
	HasAlternateBranches bool
}

// Less orders siblings by creation time, then by id. The id comparison is the
// tie-break for equal or unparseable timestamps.
func Less(a, b models.Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Index holds posts by id together with their resolved parent/child links.
type Index struct {
	posts    map[string]models.Post
	children map[string][]models.Post
}

// NewIndex indexes posts by id (first occurrence wins) and links every post
// whose InReplyToID resolves inside the set.
func NewIndex(posts []models.Post) *Index {
	ix := &Index{
		posts:    make(map[string]models.Post, len(posts)),
		children: make(map[string][]models.Post),
	}
	order := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		if _, exists := ix.posts[p.ID]; exists {
			continue
		}
		ix.posts[p.ID] = p
		order = append(order, p.ID)
	}
	for _, id := range order {
		p := ix.posts[id]
		if p.InReplyToID == "" || p.InReplyToID == p.ID {
			continue
		}
		if _, ok := ix.posts[p.InReplyToID]; !ok {
			continue
		}
		ix.children[p.InReplyToID] = append(ix.children[p.InReplyToID], p)
	}
	for parent := range ix.children {
		kids := ix.children[parent]
		sort.SliceStable(kids, func(i, j int) bool { return Less(kids[i], kids[j]) })
	}
	return ix
}

func (ix *Index) Get(id string) (models.Post, bool) {
	p, ok := ix.posts[id]
	return p, ok
}

func (ix *Index) Len() int { return len(ix.posts) }

// Children returns the ordered children registered under id.
func (ix *Index) Children(id string) []models.Post {
	return ix.children[id]
}

// HasBranches reports whether any parent has two or more registered children.
func (ix *Index) HasBranches() bool {
	for _, kids := range ix.children {
		if len(kids) >= 2 {
			return true
		}
	}
	return false
}

// WalkUp follows InReplyToID from start while the parent is indexed and not yet
// visited. The result is oldest first and does not include start.
func (ix *Index) WalkUp(start models.Post, visited map[string]struct{}) []models.Post {
	var chain []models.Post
	cursor := start
	for cursor.InReplyToID != "" {
		parent, ok := ix.posts[cursor.InReplyToID]
		if !ok {
			break
		}
		if _, seen := visited[parent.ID]; seen {
			break
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		cursor = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// WalkDown repeatedly takes the earliest unvisited child of the cursor, starting
// at startID. The result does not include the start post.
func (ix *Index) WalkDown(startID string, visited map[string]struct{}) []models.Post {
	var out []models.Post
	cursor := startID
	for {
		next, ok := firstUnvisited(ix.children[cursor], visited)
		if !ok {
			return out
		}
		visited[next.ID] = struct{}{}
		out = append(out, next)
		cursor = next.ID
	}
}

func firstUnvisited(kids []models.Post, visited map[string]struct{}) (models.Post, bool) {
	for _, k := range kids {
		if _, seen := visited[k.ID]; !seen {
			return k, true
		}
	}
	return models.Post{}, false
}

// Build returns ancestors + seed + descendants along the mainline. Candidates
// written by someone other than the seed's author are never linked.
func Build(seed models.Post, ancestors, descendants []models.Post) Result {
	candidates := make([]models.Post, 0, 1+len(ancestors)+len(descendants))
	candidates = append(candidates, seed)
	candidates = append(candidates, SameAuthor(seed.Account.ID, ancestors)...)
	candidates = append(candidates, SameAuthor(seed.Account.ID, descendants)...)

	ix := NewIndex(candidates)
	visited := map[string]struct{}{seed.ID: {}}

	posts := ix.WalkUp(seed, visited)
	posts = append(posts, seed)
	posts = append(posts, ix.WalkDown(seed.ID, visited)...)

	return Result{
		Posts:                posts,
		HasAlternateBranches: ix.HasBranches(),
	}
}

// SameAuthor keeps posts written by accountID. An empty accountID keeps nothing.
func SameAuthor(accountID string, posts []models.Post) []models.Post {
	if accountID == "" {
		return nil
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if p.Account.ID == accountID {
			out = append(out, p)
		}
	}
	return out
}

// Extend walks down from tail through candidates, skipping anything in known.
// It is the continuation step both adapters run after every context query.
func Extend(tail models.Post, known map[string]struct{}, candidates []models.Post) Result {
	pool := make([]models.Post, 0, len(candidates)+1)
	pool = append(pool, tail)
	for _, p := range SameAuthor(tail.Account.ID, candidates) {
		if p.ID == tail.ID {
			continue
		}
		pool = append(pool, p)
	}
	ix := NewIndex(pool)

	visited := make(map[string]struct{}, len(known)+1)
	for id := range known {
		visited[id] = struct{}{}
	}
	visited[tail.ID] = struct{}{}

	return Result{
		Posts:                ix.WalkDown(tail.ID, visited),
		HasAlternateBranches: ix.HasBranches(),
	}
}
