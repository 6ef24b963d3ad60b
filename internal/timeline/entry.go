package timeline

// Entry is one flattened timeline entry. The concrete types below form a
// closed set; anything the parser does not recognize becomes Unknown.
type Entry interface {
	entry()
}

// Cursor is a pagination marker. It carries no text.
type Cursor struct {
	Value string
}

// Post is a plain post authored by the timeline owner.
type Post struct {
	Text string
}

// Repost wraps another user's post. Text is the wrapped post's body.
type Repost struct {
	Text string
}

// Module groups several sub-entries (conversation threads, carousels).
// Only the first sub-post is kept: the rest are not expanded.
type Module struct {
	First *Post
	Size  int
}

// Unknown is any entry shape the parser could not resolve to text.
type Unknown struct {
	EntryID string
}

func (Cursor) entry()  {}
func (Post) entry()    {}
func (Repost) entry()  {}
func (Module) entry()  {}
func (Unknown) entry() {}

// Text returns the extractable body of e, or false when e contributes
// nothing.
func Text(e Entry) (string, bool) {
	switch v := e.(type) {
	case Cursor:
		return "", false
	case Post:
		return v.Text, true
	case Repost:
		return v.Text, true
	case Module:
		if v.First == nil {
			return "", false
		}
		return v.First.Text, true
	case Unknown:
		return "", false
	default:
		return "", false
	}
}
