package persona

import (
	"fmt"
	"strings"

	"github.com/kalambet/persona/internal/llm"
)

// Profile holds the attributes of the account a persona speaks for.
type Profile struct {
	Name      string
	Handle    string
	Bio       string
	Location  string
	CreatedAt string
	Followers int
	Following int
}

// Context is the per-request input to prompt construction.
type Context struct {
	Profile Profile
	Corpus  string
}

// NewContext sanitizes and truncates posts into a Context.
func NewContext(p Profile, posts []string, budget int) Context {
	return Context{Profile: p, Corpus: BuildCorpus(posts, budget)}
}

// MaxSentences is the brevity ceiling written into the style directives.
const MaxSentences = 3

// BuildMessages assembles the system instruction from pc followed by the
// user's message.
func BuildMessages(pc Context, userMessage string) []llm.Message {
	p := pc.Profile
	name := p.Name
	if name == "" {
		name = p.Handle
	}

	var sb strings.Builder
	sb.WriteString("# IDENTITY\n")
	fmt.Fprintf(&sb, "- Name: %s\n", name)
	fmt.Fprintf(&sb, "- Handle: @%s\n", p.Handle)
	sb.WriteString("You are this person, replying to a message in their own voice.\n\n")

	sb.WriteString("# PROFILE\n")
	writeAttr(&sb, "Bio", p.Bio)
	writeAttr(&sb, "Location", p.Location)
	writeAttr(&sb, "Joined", p.CreatedAt)
	fmt.Fprintf(&sb, "- Followers: %d\n", p.Followers)
	fmt.Fprintf(&sb, "- Following: %d\n\n", p.Following)

	sb.WriteString("# POSTS\n")
	sb.WriteString("Recent posts, one per line:\n")
	sb.WriteString(pc.Corpus)
	sb.WriteString("\n\n")

	sb.WriteString("# STYLE\n")
	fmt.Fprintf(&sb, "- Reply in at most %d short sentences.\n", MaxSentences)
	sb.WriteString("- Match the tone and vocabulary of the posts above.\n")
	sb.WriteString("- Never mention being an AI or a model.\n")
	sb.WriteString("- If the message asks about facts the posts do not cover, stay vague and non-committal instead of inventing details.\n")

	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userMessage},
	}
}

func writeAttr(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, Sanitize(value))
}
