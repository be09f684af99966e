package tools

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

type redditComment struct {
	id     int
	parent int
	author string
	text   string
	score  int
}

// commentOverhead is the serialized size of a comment minus author and text.
var commentOverhead = utf8.RuneCountInString("<comment author=\"\">\n\n</comment>\n")

// redditText renders an old.reddit.com thread: the submission header
// followed by the comment tree, pruned to fit maxLength.
func redditText(doc *html.Node, maxLength int) (string, error) {
	title := textOf(find(doc, both(byTag("p"), byClass("title"))))
	tagline := textOf(find(doc, both(byTag("p"), byClass("tagline"))))
	submission := strings.TrimSpace(textOf(find(doc, both(byTag("div"), byClass("expando")))))
	header := fmt.Sprintf("%s\n%s\n%s", title, tagline, submission)

	area := find(doc, byClass("commentarea"))
	if area == nil {
		return header, nil
	}

	p := &redditParser{}
	comments := p.comments(area, 0)
	comments = pruneComments(comments, maxLength-utf8.RuneCountInString(header))

	return header + "\n\n" + serializeComments(comments, 0), nil
}

type redditParser struct {
	next int
}

func (p *redditParser) comments(n *html.Node, parent int) []redditComment {
	table := find(n, byClass("sitetable"))
	if table == nil {
		return nil
	}
	var out []redditComment
	for _, el := range childElements(table, byClass("comment")) {
		out = append(out, p.comment(el, parent)...)
	}
	return out
}

func (p *redditParser) comment(n *html.Node, parent int) []redditComment {
	p.next++
	c := redditComment{id: p.next, parent: parent, author: "[deleted]"}

	if author := find(n, byClass("author")); author != nil {
		c.author = textOf(author)
	}
	if md := find(n, byClass("md")); md != nil {
		var paras []string
		for _, para := range findAll(md, byTag("p")) {
			paras = append(paras, textOf(para))
		}
		c.text = strings.TrimSpace(strings.Join(paras, "\n"))
	}
	if tagline := find(n, byClass("tagline")); tagline != nil {
		if unvoted := find(tagline, byClass("unvoted")); unvoted != nil {
			// hidden scores have no number; they sort as zero
			c.score, _ = strconv.Atoi(attr(unvoted, "title"))
		}
	}

	out := []redditComment{c}
	if child := find(n, byClass("child")); hasContent(child) {
		out = append(out, p.comments(child, c.id)...)
	}
	return out
}

// pruneComments drops the lowest scored leaf comments until the thread
// fits in budget characters.
func pruneComments(comments []redditComment, budget int) []redditComment {
	size := func() int {
		total := commentOverhead * len(comments)
		for _, c := range comments {
			total += utf8.RuneCountInString(c.author) + utf8.RuneCountInString(c.text)
		}
		return total
	}

	for len(comments) > 0 && size() > budget {
		parents := make(map[int]bool, len(comments))
		for _, c := range comments {
			parents[c.parent] = true
		}
		worst := -1
		for i, c := range comments {
			if parents[c.id] {
				continue
			}
			if worst == -1 || c.score < comments[worst].score {
				worst = i
			}
		}
		comments = append(comments[:worst:worst], comments[worst+1:]...)
	}
	return comments
}

func serializeComments(comments []redditComment, parent int) string {
	var b strings.Builder
	for _, c := range comments {
		if c.parent != parent {
			continue
		}
		fmt.Fprintf(&b, "<comment author=\"%s\">\n%s\n%s</comment>\n", c.author, c.text, serializeComments(comments, c.id))
	}
	return b.String()
}
