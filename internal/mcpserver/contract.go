package mcpserver

// ReviewFormatContract describes how review state is stored in the vault so
// LLM consumers can write notes and cards the scheduler understands.
const ReviewFormatContract = `# Recall Review Format

Review state lives in the Markdown files themselves. Nothing else is needed
to carry a vault between machines.

## Notes

A note takes part in note review when it carries one of the review tags
(default ` + "`" + `#review` + "`" + `), either inline or in the frontmatter ` + "`" + `tags` + "`" + ` list.
After the first review its schedule is kept in three frontmatter keys:

` + "```" + `markdown
---
tags: [review]
sr-due: 2026-03-13      # next review date, YYYY-MM-DD
sr-interval: 3          # days until the next review
sr-ease: 250            # ease, 130 or more
---
` + "```" + `

A note missing any of the three keys counts as new. New notes are ordered
by importance: notes that many important notes link to come first.

## Flash-cards

Cards live in notes tagged with the flashcards tag (default ` + "`" + `#flashcards` + "`" + `).

Single line:

` + "```" + `markdown
What is a DAG::A directed acyclic graph
<!--SR:2026-03-13,3,250-->
` + "```" + `

Multi-line, with a lone ` + "`" + `?` + "`" + ` line between front and back:

` + "```" + `markdown
Front paragraph
?
Back paragraph
<!--SR:2026-03-13,3,250-->
` + "```" + `

The ` + "`" + `<!--SR:due,interval,ease-->` + "`" + ` comment is written by the reviewer; leave
it out on new cards. The headings above a card are shown as its context.

## Responses

Every review is answered with Hard, Good or Easy. Hard halves the interval
and lowers the ease by 20; Good multiplies the interval by the ease; Easy
also raises the ease by 20 and adds a 30% bonus.
`
