package mcpserver

// MemoryFormat describes the Markdown conventions that tasks and memories
// are derived from.
const MemoryFormat = `# Memory File Format

One Markdown file per day. The file key is the date in ` + "`" + `YYYY-MM-DD` + "`" + ` form.

## Structure

` + "```" + `markdown
---
title: Optional display title       # falls back to the first "# " heading
tags:                                # inherited by every memory in the file
  - daily
---

# Friday

## Work
- [ ] ship the sync server
- [x] review the heartbeat change #ops

## Notes
Anything under a "## " heading is one memory.
` + "```" + `

## Rules

1. **Memories** are the sections introduced by ` + "`" + `## ` + "`" + ` headings. The heading is the
   memory title and the lines up to the next heading are its content.
2. **Tasks** are checkbox list items (` + "`" + `- [ ]` + "`" + `, ` + "`" + `- [x]` + "`" + `, ` + "`" + `*` + "`" + ` or ` + "`" + `+` + "`" + ` bullets)
   anywhere in the body. A task belongs to the section it appears in.
3. **Tags** are inline ` + "`" + `#words` + "`" + ` plus the frontmatter ` + "`" + `tags` + "`" + ` list.
4. Lines inside fenced code blocks are never tasks or headings.
5. A ` + "`" + `# ` + "`" + ` heading ends the current memory without starting a new one.
6. Writes replace the whole file. Read the current content before appending.
`
