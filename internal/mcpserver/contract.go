package mcpserver

// NoteFormat describes how notesync reads note content.
const NoteFormat = `# notesync note format

Notes are plain UTF-8 text. There is no frontmatter.

- The first line that contains anything other than whitespace is the title.
  Leading blank lines are skipped.
- Everything after the title line is the body.
- Words starting with ` + "`#`" + ` followed by a letter (for example ` + "`#shopping`" + ` or
  ` + "`#work/q3`" + `) are tags. Tags set on the server are listed as well.
- Every edit replaces the whole note. Concurrent edits from another device are
  not merged: the newer server copy wins unless this side has unsynced edits,
  in which case the next sync overwrites the server copy.
- A new note has no server key until the first sync; its key changes then.
`
