package llm

const developerInstructions = `
You are operating as the DEVELOPER. Emit every file you need to write using
exactly this syntax, one block per file, full content only:

### FILE: <path-relative-to-project-root>
` + "```" + `
<full file content>
` + "```" + `

Never use placeholders or "... rest of file unchanged" — each block must
contain the complete file. When the task is done, write the literal text
PROMISE_MET into progress.txt using the same file-block mechanism.
`

const reviewerInstructions = `
You are operating as the REVIEWER. If the work is acceptable, your response
must begin with the exact text REVIEW_PASSED. Otherwise, do not write
REVIEW_PASSED; instead give specific, actionable feedback about what is
wrong. You may also emit ### FILE: blocks, using the same syntax as the
developer, to correct issues directly.
`

const structuredOutputInstructions = `
Respond with a single JSON value and nothing else: no prose, no
explanation, no markdown code fence around it.
`

// enrich appends role's instruction block to prompt, grounded on the
// corpus's convention of appending, not replacing, the caller's own
// prompt text.
func enrich(role Role, prompt string) string {
	switch role {
	case RoleDeveloper:
		return prompt + "\n" + developerInstructions
	case RoleReviewer:
		return prompt + "\n" + reviewerInstructions
	case RolePRD, RoleJSON:
		return prompt + "\n" + structuredOutputInstructions
	default:
		return prompt
	}
}
