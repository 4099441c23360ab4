package extractor

import "fmt"

// extractionSystemPrompt defines what counts as reusable knowledge.
// Held constant across sessions so the provider can cache it.
const extractionSystemPrompt = `You are a knowledge extraction engine. Your job is to analyze conversation transcripts between a developer and an AI assistant, then extract reusable knowledge.

## Extraction Criteria

1. **Decision signals**: Any moment where a direction was set - regardless of who initiated. These are the highest-value extractions because they represent executed decisions.
   - **Correction**: One party rejected the other's approach and a correct conclusion was reached.
     User->AI: "no", "that's wrong", "not like that"
     AI->User: "actually", "that won't work because", "a better approach is"
   - **Convergence**: Both parties discussed options and agreed on a direction.
     "agreed", "let's go with that", "sounds good", "yes, that way"
   - **Selection**: A choice was made among alternatives.
     "let's use A", "the second option", "let's use X instead of Y"
   The conversation may be in any language. Detect decision signals by semantic meaning, not by matching specific keywords.

2. **Explicit preferences**: "always use X", "I prefer Y", consistent choices across the conversation.

3. **Error resolutions**: An error occurred -> root cause identified -> solution applied. Extract the final conclusion, not the debugging process.

4. **Accumulated patterns**: Code or architecture patterns that appear multiple times, or the same decision direction repeating - indicating established conventions.

5. **Rule conflicts**: When the conversation contradicts one of the existing rules provided in the context, emit a "conflict" entry describing both the rule and the contradicting behavior so it can be reviewed.

## Exclusion Criteria

- One-off Q&A with no reuse value
- Simple file reads or navigation (the action itself is not knowledge)
- Content that is already a well-known fact (e.g., "JavaScript is single-threaded")

## Scope Classification

- Contains specific file paths, project names, domain terms -> "project"
- General language/framework pattern -> "global"
- Ambiguous -> "project" (conservative default)

## Output Format

Respond with a JSON array. If no knowledge is found, return an empty array ` + "`[]`" + `.

Each element:
{
  "content": "Clear, concise statement of the knowledge",
  "type": "pattern | preference | decision | mistake | workaround | conflict",
  "scope": "global | project",
  "tags": ["tag1", "tag2"],
  "confidence": 0.0-1.0
}

Rules:
- "content" must be a self-contained statement (understandable without the conversation)
- "confidence" reflects how certain the knowledge is (0.9+ for explicit statements, 0.5-0.7 for inferred patterns)
- "tags" should include relevant technology names (lowercase)
- Keep each extraction focused - one idea per chunk`

// buildExtractionPrompt assembles the user message: the transcript,
// optional project context and optional existing-rules context for
// conflict detection.
func buildExtractionPrompt(formattedTranscript, projectName, existingRules string) string {
	projectContext := ""
	if projectName != "" {
		projectContext = fmt.Sprintf("\n\nProject context: %q", projectName)
	}

	rulesContext := ""
	if existingRules != "" {
		rulesContext = fmt.Sprintf("\n\nThe following rules have already been crystallized from past sessions. If the conversation contradicts any of them, extract a \"conflict\" entry.\n\n<existing_rules>\n%s\n</existing_rules>", existingRules)
	}

	return fmt.Sprintf(`Analyze the following conversation transcript and extract reusable knowledge.%s%s

<transcript>
%s
</transcript>

Extract knowledge as a JSON array. If nothing valuable is found, return `+"`[]`"+`.`, projectContext, rulesContext, formattedTranscript)
}

// crystallizeSystemPrompt tunes the service for rule synthesis.
const crystallizeSystemPrompt = `You are a knowledge consolidation engine. You receive a set of extracted knowledge chunks plus the current rule documents, and you propose a small number of durable rule documents.

## Consolidation Criteria

- Group related chunks under a single topic; a topic should be broad enough to hold several rules but narrow enough to stay actionable.
- Prefer updating an existing document over creating a near-duplicate topic.
- Propose "remove" only when every rule in an existing document is obsolete or contradicted by newer knowledge.
- Each rule statement must be self-contained and imperative ("Use X when Y"), not a transcript summary.
- Drop chunks that are too vague, contradictory, or low-confidence to state as a rule.

## Output Format

Respond with a JSON array of operations. If nothing should change, return an empty array ` + "`[]`" + `.

Each element:
{
  "topic": "short-topic-name",
  "action": "create | update | remove",
  "rules": ["rule statement", ...],
  "source_ids": ["chunk-id", ...],
  "existing_file": "distill-topic.md"
}

Rules:
- "topic" is required and should be a short lowercase phrase
- "rules" and "source_ids" must be arrays (empty allowed for remove)
- "existing_file" is set for update/remove when a current document is being targeted`

// buildCrystallizePrompt lists every chunk with its id so operations
// can cite provenance, plus current documents so the service can
// propose updates and removals.
func buildCrystallizePrompt(chunkListing, existingRules string) string {
	rulesSection := "There are no existing rule documents."
	if existingRules != "" {
		rulesSection = fmt.Sprintf("Current rule documents:\n\n<existing_rules>\n%s\n</existing_rules>", existingRules)
	}

	return fmt.Sprintf(`Consolidate the following knowledge chunks into rule documents.

<chunks>
%s
</chunks>

%s

Respond with a JSON array of operations.`, chunkListing, rulesSection)
}
